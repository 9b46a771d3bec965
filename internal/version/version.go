// Package version holds build metadata stamped in with -ldflags, e.g.
//
//	go build -ldflags="-X github.com/andywolf/competency/internal/version.Version=v1.0.0"
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version (e.g., "v1.2.3").
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "unknown"

	// BuildDate is the RFC3339 timestamp of the build.
	BuildDate = "unknown"
)

const name = "competency"

// Short returns the version string (e.g., "v1.2.3" or "dev").
func Short() string {
	return Version
}

func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}

// Info returns a single line such as
// "competency v1.2.3 (commit: abc1234, built: 2024-01-15T10:30:00Z, go: go1.24.x)".
func Info() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		name, Version, shortCommit(), BuildDate, runtime.Version())
}

// Full returns a multi-line verbose version output.
func Full() string {
	return fmt.Sprintf(`%s %s
  Commit:     %s
  Built:      %s
  Go version: %s
  OS/Arch:    %s/%s`,
		name, Version, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies the tool to Google APIs, e.g. "competency/v1.2.3 (abc1234)".
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s)", name, Version, shortCommit())
}

// Build is the structured form of the build metadata.
type Build struct {
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the current build metadata.
func Get() Build {
	return Build{
		Name:      name,
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
