package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfigFile(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{name: "none", want: ""},
		{name: "dotfile only", files: []string{".competency.yaml"}, want: ".competency.yaml"},
		{name: "config dir wins", files: []string{".competency.yaml", "config/config.yaml"}, want: "config/config.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				path := filepath.Join(dir, f)
				if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(path, []byte("jira: {}\n"), 0644); err != nil {
					t.Fatal(err)
				}
			}

			got := findConfigFile(dir)
			want := ""
			if tt.want != "" {
				want = filepath.Join(dir, tt.want)
			}
			if got != want {
				t.Errorf("findConfigFile() = %q, want %q", got, want)
			}
		})
	}
}

func TestFindConfigFile_IgnoresDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".competency.yaml"), 0755); err != nil {
		t.Fatal(err)
	}
	if got := findConfigFile(dir); got != "" {
		t.Errorf("findConfigFile() = %q, want empty", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := loadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file: loadDotEnv() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("COMPETENCY_TEST_DOTENV=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COMPETENCY_TEST_DOTENV", "from-env")
	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv() error = %v", err)
	}
	if got := os.Getenv("COMPETENCY_TEST_DOTENV"); got != "from-env" {
		t.Errorf("environment overridden: got %q", got)
	}
}
