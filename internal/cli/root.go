package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/andywolf/competency/internal/config"
	"github.com/andywolf/competency/internal/version"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// configCandidates are searched in order when --config is not given.
var configCandidates = []string{
	filepath.Join("config", "config.yaml"),
	".competency.yaml",
}

var rootCmd = &cobra.Command{
	Use:   "competency",
	Short: "Competency analyzer - rate your Jira work against a competency matrix",
	Long: `Competency fetches the Jira issues assigned to you, asks a Gemini model on
Vertex AI to rate your level (1-5) for every skill of a competency matrix,
keeps every assessment in a local history database and writes a Markdown
report.

Jira credentials are read from the environment (JIRA_SERVER, JIRA_USERNAME,
JIRA_API_TOKEN or JIRA_PASSWORD), a .env file, or the config file.

Example:
  competency analyze --start-date 2025-01-01
  competency history --skill Go`,
	SilenceUsage: true,
}

// Execute runs the root command with ctx; cancelling it aborts the
// in-flight model call.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Set version for --version flag
	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config/config.yaml, then .competency.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: failed to load .env:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}
		if path := findConfigFile(cwd); path != "" {
			viper.SetConfigFile(path)
		}
	}

	if err := config.BindEnv(viper.GetViper()); err != nil {
		fmt.Fprintln(os.Stderr, "Error binding environment:", err)
		os.Exit(1)
	}

	// An absent config file means defaults only; an explicit one must load.
	if viper.ConfigFileUsed() == "" {
		return
	}
	if err := viper.ReadInConfig(); err != nil {
		if cfgFile != "" {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
			os.Exit(1)
		}
		return
	}
	if viper.GetBool("verbose") {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadDotEnv loads variables from path without overriding the environment.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// findConfigFile returns the first config candidate present under dir.
func findConfigFile(dir string) string {
	for _, name := range configCandidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
