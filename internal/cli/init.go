package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andywolf/competency/internal/cli/wizard"
	"github.com/andywolf/competency/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter configuration",
	Long: `Create config/config.yaml with defaults that you can customize.

Secrets (JIRA_API_TOKEN, JIRA_PASSWORD) are never written to the file; keep
them in the environment, a .env file or GCP Secret Manager.

Example:
  competency init
  competency init --jira-server https://acme.atlassian.net --project my-gcp-project
  competency init --interactive`,
	RunE: initProject,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("path", filepath.Join("config", "config.yaml"), "config file to create")
	initCmd.Flags().String("jira-server", "", "Jira server URL")
	initCmd.Flags().String("jira-username", "", "Jira username (email)")
	initCmd.Flags().String("project", "", "GCP project for Vertex AI")
	initCmd.Flags().String("location", config.DefaultLocation, "Vertex AI location")
	initCmd.Flags().String("start-date", "", "analysis start date (YYYY-MM-DD)")
	initCmd.Flags().BoolP("interactive", "i", false, "prompt for values")
	initCmd.Flags().Bool("force", false, "Overwrite existing config")
}

type fileConfig struct {
	StartDate string `yaml:"start_date,omitempty"`
	Jira      struct {
		Server         string `yaml:"server"`
		Username       string `yaml:"username"`
		APITokenSecret string `yaml:"api_token_secret,omitempty"`
		MaxResults     int    `yaml:"max_results"`
	} `yaml:"jira"`
	Matrix struct {
		Path string `yaml:"path"`
	} `yaml:"matrix"`
	Model struct {
		Project  string `yaml:"project"`
		Location string `yaml:"location"`
		Name     string `yaml:"name"`
	} `yaml:"model"`
	Store struct {
		DSN string `yaml:"dsn"`
	} `yaml:"store"`
	Report struct {
		Path string `yaml:"path"`
	} `yaml:"report"`
}

func initProject(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("path")
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	answers := wizard.InitAnswers{MatrixPath: config.DefaultMatrixPath}
	answers.JiraServer, _ = cmd.Flags().GetString("jira-server")
	answers.JiraUsername, _ = cmd.Flags().GetString("jira-username")
	answers.Project, _ = cmd.Flags().GetString("project")
	answers.Location, _ = cmd.Flags().GetString("location")
	answers.StartDate, _ = cmd.Flags().GetString("start-date")

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		if err := wizard.PromptInit(&answers); err != nil {
			return err
		}
	}
	if err := wizard.ValidateDate(answers.StartDate); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}

	return writeStarterConfig(configPath, answers, cmd.OutOrStdout())
}

func starterConfig(answers wizard.InitAnswers) fileConfig {
	var cfg fileConfig
	cfg.StartDate = answers.StartDate
	cfg.Jira.Server = answers.JiraServer
	cfg.Jira.Username = answers.JiraUsername
	cfg.Jira.MaxResults = config.DefaultMaxResults
	cfg.Matrix.Path = answers.MatrixPath
	if cfg.Matrix.Path == "" {
		cfg.Matrix.Path = config.DefaultMatrixPath
	}
	cfg.Model.Project = answers.Project
	cfg.Model.Location = answers.Location
	if cfg.Model.Location == "" {
		cfg.Model.Location = config.DefaultLocation
	}
	cfg.Model.Name = config.DefaultModel
	cfg.Store.DSN = config.DefaultStorePath
	cfg.Report.Path = config.DefaultReportPath
	return cfg
}

func writeStarterConfig(configPath string, answers wizard.InitAnswers, out io.Writer) error {
	data, err := yaml.Marshal(starterConfig(answers))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# Competency Analyzer Configuration
# Credentials come from the environment: JIRA_API_TOKEN or JIRA_PASSWORD.

`

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(out, "Created %s\n\n", configPath)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Export JIRA_API_TOKEN (or add it to .env)")
	fmt.Fprintf(out, "  2. Put your competency matrix at %s\n", starterConfig(answers).Matrix.Path)
	fmt.Fprintln(out, "  3. Run 'gcloud auth application-default login' for Vertex AI")
	fmt.Fprintln(out, "  4. Run 'competency analyze'")

	return nil
}
