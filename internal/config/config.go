package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/andywolf/competency/internal/jira"
	"github.com/spf13/viper"
)

// Defaults applied when a setting is absent.
const (
	DefaultMatrixPath = "config/Competency_matrix.csv"
	DefaultStorePath  = "data/competency_history.sqlite"
	DefaultReportPath = "data/competency_report.md"
	DefaultModel      = "gemini-2.5-pro"
	DefaultLocation   = "europe-west1"
	DefaultMaxResults = 100

	// DateLayout is the format of start_date.
	DateLayout = "2006-01-02"
)

// Config represents the full competency analyzer configuration
type Config struct {
	StartDate string         `mapstructure:"start_date"`
	Jira      JiraConfig     `mapstructure:"jira"`
	Matrix    MatrixConfig   `mapstructure:"matrix"`
	Model     ModelConfig    `mapstructure:"model"`
	Store     StoreConfig    `mapstructure:"store"`
	Report    ReportConfig   `mapstructure:"report"`
	Logging   LoggingConfig  `mapstructure:"logging"`
	Langfuse  LangfuseConfig `mapstructure:"langfuse"`
	Metrics   MetricsConfig  `mapstructure:"metrics"`
	Prompt    PromptConfig   `mapstructure:"prompt"`
}

// JiraConfig contains Jira connection settings. APITokenSecret names a GCP
// Secret Manager secret read when no token is set directly.
type JiraConfig struct {
	Server         string `mapstructure:"server"`
	Username       string `mapstructure:"username"`
	APIToken       string `mapstructure:"api_token"`
	Password       string `mapstructure:"password"`
	APITokenSecret string `mapstructure:"api_token_secret"`
	MaxResults     int    `mapstructure:"max_results"`
}

// MatrixConfig locates the competency matrix CSV.
type MatrixConfig struct {
	Path string `mapstructure:"path"`
}

// ModelConfig selects the Vertex AI model.
type ModelConfig struct {
	Project  string `mapstructure:"project"`
	Location string `mapstructure:"location"`
	Name     string `mapstructure:"name"`
	Endpoint string `mapstructure:"endpoint"`
}

// StoreConfig selects the history backend (sqlite or postgres).
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// ReportConfig sets where the Markdown report is written.
type ReportConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls log output. Format is "text" or "json"; a
// CloudProject sends entries through the Cloud Logging API as well. Labels
// are attached to every structured entry.
type LoggingConfig struct {
	Format       string            `mapstructure:"format"`
	CloudProject string            `mapstructure:"cloud_project"`
	LogID        string            `mapstructure:"log_id"`
	Labels       map[string]string `mapstructure:"labels"`
}

// LangfuseConfig enables tracing when both keys are set.
type LangfuseConfig struct {
	PublicKey string `mapstructure:"public_key"`
	SecretKey string `mapstructure:"secret_key"`
	BaseURL   string `mapstructure:"base_url"`
}

// MetricsConfig enables the Prometheus textfile when Textfile is set.
// Buckets overrides the model latency histogram buckets, in seconds.
type MetricsConfig struct {
	Textfile  string    `mapstructure:"textfile"`
	Namespace string    `mapstructure:"namespace"`
	Buckets   []float64 `mapstructure:"buckets"`
}

// PromptConfig overrides the built-in prompt template.
type PromptConfig struct {
	Template string `mapstructure:"template"`
}

// Load loads configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals configuration from v and applies defaults.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Matrix.Path == "" {
		cfg.Matrix.Path = DefaultMatrixPath
	}

	if cfg.Jira.MaxResults == 0 {
		cfg.Jira.MaxResults = DefaultMaxResults
	}

	if cfg.Model.Name == "" {
		cfg.Model.Name = DefaultModel
	}

	if cfg.Model.Location == "" {
		cfg.Model.Location = DefaultLocation
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
		if strings.HasPrefix(cfg.Store.DSN, "postgres://") || strings.HasPrefix(cfg.Store.DSN, "postgresql://") {
			cfg.Store.Driver = "postgres"
		}
	}

	if cfg.Store.DSN == "" && cfg.Store.Driver == "sqlite" {
		cfg.Store.DSN = DefaultStorePath
	}

	if cfg.Report.Path == "" {
		cfg.Report.Path = DefaultReportPath
	}

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.StartDate != "" {
		if _, err := time.Parse(DateLayout, c.StartDate); err != nil {
			return fmt.Errorf("invalid start_date %q: must be YYYY-MM-DD", c.StartDate)
		}
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true}
	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("invalid store driver: %s (must be sqlite or postgres)", c.Store.Driver)
	}

	if c.Store.DSN == "" {
		return fmt.Errorf("store dsn is required for driver %s", c.Store.Driver)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s (must be text or json)", c.Logging.Format)
	}

	if c.Jira.MaxResults < 0 {
		return fmt.Errorf("jira max_results must be positive")
	}

	for i := 1; i < len(c.Metrics.Buckets); i++ {
		if c.Metrics.Buckets[i] <= c.Metrics.Buckets[i-1] {
			return fmt.Errorf("metrics buckets must be strictly increasing")
		}
	}

	if (c.Langfuse.PublicKey == "") != (c.Langfuse.SecretKey == "") {
		return fmt.Errorf("langfuse public_key and secret_key must be set together")
	}

	return nil
}

// ValidateForAnalyze performs additional validation required before an analysis run
func (c *Config) ValidateForAnalyze() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Model.Project == "" {
		return fmt.Errorf("model project is required (set model.project or GOOGLE_CLOUD_PROJECT)")
	}

	if c.Matrix.Path == "" {
		return fmt.Errorf("matrix path is required")
	}

	return nil
}

// JiraCredentials returns the Jira credentials. They are validated by the
// issue source, not here, so a missing token surfaces as a
// *jira.ConfigurationError.
func (c *Config) JiraCredentials() jira.Credentials {
	return jira.Credentials{
		Server:   c.Jira.Server,
		Username: c.Jira.Username,
		APIToken: c.Jira.APIToken,
		Password: c.Jira.Password,
	}
}

// LangfuseEnabled reports whether tracing keys are configured.
func (c *Config) LangfuseEnabled() bool {
	return c.Langfuse.PublicKey != "" && c.Langfuse.SecretKey != ""
}
