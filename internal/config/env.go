package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "COMPETENCY"

// keys lists every setting so environment overrides work without a config file.
var keys = []string{
	"start_date",
	"jira.server", "jira.username", "jira.api_token", "jira.password",
	"jira.api_token_secret", "jira.max_results",
	"matrix.path",
	"model.project", "model.location", "model.name", "model.endpoint",
	"store.driver", "store.dsn",
	"report.path",
	"logging.format", "logging.cloud_project", "logging.log_id",
	"langfuse.public_key", "langfuse.secret_key", "langfuse.base_url",
	"metrics.textfile", "metrics.namespace",
	"prompt.template",
}

// aliases are the conventional variable names accepted in addition to the
// prefixed ones, e.g. JIRA_API_TOKEN from a .env file.
var aliases = map[string][]string{
	"jira.server":         {"JIRA_SERVER"},
	"jira.username":       {"JIRA_USERNAME"},
	"jira.api_token":      {"JIRA_API_TOKEN"},
	"jira.password":       {"JIRA_PASSWORD"},
	"model.project":       {"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"},
	"langfuse.public_key": {"LANGFUSE_PUBLIC_KEY"},
	"langfuse.secret_key": {"LANGFUSE_SECRET_KEY"},
	"langfuse.base_url":   {"LANGFUSE_HOST"},
}

// EnvName returns the prefixed variable for a key, e.g. COMPETENCY_JIRA_SERVER.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// BindEnv registers environment overrides on v. The prefixed name takes
// precedence over the aliases.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range keys {
		names := append([]string{key, EnvName(key)}, aliases[key]...)
		if err := v.BindEnv(names...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}
