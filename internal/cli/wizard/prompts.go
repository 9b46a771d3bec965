// Package wizard provides interactive prompts for CLI commands.
package wizard

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
)

// InitAnswers holds the values collected by the init wizard. Fields that are
// already set are offered as defaults.
type InitAnswers struct {
	JiraServer   string
	JiraUsername string
	Project      string
	Location     string
	StartDate    string
	MatrixPath   string
}

// PromptInit asks for the settings written by `competency init`.
func PromptInit(answers *InitAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Competency Analyzer Setup").
				Description("Secrets are not stored in the config file.\nSet JIRA_API_TOKEN in your environment or .env instead."),

			huh.NewInput().
				Title("Jira server URL").
				Placeholder("https://your-org.atlassian.net").
				Validate(ValidateServerURL).
				Value(&answers.JiraServer),

			huh.NewInput().
				Title("Jira username (email)").
				Value(&answers.JiraUsername),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("GCP project for Vertex AI").
				Value(&answers.Project),

			huh.NewSelect[string]().
				Title("Vertex AI location").
				Options(
					huh.NewOption("europe-west1", "europe-west1"),
					huh.NewOption("europe-west4", "europe-west4"),
					huh.NewOption("us-central1", "us-central1"),
					huh.NewOption("us-east4", "us-east4"),
				).
				Value(&answers.Location),

			huh.NewInput().
				Title("Start date (YYYY-MM-DD, empty for one year ago)").
				Validate(ValidateDate).
				Value(&answers.StartDate),

			huh.NewInput().
				Title("Competency matrix CSV").
				Value(&answers.MatrixPath),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("prompt cancelled: %w", err)
	}

	answers.JiraServer = strings.TrimRight(strings.TrimSpace(answers.JiraServer), "/")
	answers.JiraUsername = strings.TrimSpace(answers.JiraUsername)
	answers.Project = strings.TrimSpace(answers.Project)
	answers.StartDate = strings.TrimSpace(answers.StartDate)
	return nil
}

// ValidateServerURL accepts an empty value or an absolute http(s) URL.
func ValidateServerURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("enter a full URL such as https://your-org.atlassian.net")
	}
	return nil
}

// ValidateDate accepts an empty value or a YYYY-MM-DD date.
func ValidateDate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return fmt.Errorf("use the YYYY-MM-DD format")
	}
	return nil
}
