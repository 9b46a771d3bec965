package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/andywolf/competency/internal/analysis"
	"github.com/andywolf/competency/internal/cloud/gcp"
	"github.com/andywolf/competency/internal/config"
	"github.com/andywolf/competency/internal/history"
	"github.com/andywolf/competency/internal/jira"
	"github.com/andywolf/competency/internal/llm"
	"github.com/andywolf/competency/internal/matrix"
	"github.com/andywolf/competency/internal/metrics"
	"github.com/andywolf/competency/internal/observability"
	"github.com/andywolf/competency/internal/prompt"
	"github.com/andywolf/competency/internal/report"
	"github.com/andywolf/competency/internal/security"
	"github.com/andywolf/competency/internal/version"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/api/option"
)

// NoIssuesMessage is printed when the Jira query returns nothing.
const NoIssuesMessage = "No Jira issues found for the specified period."

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Rate your Jira work against the competency matrix",
	Long: `Fetch the Jira issues assigned to you since the start date, ask the model
to rate each skill of the competency matrix, store every assessment and write
the Markdown report.

The start date defaults to one year ago.

Example:
  competency analyze
  competency analyze --start-date 2025-01-01 --matrix config/Competency_matrix.csv`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	flags := analyzeCmd.Flags()
	flags.String("start-date", "", "only consider issues created on or after this date (YYYY-MM-DD)")
	flags.String("matrix", "", "competency matrix CSV (default config/Competency_matrix.csv)")
	flags.String("report", "", "report output path (default data/competency_report.md)")
	flags.String("db", "", "history database path or postgres:// DSN")
	flags.String("model", "", "Vertex AI model name (default gemini-2.5-pro)")
	flags.String("location", "", "Vertex AI location (default europe-west1)")
	flags.String("project", "", "GCP project for Vertex AI")
	flags.String("prompt", "", "custom prompt template file")
	flags.String("metrics-textfile", "", "write Prometheus metrics to this file")

	bindings := map[string]string{
		"start_date":       "start-date",
		"matrix.path":      "matrix",
		"report.path":      "report",
		"store.dsn":        "db",
		"model.name":       "model",
		"model.location":   "location",
		"model.project":    "project",
		"prompt.template":  "prompt",
		"metrics.textfile": "metrics-textfile",
	}
	for key, flag := range bindings {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

// analyzeDeps holds the constructors an analysis run needs from the outside
// world.
type analyzeDeps struct {
	newModel   func(ctx context.Context, cfg *config.Config) (llm.Model, error)
	fetchToken func(ctx context.Context, cfg *config.Config) (string, error)
	now        func() time.Time
}

var defaultAnalyzeDeps = analyzeDeps{
	newModel:   newVertexModel,
	fetchToken: fetchJiraToken,
	now:        time.Now,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return analyze(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), defaultAnalyzeDeps)
}

func analyze(ctx context.Context, cfg *config.Config, out, errOut io.Writer, deps analyzeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	runID := uuid.NewString()
	scrubber := security.NewScrubber()

	if cfg.Jira.APIToken == "" && cfg.Jira.Password == "" && cfg.Jira.APITokenSecret != "" {
		if err := cfg.JiraCredentials().ValidateAccount(); err != nil {
			return err
		}
		token, err := deps.fetchToken(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to read Jira token from secret manager: %w", err)
		}
		cfg.Jira.APIToken = token
	}
	for _, secret := range []string{cfg.Jira.APIToken, cfg.Jira.Password, cfg.Langfuse.SecretKey} {
		scrubber.AddSecret(secret)
	}

	logger, cloudLogger, err := newLoggers(ctx, cfg, runID, errOut, scrubber)
	if err != nil {
		return err
	}
	if cloudLogger != nil {
		defer func() {
			if err := cloudLogger.Close(); err != nil {
				logger.Printf("Warning: failed to close cloud logger: %v", err)
			}
		}()
	}

	store, err := history.Open(ctx, history.Config{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.DSN,
		Logger: logger,
		Now:    deps.now,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := matrix.Load(cfg.Matrix.Path)
	if err != nil {
		return err
	}

	source, err := jira.NewSource(cfg.JiraCredentials(),
		jira.WithLogger(logger),
		jira.WithMaxResults(cfg.Jira.MaxResults),
		jira.WithClock(deps.now),
	)
	if err != nil {
		return err
	}

	recorder := metrics.New(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithHistogramBuckets(cfg.Metrics.Buckets),
	)
	issues := source.Fetch(ctx, cfg.StartDate)
	recorder.IssuesFetched(len(issues))

	if len(issues) == 0 {
		fmt.Fprintln(out, NoIssuesMessage)
		return writeMetrics(cfg, recorder, deps.now(), logger)
	}

	if err := cfg.ValidateForAnalyze(); err != nil {
		return err
	}
	tmpl, err := prompt.Load(cfg.Prompt.Template)
	if err != nil {
		return err
	}
	model, err := deps.newModel(ctx, cfg)
	if err != nil {
		return err
	}

	tracer := newTracer(cfg, logger)
	defer func() {
		if err := tracer.Stop(context.Background()); err != nil {
			logger.Printf("Warning: failed to flush traces: %v", err)
		}
	}()

	startDate := cfg.StartDate
	if startDate == "" {
		startDate = jira.DefaultStartDate(deps.now())
	}
	opts := []analysis.Option{
		analysis.WithLogger(logger),
		analysis.WithTracer(tracer),
		analysis.WithMetrics(recorder),
		analysis.WithTemplate(tmpl),
		analysis.WithRunID(runID),
		analysis.WithTraceInfo(cfg.Jira.Username, startDate),
	}
	if cloudLogger != nil {
		opts = append(opts, analysis.WithCloudLogger(cloudLogger))
	}

	results, err := analysis.New(model, store, opts...).Analyze(ctx, rows, issues)
	if err != nil {
		if mErr := writeMetrics(cfg, recorder, deps.now(), logger); mErr != nil {
			logger.Printf("Warning: %v", mErr)
		}
		return fmt.Errorf("analysis failed: %w", err)
	}

	if err := report.Write(cfg.Report.Path, results, deps.now()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Report generated: %s\n\n", cfg.Report.Path)
	fmt.Fprintln(out, report.Summary(results))

	return writeMetrics(cfg, recorder, deps.now(), logger)
}

// newLoggers builds the local logger and the optional structured logger.
// With logging.format=json, local output itself becomes Cloud Logging JSON.
func newLoggers(ctx context.Context, cfg *config.Config, runID string, errOut io.Writer, scrubber *security.Scrubber) (*log.Logger, gcp.Logger, error) {
	opts := []gcp.LoggerOption{
		gcp.WithRunID(runID),
		gcp.WithScrubber(scrubber),
		gcp.WithLabels(cfg.Logging.Labels),
	}

	logger := log.New(errOut, "", log.LstdFlags)
	if cfg.Logging.Format == "json" {
		cl := gcp.NewCloudLogger(append(opts, gcp.WithWriter(errOut))...)
		logger = log.New(cl, "", 0)
	}

	if cfg.Logging.CloudProject == "" {
		return logger, nil, nil
	}
	apiLogger, err := gcp.NewAPILogger(ctx, cfg.Logging.CloudProject, cfg.Logging.LogID, opts)
	if err != nil {
		return nil, nil, err
	}
	return logger, apiLogger, nil
}

func newTracer(cfg *config.Config, logger *log.Logger) observability.Tracer {
	if !cfg.LangfuseEnabled() {
		return &observability.NoOpTracer{}
	}
	return observability.NewLangfuseTracer(observability.LangfuseConfig{
		PublicKey: cfg.Langfuse.PublicKey,
		SecretKey: cfg.Langfuse.SecretKey,
		BaseURL:   cfg.Langfuse.BaseURL,
	}, logger)
}

func newVertexModel(ctx context.Context, cfg *config.Config) (llm.Model, error) {
	return llm.NewVertexModel(ctx, llm.VertexConfig{
		Project:  cfg.Model.Project,
		Location: cfg.Model.Location,
		Model:    cfg.Model.Name,
		Endpoint: cfg.Model.Endpoint,
	}, option.WithUserAgent(version.UserAgent()))
}

func fetchJiraToken(ctx context.Context, cfg *config.Config) (string, error) {
	client, err := gcp.NewSecretManagerClient(ctx, cfg.Model.Project)
	if err != nil {
		return "", err
	}
	defer client.Close()
	return client.FetchSecret(ctx, cfg.Jira.APITokenSecret)
}

func writeMetrics(cfg *config.Config, recorder *metrics.Recorder, finished time.Time, logger *log.Logger) error {
	if cfg.Metrics.Textfile == "" {
		return nil
	}
	if err := recorder.WriteTextfile(cfg.Metrics.Textfile, finished); err != nil {
		return err
	}
	if viper.GetBool("verbose") {
		logger.Printf("Metrics written to %s", cfg.Metrics.Textfile)
	}
	return nil
}
