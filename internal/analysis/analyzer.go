// Package analysis rates each competency matrix skill against a user's
// tickets by asking a language model, one skill at a time.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/andywolf/competency/internal/cloud/gcp"
	"github.com/andywolf/competency/internal/history"
	"github.com/andywolf/competency/internal/jira"
	"github.com/andywolf/competency/internal/llm"
	"github.com/andywolf/competency/internal/matrix"
	"github.com/andywolf/competency/internal/metrics"
	"github.com/andywolf/competency/internal/observability"
	"github.com/andywolf/competency/internal/prompt"
	"github.com/google/uuid"
)

var errNoResponse = errors.New("model returned no response")

// Recorder stores assessments and the prompt/response exchange behind them.
type Recorder interface {
	Save(ctx context.Context, skill string, level int, justification string) error
	AppendMessages(ctx context.Context, sessionID string, msgs ...history.Message) error
}

// CombineIssues flattens issues into the ticket block of the prompt, one
// Ticket/Summary/Description group per issue in input order.
func CombineIssues(issues []jira.Issue) string {
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		parts = append(parts, fmt.Sprintf("Ticket: %s\nSummary: %s\nDescription: %s\n",
			issue.Key, issue.Summary, jira.CleanDescription(issue.Description)))
	}
	return strings.Join(parts, "\n")
}

// Analyzer runs the per-skill evaluation loop.
type Analyzer struct {
	model       llm.Model
	store       Recorder
	template    *prompt.Template
	logger      *log.Logger
	cloudLogger gcp.Logger
	tracer      observability.Tracer
	metrics     *metrics.Recorder
	runID       string
	user        string
	startDate   string
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the local logger.
func WithLogger(logger *log.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithCloudLogger forwards log messages to a structured logger as well.
func WithCloudLogger(l gcp.Logger) Option {
	return func(a *Analyzer) {
		a.cloudLogger = l
	}
}

// WithTracer records the run in an observability backend.
func WithTracer(t observability.Tracer) Option {
	return func(a *Analyzer) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Recorder) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// WithTemplate replaces the default prompt template.
func WithTemplate(t *prompt.Template) Option {
	return func(a *Analyzer) {
		if t != nil {
			a.template = t
		}
	}
}

// WithRunID sets the run ID used for tracing. Defaults to a random UUID.
func WithRunID(id string) Option {
	return func(a *Analyzer) {
		if id != "" {
			a.runID = id
		}
	}
}

// WithTraceInfo attaches the Jira user and query start date to the trace.
func WithTraceInfo(user, startDate string) Option {
	return func(a *Analyzer) {
		a.user = user
		a.startDate = startDate
	}
}

// New creates an Analyzer.
func New(model llm.Model, store Recorder, opts ...Option) *Analyzer {
	a := &Analyzer{
		model:    model,
		store:    store,
		template: prompt.Default(),
		logger:   log.New(io.Discard, "", 0),
		tracer:   &observability.NoOpTracer{},
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunID returns the run identifier.
func (a *Analyzer) RunID() string {
	return a.runID
}

// Analyze evaluates every row in order. Each assessment is saved before the
// next skill starts. A model or store failure stops the loop and is returned
// as-is (*llm.InvocationError or *history.PersistenceError); assessments saved
// before the failure stay saved.
func (a *Analyzer) Analyze(ctx context.Context, rows []matrix.Row, issues []jira.Issue) (*Results, error) {
	for _, skill := range matrix.Duplicates(rows) {
		a.logWarning("duplicate skill %q in matrix; the last row wins", skill)
	}

	tickets := CombineIssues(issues)
	results := NewResults()

	trace := a.tracer.StartTrace(a.runID, observability.TraceOptions{
		User:       a.user,
		StartDate:  a.startDate,
		IssueCount: len(issues),
		SkillCount: len(rows),
	})
	var inputTokens, outputTokens int

	for i, row := range rows {
		a.logInfo("Analyzing skill: %s", row.Skill)

		span := a.tracer.StartSkill(trace, row.Skill, observability.SpanOptions{Index: i + 1})
		start := time.Now()

		assessment, resp, err := a.analyzeSkill(ctx, span, row, tickets)
		if resp != nil {
			inputTokens += resp.InputTokens
			outputTokens += resp.OutputTokens
		}
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			a.tracer.EndSkill(span, "failed", elapsed)
			a.tracer.CompleteTrace(trace, observability.CompleteOptions{
				Status:            "failed",
				SkillsAnalyzed:    results.Len(),
				TotalInputTokens:  inputTokens,
				TotalOutputTokens: outputTokens,
			})
			return results, err
		}
		a.tracer.EndSkill(span, "completed", elapsed)
		results.Set(row.Skill, assessment)
	}

	a.tracer.CompleteTrace(trace, observability.CompleteOptions{
		Status:            "completed",
		SkillsAnalyzed:    results.Len(),
		TotalInputTokens:  inputTokens,
		TotalOutputTokens: outputTokens,
	})
	return results, nil
}

func (a *Analyzer) analyzeSkill(ctx context.Context, span observability.SpanContext, row matrix.Row, tickets string) (Assessment, *llm.Response, error) {
	text := a.template.ForSkill(row, tickets)

	start := time.Now()
	resp, err := a.model.Generate(ctx, text)
	duration := time.Since(start)
	if err == nil && resp == nil {
		err = errNoResponse
	}
	if err != nil {
		a.logError("model invocation failed for skill %s: %v", row.Skill, err)
		a.tracer.RecordGeneration(span, observability.GenerationInput{
			Name:       "Assessment",
			Input:      text,
			Output:     err.Error(),
			Status:     "error",
			DurationMs: duration.Milliseconds(),
		})
		var invErr *llm.InvocationError
		if !errors.As(err, &invErr) {
			err = &llm.InvocationError{Model: "unknown", Err: err}
		}
		return Assessment{}, nil, err
	}

	level, justification := ParseResponse(resp.Text)
	if a.metrics != nil {
		a.metrics.ModelCall(duration, resp.InputTokens, resp.OutputTokens)
		a.metrics.Assessment(level)
	}
	a.tracer.RecordGeneration(span, observability.GenerationInput{
		Name:         "Assessment",
		Model:        resp.Model,
		Input:        text,
		Output:       resp.Text,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Level:        level,
		Status:       "completed",
		DurationMs:   duration.Milliseconds(),
	})

	if err := a.store.Save(ctx, row.Skill, level, justification); err != nil {
		return a.persistenceFailed(row.Skill, resp, err)
	}
	if err := a.store.AppendMessages(ctx, row.Skill,
		history.Message{Type: history.HumanMessage, Content: text},
		history.Message{Type: history.AIMessage, Content: resp.Text},
	); err != nil {
		return a.persistenceFailed(row.Skill, resp, err)
	}

	return Assessment{Level: level, Justification: justification}, resp, nil
}

func (a *Analyzer) persistenceFailed(skill string, resp *llm.Response, err error) (Assessment, *llm.Response, error) {
	a.logError("failed to store assessment for skill %s: %v", skill, err)
	if a.metrics != nil {
		a.metrics.PersistenceFailure()
	}
	var perr *history.PersistenceError
	if !errors.As(err, &perr) {
		err = &history.PersistenceError{Op: "save", Err: err}
	}
	return Assessment{}, resp, err
}

// logInfo logs at INFO level to both local logger and cloud logger
func (a *Analyzer) logInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	a.logger.Printf("%s", msg)
	if a.cloudLogger != nil {
		a.cloudLogger.Info(msg)
	}
}

// logWarning logs at WARNING level to both local logger and cloud logger
func (a *Analyzer) logWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	a.logger.Printf("Warning: %s", msg)
	if a.cloudLogger != nil {
		a.cloudLogger.Warning(msg)
	}
}

// logError logs at ERROR level to both local logger and cloud logger
func (a *Analyzer) logError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	a.logger.Printf("Error: %s", msg)
	if a.cloudLogger != nil {
		a.cloudLogger.Error(msg)
	}
}
