package observability

import "context"

// Tracer defines the interface for observability tracing.
// Implementations record each analysis run and the model invocations it makes.
//
// Trace hierarchy:
//
//	Run (Trace)
//	  └── Skill (Span): one per competency matrix row
//	        └── Assessment (Generation)
type Tracer interface {
	StartTrace(runID string, opts TraceOptions) TraceContext
	StartSkill(trace TraceContext, skill string, opts SpanOptions) SpanContext
	RecordGeneration(span SpanContext, gen GenerationInput)
	EndSkill(span SpanContext, status string, durationMs int64)
	CompleteTrace(trace TraceContext, opts CompleteOptions)
	Flush(ctx context.Context) error
	Stop(ctx context.Context) error
}

// TraceContext holds the context for an active trace (run level).
type TraceContext struct {
	TraceID string
	RunID   string
}

// SpanContext holds the context for an active span (skill level).
type SpanContext struct {
	SpanID  string
	Skill   string
	TraceID string
}

// TraceOptions configures a new trace.
type TraceOptions struct {
	Name       string
	User       string
	StartDate  string
	IssueCount int
	SkillCount int
}

// SpanOptions configures a new span.
type SpanOptions struct {
	Index    int // 1-based row position in the matrix
	Metadata map[string]string
}

// GenerationInput describes a model invocation to record.
type GenerationInput struct {
	Name         string
	Model        string
	Input        string // Prompt text sent to the model
	Output       string // Response text from the model
	InputTokens  int
	OutputTokens int
	Level        int
	Status       string // "completed" or "error"
	DurationMs   int64
}

// CompleteOptions configures trace completion.
type CompleteOptions struct {
	Status            string // "completed" or "failed"
	SkillsAnalyzed    int
	TotalInputTokens  int
	TotalOutputTokens int
}
