package analysis

import (
	"bytes"
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andywolf/competency/internal/history"
	"github.com/andywolf/competency/internal/jira"
	"github.com/andywolf/competency/internal/llm"
	"github.com/andywolf/competency/internal/matrix"
	"github.com/andywolf/competency/internal/metrics"
	"github.com/andywolf/competency/internal/observability"
	"github.com/andywolf/competency/internal/prompt"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type savedAssessment struct {
	skill         string
	level         int
	justification string
}

type fakeRecorder struct {
	saved    []savedAssessment
	messages map[string][]history.Message
	saveErr  error
	failOn   string
}

func (f *fakeRecorder) Save(_ context.Context, skill string, level int, justification string) error {
	if f.saveErr != nil && (f.failOn == "" || f.failOn == skill) {
		return f.saveErr
	}
	f.saved = append(f.saved, savedAssessment{skill, level, justification})
	return nil
}

func (f *fakeRecorder) AppendMessages(_ context.Context, sessionID string, msgs ...history.Message) error {
	if f.messages == nil {
		f.messages = make(map[string][]history.Message)
	}
	f.messages[sessionID] = append(f.messages[sessionID], msgs...)
	return nil
}

func staticModel(text string) llm.Model {
	return llm.Func(func(context.Context, string) (any, error) {
		return text, nil
	})
}

func row(skill string) matrix.Row {
	return matrix.Row{Skill: skill, Levels: [5]string{"l1", "l2", "l3", "l4", "l5"}}
}

func strPtr(s string) *string { return &s }

func TestCombineIssues(t *testing.T) {
	issues := []jira.Issue{
		{Key: "PROJ-1", Summary: "Fix login", Description: strPtr("Users {color:red}can't{color} log in!")},
		{Key: "PROJ-2", Summary: "Add metrics", Description: nil},
	}

	got := CombineIssues(issues)
	want := "Ticket: PROJ-1\nSummary: Fix login\nDescription: Users cant log in\n" +
		"\n" +
		"Ticket: PROJ-2\nSummary: Add metrics\nDescription: \n"
	if got != want {
		t.Errorf("CombineIssues() =\n%q\nwant\n%q", got, want)
	}
}

func TestCombineIssues_Empty(t *testing.T) {
	if got := CombineIssues(nil); got != "" {
		t.Errorf("CombineIssues(nil) = %q, want empty", got)
	}
}

func TestAnalyze_OneResultPerRow(t *testing.T) {
	store := &fakeRecorder{}
	a := New(staticModel("Level: 2\nJustification: No evidence."), store)

	rows := []matrix.Row{row("Go"), row("SQL"), row("Kubernetes")}
	results, err := a.Analyze(context.Background(), rows, nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if results.Len() != len(rows) {
		t.Fatalf("Len() = %d, want %d", results.Len(), len(rows))
	}
	for i, skill := range results.Skills() {
		if skill != rows[i].Skill {
			t.Errorf("Skills()[%d] = %q, want %q", i, skill, rows[i].Skill)
		}
		got, _ := results.Get(skill)
		if got.Level != 2 || got.Justification != "No evidence." {
			t.Errorf("%s = %+v", skill, got)
		}
	}
	if len(store.saved) != len(rows) {
		t.Errorf("saved %d assessments, want %d", len(store.saved), len(rows))
	}
}

func TestAnalyze_PromptContents(t *testing.T) {
	var prompts []string
	model := llm.Func(func(_ context.Context, p string) (any, error) {
		prompts = append(prompts, p)
		return &llm.Response{Text: "Level: 4\nJustification: ok", Model: "stub", InputTokens: 10, OutputTokens: 2}, nil
	})
	store := &fakeRecorder{}
	a := New(model, store, WithTemplate(prompt.New("skill={{skill}} l3={{level_3}}\n{{tickets}}")))

	issues := []jira.Issue{{Key: "A-1", Summary: "Ship it", Description: strPtr("done")}}
	if _, err := a.Analyze(context.Background(), []matrix.Row{row("Go")}, issues); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	want := "skill=Go l3=l3\nTicket: A-1\nSummary: Ship it\nDescription: done\n"
	if len(prompts) != 1 || prompts[0] != want {
		t.Errorf("prompt = %q, want %q", prompts, want)
	}

	msgs := store.messages["Go"]
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Type != history.HumanMessage || msgs[0].Content != want {
		t.Errorf("human message = %+v", msgs[0])
	}
	if msgs[1].Type != history.AIMessage || msgs[1].Content != "Level: 4\nJustification: ok" {
		t.Errorf("ai message = %+v", msgs[1])
	}
}

func TestAnalyze_ModelErrorStopsRun(t *testing.T) {
	calls := 0
	model := llm.Func(func(context.Context, string) (any, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("503 service unavailable")
		}
		return "Level: 3\nJustification: fine", nil
	})
	store := &fakeRecorder{}
	var logs bytes.Buffer
	a := New(model, store, WithLogger(log.New(&logs, "", 0)))

	results, err := a.Analyze(context.Background(), []matrix.Row{row("Go"), row("SQL"), row("Rust")}, nil)

	var invErr *llm.InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("Analyze() error = %v, want *llm.InvocationError", err)
	}
	if calls != 2 {
		t.Errorf("model called %d times, want 2", calls)
	}
	if len(store.saved) != 1 {
		t.Errorf("saved %d, want 1", len(store.saved))
	}
	if results.Len() != 1 {
		t.Errorf("partial results Len() = %d, want 1", results.Len())
	}
	if !strings.Contains(logs.String(), "Error: model invocation failed for skill SQL") {
		t.Errorf("missing error log:\n%s", logs.String())
	}
}

func TestAnalyze_PlainModelErrorIsWrapped(t *testing.T) {
	model := modelFunc(func(context.Context, string) (*llm.Response, error) {
		return nil, errors.New("boom")
	})
	_, err := New(model, &fakeRecorder{}).Analyze(context.Background(), []matrix.Row{row("Go")}, nil)

	var invErr *llm.InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("error = %T, want *llm.InvocationError", err)
	}
}

func TestAnalyze_NilResponseIsInvocationError(t *testing.T) {
	model := modelFunc(func(context.Context, string) (*llm.Response, error) {
		return nil, nil
	})
	store := &fakeRecorder{}
	results, err := New(model, store).Analyze(context.Background(), []matrix.Row{row("Go"), row("SQL")}, nil)

	var invErr *llm.InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("error = %v, want *llm.InvocationError", err)
	}
	if !errors.Is(err, errNoResponse) {
		t.Errorf("error = %v, want errNoResponse", err)
	}
	if results.Len() != 0 || len(store.saved) != 0 {
		t.Errorf("results = %d, saved = %d; want nothing", results.Len(), len(store.saved))
	}
}

type modelFunc func(context.Context, string) (*llm.Response, error)

func (f modelFunc) Generate(ctx context.Context, p string) (*llm.Response, error) { return f(ctx, p) }

func TestAnalyze_SaveErrorStopsRun(t *testing.T) {
	store := &fakeRecorder{saveErr: errors.New("disk full"), failOn: "SQL"}
	m := metrics.New()
	a := New(staticModel("Level: 1\nJustification: x"), store, WithMetrics(m))

	_, err := a.Analyze(context.Background(), []matrix.Row{row("Go"), row("SQL"), row("Rust")}, nil)

	var perr *history.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("Analyze() error = %v, want *history.PersistenceError", err)
	}
	if len(store.saved) != 1 || store.saved[0].skill != "Go" {
		t.Errorf("saved = %+v, want only Go", store.saved)
	}
	expected := `
# HELP competency_analysis_persistence_failures_total Assessment writes that were rolled back.
# TYPE competency_analysis_persistence_failures_total counter
competency_analysis_persistence_failures_total 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "competency_analysis_persistence_failures_total"); err != nil {
		t.Errorf("persistence failure metric: %v", err)
	}
}

func TestAnalyze_DuplicateSkillsOverwrite(t *testing.T) {
	levels := []string{"Level: 1\nJustification: a", "Level: 2\nJustification: b", "Level: 3\nJustification: c"}
	i := 0
	model := llm.Func(func(context.Context, string) (any, error) {
		out := levels[i]
		i++
		return out, nil
	})
	store := &fakeRecorder{}
	var logs bytes.Buffer
	a := New(model, store, WithLogger(log.New(&logs, "", 0)))

	results, err := a.Analyze(context.Background(), []matrix.Row{row("Go"), row("SQL"), row("Go")}, nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if results.Len() != 2 {
		t.Errorf("Len() = %d, want 2", results.Len())
	}
	if skills := results.Skills(); skills[0] != "Go" || skills[1] != "SQL" {
		t.Errorf("Skills() = %v", skills)
	}
	if got, _ := results.Get("Go"); got.Level != 3 {
		t.Errorf("Go level = %d, want last value 3", got.Level)
	}
	if len(store.saved) != 3 {
		t.Errorf("every row is saved: got %d", len(store.saved))
	}
	if !strings.Contains(logs.String(), `Warning: duplicate skill "Go"`) {
		t.Errorf("missing duplicate warning:\n%s", logs.String())
	}
}

func TestAnalyze_LogsEachSkill(t *testing.T) {
	var logs bytes.Buffer
	cloud := &fakeCloudLogger{}
	a := New(staticModel("Level: 2"), &fakeRecorder{}, WithLogger(log.New(&logs, "", 0)), WithCloudLogger(cloud))

	if _, err := a.Analyze(context.Background(), []matrix.Row{row("Go"), row("SQL")}, nil); err != nil {
		t.Fatal(err)
	}
	if want := "Analyzing skill: Go\nAnalyzing skill: SQL\n"; logs.String() != want {
		t.Errorf("logs = %q, want %q", logs.String(), want)
	}
	if len(cloud.info) != 2 || cloud.info[1] != "Analyzing skill: SQL" {
		t.Errorf("cloud info = %v", cloud.info)
	}
}

type fakeCloudLogger struct {
	info, warnings, errors []string
}

func (f *fakeCloudLogger) Info(msg string)    { f.info = append(f.info, msg) }
func (f *fakeCloudLogger) Warning(msg string) { f.warnings = append(f.warnings, msg) }
func (f *fakeCloudLogger) Error(msg string)   { f.errors = append(f.errors, msg) }
func (f *fakeCloudLogger) Close() error       { return nil }

type recordingTracer struct {
	observability.NoOpTracer
	events      []string
	generations []observability.GenerationInput
	complete    observability.CompleteOptions
}

func (r *recordingTracer) StartTrace(runID string, opts observability.TraceOptions) observability.TraceContext {
	r.events = append(r.events, "trace:"+runID)
	return observability.TraceContext{TraceID: runID, RunID: runID}
}

func (r *recordingTracer) StartSkill(trace observability.TraceContext, skill string, _ observability.SpanOptions) observability.SpanContext {
	r.events = append(r.events, "start:"+skill)
	return observability.SpanContext{SpanID: skill, Skill: skill, TraceID: trace.TraceID}
}

func (r *recordingTracer) RecordGeneration(_ observability.SpanContext, gen observability.GenerationInput) {
	r.generations = append(r.generations, gen)
}

func (r *recordingTracer) EndSkill(span observability.SpanContext, status string, _ int64) {
	r.events = append(r.events, "end:"+span.Skill+":"+status)
}

func (r *recordingTracer) CompleteTrace(_ observability.TraceContext, opts observability.CompleteOptions) {
	r.complete = opts
}

func TestAnalyze_Tracing(t *testing.T) {
	tracer := &recordingTracer{}
	model := llm.Func(func(context.Context, string) (any, error) {
		return &llm.Response{Text: "Level: 5\nJustification: great", Model: "gemini", InputTokens: 100, OutputTokens: 7}, nil
	})
	a := New(model, &fakeRecorder{}, WithTracer(tracer), WithRunID("run-42"))

	if a.RunID() != "run-42" {
		t.Errorf("RunID() = %q", a.RunID())
	}
	if _, err := a.Analyze(context.Background(), []matrix.Row{row("Go"), row("SQL")}, nil); err != nil {
		t.Fatal(err)
	}

	want := "trace:run-42,start:Go,end:Go:completed,start:SQL,end:SQL:completed"
	if got := strings.Join(tracer.events, ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
	if len(tracer.generations) != 2 || tracer.generations[0].Level != 5 || tracer.generations[0].Model != "gemini" {
		t.Errorf("generations = %+v", tracer.generations)
	}
	if tracer.complete.Status != "completed" || tracer.complete.SkillsAnalyzed != 2 || tracer.complete.TotalInputTokens != 200 {
		t.Errorf("complete = %+v", tracer.complete)
	}
}

func TestAnalyze_WithHistoryStore(t *testing.T) {
	ctx := context.Background()
	store, err := history.Open(ctx, history.Config{DSN: filepath.Join(t.TempDir(), "history.sqlite")})
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	defer store.Close()

	before, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}

	a := New(staticModel("Level: 4\nJustification: Owns the service."), store)
	if _, err := a.Analyze(ctx, []matrix.Row{row("Go")}, nil); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	after, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after != before+1 {
		t.Errorf("Count() = %d, want %d", after, before+1)
	}
	msgs, err := store.Messages(ctx, "Go")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Errorf("Messages() = %d, want 2", len(msgs))
	}
}
