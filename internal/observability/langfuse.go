package observability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// defaultBaseURL is the Langfuse Cloud ingestion endpoint.
	defaultBaseURL = "https://cloud.langfuse.com"

	// ingestionPath is the batched ingestion API path.
	ingestionPath = "/api/public/ingestion"

	// maxBatchSize is the maximum number of events to send in one request.
	maxBatchSize = 50

	// maxBufferedEvents bounds memory when Flush is never reached.
	maxBufferedEvents = 1024
)

// LangfuseConfig holds Langfuse connection parameters.
type LangfuseConfig struct {
	PublicKey string
	SecretKey string
	BaseURL   string // Defaults to https://cloud.langfuse.com
}

// LangfuseTracer sends trace/span/generation events to the Langfuse
// ingestion API. Events are buffered in memory and sent in batches when
// Flush or Stop is called; nothing runs in the background.
type LangfuseTracer struct {
	config     LangfuseConfig
	authHeader string
	client     *http.Client
	logger     *log.Logger
	events     []ingestionEvent
	stopped    bool
}

// NewLangfuseTracer creates a LangfuseTracer.
func NewLangfuseTracer(cfg LangfuseConfig, logger *log.Logger) *LangfuseTracer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	auth := base64.StdEncoding.EncodeToString([]byte(cfg.PublicKey + ":" + cfg.SecretKey))

	return &LangfuseTracer{
		config:     cfg,
		authHeader: "Basic " + auth,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// StartTrace creates a Langfuse trace for an analysis run.
func (t *LangfuseTracer) StartTrace(runID string, opts TraceOptions) TraceContext {
	name := opts.Name
	if name == "" {
		name = "competency-analysis"
	}

	t.enqueue("trace-create", map[string]interface{}{
		"id":        runID, // run ID doubles as trace ID for easy lookup
		"name":      name,
		"userId":    opts.User,
		"sessionId": runID,
		"metadata": map[string]interface{}{
			"start_date":  opts.StartDate,
			"issue_count": opts.IssueCount,
			"skill_count": opts.SkillCount,
		},
		"timestamp": now(),
	})

	return TraceContext{TraceID: runID, RunID: runID}
}

// StartSkill creates a span for one skill within a run.
func (t *LangfuseTracer) StartSkill(trace TraceContext, skill string, opts SpanOptions) SpanContext {
	spanID := uuid.New().String()

	metadata := map[string]interface{}{}
	if opts.Index > 0 {
		metadata["row"] = opts.Index
	}
	for k, v := range opts.Metadata {
		metadata[k] = v
	}

	t.enqueue("span-create", map[string]interface{}{
		"id":        spanID,
		"traceId":   trace.TraceID,
		"name":      skill,
		"metadata":  metadata,
		"startTime": now(),
	})

	return SpanContext{SpanID: spanID, Skill: skill, TraceID: trace.TraceID}
}

// RecordGeneration records a model invocation as a Langfuse generation.
func (t *LangfuseTracer) RecordGeneration(span SpanContext, gen GenerationInput) {
	t.enqueue("generation-create", map[string]interface{}{
		"id":                  uuid.New().String(),
		"traceId":             span.TraceID,
		"parentObservationId": span.SpanID,
		"name":                gen.Name,
		"model":               gen.Model,
		"input":               gen.Input,
		"output":              gen.Output,
		"usage": map[string]interface{}{
			"input":  gen.InputTokens,
			"output": gen.OutputTokens,
		},
		"metadata": map[string]interface{}{
			"skill":       span.Skill,
			"level":       gen.Level,
			"status":      gen.Status,
			"duration_ms": gen.DurationMs,
		},
		"startTime": now(),
	})
}

// EndSkill closes a skill span with a status and duration.
func (t *LangfuseTracer) EndSkill(span SpanContext, status string, durationMs int64) {
	t.enqueue("span-update", map[string]interface{}{
		"id":      span.SpanID,
		"traceId": span.TraceID,
		"metadata": map[string]interface{}{
			"status":      status,
			"duration_ms": durationMs,
		},
		"endTime": now(),
	})
}

// CompleteTrace updates the trace with the run's final status and token totals.
func (t *LangfuseTracer) CompleteTrace(trace TraceContext, opts CompleteOptions) {
	t.enqueue("trace-create", map[string]interface{}{
		"id": trace.TraceID,
		"metadata": map[string]interface{}{
			"status":              opts.Status,
			"skills_analyzed":     opts.SkillsAnalyzed,
			"total_input_tokens":  opts.TotalInputTokens,
			"total_output_tokens": opts.TotalOutputTokens,
		},
	})
}

// Flush sends all buffered events in batches of at most maxBatchSize.
// Events from a failed batch stay buffered for the next Flush.
func (t *LangfuseTracer) Flush(ctx context.Context) error {
	for len(t.events) > 0 {
		n := len(t.events)
		if n > maxBatchSize {
			n = maxBatchSize
		}
		if err := t.sendBatch(ctx, t.events[:n]); err != nil {
			return fmt.Errorf("langfuse flush: %w", err)
		}
		t.events = t.events[n:]
	}
	t.events = nil
	return nil
}

// Stop flushes remaining events. Later events are dropped.
func (t *LangfuseTracer) Stop(ctx context.Context) error {
	if t.stopped {
		return nil
	}
	t.stopped = true
	return t.Flush(ctx)
}

// Pending returns the number of buffered events.
func (t *LangfuseTracer) Pending() int {
	return len(t.events)
}

// enqueue buffers an event. Once the buffer is full, or after Stop, events
// are dropped with a warning.
func (t *LangfuseTracer) enqueue(eventType string, body map[string]interface{}) {
	if t.stopped || len(t.events) >= maxBufferedEvents {
		t.logger.Printf("Warning: Langfuse event dropped: %s", eventType)
		return
	}
	t.events = append(t.events, ingestionEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: now(),
		Body:      body,
	})
}

// sendBatch sends a batch of events to the Langfuse ingestion API.
func (t *LangfuseTracer) sendBatch(ctx context.Context, batch []ingestionEvent) error {
	body, err := json.Marshal(ingestionPayload{Batch: batch})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.BaseURL+ingestionPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", t.authHeader)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("langfuse API returned %d: %s", resp.StatusCode, string(respBody))
	}

	// Parse the response to detect per-event rejections.
	var result ingestionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.logger.Printf("Warning: Langfuse: could not parse response body: %v", err)
		return nil
	}

	for _, e := range result.Errors {
		t.logger.Printf("Warning: Langfuse: event %s rejected (status=%d): %s", e.ID, e.Status, e.Message)
	}

	t.logger.Printf("Langfuse: batch sent (events=%d, accepted=%d, rejected=%d, status=%d)",
		len(batch), len(result.Successes), len(result.Errors), resp.StatusCode)

	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// ingestionEvent is a single event in the Langfuse ingestion API batch.
type ingestionEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp string                 `json:"timestamp"`
	Body      map[string]interface{} `json:"body"`
}

// ingestionPayload is the top-level payload for the Langfuse ingestion API.
type ingestionPayload struct {
	Batch []ingestionEvent `json:"batch"`
}

// ingestionResponse is the Langfuse ingestion API response body.
type ingestionResponse struct {
	Successes []ingestionSuccess `json:"successes"`
	Errors    []ingestionError   `json:"errors"`
}

type ingestionSuccess struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
}

type ingestionError struct {
	ID      string `json:"id"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}
