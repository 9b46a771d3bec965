package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/logging"
	"github.com/andywolf/competency/internal/security"
	"google.golang.org/api/option"
)

// Severity levels for structured logs
type Severity = string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// DefaultLogID is the Cloud Logging log name used by APILogger.
const DefaultLogID = "competency"

// LogEntry is one structured log line in the Cloud Logging JSON format.
type LogEntry struct {
	Severity  Severity          `json:"severity"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	RunID     string            `json:"run_id,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Logger is a structured log sink for analysis runs.
type Logger interface {
	Info(msg string)
	Warning(msg string)
	Error(msg string)
	Close() error
}

type loggerConfig struct {
	writer   io.Writer
	runID    string
	labels   map[string]string
	scrubber *security.Scrubber
	now      func() time.Time
}

// LoggerOption configures a Logger.
type LoggerOption func(*loggerConfig)

// WithWriter sets the output for CloudLogger. Defaults to stderr.
func WithWriter(w io.Writer) LoggerOption {
	return func(c *loggerConfig) {
		c.writer = w
	}
}

// WithRunID tags every entry with the analysis run ID.
func WithRunID(runID string) LoggerOption {
	return func(c *loggerConfig) {
		c.runID = runID
	}
}

// WithLabels adds custom labels to all log entries
func WithLabels(labels map[string]string) LoggerOption {
	return func(c *loggerConfig) {
		for k, v := range labels {
			c.labels[k] = v
		}
	}
}

// WithScrubber replaces the default credential scrubber.
func WithScrubber(s *security.Scrubber) LoggerOption {
	return func(c *loggerConfig) {
		if s != nil {
			c.scrubber = s
		}
	}
}

func newLoggerConfig(opts []LoggerOption) *loggerConfig {
	c := &loggerConfig{
		writer:   os.Stderr,
		labels:   map[string]string{"component": "competency"},
		scrubber: security.NewScrubber(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID != "" {
		c.labels["run_id"] = c.runID
	}
	return c
}

// CloudLogger writes structured JSON lines that the Cloud Logging agent
// forwards with the right severity. Messages are scrubbed of credentials.
type CloudLogger struct {
	cfg    *loggerConfig
	closed bool
}

// NewCloudLogger creates a CloudLogger.
func NewCloudLogger(opts ...LoggerOption) *CloudLogger {
	return &CloudLogger{cfg: newLoggerConfig(opts)}
}

func (cl *CloudLogger) log(severity Severity, msg string) {
	if cl.closed {
		return
	}
	entry := LogEntry{
		Severity:  severity,
		Message:   cl.cfg.scrubber.Scrub(msg),
		Timestamp: cl.cfg.now().UTC().Format(time.RFC3339Nano),
		RunID:     cl.cfg.runID,
		Labels:    cl.cfg.labels,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(cl.cfg.writer, `{"severity":"ERROR","message":"failed to marshal log entry: %v"}`+"\n", err)
		return
	}
	fmt.Fprintf(cl.cfg.writer, "%s\n", data)
}

// Info writes an INFO entry.
func (cl *CloudLogger) Info(msg string) { cl.log(SeverityInfo, msg) }

// Warning writes a WARNING entry.
func (cl *CloudLogger) Warning(msg string) { cl.log(SeverityWarning, msg) }

// Error writes an ERROR entry.
func (cl *CloudLogger) Error(msg string) { cl.log(SeverityError, msg) }

// Close stops further output.
func (cl *CloudLogger) Close() error {
	cl.closed = true
	return nil
}

// prefixPattern matches a leading "[component] " tag from log.Logger output.
var prefixPattern = regexp.MustCompile(`^\[[^\]]+\]\s*`)

// Write lets a *log.Logger tee into the cloud logger. Each call is one entry
// with its severity detected from the message text.
func (cl *CloudLogger) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	msg = prefixPattern.ReplaceAllString(msg, "")
	cl.log(detectSeverity(msg), msg)
	return len(p), nil
}

func detectSeverity(msg string) Severity {
	lower := strings.ToLower(msg)
	switch {
	case strings.HasPrefix(lower, "error"), strings.Contains(lower, " failed"):
		return SeverityError
	case strings.HasPrefix(lower, "warning"):
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// entryLogger is the part of *logging.Logger used by APILogger.
type entryLogger interface {
	Log(e logging.Entry)
	Flush() error
}

// APILogger sends entries through the Cloud Logging API. Use it when the
// process runs outside a VM with a logging agent.
type APILogger struct {
	cfg    *loggerConfig
	client io.Closer
	logger entryLogger
}

// NewAPILogger creates a Cloud Logging client for projectID writing to logID.
func NewAPILogger(ctx context.Context, projectID, logID string, opts []LoggerOption, clientOpts ...option.ClientOption) (*APILogger, error) {
	if projectID == "" {
		return nil, fmt.Errorf("cloud logging requires a project ID")
	}
	if logID == "" {
		logID = DefaultLogID
	}
	client, err := logging.NewClient(ctx, projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud logging client: %w", err)
	}
	cfg := newLoggerConfig(opts)
	return &APILogger{
		cfg:    cfg,
		client: client,
		logger: client.Logger(logID, logging.CommonLabels(cfg.labels)),
	}, nil
}

func (al *APILogger) log(severity logging.Severity, msg string) {
	al.logger.Log(logging.Entry{
		Timestamp: al.cfg.now(),
		Severity:  severity,
		Payload:   al.cfg.scrubber.Scrub(msg),
	})
}

// Info sends an INFO entry.
func (al *APILogger) Info(msg string) { al.log(logging.Info, msg) }

// Warning sends a WARNING entry.
func (al *APILogger) Warning(msg string) { al.log(logging.Warning, msg) }

// Error sends an ERROR entry.
func (al *APILogger) Error(msg string) { al.log(logging.Error, msg) }

// Close flushes buffered entries and closes the client.
func (al *APILogger) Close() error {
	flushErr := al.logger.Flush()
	if al.client != nil {
		if err := al.client.Close(); err != nil {
			return fmt.Errorf("failed to close cloud logging client: %w", err)
		}
	}
	return flushErr
}

// Ensure both loggers implement Logger
var (
	_ Logger = (*CloudLogger)(nil)
	_ Logger = (*APILogger)(nil)
)
