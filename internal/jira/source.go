// Package jira fetches the authenticated user's tickets from a Jira server
// and cleans Jira wiki markup out of their free-text fields.
package jira

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gojira "github.com/andygrunwald/go-jira"
)

const (
	// DefaultMaxResults caps a single search.
	DefaultMaxResults = 100

	// DefaultLookback is how far back the search reaches when no start date is configured.
	DefaultLookback = 365 * 24 * time.Hour

	dateLayout = "2006-01-02"
)

// Issue is a ticket assigned to the user. Description is nil when the ticket has none.
type Issue struct {
	Key         string
	Summary     string
	Description *string
}

// Credentials identify the Jira server and the user. Either APIToken or
// Password must be set; APIToken wins when both are present.
type Credentials struct {
	Server   string
	Username string
	APIToken string
	Password string
}

// ConfigurationError reports missing or unusable Jira credentials.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "jira configuration: " + e.Reason
}

// SourceQueryError wraps a failed search. It is logged, never returned.
type SourceQueryError struct {
	JQL string
	Err error
}

func (e *SourceQueryError) Error() string {
	return fmt.Sprintf("jira query %q failed: %v", e.JQL, e.Err)
}

func (e *SourceQueryError) Unwrap() error {
	return e.Err
}

// ValidateAccount checks the server and username only. It lets callers fail
// before fetching a token from elsewhere.
func (c Credentials) ValidateAccount() error {
	if c.Server == "" || c.Username == "" {
		return &ConfigurationError{Reason: "Jira server and username environment variables not set"}
	}
	return nil
}

// Validate checks that the credentials are complete enough to authenticate.
func (c Credentials) Validate() error {
	if err := c.ValidateAccount(); err != nil {
		return err
	}
	if c.APIToken == "" && c.Password == "" {
		return &ConfigurationError{Reason: "Jira API token or password not set in environment variables"}
	}
	return nil
}

func (c Credentials) secret() string {
	if c.APIToken != "" {
		return c.APIToken
	}
	return c.Password
}

// searchFields are the issue fields requested from Jira.
var searchFields = []string{"summary", "description"}

// searchJQLPath is the enhanced search endpoint. Jira Cloud retired the
// plain /search endpoint; Server and Data Center only have the plain one.
const searchJQLPath = "rest/api/2/search/jql"

// requester is the slice of *gojira.Client used for the enhanced search.
type requester interface {
	NewRequestWithContext(ctx context.Context, method, urlStr string, body interface{}) (*http.Request, error)
	Do(req *http.Request, v interface{}) (*gojira.Response, error)
}

// searcher is the slice of the go-jira issue service used for the plain search.
type searcher interface {
	SearchWithContext(ctx context.Context, jql string, options *gojira.SearchOptions) ([]gojira.Issue, *gojira.Response, error)
}

// Source queries Jira for the user's issues.
type Source struct {
	client     requester
	legacy     searcher
	maxResults int
	logger     *log.Logger
	now        func() time.Time
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger used for query notices and failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxResults overrides the search cap.
func WithMaxResults(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// WithClock sets the time source used to compute the default start date.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSource validates the credentials and builds an authenticated client.
// No network activity happens here.
func NewSource(creds Credentials, opts ...Option) (*Source, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	s := &Source{
		maxResults: DefaultMaxResults,
		logger:     log.New(io.Discard, "", 0),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	tp := gojira.BasicAuthTransport{
		Username: creds.Username,
		Password: creds.secret(),
	}

	client, err := gojira.NewClient(tp.Client(), creds.Server)
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid Jira server URL %q: %v", creds.Server, err)}
	}
	s.client = client
	s.legacy = client.Issue
	return s, nil
}

// DefaultStartDate returns the date one lookback window before now.
func DefaultStartDate(now time.Time) string {
	return now.Add(-DefaultLookback).Format(dateLayout)
}

// BuildJQL returns the query for issues assigned to the current user created on or after startDate.
func BuildJQL(startDate string) string {
	return fmt.Sprintf(`assignee = currentUser() AND created >= "%s"`, startDate)
}

// Fetch returns the user's issues created on or after startDate, in the order
// the server returned them. A failed query is logged and yields no issues.
func (s *Source) Fetch(ctx context.Context, startDate string) []Issue {
	if startDate == "" {
		startDate = DefaultStartDate(s.now())
	}
	jql := BuildJQL(startDate)
	s.logger.Printf("Fetching Jira issues with JQL: %s", jql)

	remote, err := s.search(ctx, jql)
	if err != nil {
		qerr := &SourceQueryError{JQL: jql, Err: err}
		s.logger.Printf("Error fetching Jira issues: %v", qerr)
		return nil
	}

	issues := make([]Issue, 0, len(remote))
	for _, ri := range remote {
		issues = append(issues, fromRemote(ri))
	}
	s.logger.Printf("Fetched %d Jira issues", len(issues))
	return issues
}

// search runs jql against the enhanced endpoint, falling back to the plain
// endpoint when the server does not have it.
func (s *Source) search(ctx context.Context, jql string) ([]gojira.Issue, error) {
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("maxResults", strconv.Itoa(s.maxResults))
	q.Set("fields", strings.Join(searchFields, ","))

	req, err := s.client.NewRequestWithContext(ctx, http.MethodGet, searchJQLPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Issues []gojira.Issue `json:"issues"`
	}
	resp, err := s.client.Do(req, &result)
	if err == nil {
		return result.Issues, nil
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if resp == nil || (resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusGone) {
		return nil, err
	}

	s.logger.Printf("Enhanced Jira search unavailable (status %d), using /search", resp.StatusCode)
	issues, _, err := s.legacy.SearchWithContext(ctx, jql, &gojira.SearchOptions{
		MaxResults: s.maxResults,
		Fields:     searchFields,
	})
	return issues, err
}

func fromRemote(ri gojira.Issue) Issue {
	issue := Issue{Key: ri.Key}
	if ri.Fields == nil {
		return issue
	}
	issue.Summary = ri.Fields.Summary
	if ri.Fields.Description != "" {
		desc := ri.Fields.Description
		issue.Description = &desc
	}
	return issue
}
