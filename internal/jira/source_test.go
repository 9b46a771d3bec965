package jira

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{
			name:  "token",
			creds: Credentials{Server: "https://jira.example.com", Username: "dev", APIToken: "tok"},
		},
		{
			name:  "password",
			creds: Credentials{Server: "https://jira.example.com", Username: "dev", Password: "pw"},
		},
		{
			name:    "missing server",
			creds:   Credentials{Username: "dev", APIToken: "tok"},
			wantErr: true,
		},
		{
			name:    "missing username",
			creds:   Credentials{Server: "https://jira.example.com", APIToken: "tok"},
			wantErr: true,
		},
		{
			name:    "no secret",
			creds:   Credentials{Server: "https://jira.example.com", Username: "dev"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Errorf("Validate() error type = %T, want *ConfigurationError", err)
				}
			}
		})
	}
}

func TestCredentialsValidateAccount(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{name: "no secret needed", creds: Credentials{Server: "https://jira.example.com", Username: "dev"}},
		{name: "missing server", creds: Credentials{Username: "dev", APIToken: "tok"}, wantErr: true},
		{name: "missing username", creds: Credentials{Server: "https://jira.example.com"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.ValidateAccount()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateAccount() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewSourceRejectsIncompleteCredentials(t *testing.T) {
	_, err := NewSource(Credentials{Server: "https://jira.example.com"})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("NewSource() error = %v, want *ConfigurationError", err)
	}
}

func TestDefaultStartDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC)
	if got := DefaultStartDate(now); got != "2025-03-01" {
		t.Errorf("DefaultStartDate() = %q, want %q", got, "2025-03-01")
	}
}

func TestBuildJQL(t *testing.T) {
	want := `assignee = currentUser() AND created >= "2025-01-31"`
	if got := BuildJQL("2025-01-31"); got != want {
		t.Errorf("BuildJQL() = %q, want %q", got, want)
	}
}

const searchResponse = `{
  "startAt": 0,
  "maxResults": 100,
  "total": 2,
  "issues": [
    {"id": "10001", "key": "CORE-1", "fields": {"summary": "Add cache layer", "description": "Use {code}redis{code} for [docs|http://x]"}},
    {"id": "10002", "key": "CORE-2", "fields": {"summary": "Fix login"}}
  ]
}`

func TestSourceFetch(t *testing.T) {
	var gotPath, gotQuery, gotMax, gotFields, gotUser string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFields = r.URL.Query().Get("fields")
		gotQuery = r.URL.Query().Get("jql")
		gotMax = r.URL.Query().Get("maxResults")
		gotUser, _, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchResponse))
	}))
	defer server.Close()

	src, err := NewSource(Credentials{
		Server:   server.URL,
		Username: "dev@example.com",
		APIToken: "token",
	})
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	issues := src.Fetch(context.Background(), "2025-06-01")

	if len(issues) != 2 {
		t.Fatalf("Fetch() returned %d issues, want 2", len(issues))
	}
	if issues[0].Key != "CORE-1" || issues[1].Key != "CORE-2" {
		t.Errorf("Fetch() keys = %q, %q; want CORE-1, CORE-2", issues[0].Key, issues[1].Key)
	}
	if issues[0].Summary != "Add cache layer" {
		t.Errorf("Summary = %q", issues[0].Summary)
	}
	if issues[0].Description == nil || !strings.Contains(*issues[0].Description, "redis") {
		t.Errorf("Description = %v, want raw description", issues[0].Description)
	}
	if issues[1].Description != nil {
		t.Errorf("Description = %q, want nil", *issues[1].Description)
	}
	if gotQuery != BuildJQL("2025-06-01") {
		t.Errorf("jql = %q", gotQuery)
	}
	if gotMax != "100" {
		t.Errorf("maxResults = %q, want 100", gotMax)
	}
	if gotUser != "dev@example.com" {
		t.Errorf("basic auth user = %q", gotUser)
	}
	if gotPath != "/rest/api/2/search/jql" {
		t.Errorf("path = %q, want the enhanced search endpoint", gotPath)
	}
	if gotFields != "summary,description" {
		t.Errorf("fields = %q", gotFields)
	}
}

func TestSourceFetchFallsBackToPlainSearch(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/rest/api/2/search/jql" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchResponse))
	}))
	defer server.Close()

	var buf bytes.Buffer
	src, err := NewSource(
		Credentials{Server: server.URL, Username: "dev", APIToken: "tok"},
		WithLogger(log.New(&buf, "", 0)),
	)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	issues := src.Fetch(context.Background(), "2025-06-01")
	if len(issues) != 2 {
		t.Fatalf("Fetch() returned %d issues, want 2", len(issues))
	}
	want := []string{"/rest/api/2/search/jql", "/rest/api/2/search"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if !strings.Contains(buf.String(), "status 404") {
		t.Errorf("log output = %q, want fallback notice", buf.String())
	}
}

func TestSourceFetchDefaultStartDate(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("jql")
		_, _ = w.Write([]byte(`{"issues": []}`))
	}))
	defer server.Close()

	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	src, err := NewSource(
		Credentials{Server: server.URL, Username: "dev", Password: "pw"},
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	issues := src.Fetch(context.Background(), "")
	if len(issues) != 0 {
		t.Errorf("Fetch() returned %d issues, want 0", len(issues))
	}
	if want := BuildJQL("2025-10-17"); gotQuery != want {
		t.Errorf("jql = %q, want %q", gotQuery, want)
	}
}

func TestSourceFetchFailureReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorMessages":["Error in the JQL Query"]}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	src, err := NewSource(
		Credentials{Server: server.URL, Username: "dev", APIToken: "tok"},
		WithLogger(log.New(&buf, "", 0)),
	)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	issues := src.Fetch(context.Background(), "2025-01-01")
	if issues != nil {
		t.Errorf("Fetch() = %v, want nil", issues)
	}
	if !strings.Contains(buf.String(), "Error fetching Jira issues") {
		t.Errorf("log output = %q, want fetch error notice", buf.String())
	}
}

func TestSourceFetchUnreachableServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	src, err := NewSource(Credentials{Server: url, Username: "dev", APIToken: "tok"})
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if issues := src.Fetch(context.Background(), "2025-01-01"); len(issues) != 0 {
		t.Errorf("Fetch() returned %d issues, want 0", len(issues))
	}
}
