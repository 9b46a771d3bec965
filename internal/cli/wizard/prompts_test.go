package wizard

import "testing"

func TestValidateServerURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty", "", false},
		{"whitespace", "   ", false},
		{"https", "https://acme.atlassian.net", false},
		{"http with port", "http://localhost:8080", false},
		{"trailing slash", "https://acme.atlassian.net/", false},
		{"missing scheme", "acme.atlassian.net", true},
		{"wrong scheme", "ftp://acme.atlassian.net", true},
		{"scheme only", "https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServerURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty", "", false},
		{"valid", "2025-01-31", false},
		{"padded", " 2025-01-31 ", false},
		{"wrong order", "31-01-2025", true},
		{"impossible day", "2025-02-30", true},
		{"free text", "last year", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
