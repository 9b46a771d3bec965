package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/andywolf/competency/internal/version"
)

func TestPrintVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		verbose bool
		want    string
		wantErr bool
	}{
		{name: "text", output: "text", want: "competency " + version.Version + " (commit:"},
		{name: "verbose", output: "text", verbose: true, want: "OS/Arch:"},
		{name: "yaml", output: "yaml", want: "name: competency"},
		{name: "json", output: "json", want: `"name": "competency"`},
		{name: "invalid", output: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := printVersion(&out, tt.output, tt.verbose)
			if (err != nil) != tt.wantErr {
				t.Fatalf("printVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("printVersion() = %q, want substring %q", out.String(), tt.want)
			}
		})
	}
}

func TestPrintVersion_JSONFields(t *testing.T) {
	var out bytes.Buffer
	if err := printVersion(&out, "json", false); err != nil {
		t.Fatal(err)
	}
	var got version.Build
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got != version.Get() {
		t.Errorf("decoded = %+v, want %+v", got, version.Get())
	}
}
