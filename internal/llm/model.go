// Package llm is the boundary to the language model that rates competencies.
// Whatever shape a provider returns is collapsed into a Response here, once.
package llm

import (
	"context"
	"fmt"
)

// Model generates a completion for a single prompt. Calls block until the
// provider answers; there is no client-side timeout or retry.
type Model interface {
	Generate(ctx context.Context, prompt string) (*Response, error)
}

// Response is the normalized model output.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// InvocationError reports a failed model call.
type InvocationError struct {
	Model string
	Err   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("model %s invocation failed: %v", e.Model, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// texter is satisfied by SDK message types that expose their payload as Text().
type texter interface {
	Text() string
}

// TextOf extracts the text payload from a raw provider value: a plain string,
// a *Response, anything with a Text() method, or a fmt.Stringer.
func TextOf(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case *Response:
		if r == nil {
			return ""
		}
		return r.Text
	case Response:
		return r.Text
	case texter:
		return r.Text()
	case fmt.Stringer:
		return r.String()
	default:
		return fmt.Sprint(v)
	}
}

// Func adapts a plain function into a Model. The function may return any
// value accepted by TextOf.
type Func func(ctx context.Context, prompt string) (any, error)

// Generate calls f and normalizes its result.
func (f Func) Generate(ctx context.Context, prompt string) (*Response, error) {
	out, err := f(ctx, prompt)
	if err != nil {
		return nil, &InvocationError{Model: "func", Err: err}
	}
	if resp, ok := out.(*Response); ok && resp != nil {
		return resp, nil
	}
	return &Response{Text: TextOf(out), Model: "func"}, nil
}
