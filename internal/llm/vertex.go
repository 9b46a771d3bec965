package llm

import (
	"context"
	"fmt"
	"strings"

	aiplatform "google.golang.org/api/aiplatform/v1"
	"google.golang.org/api/option"
)

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel = "gemini-2.5-pro"

	// DefaultLocation is the Vertex AI region used when none is configured.
	DefaultLocation = "europe-west1"
)

// VertexConfig identifies the Vertex AI model to call.
type VertexConfig struct {
	Project  string
	Location string
	Model    string
	// Endpoint overrides the regional endpoint (tests, private service connect).
	Endpoint string
}

// VertexModel calls Gemini through the Vertex AI generateContent API.
type VertexModel struct {
	service *aiplatform.Service
	config  VertexConfig
}

// NewVertexModel creates a Vertex AI client. Credentials come from the
// environment (Application Default Credentials) unless opts say otherwise.
func NewVertexModel(ctx context.Context, cfg VertexConfig, opts ...option.ClientOption) (*VertexModel, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("vertex AI project is required")
	}
	if cfg.Location == "" {
		cfg.Location = DefaultLocation
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = fmt.Sprintf("https://%s-aiplatform.googleapis.com/", cfg.Location)
	}

	opts = append([]option.ClientOption{option.WithEndpoint(cfg.Endpoint)}, opts...)
	service, err := aiplatform.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex AI client: %w", err)
	}

	return &VertexModel{service: service, config: cfg}, nil
}

// Name returns the configured model name.
func (m *VertexModel) Name() string {
	return m.config.Model
}

// resourceName is the fully qualified publisher model path.
func (m *VertexModel) resourceName() string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s",
		m.config.Project, m.config.Location, m.config.Model)
}

// Generate sends prompt as a single user turn and returns the joined text of
// the first candidate.
func (m *VertexModel) Generate(ctx context.Context, prompt string) (*Response, error) {
	req := &aiplatform.GoogleCloudAiplatformV1GenerateContentRequest{
		Contents: []*aiplatform.GoogleCloudAiplatformV1Content{
			{
				Role:  "user",
				Parts: []*aiplatform.GoogleCloudAiplatformV1Part{{Text: prompt}},
			},
		},
	}

	resp, err := m.service.Projects.Locations.Publishers.Models.
		GenerateContent(m.resourceName(), req).
		Context(ctx).
		Do()
	if err != nil {
		return nil, &InvocationError{Model: m.config.Model, Err: err}
	}

	out := &Response{
		Text:  candidateText(resp),
		Model: m.config.Model,
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func candidateText(resp *aiplatform.GoogleCloudAiplatformV1GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part == nil {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
