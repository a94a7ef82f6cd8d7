// Package assistant answers free-form dashboard questions about the current
// reports with a generative model. The report list is rendered into the
// prompt as tabular context; the model never sees more than the most recent
// rows.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"civic_reports/internal/report"
)

// Responder produces a completion for one prompt.
type Responder interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

const (
	// Context rows are capped so the prompt stays well under model limits.
	maxContextReports = 100

	promptTemplate = "You are a helpful assistant trained on city issue report data. " +
		"Answer based on the following reports:\n\n%s\n\nUser asked: %q"
)

// Assistant joins the report store to a responder.
type Assistant struct {
	responder Responder
	store     *report.Store
}

func New(responder Responder, store *report.Store) *Assistant {
	return &Assistant{responder: responder, store: store}
}

// Ask answers one user question grounded on the current report list.
func (a *Assistant) Ask(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("empty message")
	}
	return a.responder.Respond(ctx, fmt.Sprintf(promptTemplate, contextTable(a.store.List()), message))
}

// contextTable renders reports as one header line plus one row per report.
func contextTable(reports []report.Report) string {
	if len(reports) > maxContextReports {
		reports = reports[len(reports)-maxContextReports:]
	}
	var b strings.Builder
	b.WriteString("id | call_time | incident_type | location | priority | status\n")
	for _, r := range reports {
		fmt.Fprintf(&b, "%s | %s | %s | %s | %s | %s\n",
			r.ID, r.CallTime.Format("2006-01-02 15:04"), r.IncidentType,
			r.Location, r.Priority, r.Status)
	}
	return b.String()
}

// GeminiResponder implements Responder against the Gemini API.
type GeminiResponder struct {
	client *genai.Client
	model  string
}

func NewGeminiResponder(ctx context.Context, apiKey, model string) (*GeminiResponder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiResponder{client: client, model: model}, nil
}

// Close releases the underlying API client.
func (g *GeminiResponder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiResponder) Respond(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.GenerativeModel(g.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", errors.New("empty reply from model")
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	return strings.Join(parts, "")
}
