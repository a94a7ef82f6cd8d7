// Package extract pulls a street address and an incident type out of a
// free-form transcript using a generative model. The model is asked for one
// pipe-delimited line; anything else is treated as "nothing found" rather
// than an error.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Fields is the structured extraction result. Found is false when the
// transcript names no address.
type Fields struct {
	Address      string
	IncidentType string
	Found        bool
}

// Extractor converts transcript text into structured fields.
type Extractor interface {
	Extract(ctx context.Context, transcript string) (Fields, error)
}

const (
	noResultSentinel = "NO_ADDRESS|NO_INCIDENT"

	promptTemplate = "Extract the address and incident type from the following text. " +
		"Reply in this exact format: ADDRESS|INCIDENT_TYPE\n" +
		"For example: '123 Main St, City, State|pothole' or '456 Oak Ave|broken streetlight'\n" +
		"If no address is found, reply with: NO_ADDRESS|NO_INCIDENT\n\nText: %s"
)

// GeminiExtractor implements Extractor against the Gemini API.
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

// NewGeminiExtractor dials the Gemini API with the given key.
func NewGeminiExtractor(ctx context.Context, apiKey, model string) (*GeminiExtractor, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiExtractor{client: client, model: model}, nil
}

// Close releases the underlying API client.
func (g *GeminiExtractor) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Extract asks the model for the pipe-delimited line and parses it.
func (g *GeminiExtractor) Extract(ctx context.Context, transcript string) (Fields, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.Text(fmt.Sprintf(promptTemplate, transcript)))
	if err != nil {
		return Fields{}, fmt.Errorf("gemini generate: %w", err)
	}
	return ParseFields(responseText(resp)), nil
}

// ParseFields parses the model's reply. Any deviation from the expected
// two-part pipe-delimited shape yields the no-result outcome.
func ParseFields(reply string) Fields {
	reply = strings.TrimSpace(reply)
	if reply == "" || reply == noResultSentinel {
		return Fields{}
	}
	if !strings.Contains(reply, "|") {
		return Fields{}
	}
	parts := strings.SplitN(reply, "|", 2)
	address := strings.TrimSpace(parts[0])
	incident := strings.TrimSpace(parts[1])
	if address == "" || address == "NO_ADDRESS" {
		return Fields{}
	}
	if incident == "" {
		incident = "unknown"
	}
	return Fields{Address: address, IncidentType: incident, Found: true}
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
