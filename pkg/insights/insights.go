// Package insights asks a language model for short comments on a user's
// monthly statistics.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fintrack/backend/pkg/reports"
	"google.golang.org/genai"
)

var (
	_ reports.InsightGenerator = Static{}
	_ reports.InsightGenerator = (*GeminiGenerator)(nil)
)

// Static generates no insights. It is used when no model is configured.
type Static struct{}

func (Static) Generate(context.Context, reports.Stats, string) ([]string, error) {
	return nil, nil
}

// DefaultModelName is used when no model is configured.
const DefaultModelName = "gemini-2.0-flash"

// GeminiGenerator generates insights with the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// GeminiConfig configures the Gemini client. BaseURL is only needed to use a
// different endpoint.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

func NewGeminiGenerator(ctx context.Context, config GeminiConfig) (*GeminiGenerator, error) {
	if config.Model == "" {
		config.Model = DefaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: "v1beta",
			BaseURL:    config.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create genai client: %w", err)
	}

	return &GeminiGenerator{client: client, model: config.Model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, stats reports.Stats, period string) ([]string, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("could not encode stats: %w", err)
	}

	prompt := fmt.Sprintf("Give 3 concise financial insights for %s based on these statistics: %s\n\n"+
		"Return ONLY a valid raw JSON array of strings.\n"+
		"Do NOT wrap the response in code fences.\n", period, data)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("could not generate insights: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	var insights []string
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &insights); err != nil {
		return nil, fmt.Errorf("could not parse insights: %w, raw response: %s", err, raw)
	}

	return insights, nil
}

// cleanModelJSON removes Markdown fences and anything around the JSON array
// that models like to add.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = s[start : end+1]
		}
	}

	return s
}
