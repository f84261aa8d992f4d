package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API through the genai SDK. The client is
// created on first use so a missing key fails the call, not process startup.
type GeminiProvider struct {
	APIKey string
	Model  string

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiProvider{APIKey: apiKey, Model: model}
}

func (p *GeminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, missingKey("GEMINI_API_KEY")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = c
	return c, nil
}

// geminiContents maps chat messages onto Gemini's shape: system messages
// become the system instruction, assistant turns use the "model" role.
func geminiContents(messages []Message) ([]*genai.Content, *genai.Content) {
	var system []*genai.Part
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, &genai.Part{Text: m.Content})
		case RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{Parts: system}
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	contents, system := geminiContents(messages)
	resp, err := client.Models.GenerateContent(ctx, p.Model, contents, &genai.GenerateContentConfig{
		SystemInstruction: system,
	})
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", errors.New("gemini: response blocked by safety filters")
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
