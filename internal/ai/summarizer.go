package ai

import (
	"context"
	"fmt"
	"strings"
)

const SystemPrompt = "You are a professional summarizer. Create a concise, accurate summary of the text provided by the user in 5-7 sentences."

// Summarizer turns plain text into a short prose summary. Every failure it
// returns matches ErrSummarization; the cause is only reachable via errors.Is.
type Summarizer struct {
	provider Provider
}

func NewSummarizer(p Provider) *Summarizer {
	return &Summarizer{provider: p}
}

func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %w", ErrSummarization, ErrEmptyInput)
	}

	messages := []Message{
		{Role: RoleSystem, Content: SystemPrompt},
		{Role: RoleUser, Content: text},
	}

	var (
		summary string
		err     error
	)
	if sp, ok := s.provider.(StreamProvider); ok {
		summary, err = Collect(sp.StreamChat(ctx, messages))
	} else {
		summary, err = s.provider.Chat(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSummarization, err)
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("%w: %w", ErrSummarization, ErrEmptySummary)
	}
	return summary, nil
}
