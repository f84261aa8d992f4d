package ai

import (
	"context"
	"strings"
)

// StreamProvider is an optional interface. Providers may implement streaming chat.
// Both channels are closed when the stream ends; at most one error is sent.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// Collect drains a stream and concatenates its chunks.
func Collect(chunks <-chan string, errs <-chan error) (string, error) {
	var sb strings.Builder
	for c := range chunks {
		sb.WriteString(c)
	}
	if err, ok := <-errs; ok && err != nil {
		return "", err
	}
	return sb.String(), nil
}
