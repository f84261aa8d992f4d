package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "llama3:latest"
)

// OllamaProvider calls a local Ollama server. It needs no credentials.
type OllamaProvider struct {
	BaseURL string
	Model   string

	// NumPredict caps generated tokens; zero leaves the server default.
	NumPredict  int
	Temperature float64

	Client *http.Client
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

// ollamaFrame is both the whole non-streaming reply and one NDJSON stream line.
type ollamaFrame struct {
	Message    Message `json:"message"`
	Done       bool    `json:"done"`
	DoneReason string  `json:"done_reason,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultOllamaBaseURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaProvider{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Model:       model,
		NumPredict:  1024,
		Temperature: 1,
		// local models can be slow to load; the job context bounds the call
		Client: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (p *OllamaProvider) request(messages []Message, stream bool) ollamaRequest {
	r := ollamaRequest{Model: p.Model, Messages: messages, Stream: stream}
	if p.NumPredict > 0 || p.Temperature > 0 {
		r.Options = &ollamaOptions{NumPredict: p.NumPredict, Temperature: p.Temperature}
	}
	return r
}

// do posts to /api/chat and returns the open body of a 2xx response.
func (p *OllamaProvider) do(ctx context.Context, body ollamaRequest) (io.ReadCloser, error) {
	if p.Client == nil {
		return nil, errors.New("ollama: http client is nil")
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/chat", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		var f ollamaFrame
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &f) == nil && f.Error != "" {
			return nil, fmt.Errorf("ollama: %s", f.Error)
		}
		return nil, fmt.Errorf("ollama: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	body, err := p.do(ctx, p.request(messages, false))
	if err != nil {
		return "", err
	}
	defer body.Close()

	var f ollamaFrame
	if err := json.NewDecoder(body).Decode(&f); err != nil {
		return "", fmt.Errorf("ollama: decode: %w", err)
	}
	if f.Error != "" {
		return "", fmt.Errorf("ollama: %s", f.Error)
	}
	return f.Message.Content, nil
}

// StreamChat reads the NDJSON frames of a streaming reply and forwards the
// content of each; the stream ends at the frame marked done.
func (p *OllamaProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		body, err := p.do(ctx, p.request(messages, true))
		if err != nil {
			errs <- err
			return
		}
		defer body.Close()

		dec := json.NewDecoder(body)
		for {
			var f ollamaFrame
			if err := dec.Decode(&f); err != nil {
				if errors.Is(err, io.EOF) {
					errs <- errors.New("ollama: stream ended before done")
				} else {
					errs <- fmt.Errorf("ollama: decode: %w", err)
				}
				return
			}
			if f.Error != "" {
				errs <- fmt.Errorf("ollama: %s", f.Error)
				return
			}
			if f.Message.Content != "" {
				select {
				case chunks <- f.Message.Content:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if f.Done {
				return
			}
		}
	}()

	return chunks, errs
}
