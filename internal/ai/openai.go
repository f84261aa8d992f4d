package ai

import (
	"bufio"
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
	DefaultGroqBaseURL       = "https://api.groq.com/openai/v1"
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenAICompatProvider talks to any /chat/completions endpoint that follows
// the OpenAI wire format: Groq, OpenAI and OpenRouter.
type OpenAICompatProvider struct {
	Name    string
	BaseURL string
	APIKey  string
	// KeyEnv is reported when APIKey is empty.
	KeyEnv      string
	Model       string
	MaxTokens   int
	Temperature *float64
	Headers     map[string]string
	Client      *http.Client
}

type compatChatReq struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	MaxTokens   int       `json:"max_completion_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type compatError struct {
	Message string `json:"message"`
}

type compatChatResp struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *compatError `json:"error,omitempty"`
}

type compatStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *compatError `json:"error,omitempty"`
}

func newCompat(name, baseURL, defaultBaseURL, apiKey, keyEnv, model string) *OpenAICompatProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &OpenAICompatProvider{
		Name:    name,
		BaseURL: baseURL,
		APIKey:  apiKey,
		KeyEnv:  keyEnv,
		Model:   model,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

// NewGroqProvider uses the sampling settings of the hosted summarizer:
// temperature 1 and up to 1024 completion tokens.
func NewGroqProvider(baseURL, apiKey, model string) *OpenAICompatProvider {
	p := newCompat("groq", baseURL, DefaultGroqBaseURL, apiKey, "GROQ_API_KEY", model)
	temp := 1.0
	p.Temperature = &temp
	p.MaxTokens = 1024
	return p
}

func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAICompatProvider {
	return newCompat("openai", baseURL, DefaultOpenAIBaseURL, apiKey, "OPENAI_API_KEY", model)
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenAICompatProvider {
	p := newCompat("openrouter", baseURL, DefaultOpenRouterBaseURL, apiKey, "OPENROUTER_API_KEY", model)
	p.Headers = map[string]string{}
	if siteURL != "" {
		p.Headers["HTTP-Referer"] = siteURL
	}
	if appName != "" {
		p.Headers["X-Title"] = appName
	}
	return p
}

func (p *OpenAICompatProvider) newRequest(ctx context.Context, messages []Message, stream bool) (*http.Request, error) {
	if p.Client == nil {
		return nil, fmt.Errorf("%s: http client is nil", p.Name)
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, missingKey(p.KeyEnv)
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return nil, fmt.Errorf("%s: model is required", p.Name)
	}

	b, err := json.Marshal(compatChatReq{
		Model:       model,
		Messages:    messages,
		Stream:      stream,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (p *OpenAICompatProvider) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	msg := strings.TrimSpace(string(body))
	var decoded struct {
		Error *compatError `json:"error"`
	}
	if json.Unmarshal(body, &decoded) == nil && decoded.Error != nil && decoded.Error.Message != "" {
		msg = decoded.Error.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return fmt.Errorf("%s: %s", p.Name, msg)
}

func (p *OpenAICompatProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	req, err := p.newRequest(ctx, messages, false)
	if err != nil {
		return "", err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", p.statusError(resp)
	}

	var decoded compatChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response", p.Name)
	}
	return decoded.Choices[0].Message.Content, nil
}

// StreamChat streams assistant content chunks via SSE.
func (p *OpenAICompatProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		req, err := p.newRequest(ctx, messages, true)
		if err != nil {
			errs <- err
			return
		}

		resp, err := p.Client.Do(req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errs <- p.statusError(resp)
			return
		}

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var decoded compatStreamResp
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				errs <- err
				return
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				errs <- errors.New(decoded.Error.Message)
				return
			}
			if len(decoded.Choices) == 0 {
				continue
			}
			if delta := decoded.Choices[0].Delta.Content; delta != "" {
				select {
				case chunks <- delta:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}

		if err := sc.Err(); err != nil {
			errs <- err
			return
		}
		errs <- fmt.Errorf("%s: stream ended before [DONE]", p.Name)
	}()

	return chunks, errs
}
