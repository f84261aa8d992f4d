package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, seen *compatChatReq, chunks ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			b, _ := json.Marshal(map[string]any{
				"choices": []any{map[string]any{"delta": map[string]string{"content": c}}},
			})
			_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSummarizer_StreamsAndConcatenates(t *testing.T) {
	var seen compatChatReq
	srv := sseServer(t, &seen, "Go is ", "a language.", " ")

	p := NewGroqProvider(srv.URL, "test-key", DefaultGroqModel)
	got, err := NewSummarizer(p).Summarize(context.Background(), "long text")
	require.NoError(t, err)
	assert.Equal(t, "Go is a language.", got)

	assert.True(t, seen.Stream)
	assert.Equal(t, DefaultGroqModel, seen.Model)
	assert.Equal(t, 1024, seen.MaxTokens)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, Message{Role: RoleSystem, Content: SystemPrompt}, seen.Messages[0])
	assert.Equal(t, Message{Role: RoleUser, Content: "long text"}, seen.Messages[1])
}

func TestSummarizer_EmptySummary(t *testing.T) {
	srv := sseServer(t, nil, "  ", "\n")

	_, err := NewSummarizer(NewGroqProvider(srv.URL, "test-key", "m")).Summarize(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSummarization)
	assert.ErrorIs(t, err, ErrEmptySummary)
	assert.Equal(t, "LLM summarization failed: LLM returned empty summary", err.Error())
}

func TestSummarizer_MissingKey(t *testing.T) {
	_, err := NewSummarizer(NewGroqProvider("", "", DefaultGroqModel)).Summarize(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSummarization)
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, "LLM summarization failed: GROQ_API_KEY is not configured", err.Error())
}

func TestSummarizer_BackendErrorIsUniform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = fmt.Fprint(w, `{"error":{"message":"rate limit reached"}}`)
	}))
	t.Cleanup(srv.Close)

	_, err := NewSummarizer(NewOpenAIProvider(srv.URL, "test-key", "m")).Summarize(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSummarization)
	assert.Equal(t, "LLM summarization failed: openai: rate limit reached", err.Error())
}

func TestSummarizer_EmptyInput(t *testing.T) {
	_, err := NewSummarizer(NewGroqProvider("", "k", "m")).Summarize(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrSummarization)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

type plainProvider struct {
	reply string
	err   error
	got   []Message
}

func (p *plainProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	p.got = messages
	return p.reply, p.err
}

func TestSummarizer_NonStreamingProvider(t *testing.T) {
	p := &plainProvider{reply: "  summary.  "}
	got, err := NewSummarizer(p).Summarize(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "summary.", got)
	require.Len(t, p.got, 2)

	p.err = errors.New("connection reset")
	_, err = NewSummarizer(p).Summarize(context.Background(), "text")
	assert.ErrorIs(t, err, ErrSummarization)
	assert.ErrorContains(t, err, "connection reset")
}

func TestOpenAICompat_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://example.test", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "summarizer", r.Header.Get("X-Title"))
		var req compatChatReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		_, _ = fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`)
	}))
	t.Cleanup(srv.Close)

	p := NewOpenRouterProvider(srv.URL, "test-key", "m", "https://example.test", "summarizer")
	got, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
}

func TestCompat_TruncatedStreamFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"half a sum"}}]}`+"\n\n")
	}))
	t.Cleanup(srv.Close)

	p := NewGroqProvider(srv.URL, "test-key", DefaultGroqModel)
	_, err := Collect(p.StreamChat(context.Background(), nil))
	assert.EqualError(t, err, "groq: stream ended before [DONE]")

	_, err = NewSummarizer(p).Summarize(context.Background(), "text")
	assert.ErrorIs(t, err, ErrSummarization)
}

func TestOllama_StreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		_, _ = fmt.Fprintln(w, `{"message":{"role":"assistant","content":"one "},"done":false}`)
		_, _ = fmt.Fprintln(w, `{"message":{"role":"assistant","content":"two"},"done":false}`)
		_, _ = fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	t.Cleanup(srv.Close)

	got, err := Collect(NewOllamaProvider(srv.URL, "").StreamChat(context.Background(), nil))
	require.NoError(t, err)
	assert.Equal(t, "one two", got)
}

func TestOllama_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := NewOllamaProvider(srv.URL, "m").Chat(context.Background(), nil)
	assert.EqualError(t, err, "ollama: status 500")
}

func TestOllama_ChatSendsOptions(t *testing.T) {
	var seen ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		_, _ = fmt.Fprint(w, `{"message":{"role":"assistant","content":"short"},"done":true}`)
	}))
	t.Cleanup(srv.Close)

	got, err := NewOllamaProvider(srv.URL+"/", "m").Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "short", got)
	assert.False(t, seen.Stream)
	require.NotNil(t, seen.Options)
	assert.Equal(t, 1024, seen.Options.NumPredict)
}

func TestOllama_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, `{"error":"model 'm' not found"}`)
	}))
	t.Cleanup(srv.Close)

	_, err := Collect(NewOllamaProvider(srv.URL, "m").StreamChat(context.Background(), nil))
	assert.EqualError(t, err, "ollama: model 'm' not found")
}

func TestOllama_TruncatedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, `{"message":{"role":"assistant","content":"half"},"done":false}`)
	}))
	t.Cleanup(srv.Close)

	_, err := Collect(NewOllamaProvider(srv.URL, "m").StreamChat(context.Background(), nil))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	reg := NewDefaultRegistry(Settings{GroqAPIKey: "k"})
	assert.Equal(t, []string{"gemini", "groq", "ollama", "openai", "openrouter"}, reg.Names())

	p, err := reg.Get(context.Background(), " GROQ ", "")
	require.NoError(t, err)
	groq, ok := p.(*OpenAICompatProvider)
	require.True(t, ok)
	assert.Equal(t, DefaultGroqModel, groq.Model)
	assert.Equal(t, DefaultGroqBaseURL, groq.BaseURL)

	p, err = reg.Get(context.Background(), "ollama", "mistral")
	require.NoError(t, err)
	assert.Equal(t, "mistral", p.(*OllamaProvider).Model)

	_, err = reg.Get(context.Background(), "nope", "")
	assert.EqualError(t, err, "unknown ai provider: nope")
}

func TestGemini_MissingKey(t *testing.T) {
	_, err := NewGeminiProvider("", "").Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.EqualError(t, err, "GEMINI_API_KEY is not configured")
}

func TestGeminiContents(t *testing.T) {
	contents, system := geminiContents([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a"},
	})
	require.NotNil(t, system)
	require.Len(t, system.Parts, 1)
	assert.Equal(t, "be brief", system.Parts[0].Text)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)

	_, system = geminiContents([]Message{{Role: RoleUser, Content: "q"}})
	assert.Nil(t, system)
}

func TestCollect_Error(t *testing.T) {
	chunks := make(chan string, 1)
	errs := make(chan error, 1)
	chunks <- "partial"
	errs <- errors.New("stream broke")
	close(chunks)
	close(errs)

	_, err := Collect(chunks, errs)
	assert.EqualError(t, err, "stream broke")
}
