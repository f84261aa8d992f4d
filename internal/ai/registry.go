package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
	models    map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProviderFactory),
		models:    make(map[string]string),
	}
}

// Register adds a named factory. defaultModel is passed to the factory when
// Get is called without a model.
func (r *Registry) Register(name, defaultModel string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	r.models[name] = defaultModel
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	def := r.models[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	if strings.TrimSpace(model) == "" {
		model = def
	}
	return f(ctx, model)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Settings carries the endpoints and keys of the built-in providers.
type Settings struct {
	GroqAPIKey        string
	GroqBaseURL       string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterSiteURL string
	OpenRouterAppName string
	OllamaBaseURL     string
	GeminiAPIKey      string
}

const DefaultGroqModel = "llama-3.1-8b-instant"

// NewDefaultRegistry registers every built-in provider. Missing keys are not
// an error here; the provider reports them when it is called.
func NewDefaultRegistry(s Settings) *Registry {
	reg := NewRegistry()

	reg.Register("groq", DefaultGroqModel, func(_ context.Context, model string) (Provider, error) {
		return NewGroqProvider(s.GroqBaseURL, s.GroqAPIKey, model), nil
	})
	reg.Register("openai", "gpt-4o-mini", func(_ context.Context, model string) (Provider, error) {
		return NewOpenAIProvider(s.OpenAIBaseURL, s.OpenAIAPIKey, model), nil
	})
	reg.Register("openrouter", "meta-llama/llama-3.1-8b-instruct", func(_ context.Context, model string) (Provider, error) {
		return NewOpenRouterProvider(s.OpenRouterBaseURL, s.OpenRouterAPIKey, model, s.OpenRouterSiteURL, s.OpenRouterAppName), nil
	})
	reg.Register("ollama", DefaultOllamaModel, func(_ context.Context, model string) (Provider, error) {
		return NewOllamaProvider(s.OllamaBaseURL, model), nil
	})
	reg.Register("gemini", "gemini-2.0-flash", func(_ context.Context, model string) (Provider, error) {
		return NewGeminiProvider(s.GeminiAPIKey, model), nil
	})

	return reg
}
