package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider          string
	APIKey            string
	Model             string
	BaseURL           string
	CacheSize         int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// NewFromEnv creates an embedder from environment variables.
// Priority:
//  1. HYBRIDRAG_EMBEDDING_PROVIDER (jina, openai, gemini, local)
//  2. The first API key found: JINA_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY
//  3. local
func NewFromEnv() (Embedder, error) {
	return New(Config{Provider: DetectProvider(), CacheSize: DefaultCacheSize})
}

// New creates an embedder with explicit configuration. An empty provider
// is detected from the environment. Missing API keys are read from the
// provider's environment variable.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = DetectProvider()
	}

	pc := ProviderConfig{
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		BaseURL:           cfg.BaseURL,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}

	var newRemote func(ProviderConfig, *Cache) (*HTTPProvider, error)
	switch provider {
	case ProviderJina:
		newRemote = NewJinaProvider
	case ProviderOpenAI:
		newRemote = NewOpenAIProvider
	case ProviderGemini:
		newRemote = NewGeminiProvider
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}

	p, err := newRemote(pc, cache)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DetectProvider returns the provider New would pick for an empty
// Config.Provider
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}

	switch {
	case os.Getenv(EnvJinaAPIKey) != "":
		return ProviderJina
	case os.Getenv(EnvOpenAIAPIKey) != "":
		return ProviderOpenAI
	case os.Getenv(EnvGeminiAPIKey) != "":
		return ProviderGemini
	}

	return ProviderLocal
}
