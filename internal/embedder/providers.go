package embedder

import (
	"fmt"
	"os"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderLocal  = "local"

	// Environment
	EnvProvider     = "HYBRIDRAG_EMBEDDING_PROVIDER"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultGeminiModel = "text-embedding-004"
	DefaultLocalModel  = "hashed-bow-384"

	// API roots
	DefaultJinaURL   = "https://api.jina.ai"
	DefaultOpenAIURL = "https://api.openai.com"
	DefaultGeminiURL = "https://generativelanguage.googleapis.com"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	GeminiDimension = 768
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	DefaultCacheSize = 10000

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

func requireKey(cfg *ProviderConfig, env string) error {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(env)
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, env)
	}
	return nil
}

// NewJinaProvider creates a Jina AI embedder
func NewJinaProvider(cfg ProviderConfig, cache *Cache) (*HTTPProvider, error) {
	if err := requireKey(&cfg, EnvJinaAPIKey); err != nil {
		return nil, err
	}
	return newHTTPProvider(ProviderJina, JinaDimension, DefaultJinaModel, DefaultJinaURL, openAIWire{}, cfg, cache), nil
}

// NewOpenAIProvider creates an OpenAI embedder
func NewOpenAIProvider(cfg ProviderConfig, cache *Cache) (*HTTPProvider, error) {
	if err := requireKey(&cfg, EnvOpenAIAPIKey); err != nil {
		return nil, err
	}
	return newHTTPProvider(ProviderOpenAI, OpenAIDimension, DefaultOpenAIModel, DefaultOpenAIURL, openAIWire{}, cfg, cache), nil
}

// NewGeminiProvider creates a Google Gemini embedder
func NewGeminiProvider(cfg ProviderConfig, cache *Cache) (*HTTPProvider, error) {
	if err := requireKey(&cfg, EnvGeminiAPIKey); err != nil {
		return nil, err
	}
	return newHTTPProvider(ProviderGemini, GeminiDimension, DefaultGeminiModel, DefaultGeminiURL, geminiWire{}, cfg, cache), nil
}
