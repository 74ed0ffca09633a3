package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/dshills/hybridrag/internal/cache"
	"github.com/dshills/hybridrag/internal/chunker"
	"github.com/dshills/hybridrag/internal/embedder"
	"github.com/dshills/hybridrag/internal/fusion"
	"github.com/dshills/hybridrag/internal/indexer"
	"github.com/dshills/hybridrag/internal/rerank"
	"github.com/dshills/hybridrag/internal/searcher"
	"github.com/dshills/hybridrag/internal/vectorindex"
)

// DefaultDBPath is the corpus database used when none is configured
const DefaultDBPath = "hybridrag.db"

// Environment overrides
const (
	EnvDBPath            = "HYBRIDRAG_DB_PATH"
	EnvEmbeddingProvider = embedder.EnvProvider
	EnvEmbeddingModel    = "HYBRIDRAG_EMBEDDING_MODEL"
	EnvEmbeddingBaseURL  = "HYBRIDRAG_EMBEDDING_BASE_URL"
	EnvEmbeddingAPIKey   = "HYBRIDRAG_EMBEDDING_API_KEY"
	EnvVectorIndex       = "HYBRIDRAG_VECTOR_INDEX"
	EnvRerankEnabled     = "HYBRIDRAG_RERANK_ENABLED"
	EnvRerankEndpoint    = "HYBRIDRAG_RERANK_ENDPOINT"
	EnvCacheTTL          = "HYBRIDRAG_CACHE_TTL"
	EnvLogLevel          = "HYBRIDRAG_LOG_LEVEL"
	EnvLogFormat         = "HYBRIDRAG_LOG_FORMAT"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration written as a string ("5s", "7m") in YAML
type Duration time.Duration

// UnmarshalYAML parses a duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the process configuration
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Search    SearchConfig    `yaml:"search"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

type EmbeddingConfig struct {
	Provider          string   `yaml:"provider"` // Empty: detected from the environment
	APIKey            string   `yaml:"api_key"`
	Model             string   `yaml:"model"`
	BaseURL           string   `yaml:"base_url"`
	CacheSize         int      `yaml:"cache_size"`
	Timeout           Duration `yaml:"timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
}

type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type IndexingConfig struct {
	Workers            int  `yaml:"workers"`
	EmbeddingBatch     int  `yaml:"embedding_batch"`
	GenerateEmbeddings bool `yaml:"generate_embeddings"`
}

// ProfileConfig holds the weights of each query kind
type ProfileConfig struct {
	General   fusion.Weights `yaml:"general"`
	ErrorCode fusion.Weights `yaml:"error_code"`
}

type IVFConfig struct {
	Lists        int `yaml:"lists"`
	Probes       int `yaml:"probes"`
	Iterations   int `yaml:"iterations"`
	MinTrainSize int `yaml:"min_train_size"`
}

type SearchConfig struct {
	Profiles            ProfileConfig `yaml:"profiles"`
	Normalization       string        `yaml:"normalization"`
	Temperature         float64       `yaml:"temperature"`
	DefaultLimit        int           `yaml:"default_limit"`
	VectorIndex         string        `yaml:"vector_index"`
	IVF                 IVFConfig     `yaml:"ivf"`
	CandidateMultiplier int           `yaml:"candidate_multiplier"`
	EmbeddingTimeout    Duration      `yaml:"embedding_timeout"`
}

type RerankConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Endpoint          string   `yaml:"endpoint"` // Cross-encoder server; empty uses the lexical scorer
	Model             string   `yaml:"model"`
	Timeout           Duration `yaml:"timeout"`
	MaxCandidates     int      `yaml:"max_candidates"`
	MaxDocChars       int      `yaml:"max_doc_chars"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
}

type CacheConfig struct {
	Enabled           bool     `yaml:"enabled"`
	TTL               Duration `yaml:"ttl"`
	FuzzyThreshold    float64  `yaml:"fuzzy_threshold"`
	SemanticThreshold float64  `yaml:"semantic_threshold"`
	Semantic          bool     `yaml:"semantic"`
	CleanupThreshold  int      `yaml:"cleanup_threshold"`
	EmbeddingMemoSize int      `yaml:"embedding_memo_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// Default returns a working configuration with a local embedder
func Default() *Config {
	profiles := fusion.DefaultProfiles()
	return &Config{
		Storage: StorageConfig{DBPath: DefaultDBPath},
		Embedding: EmbeddingConfig{
			CacheSize: embedder.DefaultCacheSize,
			Timeout:   Duration(30 * time.Second),
		},
		Chunking: ChunkingConfig{
			Size:    chunker.DefaultSize,
			Overlap: chunker.DefaultOverlap,
		},
		Indexing: IndexingConfig{
			Workers:            4,
			EmbeddingBatch:     embedder.DefaultBatchSize,
			GenerateEmbeddings: true,
		},
		Search: SearchConfig{
			Profiles: ProfileConfig{
				General:   profiles[fusion.QueryGeneral],
				ErrorCode: profiles[fusion.QueryErrorCode],
			},
			Normalization:       string(fusion.MethodMinMax),
			Temperature:         fusion.DefaultTemperature,
			DefaultLimit:        searcher.DefaultLimit,
			VectorIndex:         string(vectorindex.KindFlat),
			CandidateMultiplier: searcher.DefaultCandidateMultiplier,
			EmbeddingTimeout:    Duration(searcher.DefaultEmbeddingTimeout),
		},
		Rerank: RerankConfig{
			Timeout:       Duration(rerank.DefaultTimeout),
			MaxCandidates: rerank.DefaultMaxCandidates,
			MaxDocChars:   rerank.DefaultMaxDocChars,
		},
		Cache: CacheConfig{
			Enabled:           true,
			TTL:               Duration(cache.DefaultTTL),
			FuzzyThreshold:    cache.DefaultFuzzyThreshold,
			SemanticThreshold: cache.DefaultSemanticThreshold,
			Semantic:          true,
			CleanupThreshold:  cache.DefaultCleanupThreshold,
			EmbeddingMemoSize: cache.DefaultEmbeddingMemoSize,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cfg.decode(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode merges YAML into cfg, rejecting unknown keys
func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from the environment through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvDBPath, &c.Storage.DBPath)
	str(EnvEmbeddingProvider, &c.Embedding.Provider)
	str(EnvEmbeddingModel, &c.Embedding.Model)
	str(EnvEmbeddingBaseURL, &c.Embedding.BaseURL)
	str(EnvEmbeddingAPIKey, &c.Embedding.APIKey)
	str(EnvVectorIndex, &c.Search.VectorIndex)
	str(EnvRerankEndpoint, &c.Rerank.Endpoint)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvLogFormat, &c.Log.Format)

	if v, ok := lookup(EnvRerankEnabled); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvRerankEnabled, err)
		}
		c.Rerank.Enabled = enabled
	}
	if v, ok := lookup(EnvCacheTTL); ok && v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvCacheTTL, err)
		}
		c.Cache.TTL = Duration(ttl)
	}
	return nil
}

// Validate checks ranges, weight sums and enumerations
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Storage.DBPath != "", "storage.db_path is required")

	switch strings.ToLower(c.Embedding.Provider) {
	case "", embedder.ProviderJina, embedder.ProviderOpenAI, embedder.ProviderGemini, embedder.ProviderLocal:
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q is not supported", c.Embedding.Provider))
	}
	check(c.Embedding.CacheSize >= 0, "embedding.cache_size must not be negative")
	check(c.Embedding.RequestsPerSecond >= 0, "embedding.requests_per_second must not be negative")

	check(c.Chunking.Size > 0, "chunking.size must be positive")
	check(c.Chunking.Overlap >= 0 && c.Chunking.Overlap < c.Chunking.Size,
		"chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)

	check(c.Indexing.Workers > 0, "indexing.workers must be positive")
	check(c.Indexing.EmbeddingBatch > 0, "indexing.embedding_batch must be positive")

	if err := c.Search.Profiles.General.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("search.profiles.general: %w", err))
	}
	if err := c.Search.Profiles.ErrorCode.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("search.profiles.error_code: %w", err))
	}
	if _, err := fusion.ParseMethod(c.Search.Normalization); err != nil {
		errs = append(errs, fmt.Errorf("search.normalization: %w", err))
	}
	check(c.Search.Temperature > 0, "search.temperature must be positive")
	check(c.Search.DefaultLimit > 0 && c.Search.DefaultLimit <= searcher.MaxLimit,
		"search.default_limit must be in [1, %d]", searcher.MaxLimit)
	switch vectorindex.Kind(c.Search.VectorIndex) {
	case vectorindex.KindFlat, vectorindex.KindIVF:
	default:
		errs = append(errs, fmt.Errorf("search.vector_index %q must be flat or ivf", c.Search.VectorIndex))
	}
	check(c.Search.CandidateMultiplier > 0, "search.candidate_multiplier must be positive")
	check(c.Search.EmbeddingTimeout > 0, "search.embedding_timeout must be positive")

	check(c.Rerank.MaxCandidates > 0, "rerank.max_candidates must be positive")
	check(c.Rerank.MaxDocChars > 0, "rerank.max_doc_chars must be positive")

	check(c.Cache.TTL > 0, "cache.ttl must be positive")
	check(c.Cache.FuzzyThreshold > 0 && c.Cache.FuzzyThreshold <= 1, "cache.fuzzy_threshold must be in (0, 1]")
	check(c.Cache.SemanticThreshold > 0 && c.Cache.SemanticThreshold <= 1, "cache.semantic_threshold must be in (0, 1]")
	check(c.Cache.CleanupThreshold > 0, "cache.cleanup_threshold must be positive")

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil || c.Log.Level == "" {
		errs = append(errs, fmt.Errorf("log.level %q is not a level", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// EmbedderConfig converts the embedding section
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:          c.Embedding.Provider,
		APIKey:            c.Embedding.APIKey,
		Model:             c.Embedding.Model,
		BaseURL:           c.Embedding.BaseURL,
		CacheSize:         c.Embedding.CacheSize,
		Timeout:           c.Embedding.Timeout.Std(),
		RequestsPerSecond: c.Embedding.RequestsPerSecond,
	}
}

// IndexerConfig converts the chunking and indexing sections
func (c *Config) IndexerConfig(forceReindex bool) *indexer.Config {
	return &indexer.Config{
		Workers:            c.Indexing.Workers,
		EmbeddingBatch:     c.Indexing.EmbeddingBatch,
		GenerateEmbeddings: c.Indexing.GenerateEmbeddings,
		ForceReindex:       forceReindex,
		Chunking: c.chunkerConfig(),
	}
}

// chunkerConfig maps the file's overlap of 0 ("none") to chunker.NoOverlap
func (c *Config) chunkerConfig() chunker.Config {
	cfg := chunker.Config{Size: c.Chunking.Size, Overlap: c.Chunking.Overlap}
	if cfg.Overlap == 0 {
		cfg.Overlap = chunker.NoOverlap
	}
	return cfg
}

// SearcherConfig converts the search section
func (c *Config) SearcherConfig() searcher.Config {
	return searcher.Config{
		VectorIndex: vectorindex.Kind(c.Search.VectorIndex),
		IVF: vectorindex.IVFConfig{
			Lists:        c.Search.IVF.Lists,
			Probes:       c.Search.IVF.Probes,
			Iterations:   c.Search.IVF.Iterations,
			MinTrainSize: c.Search.IVF.MinTrainSize,
		},
		Profiles: fusion.Profiles{
			fusion.QueryGeneral:   c.Search.Profiles.General,
			fusion.QueryErrorCode: c.Search.Profiles.ErrorCode,
		},
		Normalization:       fusion.Method(c.Search.Normalization),
		Temperature:         c.Search.Temperature,
		CandidateMultiplier: c.Search.CandidateMultiplier,
		EmbeddingTimeout:    c.Search.EmbeddingTimeout.Std(),
	}
}

// StageConfig converts the rerank section
func (c *Config) StageConfig() rerank.Config {
	return rerank.Config{
		Timeout:       c.Rerank.Timeout.Std(),
		MaxCandidates: c.Rerank.MaxCandidates,
		MaxDocChars:   c.Rerank.MaxDocChars,
	}
}

// CrossEncoderConfig converts the rerank section for the cross-encoder client
func (c *Config) CrossEncoderConfig() rerank.CrossEncoderConfig {
	return rerank.CrossEncoderConfig{
		Endpoint:          c.Rerank.Endpoint,
		Model:             c.Rerank.Model,
		Timeout:           c.Rerank.Timeout.Std(),
		RequestsPerSecond: c.Rerank.RequestsPerSecond,
	}
}

// HybridCacheConfig converts the cache section
func (c *Config) HybridCacheConfig() cache.Config {
	return cache.Config{
		TTL:               c.Cache.TTL.Std(),
		FuzzyThreshold:    c.Cache.FuzzyThreshold,
		SemanticThreshold: c.Cache.SemanticThreshold,
		CleanupThreshold:  c.Cache.CleanupThreshold,
		EmbeddingMemoSize: c.Cache.EmbeddingMemoSize,
		EmbeddingTimeout:  c.Search.EmbeddingTimeout.Std(),
	}
}

// Marshal renders cfg as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
