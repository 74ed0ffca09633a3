package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/dshills/hybridrag/internal/embedder"
	"github.com/dshills/hybridrag/internal/vectorindex"
	"github.com/dshills/hybridrag/pkg/types"
)

// Defaults
const (
	DefaultTTL               = 7 * time.Minute
	DefaultFuzzyThreshold    = 0.9
	DefaultSemanticThreshold = 0.85
	DefaultCleanupThreshold  = 100
	DefaultEmbeddingMemoSize = 1000
	DefaultEmbeddingTimeout  = 5 * time.Second
)

// MatchType reports which strategy resolved a lookup
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchFuzzy    MatchType = "fuzzy"
	MatchSemantic MatchType = "semantic"
	MatchMiss     MatchType = "miss" // Only returned by Remember
)

// Embedder embeds cache keys for semantic matching.
// embedder.Embedder satisfies it.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error)
}

// Config holds cache tunables. Zero values select the defaults.
type Config struct {
	TTL               time.Duration
	FuzzyThreshold    float64
	SemanticThreshold float64
	CleanupThreshold  int
	EmbeddingMemoSize int
	EmbeddingTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.FuzzyThreshold <= 0 {
		c.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if c.SemanticThreshold <= 0 {
		c.SemanticThreshold = DefaultSemanticThreshold
	}
	if c.CleanupThreshold <= 0 {
		c.CleanupThreshold = DefaultCleanupThreshold
	}
	if c.EmbeddingMemoSize <= 0 {
		c.EmbeddingMemoSize = DefaultEmbeddingMemoSize
	}
	if c.EmbeddingTimeout <= 0 {
		c.EmbeddingTimeout = DefaultEmbeddingTimeout
	}
	return c
}

// Entry is a stored value
type Entry struct {
	Key         string
	Value       any
	Timestamp   time.Time
	OriginalKey string
	Metadata    map[string]any

	normalized string
	scope      string
}

// Result is a successful lookup
type Result struct {
	Value      any
	MatchType  MatchType
	Similarity float64 // 1 for exact matches
	Entry      Entry
}

// Counters are the lookup counters. They only grow.
type Counters struct {
	ExactHits     int64 `json:"exactHits"`
	FuzzyHits     int64 `json:"fuzzyHits"`
	SemanticHits  int64 `json:"semanticHits"`
	Misses        int64 `json:"misses"`
	TotalRequests int64 `json:"totalRequests"`
}

// Hits returns the number of resolved lookups
func (c Counters) Hits() int64 {
	return c.ExactHits + c.FuzzyHits + c.SemanticHits
}

// Stats is a snapshot of cache state
type Stats struct {
	Size              int           `json:"size"`
	TTL               time.Duration `json:"ttl"`
	FuzzyThreshold    float64       `json:"fuzzyThreshold"`
	SemanticThreshold float64       `json:"semanticThreshold"`
	SemanticEnabled   bool          `json:"semanticEnabled"`
	Counters          Counters      `json:"stats"`
	HitRate           float64       `json:"hitRate"` // Hits / TotalRequests, 0 when idle
}

// Option configures a HybridCache
type Option func(*HybridCache)

// WithEmbedder enables semantic matching
func WithEmbedder(e Embedder) Option {
	return func(c *HybridCache) { c.embedder = e }
}

// WithLogger sets the logger (default: disabled)
func WithLogger(logger zerolog.Logger) Option {
	return func(c *HybridCache) { c.logger = logger }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *HybridCache) { c.now = now }
}

// LookupOption toggles strategies for a single Get
type LookupOption func(*lookup)

type lookup struct {
	fuzzy    bool
	semantic bool
}

// WithoutFuzzy skips fuzzy matching
func WithoutFuzzy() LookupOption {
	return func(l *lookup) { l.fuzzy = false }
}

// WithoutSemantic skips semantic matching
func WithoutSemantic() LookupOption {
	return func(l *lookup) { l.semantic = false }
}

// HybridCache caches values by normalized key and context scope
type HybridCache struct {
	cfg      Config
	embedder Embedder
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	entries  map[string]*Entry
	counters Counters

	// Key embeddings by storage key
	embeddings *lru.Cache[string, []float32]
}

// New creates an empty cache
func New(cfg Config, opts ...Option) *HybridCache {
	cfg = cfg.withDefaults()
	c := &HybridCache{
		cfg:     cfg,
		logger:  zerolog.Nop(),
		now:     time.Now,
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(c)
	}

	memo, err := lru.New[string, []float32](cfg.EmbeddingMemoSize)
	if err != nil {
		memo, _ = lru.New[string, []float32](DefaultEmbeddingMemoSize)
	}
	c.embeddings = memo
	return c
}

// Set stores value under key and scope, replacing any previous entry and
// resetting its age.
func (c *HybridCache) Set(key string, value any, scope any, metadata map[string]any) {
	normalized := NormalizeKey(key)
	ctxKey := ContextKey(scope)
	storageKey := normalized + "::" + ctxKey

	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}

	c.mu.Lock()
	c.entries[storageKey] = &Entry{
		Key:         storageKey,
		Value:       value,
		Timestamp:   c.now(),
		OriginalKey: key,
		Metadata:    md,
		normalized:  normalized,
		scope:       ctxKey,
	}
	// The stored key text may differ from the one that produced the memo
	c.embeddings.Remove(storageKey)
	size := len(c.entries)
	c.mu.Unlock()

	if size%10 == 0 {
		c.logger.Debug().Int("size", size).Msg("hybrid cache size")
	}
}

// Get looks key up under scope, trying exact, fuzzy and semantic matching
// in that order. The bool is false on a miss.
func (c *HybridCache) Get(ctx context.Context, key string, scope any, opts ...LookupOption) (*Result, bool) {
	l := lookup{fuzzy: true, semantic: true}
	for _, opt := range opts {
		opt(&l)
	}

	normalized := NormalizeKey(key)
	ctxKey := ContextKey(scope)
	storageKey := normalized + "::" + ctxKey

	if c.Size() > c.cfg.CleanupThreshold {
		c.ClearExpired()
	}

	res := c.exact(storageKey)
	if res == nil && l.fuzzy {
		res = c.fuzzy(normalized, ctxKey)
	}
	if res == nil && l.semantic && c.embedder != nil {
		res = c.semantic(ctx, key, ctxKey)
	}

	c.mu.Lock()
	c.counters.TotalRequests++
	if res == nil {
		c.counters.Misses++
	} else {
		switch res.MatchType {
		case MatchExact:
			c.counters.ExactHits++
		case MatchFuzzy:
			c.counters.FuzzyHits++
		case MatchSemantic:
			c.counters.SemanticHits++
		}
	}
	c.mu.Unlock()

	return res, res != nil
}

// Remember returns the cached value for key and scope, or runs compute and
// caches its result. Errors from compute are returned and not cached.
func (c *HybridCache) Remember(ctx context.Context, key string, scope any, compute func(ctx context.Context) (any, error)) (*Result, error) {
	if res, ok := c.Get(ctx, key, scope); ok {
		return res, nil
	}

	value, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	c.Set(key, value, scope, nil)
	return &Result{Value: value, MatchType: MatchMiss}, nil
}

func (c *HybridCache) expired(e *Entry, now time.Time) bool {
	return now.Sub(e.Timestamp) > c.cfg.TTL
}

func (c *HybridCache) exact(storageKey string) *Result {
	c.mu.Lock()
	e, ok := c.entries[storageKey]
	if ok && c.expired(e, c.now()) {
		delete(c.entries, storageKey)
		c.embeddings.Remove(storageKey)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return &Result{Value: e.Value, MatchType: MatchExact, Similarity: 1, Entry: *e}
}

// better reports whether candidate beats the current best. Equal scores go
// to the lexically smaller key so results do not depend on map order.
func better(score float64, key string, bestScore float64, bestKey string) bool {
	if score != bestScore {
		return score > bestScore
	}
	return bestKey == "" || key < bestKey
}

func (c *HybridCache) fuzzy(normalized, scope string) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var best *Entry
	var bestScore float64
	for _, e := range c.entries {
		if e.scope != scope || c.expired(e, now) {
			continue
		}
		sim := DiceSimilarity(normalized, e.normalized)
		if sim <= 0 {
			continue
		}
		if best == nil || better(sim, e.Key, bestScore, best.Key) {
			best, bestScore = e, sim
		}
	}

	if best == nil {
		return nil
	}
	if bestScore < c.cfg.FuzzyThreshold {
		c.logger.Debug().
			Float64("similarity", bestScore).
			Float64("threshold", c.cfg.FuzzyThreshold).
			Msg("fuzzy candidate below threshold")
		return nil
	}
	return &Result{Value: best.Value, MatchType: MatchFuzzy, Similarity: bestScore, Entry: *best}
}

func (c *HybridCache) semantic(ctx context.Context, key, scope string) *Result {
	// Snapshot candidates so embedding calls run without the lock
	c.mu.Lock()
	now := c.now()
	candidates := make([]Entry, 0)
	for _, e := range c.entries {
		if e.scope == scope && !c.expired(e, now) {
			candidates = append(candidates, *e)
		}
	}
	c.mu.Unlock()

	if len(candidates) == 0 {
		return nil
	}

	query, err := c.embed(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Msg("semantic cache lookup skipped")
		return nil
	}

	var best *Entry
	var bestScore float64
	for i := range candidates {
		e := &candidates[i]
		vec, ok := c.embeddings.Get(e.Key)
		if !ok {
			text := e.OriginalKey
			if text == "" {
				text = e.normalized
			}
			vec, err = c.embed(ctx, text)
			if err != nil {
				c.logger.Warn().Err(err).Str("key", e.Key).Msg("failed to embed cached key")
				continue
			}
			c.memoize(e, vec)
		}

		sim := vectorindex.CosineSimilarity(query, vec)
		if sim <= 0 {
			continue
		}
		if best == nil || better(sim, e.Key, bestScore, best.Key) {
			best, bestScore = e, sim
		}
	}

	if best == nil {
		return nil
	}
	if bestScore < c.cfg.SemanticThreshold {
		c.logger.Debug().
			Float64("similarity", bestScore).
			Float64("threshold", c.cfg.SemanticThreshold).
			Msg("semantic candidate below threshold")
		return nil
	}
	return &Result{Value: best.Value, MatchType: MatchSemantic, Similarity: bestScore, Entry: *best}
}

// memoize stores the embedding of e's key unless a Set replaced or a
// deletion removed e while it was being embedded. Memo writes happen under
// c.mu so they are ordered with the removals in Set and the deletions.
func (c *HybridCache) memoize(e *Entry, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.entries[e.Key]
	if !ok || cur.OriginalKey != e.OriginalKey || !cur.Timestamp.Equal(e.Timestamp) {
		return
	}
	c.embeddings.Add(e.Key, vec)
}

func (c *HybridCache) embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.EmbeddingTimeout)
	defer cancel()

	emb, err := c.embedder.GenerateEmbedding(callCtx, embedder.EmbeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrEmbeddingFailure, err)
	}
	if emb == nil || len(emb.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty vector", types.ErrEmbeddingFailure)
	}
	return emb.Vector, nil
}

// ClearExpired removes every entry older than TTL and returns how many
// were removed.
func (c *HybridCache) ClearExpired() int {
	c.mu.Lock()
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			c.embeddings.Remove(k)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug().Int("cleared", removed).Msg("hybrid cache cleared expired entries")
	}
	return removed
}

// Clear removes every entry. Counters are kept.
func (c *HybridCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.embeddings.Purge()
	c.mu.Unlock()

	c.logger.Debug().Msg("hybrid cache cleared")
}

// Size returns the number of stored entries, including expired ones not
// yet removed.
func (c *HybridCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// has reports whether storageKey is physically present, expired or not
func (c *HybridCache) has(storageKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[storageKey]
	return ok
}

// Stats returns a snapshot of the cache configuration and counters
func (c *HybridCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:              len(c.entries),
		TTL:               c.cfg.TTL,
		FuzzyThreshold:    c.cfg.FuzzyThreshold,
		SemanticThreshold: c.cfg.SemanticThreshold,
		SemanticEnabled:   c.embedder != nil,
		Counters:          c.counters,
	}
	if s.Counters.TotalRequests > 0 {
		s.HitRate = float64(s.Counters.Hits()) / float64(s.Counters.TotalRequests)
	}
	return s
}
