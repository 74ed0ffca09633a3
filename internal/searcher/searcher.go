package searcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hybridrag/internal/embedder"
	"github.com/dshills/hybridrag/internal/fusion"
	"github.com/dshills/hybridrag/internal/keyword"
	"github.com/dshills/hybridrag/internal/rerank"
	"github.com/dshills/hybridrag/internal/vectorindex"
	"github.com/dshills/hybridrag/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	ModeHybrid   SearchMode = "hybrid"   // Vector + BM25 with weighted fusion
	ModeSemantic SearchMode = "semantic" // Vector similarity only
	ModeKeyword  SearchMode = "keyword"  // BM25 only
)

// Request defaults and bounds
const (
	DefaultLimit               = 10
	MaxLimit                   = 100
	DefaultCandidateMultiplier = 2
	DefaultEmbeddingTimeout    = 5 * time.Second
)

// ErrUnknownMode is returned for unrecognized search modes
var ErrUnknownMode = errors.New("unknown search mode")

// ParseMode parses a mode name. The empty string selects hybrid; "vector"
// and "faiss" are aliases of semantic.
func ParseMode(s string) (SearchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeHybrid):
		return ModeHybrid, nil
	case string(ModeSemantic), "vector", "faiss":
		return ModeSemantic, nil
	case string(ModeKeyword), "bm25":
		return ModeKeyword, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// QueryEmbedder embeds query text
type QueryEmbedder interface {
	GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error)
}

// Config configures a Searcher
type Config struct {
	VectorIndex         vectorindex.Kind // Default: flat
	IVF                 vectorindex.IVFConfig
	Profiles            fusion.Profiles // Default: fusion.DefaultProfiles()
	Normalization       fusion.Method   // Default: minmax
	Temperature         float64         // Softmax temperature (default: 2.0)
	CandidateMultiplier int             // Hits fetched per path = limit * multiplier (default: 2)
	EmbeddingTimeout    time.Duration   // Query embedding deadline (default: 5s)
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query          string
	Limit          int             // Default 10, capped at 100
	Mode           SearchMode      // Default hybrid
	Weights        *fusion.Weights // Nil: weights of the query's profile
	Normalization  fusion.Method   // Empty: Config.Normalization
	Temperature    float64         // Zero: Config.Temperature
	Rerank         bool
	QueryEmbedding []float32 // Skips the embedding call when set
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []types.ScoredResult
	TotalResults  int
	Mode          SearchMode         // As requested
	SearchMethod  types.SearchMethod // Paths that actually ran
	QueryKind     fusion.QueryKind
	Weights       fusion.Weights // Weights applied in fusion
	Normalization fusion.Method
	Reranked      bool
	Degraded      bool // A retrieval path or the re-ranker was unavailable
	Warnings      []string
	KeywordHits   int
	VectorHits    int
	Duration      time.Duration
}

// IndexStats describes the active snapshot
type IndexStats struct {
	Chunks      int
	Vectors     int
	Dimension   int
	VectorIndex vectorindex.Kind
	BuiltAt     time.Time
}

// snapshot is an immutable set of indexes over one corpus
type snapshot struct {
	keyword *keyword.Index
	vectors vectorindex.VectorIndex // Nil when no chunk has an embedding
	builtAt time.Time
}

// Searcher runs hybrid retrieval over the current snapshot. Search may be
// called concurrently with itself and with Rebuild.
type Searcher struct {
	embedder QueryEmbedder
	reranker *rerank.Stage
	cfg      Config
	logger   zerolog.Logger
	snap     atomic.Pointer[snapshot]

	rerankWarnOnce sync.Once
}

// Option configures a Searcher
type Option func(*Searcher)

// WithLogger sets the logger (default: disabled)
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Searcher) { s.logger = logger }
}

// WithReranker sets the stage used when a request asks for re-ranking
func WithReranker(stage *rerank.Stage) Option {
	return func(s *Searcher) { s.reranker = stage }
}

// NewSearcher creates a Searcher with no index. A nil embedder limits
// searches to keyword retrieval unless requests carry an embedding.
func NewSearcher(emb QueryEmbedder, cfg Config, opts ...Option) (*Searcher, error) {
	if cfg.VectorIndex == "" {
		cfg.VectorIndex = vectorindex.KindFlat
	}
	if cfg.Profiles == nil {
		cfg.Profiles = fusion.DefaultProfiles()
	}
	if err := cfg.Profiles.Validate(); err != nil {
		return nil, err
	}
	method, err := fusion.ParseMethod(string(cfg.Normalization))
	if err != nil {
		return nil, err
	}
	cfg.Normalization = method
	if cfg.Temperature <= 0 {
		cfg.Temperature = fusion.DefaultTemperature
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if cfg.EmbeddingTimeout <= 0 {
		cfg.EmbeddingTimeout = DefaultEmbeddingTimeout
	}

	s := &Searcher{
		embedder: emb,
		cfg:      cfg,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Rebuild indexes chunks and the vectors keyed by chunk ID, then swaps the
// new indexes in. Chunks without a vector are searchable by keyword only.
func (s *Searcher) Rebuild(chunks []types.Chunk, vectors map[string][]float32) error {
	snap := &snapshot{
		keyword: keyword.NewIndex(chunks),
		builtAt: time.Now(),
	}

	entries := make([]vectorindex.Entry, 0, len(vectors))
	for i := range chunks {
		if v, ok := vectors[chunks[i].ID]; ok {
			entries = append(entries, vectorindex.Entry{Ordinal: i, ChunkID: chunks[i].ID, Vector: v})
		}
	}
	if len(entries) > 0 {
		idx, err := vectorindex.New(s.cfg.VectorIndex, entries, s.cfg.IVF)
		if err != nil {
			return fmt.Errorf("failed to build vector index: %w", err)
		}
		snap.vectors = idx
	}

	s.snap.Store(snap)
	s.logger.Info().
		Int("chunks", len(chunks)).
		Int("vectors", len(entries)).
		Str("vector_index", string(s.cfg.VectorIndex)).
		Msg("search index rebuilt")
	return nil
}

// Stats describes the active snapshot; the zero value before any Rebuild
func (s *Searcher) Stats() IndexStats {
	snap := s.snap.Load()
	if snap == nil {
		return IndexStats{}
	}
	stats := IndexStats{
		Chunks:  snap.keyword.Len(),
		BuiltAt: snap.builtAt,
	}
	if snap.vectors != nil {
		stats.Vectors = snap.vectors.Len()
		stats.Dimension = snap.vectors.Dimension()
		stats.VectorIndex = s.cfg.VectorIndex
	}
	return stats
}

// validateRequest fills request defaults and rejects invalid parameters
func (s *Searcher) validateRequest(req *SearchRequest) error {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return err
	}
	req.Mode = mode

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	if req.Weights != nil {
		if err := req.Weights.Validate(); err != nil {
			return err
		}
	}

	if req.Normalization == "" {
		req.Normalization = s.cfg.Normalization
	}
	if req.Normalization, err = fusion.ParseMethod(string(req.Normalization)); err != nil {
		return err
	}

	if req.Temperature < 0 {
		return fmt.Errorf("temperature must be positive, got %g", req.Temperature)
	}
	if req.Temperature == 0 {
		req.Temperature = s.cfg.Temperature
	}
	return nil
}

// Search retrieves, fuses and optionally re-ranks chunks for a query.
// Unavailable retrieval paths degrade the response instead of failing it;
// errors are returned only for invalid requests and cancellation.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	kind := fusion.ClassifyQuery(req.Query)
	resp := &SearchResponse{
		Results:       []types.ScoredResult{},
		Mode:          req.Mode,
		QueryKind:     kind,
		Weights:       s.cfg.Profiles.WeightsFor(kind),
		Normalization: req.Normalization,
	}
	if req.Weights != nil {
		resp.Weights = *req.Weights
	}
	defer func() { resp.Duration = time.Since(startTime) }()

	if strings.TrimSpace(req.Query) == "" {
		resp.SearchMethod = methodFor(req.Mode)
		return resp, nil
	}

	snap := s.snap.Load()
	if snap == nil || snap.keyword.Len() == 0 {
		s.degrade(resp, types.ErrIndexUnavailable)
		resp.SearchMethod = methodFor(req.Mode)
		return resp, nil
	}

	keywordHits, vectorHits, err := s.retrieve(ctx, snap, &req, resp)
	if err != nil {
		return nil, err
	}
	resp.KeywordHits = len(keywordHits)
	resp.VectorHits = len(vectorHits)

	// Single-path results keep their normalized score as the combined score
	weights := resp.Weights
	switch {
	case vectorHits == nil:
		weights = fusion.Weights{Vector: 0, Keyword: 1}
		resp.SearchMethod = types.MethodKeyword
	case keywordHits == nil:
		weights = fusion.Weights{Vector: 1, Keyword: 0}
		resp.SearchMethod = types.MethodSemantic
	default:
		resp.SearchMethod = types.MethodHybrid
	}
	resp.Weights = weights

	fused, err := fusion.Fuse(keywordHits, vectorHits, fusion.Options{
		Weights:     weights,
		Method:      req.Normalization,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	if req.Rerank {
		if s.reranker.Available() {
			fused = s.reranker.Rerank(ctx, req.Query, fused, req.Limit)
			resp.Reranked = true
		} else {
			resp.Degraded = true
			resp.Warnings = append(resp.Warnings, types.ErrRerankUnavailable.Error())
			s.rerankWarnOnce.Do(func() {
				s.logger.Warn().Err(types.ErrRerankUnavailable).Msg("re-ranking requested but no re-ranker is configured")
			})
		}
	}
	if len(fused) > req.Limit {
		fused = fused[:req.Limit]
	}

	resp.Results = fused
	resp.TotalResults = len(fused)
	return resp, nil
}

// retrieve runs the retrieval paths for the request mode. A nil slice means
// the path did not run; an empty one means it ran and found nothing.
func (s *Searcher) retrieve(ctx context.Context, snap *snapshot, req *SearchRequest,
	resp *SearchResponse) ([]fusion.Candidate, []fusion.Candidate, error) {

	depth := req.Limit * s.cfg.CandidateMultiplier
	wantKeyword := req.Mode != ModeSemantic
	wantVector := req.Mode != ModeKeyword

	if wantVector && snap.vectors == nil {
		s.degrade(resp, fmt.Errorf("%w: no embeddings indexed", types.ErrIndexUnavailable))
		wantVector = false
	}

	var (
		keywordHits, vectorHits []fusion.Candidate
		vectorErr               error
	)

	g, gctx := errgroup.WithContext(ctx)
	if wantKeyword {
		g.Go(func() error {
			keywordHits = keywordCandidates(snap.keyword, req.Query, depth)
			return nil
		})
	}
	if wantVector {
		g.Go(func() error {
			vectorHits, vectorErr = s.vectorCandidates(gctx, snap, req, depth)
			if vectorErr != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if vectorErr != nil {
		s.degrade(resp, vectorErr)
		vectorHits = nil
		wantVector = false
	}

	// Semantic requests fall back to keyword retrieval
	if !wantVector && !wantKeyword {
		keywordHits = keywordCandidates(snap.keyword, req.Query, depth)
	}
	return keywordHits, vectorHits, nil
}

func keywordCandidates(idx *keyword.Index, query string, depth int) []fusion.Candidate {
	hits := idx.Search(query, depth)
	out := make([]fusion.Candidate, 0, len(hits))
	for _, h := range hits {
		chunk, ok := idx.Chunk(h.Ordinal)
		if !ok {
			continue
		}
		out = append(out, fusion.Candidate{Chunk: chunk, Ordinal: h.Ordinal, Score: h.Score})
	}
	return out
}

// vectorCandidates embeds the query when needed and searches the vector
// index. Failures wrap types.ErrEmbeddingFailure or the index error.
func (s *Searcher) vectorCandidates(ctx context.Context, snap *snapshot, req *SearchRequest,
	depth int) ([]fusion.Candidate, error) {

	query := req.QueryEmbedding
	if len(query) == 0 {
		if s.embedder == nil {
			return nil, fmt.Errorf("%w: no embedder configured", types.ErrEmbeddingFailure)
		}
		ectx, cancel := context.WithTimeout(ctx, s.cfg.EmbeddingTimeout)
		defer cancel()

		emb, err := s.embedder.GenerateEmbedding(ectx, embedder.EmbeddingRequest{Text: req.Query})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrEmbeddingFailure, err)
		}
		if emb == nil || len(emb.Vector) == 0 {
			return nil, fmt.Errorf("%w: empty embedding", types.ErrEmbeddingFailure)
		}
		query = emb.Vector
	}

	hits, err := snap.vectors.Search(ctx, query, depth)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	out := make([]fusion.Candidate, 0, len(hits))
	for _, h := range hits {
		chunk, ok := snap.keyword.Chunk(h.Ordinal)
		if !ok {
			continue
		}
		out = append(out, fusion.Candidate{Chunk: chunk, Ordinal: h.Ordinal, Score: h.Similarity})
	}
	return out, nil
}

// degrade records a recovered failure on the response
func (s *Searcher) degrade(resp *SearchResponse, err error) {
	resp.Degraded = true
	resp.Warnings = append(resp.Warnings, err.Error())
	s.logger.Warn().Err(err).Msg("search degraded")
}

func methodFor(mode SearchMode) types.SearchMethod {
	switch mode {
	case ModeKeyword:
		return types.MethodKeyword
	case ModeSemantic:
		return types.MethodSemantic
	default:
		return types.MethodHybrid
	}
}
