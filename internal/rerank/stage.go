package rerank

import (
	"context"
	"crypto/sha256"
	"errors"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/dshills/hybridrag/pkg/types"
)

// Stage defaults
const (
	DefaultTimeout       = 15 * time.Second
	DefaultMaxCandidates = 50
	DefaultMaxDocChars   = 512
	DefaultMemoSize      = 100
)

var errScoreCount = errors.New("scorer returned wrong number of scores")

// Config configures a Stage
type Config struct {
	Timeout       time.Duration // Per-call scorer deadline (default: 15s)
	MaxCandidates int           // Results scored per call (default: 50)
	MaxDocChars   int           // Document prefix sent to the scorer (default: 512)
	MemoSize      int           // Memoized orderings, negative disables (default: 100)
	Logger        *zerolog.Logger
}

// Stage applies a Scorer to fused results
type Stage struct {
	scorer   Scorer
	fallback Scorer
	cfg      Config
	logger   zerolog.Logger
	memo     *lru.Cache[[32]byte, []float64]

	unavailableOnce sync.Once
}

// NewStage creates a re-rank stage. A nil scorer makes the stage an identity.
func NewStage(scorer Scorer, cfg Config) *Stage {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	if cfg.MaxDocChars <= 0 {
		cfg.MaxDocChars = DefaultMaxDocChars
	}
	if cfg.MemoSize == 0 {
		cfg.MemoSize = DefaultMemoSize
	}

	s := &Stage{
		scorer:   scorer,
		fallback: Lexical{},
		cfg:      cfg,
		logger:   zerolog.Nop(),
	}
	if cfg.Logger != nil {
		s.logger = *cfg.Logger
	}
	if cfg.MemoSize > 0 {
		memo, err := lru.New[[32]byte, []float64](cfg.MemoSize)
		if err == nil {
			s.memo = memo
		}
	}
	return s
}

// Available reports whether a scorer is configured
func (s *Stage) Available() bool {
	return s != nil && s.scorer != nil
}

// Rerank reorders results by relevance to query and returns at most topK of
// them, each carrying a RerankScore. Only the first MaxCandidates results are
// scored and returned. A topK <= 0 keeps every scored result. When no scorer
// succeeds the fused order is returned unscored. The input slice is not
// modified.
func (s *Stage) Rerank(ctx context.Context, query string, results []types.ScoredResult, topK int) []types.ScoredResult {
	if topK <= 0 || topK > len(results) {
		topK = len(results)
	}
	if len(results) == 0 {
		return []types.ScoredResult{}
	}

	if !s.Available() {
		if s != nil {
			s.unavailableOnce.Do(func() {
				s.logger.Warn().Err(types.ErrRerankUnavailable).Msg("re-ranking disabled, returning fused order")
			})
		}
		return copyResults(results[:topK])
	}

	// Only scored candidates are returned, so the output never exceeds MaxCandidates
	n := min(len(results), s.cfg.MaxCandidates)
	candidates := copyResults(results[:n])

	scores := s.score(ctx, query, candidates)
	if scores == nil {
		return copyResults(results[:topK])
	}

	for i := range candidates {
		candidates[i].RerankScore = types.Float64Ptr(scores[i])
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return *candidates[i].RerankScore > *candidates[j].RerankScore
	})

	return candidates[:min(topK, n)]
}

// score returns one score per candidate or nil when no scorer succeeded
func (s *Stage) score(ctx context.Context, query string, candidates []types.ScoredResult) []float64 {
	key := memoKey(query, candidates)
	if s.memo != nil {
		if cached, ok := s.memo.Get(key); ok {
			return cached
		}
	}

	docs := make([]string, len(candidates))
	for i := range candidates {
		docs[i] = truncateRunes(candidates[i].Chunk.Content, s.cfg.MaxDocChars)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	scores, err := s.scorer.Score(callCtx, query, docs)
	if err == nil && len(scores) != len(docs) {
		err = errScoreCount
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("scorer", s.scorer.Name()).Msg("re-ranker failed, using lexical fallback")
		if s.scorer.Name() == s.fallback.Name() {
			return nil
		}
		// Score full content so the fallback is not bound by the model's input window
		for i := range candidates {
			docs[i] = candidates[i].Chunk.Content
		}
		scores, err = s.fallback.Score(ctx, query, docs)
		if err != nil {
			s.logger.Warn().Err(err).Msg("lexical fallback failed, returning fused order")
			return nil
		}
		return scores
	}

	if s.memo != nil {
		s.memo.Add(key, scores)
	}
	return scores
}

func memoKey(query string, candidates []types.ScoredResult) [32]byte {
	h := sha256.New()
	h.Write([]byte(query))
	for i := range candidates {
		h.Write([]byte{0})
		h.Write([]byte(candidates[i].Chunk.ID))
	}
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

func truncateRunes(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	count := 0
	for i := range s {
		if count == maxChars {
			return s[:i]
		}
		count++
	}
	return s
}

func copyResults(in []types.ScoredResult) []types.ScoredResult {
	out := make([]types.ScoredResult, len(in))
	copy(out, in)
	return out
}
