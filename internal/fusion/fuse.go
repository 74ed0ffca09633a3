package fusion

import (
	"fmt"
	"sort"

	"github.com/dshills/hybridrag/pkg/types"
)

// Candidate is one hit from a single retrieval path. Lists passed to Fuse
// must be ordered best first.
type Candidate struct {
	Chunk   types.Chunk
	Ordinal int // Corpus insertion order
	Score   float64
}

// Options control normalization and weighting
type Options struct {
	Weights     Weights
	Method      Method
	Temperature float64
}

// Fuse merges keyword and vector candidates into one list sorted by combined score
func Fuse(keywordHits, vectorHits []Candidate, opts Options) ([]types.ScoredResult, error) {
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}

	normKeyword, err := Normalize(scoresOf(keywordHits), opts.Method, opts.Temperature)
	if err != nil {
		return nil, err
	}
	normVector, err := Normalize(scoresOf(vectorHits), opts.Method, opts.Temperature)
	if err != nil {
		return nil, err
	}

	type fused struct {
		result  types.ScoredResult
		ordinal int
	}
	byID := make(map[string]*fused, len(keywordHits)+len(vectorHits))
	order := make([]string, 0, len(keywordHits)+len(vectorHits))

	get := func(c Candidate) *fused {
		f, ok := byID[c.Chunk.ID]
		if !ok {
			f = &fused{result: types.ScoredResult{Chunk: c.Chunk}, ordinal: c.Ordinal}
			byID[c.Chunk.ID] = f
			order = append(order, c.Chunk.ID)
		}
		return f
	}

	for i, c := range keywordHits {
		f := get(c)
		if f.result.KeywordRank != 0 {
			return nil, fmt.Errorf("duplicate keyword candidate %s", c.Chunk.ID)
		}
		f.result.KeywordScore = c.Score
		f.result.NormalizedKeywordScore = normKeyword[i]
		f.result.KeywordRank = i + 1
	}
	for i, c := range vectorHits {
		f := get(c)
		if f.result.VectorRank != 0 {
			return nil, fmt.Errorf("duplicate vector candidate %s", c.Chunk.ID)
		}
		f.result.VectorScore = c.Score
		f.result.NormalizedVectorScore = normVector[i]
		f.result.VectorRank = i + 1
	}

	all := make([]fused, 0, len(order))
	for _, id := range order {
		f := byID[id]
		r := &f.result
		r.CombinedScore = opts.Weights.Vector*r.NormalizedVectorScore + opts.Weights.Keyword*r.NormalizedKeywordScore
		r.SearchMethod = methodOf(r)
		all = append(all, *f)
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := &all[i].result, &all[j].result
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if ra, rb := rankKey(a.VectorRank), rankKey(b.VectorRank); ra != rb {
			return ra < rb
		}
		if ra, rb := rankKey(a.KeywordRank), rankKey(b.KeywordRank); ra != rb {
			return ra < rb
		}
		return all[i].ordinal < all[j].ordinal
	})

	results := make([]types.ScoredResult, len(all))
	for i := range all {
		results[i] = all[i].result
	}
	return results, nil
}

func scoresOf(cs []Candidate) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Score
	}
	return out
}

// rankKey places absent ranks after every present one
func rankKey(rank int) int {
	if rank == 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}

func methodOf(r *types.ScoredResult) types.SearchMethod {
	switch {
	case r.KeywordRank > 0 && r.VectorRank > 0:
		return types.MethodHybrid
	case r.VectorRank > 0:
		return types.MethodSemantic
	default:
		return types.MethodKeyword
	}
}
