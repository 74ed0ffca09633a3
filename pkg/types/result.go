package types

// SearchMethod identifies which retrieval paths produced a result set
type SearchMethod string

const (
	MethodKeyword  SearchMethod = "keyword"  // BM25 only
	MethodSemantic SearchMethod = "semantic" // Vector similarity only
	MethodHybrid   SearchMethod = "hybrid"   // Weighted fusion of both
)

// ScoredResult is a chunk with the scores of every retrieval stage
type ScoredResult struct {
	Chunk Chunk

	// Raw scores, zero when the path did not return the chunk
	KeywordScore float64
	VectorScore  float64

	// Scores after normalization
	NormalizedKeywordScore float64
	NormalizedVectorScore  float64

	// alpha*NormalizedVectorScore + beta*NormalizedKeywordScore
	CombinedScore float64

	RerankScore *float64 // Nullable - set only when re-ranking ran

	// 1-based rank in each retrieval path, 0 when absent
	KeywordRank int
	VectorRank  int

	SearchMethod SearchMethod
}

// ResultView is the flattened result handed to prompt builders
type ResultView struct {
	ID            string       `json:"id"`
	Content       string       `json:"content"`
	Source        string       `json:"source"`
	CombinedScore float64      `json:"combinedScore"`
	SemanticScore float64      `json:"semanticScore"`
	KeywordScore  float64      `json:"keywordScore"`
	RerankScore   *float64     `json:"rerankScore,omitempty"`
	SearchMethod  SearchMethod `json:"searchMethod"`
}

// View flattens the result
func (r *ScoredResult) View() ResultView {
	return ResultView{
		ID:            r.Chunk.ID,
		Content:       r.Chunk.Content,
		Source:        r.Chunk.Metadata.Source,
		CombinedScore: r.CombinedScore,
		SemanticScore: r.NormalizedVectorScore,
		KeywordScore:  r.NormalizedKeywordScore,
		RerankScore:   r.RerankScore,
		SearchMethod:  r.SearchMethod,
	}
}

// Views flattens a result list
func Views(results []ScoredResult) []ResultView {
	views := make([]ResultView, len(results))
	for i := range results {
		views[i] = results[i].View()
	}
	return views
}

// Float64Ptr returns a pointer to v
func Float64Ptr(v float64) *float64 {
	return &v
}
