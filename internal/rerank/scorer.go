package rerank

import (
	"context"
	"unicode/utf8"

	"github.com/dshills/hybridrag/internal/keyword"
)

// Scorer assigns a relevance score to each document for query
type Scorer interface {
	// Score returns one score per document, in document order
	Score(ctx context.Context, query string, documents []string) ([]float64, error)

	// Name identifies the scorer in logs
	Name() string
}

// Lexical weights
const (
	jaccardWeight = 0.6
	tfWeight      = 0.4
	minTermLength = 3
)

// Lexical scores documents by term overlap with the query
type Lexical struct{}

// Name returns "lexical"
func (Lexical) Name() string { return "lexical" }

// Score never fails; cancellation is only checked once up front
func (l Lexical) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryFreq := termFrequency(query)
	scores := make([]float64, len(documents))
	for i, doc := range documents {
		scores[i] = lexicalScore(queryFreq, termFrequency(doc))
	}
	return scores, nil
}

// LexicalScore scores a single document against query
func LexicalScore(query, document string) float64 {
	return lexicalScore(termFrequency(query), termFrequency(document))
}

func lexicalScore(queryFreq, docFreq map[string]int) float64 {
	if len(queryFreq) == 0 || len(docFreq) == 0 {
		return 0
	}

	intersection := 0
	var tfSimilarity float64
	for term, qf := range queryFreq {
		df, ok := docFreq[term]
		if !ok {
			continue
		}
		intersection++
		tfSimilarity += float64(min(qf, df)) / float64(max(qf, df))
	}
	union := len(queryFreq) + len(docFreq) - intersection

	jaccard := float64(intersection) / float64(union)
	tfSimilarity /= float64(len(queryFreq))

	return min(jaccardWeight*jaccard+tfWeight*tfSimilarity, 1.0)
}

func termFrequency(text string) map[string]int {
	freq := make(map[string]int)
	for _, tok := range keyword.Tokenize(text) {
		if utf8.RuneCountInString(tok) < minTermLength {
			continue
		}
		freq[tok]++
	}
	return freq
}
