package keyword

import (
	"math"
	"sort"
)

// Hit is a chunk matched by keyword search
type Hit struct {
	Ordinal int
	ChunkID string
	Score   float64
}

// Search ranks chunks against query with BM25 and returns at most limit hits,
// most relevant first
func (idx *Index) Search(query string, limit int) []Hit {
	if idx.Len() == 0 || limit <= 0 {
		return []Hit{}
	}

	terms := UniqueTerms(query)
	if len(terms) == 0 {
		return []Hit{}
	}

	n := float64(len(idx.chunks))
	avgdl := idx.AvgDocLength()
	if avgdl == 0 {
		avgdl = 1
	}

	scores := make(map[int]float64)
	for _, term := range terms {
		list := idx.postings[term]
		if len(list) == 0 {
			continue
		}
		df := float64(len(list))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for _, p := range list {
			tf := float64(p.tf)
			norm := 1 - idx.b + idx.b*float64(idx.docLengths[p.ordinal])/avgdl
			scores[p.ordinal] += idf * tf * (idx.k1 + 1) / (tf + idx.k1*norm)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for ordinal, score := range scores {
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{
			Ordinal: ordinal,
			ChunkID: idx.chunks[ordinal].ID,
			Score:   score,
		})
	}

	sortHits(hits)

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// sortHits orders by score descending, then by insertion order
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
}
