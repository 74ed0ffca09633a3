package vectorindex

import (
	"context"
	"math"
	"math/rand"
	"sort"
)

// IVF defaults
const (
	DefaultIterations   = 10
	DefaultSeed         = 42
	DefaultMinTrainSize = 256
)

var (
	_ VectorIndex = (*Flat)(nil)
	_ VectorIndex = (*IVF)(nil)
)

// IVFConfig configures the inverted-file index
type IVFConfig struct {
	Lists        int   // Number of k-means lists (default: sqrt(n))
	Probes       int   // Lists scanned per query (default: Lists/4, at least 1)
	Iterations   int   // Maximum k-means iterations (default: 10)
	Seed         int64 // Seed for centroid initialization (default: 42)
	MinTrainSize int   // Below this many vectors the index scans exhaustively (default: 256)
}

// IVF is an approximate index that scans only the lists nearest to the query
type IVF struct {
	entries    []stored
	dim        int
	centroids  [][]float32 // Unit length
	lists      [][]int     // Entry positions per centroid
	probes     int
	exhaustive bool
}

// NewIVF trains centroids over entries and assigns every entry to a list
func NewIVF(entries []Entry, cfg IVFConfig) (*IVF, error) {
	s, dim, err := prepare(entries)
	if err != nil {
		return nil, err
	}

	cfg = withIVFDefaults(cfg, len(s))
	idx := &IVF{entries: s, dim: dim, probes: cfg.Probes}

	if len(s) < cfg.MinTrainSize || cfg.Lists <= 1 {
		idx.exhaustive = true
		return idx, nil
	}

	normalized := make([][]float32, len(s))
	for i := range s {
		normalized[i] = Normalize(s[i].Vector)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	idx.centroids = trainKMeans(normalized, cfg.Lists, cfg.Iterations, rng)

	idx.lists = make([][]int, len(idx.centroids))
	for i, vec := range normalized {
		c := nearestCentroid(vec, idx.centroids)
		idx.lists[c] = append(idx.lists[c], i)
	}
	if idx.probes > len(idx.centroids) {
		idx.probes = len(idx.centroids)
	}

	return idx, nil
}

func withIVFDefaults(cfg IVFConfig, n int) IVFConfig {
	if cfg.Lists <= 0 {
		cfg.Lists = int(math.Sqrt(float64(n)))
	}
	if cfg.Lists > n {
		cfg.Lists = n
	}
	if cfg.Probes <= 0 {
		cfg.Probes = cfg.Lists / 4
	}
	if cfg.Probes < 1 {
		cfg.Probes = 1
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultSeed
	}
	if cfg.MinTrainSize <= 0 {
		cfg.MinTrainSize = DefaultMinTrainSize
	}
	return cfg
}

// trainKMeans runs spherical k-means over unit vectors
func trainKMeans(vectors [][]float32, k, maxIter int, rng *rand.Rand) [][]float32 {
	dim := len(vectors[0])

	centroids := make([][]float32, k)
	for i, pick := range rng.Perm(len(vectors))[:k] {
		centroids[i] = append([]float32(nil), vectors[pick]...)
	}

	assign := make([]int, len(vectors))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, vec := range vectors {
			best := nearestCentroid(vec, centroids)
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, vec := range vectors {
			c := assign[i]
			counts[c]++
			for d, x := range vec {
				sums[c][d] += float64(x)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				centroids[c] = append([]float32(nil), vectors[rng.Intn(len(vectors))]...)
				continue
			}
			mean := make([]float32, dim)
			for d := range mean {
				mean[d] = float32(sums[c][d] / float64(counts[c]))
			}
			centroids[c] = Normalize(mean)
		}
	}

	return centroids
}

// nearestCentroid returns the centroid with the highest dot product against a unit vector
func nearestCentroid(vec []float32, centroids [][]float32) int {
	best := 0
	bestScore := math.Inf(-1)
	for i, c := range centroids {
		score := dot(vec, c)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return best
}

// Search probes the closest lists, widening until at least limit candidates are found
func (ivf *IVF) Search(ctx context.Context, query []float32, limit int) ([]Hit, error) {
	if ivf == nil || len(ivf.entries) == 0 || limit <= 0 {
		return []Hit{}, nil
	}
	if err := checkQuery(query, ivf.dim); err != nil {
		return nil, err
	}

	queryNorm := Norm(query)
	if ivf.exhaustive || queryNorm == 0 {
		return scan(ctx, ivf.entries, query, queryNorm, limit)
	}

	order := ivf.rankLists(query)
	candidates := make([]stored, 0, limit*2)
	for probed, list := range order {
		if probed >= ivf.probes && len(candidates) >= limit {
			break
		}
		for _, pos := range ivf.lists[list] {
			candidates = append(candidates, ivf.entries[pos])
		}
	}

	return scan(ctx, candidates, query, queryNorm, limit)
}

// rankLists orders list ids by centroid similarity to query
func (ivf *IVF) rankLists(query []float32) []int {
	scores := make([]float64, len(ivf.centroids))
	order := make([]int, len(ivf.centroids))
	for i, c := range ivf.centroids {
		scores[i] = dot(query, c)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}

// Len returns the number of stored vectors
func (ivf *IVF) Len() int {
	if ivf == nil {
		return 0
	}
	return len(ivf.entries)
}

// Dimension returns the vector dimension
func (ivf *IVF) Dimension() int {
	if ivf == nil {
		return 0
	}
	return ivf.dim
}

// Lists returns the number of trained lists, 0 when the index scans exhaustively
func (ivf *IVF) Lists() int {
	if ivf == nil || ivf.exhaustive {
		return 0
	}
	return len(ivf.centroids)
}
