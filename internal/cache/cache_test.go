package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridrag/internal/embedder"
)

// mockEmbedder implements Embedder for testing
type mockEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
	calls     atomic.Int32
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.calls.Add(1)
	vec, err := m.embedFunc(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	return &embedder.Embedding{Vector: vec, Dimension: len(vec), Provider: "mock"}, nil
}

// vectors maps known texts to fixed vectors; anything else is orthogonal
func vectors(known map[string][]float32) *mockEmbedder {
	return &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		if v, ok := known[text]; ok {
			return v, nil
		}
		return []float32{0, 0, 1}, nil
	}}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"What is Stripe's fee for $1000?", "what is stripes fee for 1000"},
		{"  Hello   World  ", "hello world"},
		{"tabs\tand\nnewlines", "tabs and newlines"},
		{"card_declined!!", "card_declined"},
		{"fee - 1000", "fee 1000"},
		{"???", ""},
		{"", ""},
		{"Café Ünïcode", "café ünïcode"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.in))
		})
	}
}

type stringerScope struct{}

func (stringerScope) String() string { return "custom" }

func TestContextKey(t *testing.T) {
	assert.Equal(t, "all", ContextKey(nil))
	assert.Equal(t, "user-42", ContextKey("user-42"))
	assert.Equal(t, "a,b,c", ContextKey([]string{"c", "a", "b"}))
	assert.Equal(t, "", ContextKey([]string{}))
	assert.Equal(t, "1,x", ContextKey([]any{"x", 1}))
	assert.Equal(t, "custom", ContextKey(stringerScope{}))
	assert.Equal(t, `{"a":1,"b":2}`, ContextKey(map[string]any{"b": 2, "a": 1}))
	assert.Equal(t, "42", ContextKey(42))

	// Sorting must not mutate the caller's slice
	in := []string{"z", "a"}
	ContextKey(in)
	assert.Equal(t, []string{"z", "a"}, in)

	assert.Equal(t, "hello world::all", Key("Hello, World!", nil))
	assert.Equal(t, Key("q", []string{"b", "a"}), Key("q", []string{"a", "b"}))
}

func TestDiceSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "refund policy", "refund policy", 1},
		{"whitespace ignored", "refund policy", "refundpolicy", 1},
		{"disjoint", "abc", "xyz", 0},
		{"single char", "a", "b", 0},
		{"empty", "", "abc", 0},
		{"both empty", "", "", 1},
		{"night nacht", "night", "nacht", 0.25},
		{"repeated bigrams", "aaaa", "aa", 2.0 / 4.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DiceSimilarity(tt.a, tt.b), 1e-12)
			assert.InDelta(t, tt.want, DiceSimilarity(tt.b, tt.a), 1e-12)
		})
	}

	sim := DiceSimilarity(NormalizeKey("What is Stripe's fee for $1000?"), NormalizeKey("What is Stripe fee for $1000?"))
	assert.InDelta(t, 40.0/43.0, sim, 1e-12)
	assert.InDelta(t, 0.93, sim, 0.005)
}

func TestRoundTrip(t *testing.T) {
	c := New(Config{})
	c.Set("How do refunds work?", "answer", nil, map[string]any{"latency_ms": 120})

	res, ok := c.Get(context.Background(), "How do refunds work?", nil)
	require.True(t, ok)
	assert.Equal(t, "answer", res.Value)
	assert.Equal(t, MatchExact, res.MatchType)
	assert.Equal(t, 1.0, res.Similarity)
	assert.Equal(t, "How do refunds work?", res.Entry.OriginalKey)
	assert.Equal(t, 120, res.Entry.Metadata["latency_ms"])

	// Normalization makes case and punctuation irrelevant
	res, ok = c.Get(context.Background(), "how do REFUNDS work", nil)
	require.True(t, ok)
	assert.Equal(t, MatchExact, res.MatchType)
}

func TestSetOverwrites(t *testing.T) {
	clock := newFakeClock()
	c := New(Config{TTL: time.Minute}, WithClock(clock.Now))

	c.Set("q", "v1", nil, nil)
	clock.Advance(50 * time.Second)
	c.Set("q", "v2", nil, nil)
	clock.Advance(50 * time.Second)

	res, ok := c.Get(context.Background(), "q", nil)
	require.True(t, ok)
	assert.Equal(t, "v2", res.Value)
	assert.Equal(t, 1, c.Size())
}

func TestTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(Config{TTL: 7 * time.Minute}, WithClock(clock.Now))

	c.Set("payout schedule", "v", nil, nil)

	clock.Advance(7 * time.Minute)
	_, ok := c.Get(context.Background(), "payout schedule", nil)
	assert.True(t, ok, "entry exactly at TTL is still valid")

	clock.Advance(time.Millisecond)
	res, ok := c.Get(context.Background(), "payout schedule", nil)
	assert.False(t, ok)
	assert.Nil(t, res)
	assert.False(t, c.has(Key("payout schedule", nil)), "expired entry removed")
	assert.Equal(t, 0, c.Size())

	// Expired entries do not serve fuzzy matches either
	c.Set("payout schedule", "v", nil, nil)
	clock.Advance(8 * time.Minute)
	_, ok = c.Get(context.Background(), "payout schedules", nil)
	assert.False(t, ok)
}

func TestFuzzyMatch(t *testing.T) {
	c := New(Config{})
	c.Set("What is Stripe's fee for $1000?", "2.9% + 30c", nil, nil)

	res, ok := c.Get(context.Background(), "What is Stripe fee for $1000?", nil)
	require.True(t, ok)
	assert.Equal(t, MatchFuzzy, res.MatchType)
	assert.Equal(t, "2.9% + 30c", res.Value)
	assert.InDelta(t, 40.0/43.0, res.Similarity, 1e-12)

	_, ok = c.Get(context.Background(), "What is Stripe fee for $1000?", nil, WithoutFuzzy())
	assert.False(t, ok)
}

func TestFuzzyThresholdBoundary(t *testing.T) {
	stored := "What is Stripe's fee for $1000?"
	query := "What is Stripe fee for $1000?"
	sim := DiceSimilarity(NormalizeKey(stored), NormalizeKey(query))

	atThreshold := New(Config{FuzzyThreshold: sim})
	atThreshold.Set(stored, "v", nil, nil)
	res, ok := atThreshold.Get(context.Background(), query, nil)
	require.True(t, ok)
	assert.Equal(t, MatchFuzzy, res.MatchType)

	above := New(Config{FuzzyThreshold: sim + 1e-9})
	above.Set(stored, "v", nil, nil)
	_, ok = above.Get(context.Background(), query, nil)
	assert.False(t, ok)
}

func TestFuzzyPicksBestCandidate(t *testing.T) {
	c := New(Config{FuzzyThreshold: 0.5})
	c.Set("how do i issue a refund", "refund", nil, nil)
	c.Set("how do i issue a refund today", "refund-today", nil, nil)
	c.Set("what is a payout", "payout", nil, nil)

	res, ok := c.Get(context.Background(), "how do i issue refund", nil)
	require.True(t, ok)
	assert.Equal(t, "refund", res.Value)
}

func TestContextIsolation(t *testing.T) {
	c := New(Config{}, WithEmbedder(vectors(nil)))
	c.Set("list my payments", "v1", []string{"tool:payments"}, nil)
	c.Set("list my payments", "v2", []string{"tool:refunds"}, nil)

	res, ok := c.Get(context.Background(), "list my payments", []string{"tool:payments"})
	require.True(t, ok)
	assert.Equal(t, "v1", res.Value)

	res, ok = c.Get(context.Background(), "list my payments", []string{"tool:refunds"})
	require.True(t, ok)
	assert.Equal(t, "v2", res.Value)

	// Near-duplicates never cross scopes
	res, ok = c.Get(context.Background(), "list my payment", []string{"tool:refunds"})
	require.True(t, ok)
	assert.Equal(t, "v2", res.Value)

	_, ok = c.Get(context.Background(), "list my payments", nil)
	assert.False(t, ok)
	_, ok = c.Get(context.Background(), "list my payments", "user-7")
	assert.False(t, ok)
}

func TestSemanticMatch(t *testing.T) {
	emb := vectors(map[string][]float32{
		"How can I get my money back?": {1, 0.05, 0},
		"refund process":               {1, 0, 0},
	})
	c := New(Config{}, WithEmbedder(emb))
	c.Set("refund process", "see refund docs", nil, nil)

	res, ok := c.Get(context.Background(), "How can I get my money back?", nil)
	require.True(t, ok)
	assert.Equal(t, MatchSemantic, res.MatchType)
	assert.Equal(t, "see refund docs", res.Value)
	assert.Greater(t, res.Similarity, 0.85)

	// Cached key embedding is memoized: only the query is embedded again
	calls := emb.calls.Load()
	_, ok = c.Get(context.Background(), "How can I get my money back?", nil)
	require.True(t, ok)
	assert.Equal(t, calls+1, emb.calls.Load())

	_, ok = c.Get(context.Background(), "How can I get my money back?", nil, WithoutSemantic())
	assert.False(t, ok)
}

func TestSemanticMemoSkipsReplacedEntry(t *testing.T) {
	var (
		c        *HybridCache
		replaced atomic.Bool
		mu       sync.Mutex
		embedded []string
	)
	emb := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		mu.Lock()
		embedded = append(embedded, text)
		mu.Unlock()
		// Overwrite the entry while its old key text is being embedded
		if text == "refund process" && replaced.CompareAndSwap(false, true) {
			c.Set("Refund  process", "new docs", nil, nil)
		}
		return []float32{1, 0, 0}, nil
	}}
	c = New(Config{}, WithEmbedder(emb))
	c.Set("refund process", "old docs", nil, nil)

	_, ok := c.Get(context.Background(), "How can I get my money back?", nil)
	require.True(t, ok)
	require.True(t, replaced.Load())

	_, memoized := c.embeddings.Get(Key("refund process", nil))
	assert.False(t, memoized, "embedding of the replaced key text must not be memoized")

	res, ok := c.Get(context.Background(), "How can I get my money back?", nil)
	require.True(t, ok)
	assert.Equal(t, "new docs", res.Value)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, embedded, "Refund  process")
}

func TestSemanticBelowThreshold(t *testing.T) {
	emb := vectors(map[string][]float32{
		"pricing":        {1, 1, 0},
		"refund process": {1, 0, 0},
	})
	c := New(Config{}, WithEmbedder(emb))
	c.Set("refund process", "v", nil, nil)

	_, ok := c.Get(context.Background(), "pricing", nil)
	assert.False(t, ok)
}

func TestSemanticDisabledWithoutEmbedder(t *testing.T) {
	c := New(Config{})
	c.Set("refund process", "v", nil, nil)
	_, ok := c.Get(context.Background(), "How can I get my money back?", nil)
	assert.False(t, ok)
	assert.False(t, c.Stats().SemanticEnabled)
}

func TestEmbeddingFailureDegrades(t *testing.T) {
	failing := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("provider down")
	}}
	c := New(Config{}, WithEmbedder(failing))
	c.Set("refund process", "v", nil, nil)

	var res *Result
	var ok bool
	assert.NotPanics(t, func() {
		res, ok = c.Get(context.Background(), "How can I get my money back?", nil)
	})
	assert.False(t, ok)
	assert.Nil(t, res)

	// Exact lookups are unaffected
	_, ok = c.Get(context.Background(), "refund process", nil)
	assert.True(t, ok)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Counters.Misses)
	assert.Equal(t, int64(2), s.Counters.TotalRequests)
}

func TestCachedKeyEmbeddingFailureSkipsEntry(t *testing.T) {
	emb := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		switch text {
		case "broken entry":
			return nil, errors.New("bad input")
		case "refund process", "money back":
			return []float32{1, 0}, nil
		}
		return []float32{0, 1}, nil
	}}
	c := New(Config{}, WithEmbedder(emb))
	c.Set("broken entry", "broken", nil, nil)
	c.Set("refund process", "good", nil, nil)

	res, ok := c.Get(context.Background(), "money back", nil)
	require.True(t, ok)
	assert.Equal(t, "good", res.Value)
}

func TestEmbeddingTimeout(t *testing.T) {
	slow := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c := New(Config{EmbeddingTimeout: 10 * time.Millisecond}, WithEmbedder(slow))
	c.Set("refund process", "v", nil, nil)

	start := time.Now()
	_, ok := c.Get(context.Background(), "money back", nil)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestStatsConsistency(t *testing.T) {
	c := New(Config{})
	c.Set("What is Stripe's fee for $1000?", "fee", nil, nil)
	c.Set("refund policy", "refund", nil, nil)

	queries := []string{
		"What is Stripe's fee for $1000?", // exact
		"refund policy",                   // exact
		"What is Stripe fee for $1000?",   // fuzzy
		"unrelated question",              // miss
		"another miss entirely",           // miss
	}
	for _, q := range queries {
		c.Get(context.Background(), q, nil)
	}

	s := c.Stats()
	assert.Equal(t, int64(2), s.Counters.ExactHits)
	assert.Equal(t, int64(1), s.Counters.FuzzyHits)
	assert.Equal(t, int64(0), s.Counters.SemanticHits)
	assert.Equal(t, int64(2), s.Counters.Misses)
	assert.Equal(t, int64(len(queries)), s.Counters.TotalRequests)
	assert.Equal(t, s.Counters.TotalRequests,
		s.Counters.ExactHits+s.Counters.FuzzyHits+s.Counters.SemanticHits+s.Counters.Misses)
	assert.InDelta(t, 0.6, s.HitRate, 1e-12)
	assert.Equal(t, 2, s.Size)
	assert.Equal(t, DefaultTTL, s.TTL)
	assert.Equal(t, DefaultFuzzyThreshold, s.FuzzyThreshold)
	assert.Equal(t, DefaultSemanticThreshold, s.SemanticThreshold)
}

func TestStatsEmpty(t *testing.T) {
	s := New(Config{}).Stats()
	assert.Equal(t, 0.0, s.HitRate)
	assert.Equal(t, int64(0), s.Counters.TotalRequests)
}

func TestClearExpired(t *testing.T) {
	clock := newFakeClock()
	c := New(Config{TTL: time.Minute}, WithClock(clock.Now))

	c.Set("old one", 1, nil, nil)
	c.Set("old two", 2, nil, nil)
	clock.Advance(2 * time.Minute)
	c.Set("fresh", 3, nil, nil)

	assert.Equal(t, 2, c.ClearExpired())
	assert.Equal(t, 1, c.Size())
	assert.True(t, c.has(Key("fresh", nil)))
	assert.Equal(t, 0, c.ClearExpired())
}

func TestAutomaticCleanup(t *testing.T) {
	clock := newFakeClock()
	c := New(Config{TTL: time.Minute, CleanupThreshold: 5}, WithClock(clock.Now))

	for i := 0; i < 6; i++ {
		c.Set(fmt.Sprintf("entry %d", i), i, nil, nil)
	}
	clock.Advance(2 * time.Minute)
	c.Set("fresh", "v", nil, nil)
	assert.Equal(t, 7, c.Size())

	c.Get(context.Background(), "nothing", nil)
	assert.Equal(t, 1, c.Size())
}

func TestClear(t *testing.T) {
	c := New(Config{})
	c.Set("a", 1, nil, nil)
	c.Set("b", 2, "ctx", nil)
	c.Get(context.Background(), "a", nil)

	c.Clear()
	assert.Equal(t, 0, c.Size())
	_, ok := c.Get(context.Background(), "a", nil)
	assert.False(t, ok)

	// Counters survive a clear
	assert.Equal(t, int64(2), c.Stats().Counters.TotalRequests)

	// A new Set brings the entry back
	c.Set("a", 1, nil, nil)
	_, ok = c.Get(context.Background(), "a", nil)
	assert.True(t, ok)
}

func TestRemember(t *testing.T) {
	c := New(Config{})
	var computed atomic.Int32
	compute := func(ctx context.Context) (any, error) {
		computed.Add(1)
		return "result", nil
	}

	res, err := c.Remember(context.Background(), "refund policy", nil, compute)
	require.NoError(t, err)
	assert.Equal(t, MatchMiss, res.MatchType)
	assert.Equal(t, "result", res.Value)

	res, err = c.Remember(context.Background(), "Refund policy?", nil, compute)
	require.NoError(t, err)
	assert.Equal(t, MatchExact, res.MatchType)
	assert.Equal(t, int32(1), computed.Load())

	_, err = c.Remember(context.Background(), "other", nil, func(ctx context.Context) (any, error) {
		return nil, errors.New("retrieval failed")
	})
	require.Error(t, err)
	assert.False(t, c.has(Key("other", nil)))
}

func TestConcurrentAccess(t *testing.T) {
	c := New(Config{CleanupThreshold: 20}, WithEmbedder(vectors(nil)))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("query %d", i%10)
				c.Set(key, i, []string{fmt.Sprintf("w%d", w%2)}, nil)
				c.Get(context.Background(), key, []string{fmt.Sprintf("w%d", w%2)})
				if i%17 == 0 {
					c.ClearExpired()
				}
			}
		}(w)
	}
	wg.Wait()

	s := c.Stats()
	assert.Equal(t, int64(8*50), s.Counters.TotalRequests)
	assert.Equal(t, s.Counters.TotalRequests, s.Counters.Hits()+s.Counters.Misses)
}

func BenchmarkFuzzyLookup(b *testing.B) {
	c := New(Config{CleanupThreshold: 1000})
	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("how do I configure webhook endpoint number %d", i), i, nil, nil)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(context.Background(), "how do i configure a webhook endpoint", nil, WithoutSemantic())
	}
}
