// Package cache implements HybridCache, a response cache that resolves a
// lookup through three strategies in order:
//
//  1. exact: the normalized key and context match a stored entry;
//  2. fuzzy: the Dice coefficient over character bigrams between the
//     normalized keys reaches FuzzyThreshold (default 0.9);
//  3. semantic: the cosine similarity between key embeddings reaches
//     SemanticThreshold (default 0.85). Only active with an Embedder.
//
// Keys are normalized before storage: lower case, trimmed, punctuation
// removed, whitespace collapsed. "What is Stripe's fee?" and
// "what is stripes fee" are therefore the same exact key.
//
// Every entry lives in a context scope. Fuzzy and semantic matching only
// compare entries of the same scope, so a value cached for one set of
// enabled tools or one user is never served to another. A nil scope is
// the literal "all".
//
// Entries expire after TTL (default 7 minutes). Expired entries are never
// returned; they are dropped lazily on lookup and swept in bulk once the
// cache grows past CleanupThreshold.
//
// Typical use wraps an expensive computation:
//
//	c := cache.New(cache.Config{}, cache.WithEmbedder(emb))
//	res, err := c.Remember(ctx, query, []string{"mode:hybrid"}, func(ctx context.Context) (any, error) {
//	    return searcher.Search(ctx, req)
//	})
//
// A HybridCache is safe for concurrent use. Embedding calls run outside the
// internal lock.
package cache
