// Package embedder turns text into vectors for semantic search and
// semantic cache matching.
//
// Four providers implement Embedder:
//
//	jina    jina-embeddings-v3       1024 dims  JINA_API_KEY
//	openai  text-embedding-3-small   1536 dims  OPENAI_API_KEY
//	gemini  text-embedding-004        768 dims  GEMINI_API_KEY
//	local   hashed bag of words       384 dims  no key, no network
//
// The remote providers share one request path (HTTPProvider) with
// exponential backoff on 429 and 5xx responses, optional client-side rate
// limiting and a content-hash LRU cache. Batches are capped at
// MaxBatchSize texts; cached texts inside a batch are not re-sent.
//
// Provider selection with New or NewFromEnv:
//
//  1. HYBRIDRAG_EMBEDDING_PROVIDER, if set
//  2. the first API key found: Jina, OpenAI, Gemini
//  3. local
//
// The local provider is deterministic and works offline. It only captures
// vocabulary overlap, so paraphrases with no shared words are not similar.
//
// Failures wrap ErrProviderFailed:
//
//	emb, err := e.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // fall back to keyword search
//	}
package embedder
