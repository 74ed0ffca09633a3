// Package mcp implements the Model Context Protocol (MCP) server for hybridrag.
//
// The server exposes five tools to MCP clients:
//   - index_corpus: Index a directory of documents into the SQLite corpus
//   - search_documents: Hybrid BM25 + vector search over the indexed corpus
//   - get_status: Corpus statistics, search index and health
//   - cache_stats: Query cache counters and thresholds
//   - clear_cache: Evict cached answers
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started by the serve command and reads requests from stdin.
// Logs go to stderr.
//
//	hybridrag serve --config hybridrag.yaml
//
// # Tool: search_documents
//
//	Request:
//	{
//	  "name": "search_documents",
//	  "arguments": {
//	    "query": "card_declined",
//	    "limit": 5,
//	    "search_mode": "hybrid",
//	    "alpha": 0.4,
//	    "normalization": "softmax",
//	    "context": ["tenant-a"]
//	  }
//	}
//
//	Response:
//	{
//	  "query": "card_declined",
//	  "results": [
//	    {
//	      "rank": 1,
//	      "id": "4f0c..._chunk_0",
//	      "content": "The card_declined error means ...",
//	      "source": "payments/card_declined.md",
//	      "combinedScore": 0.93,
//	      "semanticScore": 0.88,
//	      "keywordScore": 1,
//	      "searchMethod": "hybrid",
//	      "title": "Card declined"
//	    }
//	  ],
//	  "search_method": "hybrid",
//	  "query_kind": "error_code",
//	  "weights": {"alpha": 0.4, "beta": 0.6},
//	  "degraded": false,
//	  "cache": {"hit": false}
//	}
//
// Answers are cached in a cache.HybridCache. The cache scope is the
// caller's context tokens plus the mode, limit and any explicit weight,
// normalization, temperature or rerank parameter, so a cached answer is
// only reused for an equivalent request. Degraded answers are never
// cached, and re-indexing clears the cache.
//
// # Error Handling
//
// Handlers return *MCPError values:
//   - -32602: Invalid params (missing or out of range arguments)
//   - -32603: Internal error (database, filesystem)
//   - -32001: Corpus path not found
//   - -32002: Indexing in progress
//
// A search over an unindexed corpus or with an unavailable embedder is not
// an error: the response carries "degraded": true and a warning.
package mcp
