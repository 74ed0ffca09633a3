package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexCorpusTool returns the tool definition for index_corpus
func indexCorpusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_corpus",
		Description: "Index a directory (or single file) of .md, .txt and .json documents for hybrid search",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the corpus directory or file",
				},
				"force_reindex": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-index every document ignoring content hashes",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchDocumentsTool returns the tool definition for search_documents
func searchDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_documents",
		Description: "Search the indexed corpus with BM25, vector similarity or a weighted fusion of both",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language, keywords or an error code)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "hybrid (vector + keyword), semantic (vector only) or keyword (BM25 only)",
					"enum":        []string{"hybrid", "semantic", "vector", "keyword"},
					"default":     "hybrid",
				},
				"alpha": map[string]interface{}{
					"type":        "number",
					"description": "Vector weight; beta defaults to 1 - alpha",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"beta": map[string]interface{}{
					"type":        "number",
					"description": "Keyword weight; alpha defaults to 1 - beta",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"normalization": map[string]interface{}{
					"type":        "string",
					"description": "Score normalization applied before fusion",
					"enum":        []string{"minmax", "softmax", "none"},
				},
				"temperature": map[string]interface{}{
					"type":        "number",
					"description": "Softmax temperature",
					"exclusiveMinimum": 0.0,
				},
				"rerank": map[string]interface{}{
					"type":        "boolean",
					"description": "Re-rank the fused candidates",
				},
				"context": map[string]interface{}{
					"type":        "array",
					"description": "Caller context tokens that scope cached answers",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "Serve and store answers through the query cache",
					"default":     true,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report corpus statistics, the active search index and database health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// cacheStatsTool returns the tool definition for cache_stats
func cacheStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cache_stats",
		Description: "Report query cache size, thresholds and hit counters",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// clearCacheTool returns the tool definition for clear_cache
func clearCacheTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_cache",
		Description: "Evict every cached answer; with expired_only, only entries past their TTL",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"expired_only": map[string]interface{}{
					"type":    "boolean",
					"default": false,
				},
			},
		},
	}
}
