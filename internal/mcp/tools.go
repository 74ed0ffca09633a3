package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/hybridrag/internal/fusion"
	"github.com/dshills/hybridrag/internal/indexer"
	"github.com/dshills/hybridrag/internal/searcher"
	"github.com/dshills/hybridrag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodePathNotFound       = -32001 // Corpus path does not exist or is unreadable
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
)

// maxReportedErrors bounds the per-document errors echoed by index_corpus
const maxReportedErrors = 5

// handleIndexCorpus handles the index_corpus tool invocation
func (s *Server) handleIndexCorpus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || strings.TrimSpace(path) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	root, err := validatePath(path)
	if err != nil {
		return nil, newMCPError(ErrorCodePathNotFound, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	if s.indexer.Indexing() {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}

	forceReindex := getBoolDefault(args, "force_reindex", false)
	stats, err := s.indexer.IndexCorpus(ctx, root, s.cfg.IndexerConfig(forceReindex))
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := s.reload(ctx); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to rebuild search index", map[string]interface{}{
			"error": err.Error(),
		})
	}

	index := s.searcher.Stats()
	response := map[string]interface{}{
		"indexed":            true,
		"path":               root,
		"documents_indexed":  stats.DocumentsIndexed,
		"documents_skipped":  stats.DocumentsSkipped,
		"documents_failed":   stats.DocumentsFailed,
		"chunks_created":     stats.ChunksCreated,
		"embeddings_created": stats.EmbeddingsCreated,
		"embeddings_failed":  stats.EmbeddingsFailed,
		"duration_ms":        stats.Duration.Milliseconds(),
		"index": map[string]interface{}{
			"chunks":       index.Chunks,
			"vectors":      index.Vectors,
			"dimension":    index.Dimension,
			"vector_index": index.VectorIndex,
		},
	}

	if n := len(stats.ErrorMessages); n > 0 {
		if n > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = n
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// searchHit is one result as returned to the client
type searchHit struct {
	Rank int `json:"rank"`
	types.ResultView
	Title    string `json:"title,omitempty"`
	Category string `json:"category,omitempty"`
}

// searchPayload is the cacheable part of a search_documents response
type searchPayload struct {
	Query         string         `json:"query"`
	Results       []searchHit    `json:"results"`
	TotalResults  int            `json:"total_results"`
	SearchMode    string         `json:"search_mode"`
	SearchMethod  string         `json:"search_method"`
	QueryKind     string         `json:"query_kind"`
	Weights       fusion.Weights `json:"weights"`
	Normalization string         `json:"normalization"`
	Reranked      bool           `json:"reranked"`
	Degraded      bool           `json:"degraded"`
	Warnings      []string       `json:"warnings,omitempty"`
	KeywordHits   int            `json:"keyword_hits"`
	VectorHits    int            `json:"vector_hits"`
	DurationMS    int64          `json:"duration_ms"`
}

type cacheInfo struct {
	Hit        bool    `json:"hit"`
	MatchType  string  `json:"match_type,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
}

type searchResult struct {
	*searchPayload
	Cache cacheInfo `json:"cache"`
}

// handleSearchDocuments handles the search_documents tool invocation
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	req, scope, err := s.parseSearchArgs(args)
	if err != nil {
		return nil, err
	}

	useCache := getBoolDefault(args, "use_cache", s.cfg.Cache.Enabled)
	if useCache {
		if hit, ok := s.cache.Get(ctx, req.Query, scope); ok {
			if payload, ok := hit.Value.(*searchPayload); ok {
				result := searchResult{
					searchPayload: payload,
					Cache:         cacheInfo{Hit: true, MatchType: string(hit.MatchType), Similarity: hit.Similarity},
				}
				return mcp.NewToolResultText(formatJSON(result)), nil
			}
		}
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		if isInvalidSearch(err) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid search parameters", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	payload := newSearchPayload(req.Query, resp)
	// Degraded answers are not cached so a recovered provider is used next time
	if useCache && !resp.Degraded {
		s.cache.Set(req.Query, payload, scope, map[string]any{"duration_ms": payload.DurationMS})
	}

	result := searchResult{searchPayload: payload, Cache: cacheInfo{Hit: false}}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// parseSearchArgs builds the search request and the cache scope. The scope
// holds the caller's context tokens plus every parameter that changes the
// answer.
func (s *Server) parseSearchArgs(args map[string]interface{}) (searcher.SearchRequest, []string, error) {
	var req searcher.SearchRequest

	query, ok := args["query"].(string)
	if !ok {
		return req, nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or not a string",
		})
	}
	req.Query = query

	req.Limit = getIntDefault(args, "limit", s.cfg.Search.DefaultLimit)
	if req.Limit < 1 || req.Limit > searcher.MaxLimit {
		return req, nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit), map[string]interface{}{
			"param": "limit",
			"value": req.Limit,
		})
	}

	mode, err := searcher.ParseMode(getStringDefault(args, "search_mode", string(searcher.ModeHybrid)))
	if err != nil {
		return req, nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   args["search_mode"],
			"allowed": []string{"hybrid", "semantic", "vector", "keyword"},
		})
	}
	req.Mode = mode

	scope := contextTokens(args["context"])
	scope = append(scope, "mode:"+string(mode), fmt.Sprintf("limit:%d", req.Limit))

	alpha, hasAlpha := getFloat(args, "alpha")
	beta, hasBeta := getFloat(args, "beta")
	if hasAlpha || hasBeta {
		switch {
		case !hasBeta:
			beta = 1 - alpha
		case !hasAlpha:
			alpha = 1 - beta
		}
		w := fusion.Weights{Vector: alpha, Keyword: beta}
		if err := w.Validate(); err != nil {
			return req, nil, newMCPError(ErrorCodeInvalidParams, "invalid weights", map[string]interface{}{
				"param": "alpha/beta",
				"error": err.Error(),
			})
		}
		req.Weights = &w
		scope = append(scope, fmt.Sprintf("weights:%g/%g", alpha, beta))
	}

	if norm := getStringDefault(args, "normalization", ""); norm != "" {
		method, err := fusion.ParseMethod(norm)
		if err != nil {
			return req, nil, newMCPError(ErrorCodeInvalidParams, "invalid normalization", map[string]interface{}{
				"param":   "normalization",
				"value":   norm,
				"allowed": []string{"minmax", "softmax", "none"},
			})
		}
		req.Normalization = method
		scope = append(scope, "norm:"+string(method))
	}

	if t, ok := getFloat(args, "temperature"); ok {
		if t <= 0 {
			return req, nil, newMCPError(ErrorCodeInvalidParams, "temperature must be positive", map[string]interface{}{
				"param": "temperature",
				"value": t,
			})
		}
		req.Temperature = t
		scope = append(scope, fmt.Sprintf("temp:%g", t))
	}

	req.Rerank = getBoolDefault(args, "rerank", s.cfg.Rerank.Enabled)
	if req.Rerank {
		scope = append(scope, "rerank")
	}

	return req, scope, nil
}

func newSearchPayload(query string, resp *searcher.SearchResponse) *searchPayload {
	views := types.Views(resp.Results)
	hits := make([]searchHit, len(views))
	for i, v := range views {
		hits[i] = searchHit{
			Rank:       i + 1,
			ResultView: v,
			Title:      resp.Results[i].Chunk.Metadata.Title,
			Category:   resp.Results[i].Chunk.Metadata.Category,
		}
	}

	return &searchPayload{
		Query:         query,
		Results:       hits,
		TotalResults:  resp.TotalResults,
		SearchMode:    string(resp.Mode),
		SearchMethod:  string(resp.SearchMethod),
		QueryKind:     resp.QueryKind.String(),
		Weights:       resp.Weights,
		Normalization: string(resp.Normalization),
		Reranked:      resp.Reranked,
		Degraded:      resp.Degraded,
		Warnings:      resp.Warnings,
		KeywordHits:   resp.KeywordHits,
		VectorHits:    resp.VectorHits,
		DurationMS:    resp.Duration.Milliseconds(),
	}
}

func isInvalidSearch(err error) bool {
	return errors.Is(err, searcher.ErrUnknownMode) ||
		errors.Is(err, fusion.ErrInvalidWeights) ||
		errors.Is(err, fusion.ErrUnknownMethod)
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	index := s.searcher.Stats()
	response := map[string]interface{}{
		"indexed": status.DocumentsCount > 0,
		"statistics": map[string]interface{}{
			"documents_count":  status.DocumentsCount,
			"chunks_count":     status.ChunksCount,
			"embeddings_count": status.EmbeddingsCount,
			"dimension":        status.Dimension,
			"index_size_mb":    fmt.Sprintf("%.2f", status.DatabaseSizeMB),
			"schema_version":   status.SchemaVersion,
		},
		"search_index": map[string]interface{}{
			"chunks":       index.Chunks,
			"vectors":      index.Vectors,
			"dimension":    index.Dimension,
			"vector_index": index.VectorIndex,
		},
		"embedder": map[string]interface{}{
			"provider":  s.embedder.Provider(),
			"model":     s.embedder.Model(),
			"dimension": s.embedder.Dimension(),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"embeddings_complete":  status.Health.EmbeddingsComplete,
			"indexing":             s.indexer.Indexing(),
		},
	}
	if status.DocumentsCount == 0 {
		response["message"] = "Corpus not indexed. Use the index_corpus tool to index a directory."
	}
	if !index.BuiltAt.IsZero() {
		response["search_index"].(map[string]interface{})["built_at"] = index.BuiltAt.Format(time.RFC3339)
	}
	if run := status.LastRun; run != nil {
		response["last_run"] = map[string]interface{}{
			"root_path":          run.RootPath,
			"documents_indexed":  run.DocumentsIndexed,
			"documents_skipped":  run.DocumentsSkipped,
			"chunks_created":     run.ChunksCreated,
			"embeddings_created": run.EmbeddingsCreated,
			"duration_ms":        run.Duration.Milliseconds(),
			"completed_at":       run.CompletedAt.Format(time.RFC3339),
		}
	}
	if status.Provider != "" && status.Dimension != s.embedder.Dimension() {
		response["warning"] = fmt.Sprintf("stored embeddings are %d-dimensional (%s), the active embedder produces %d; semantic search is unavailable until the corpus is re-indexed",
			status.Dimension, status.Provider, s.embedder.Dimension())
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCacheStats handles the cache_stats tool invocation
func (s *Server) handleCacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := s.cache.Stats()
	response := map[string]interface{}{
		"enabled":            s.cfg.Cache.Enabled,
		"size":               stats.Size,
		"ttl_minutes":        stats.TTL.Minutes(),
		"fuzzy_threshold":    stats.FuzzyThreshold,
		"semantic_threshold": stats.SemanticThreshold,
		"semantic_enabled":   stats.SemanticEnabled,
		"stats": map[string]interface{}{
			"exact_hits":     stats.Counters.ExactHits,
			"fuzzy_hits":     stats.Counters.FuzzyHits,
			"semantic_hits":  stats.Counters.SemanticHits,
			"misses":         stats.Counters.Misses,
			"total_requests": stats.Counters.TotalRequests,
			"hit_rate":       fmt.Sprintf("%.2f%%", stats.HitRate*100),
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleClearCache handles the clear_cache tool invocation
func (s *Server) handleClearCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	before := s.cache.Size()
	cleared := before
	if getBoolDefault(args, "expired_only", false) {
		cleared = s.cache.ClearExpired()
	} else {
		s.cache.Clear()
	}

	s.logger.Info().Int("cleared", cleared).Msg("query cache cleared")
	response := map[string]interface{}{
		"cleared": cleared,
		"size":    s.cache.Size(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath resolves path and checks it names a readable file or
// directory
func validatePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrPathNotReadable
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return "", ErrPathNotFound
	}
	if err != nil {
		return "", ErrPathNotReadable
	}

	if info.IsDir() {
		f, err := os.Open(abs)
		if err != nil {
			return "", ErrPathNotReadable
		}
		_ = f.Close()
	}
	return abs, nil
}

// contextTokens reads the context argument, a string or a list of strings
func contextTokens(v interface{}) []string {
	switch c := v.(type) {
	case string:
		if c == "" {
			return nil
		}
		return []string{c}
	case []interface{}:
		tokens := make([]string, 0, len(c))
		for _, t := range c {
			if s, ok := t.(string); ok && s != "" {
				tokens = append(tokens, s)
			}
		}
		return tokens
	case []string:
		return append([]string(nil), c...)
	}
	return nil
}

// formatJSON formats a response as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloat extracts a number parameter; the bool reports presence
func getFloat(args map[string]interface{}, key string) (float64, bool) {
	switch val := args[key].(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	}
	return 0, false
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation errors

var (
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
)
