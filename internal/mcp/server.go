package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/hybridrag/internal/cache"
	"github.com/dshills/hybridrag/internal/config"
	"github.com/dshills/hybridrag/internal/embedder"
	"github.com/dshills/hybridrag/internal/indexer"
	"github.com/dshills/hybridrag/internal/rerank"
	"github.com/dshills/hybridrag/internal/searcher"
	"github.com/dshills/hybridrag/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "hybridrag"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	cfg      *config.Config
	logger   zerolog.Logger
	storage  storage.Storage
	embedder embedder.Embedder
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	cache    *cache.HybridCache
	closers  []io.Closer
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger (default: disabled)
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer opens the corpus database and embedder named by cfg, builds
// the search index from the stored corpus and registers the tools.
func NewServer(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	if dir := filepath.Dir(cfg.Storage.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	s, err := newServer(ctx, cfg, store, emb, opts...)
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

// newServer wires the components around an open store and embedder. The
// server owns both afterwards.
func newServer(ctx context.Context, cfg *config.Config, store storage.Storage, emb embedder.Embedder, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		logger:   zerolog.Nop(),
		storage:  store,
		embedder: emb,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Indexer and searcher share one embedder so they share its cache
	s.indexer = indexer.NewWithEmbedder(store, emb, indexer.WithLogger(s.logger))

	var scorer rerank.Scorer = rerank.Lexical{}
	if cfg.Rerank.Endpoint != "" {
		ce := rerank.NewCrossEncoder(cfg.CrossEncoderConfig())
		s.closers = append(s.closers, ce)
		scorer = ce
	}
	stageCfg := cfg.StageConfig()
	stageCfg.Logger = &s.logger
	stage := rerank.NewStage(scorer, stageCfg)

	srch, err := searcher.NewSearcher(emb, cfg.SearcherConfig(),
		searcher.WithLogger(s.logger),
		searcher.WithReranker(stage))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize searcher: %w", err)
	}
	s.searcher = srch

	cacheOpts := []cache.Option{cache.WithLogger(s.logger)}
	if cfg.Cache.Semantic {
		cacheOpts = append(cacheOpts, cache.WithEmbedder(emb))
	}
	s.cache = cache.New(cfg.HybridCacheConfig(), cacheOpts...)

	if err := s.reload(ctx); err != nil {
		return nil, err
	}

	s.mcp = server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false))
	s.registerTools()
	return s, nil
}

// reload rebuilds the search index from storage and drops cached answers
func (s *Server) reload(ctx context.Context) error {
	corpus, err := storage.LoadCorpus(ctx, s.storage)
	if err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}
	if corpus.Skipped > 0 {
		s.logger.Warn().
			Int("skipped", corpus.Skipped).
			Int("dimension", corpus.Dimension).
			Msg("embeddings outside the dominant space were not loaded")
	}
	if err := s.searcher.Rebuild(corpus.Chunks, corpus.Vectors); err != nil {
		return fmt.Errorf("failed to rebuild search index: %w", err)
	}
	s.cache.Clear()
	return nil
}

// Serve runs the MCP protocol on stdin/stdout until ctx is cancelled or
// the client disconnects
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(s.logger, "", 0))
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the store, the embedder and the re-ranker client
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	errs = append(errs, s.embedder.Close(), s.storage.Close())
	return errors.Join(errs...)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexCorpusTool(), s.handleIndexCorpus)
	s.mcp.AddTool(searchDocumentsTool(), s.handleSearchDocuments)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(cacheStatsTool(), s.handleCacheStats)
	s.mcp.AddTool(clearCacheTool(), s.handleClearCache)
}
