package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/hybridrag/internal/mcp"
	"github.com/dshills/hybridrag/internal/storage"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the Model Context Protocol server. Requests are read from stdin and
responses written to stdout; logs go to stderr.

MCP client configuration:
  {
    "mcpServers": {
      "hybridrag": {
        "command": "/path/to/hybridrag",
        "args": ["serve", "--db", "/path/to/hybridrag.db"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a.logger.Info().
				Str("version", version).
				Str("build_mode", storage.BuildMode).
				Str("driver", storage.DriverName).
				Str("db", a.cfg.Storage.DBPath).
				Msg("hybridrag MCP server starting")

			server, err := mcp.NewServer(ctx, a.cfg, mcp.WithLogger(a.logger))
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer func() {
				if err := server.Close(); err != nil {
					a.logger.Warn().Err(err).Msg("failed to close server")
				}
			}()

			a.logger.Info().Msg("MCP server ready, listening on stdio")
			if err := server.Serve(ctx); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			a.logger.Info().Msg("server stopped")
			return nil
		},
	}
}
