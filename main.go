// go_vidrec is an MCP server for semantic search over educational programming videos.
//
// Exposes the video_search tool. Ranks the catalog by embedding similarity and,
// when LLM_API_KEY is set, groups the top results into learning categories.
// See cmd/vidrec for the command-line interface.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_vidrec/internal/engine"
	"github.com/anatolykoptev/go_vidrec/internal/vidserver"
)

var (
	version = "dev"
	mcpPort = env.Str("MCP_PORT", "8895")
)

func main() {
	eng := initEngine()
	defer eng.Close()

	slog.Info("starting go_vidrec",
		slog.String("port", mcpPort),
	)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_vidrec",
		Version: version,
	}, nil)

	n := vidserver.RegisterTools(server, eng)
	slog.Info("tools registered", slog.Int("count", n))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_vidrec",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 120 * time.Second,
		Metrics:      eng.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}

func initEngine() *engine.Engine {
	cfg := engine.ConfigFromEnv()
	eng := engine.New(context.Background(), cfg)

	// Warm the catalog index so the first request does not pay for it.
	// A load failure here is reported and retried on the next search.
	if cfg.WarmIndex {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if n, err := eng.Precompute(ctx); err != nil {
			slog.Error("catalog index init failed", slog.String("path", cfg.CatalogPath), slog.Any("error", err))
		} else {
			slog.Info("catalog index ready", slog.Int("records", n))
		}
	}
	return eng
}
