// Package vidserver exposes the video search engine as MCP tools.
package vidserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_vidrec/internal/cache"
	"github.com/anatolykoptev/go_vidrec/internal/refine"
)

// Searcher is the engine surface the tools need.
type Searcher interface {
	Search(ctx context.Context, query string, topN int) (refine.Outcome, error)
	Cache() *cache.Tiered
}

// RegisterTools registers all video tools on the given MCP server.
func RegisterTools(server *mcp.Server, s Searcher) int {
	registerVideoSearch(server, s)
	return 1
}
