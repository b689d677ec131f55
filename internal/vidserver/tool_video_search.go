package vidserver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_vidrec/internal/cache"
	"github.com/anatolykoptev/go_vidrec/internal/catalog"
	"github.com/anatolykoptev/go_vidrec/internal/refine"
	"github.com/anatolykoptev/go_vidrec/internal/retrieve"
)

const (
	defaultTopN = 5
	maxTopN     = 50
)

// noneFoundMessage is shown when the refiner finds nothing relevant.
const noneFoundMessage = "No relevant computer science resources found for this topic. Try a different query."

type VideoSearchInput struct {
	Query string `json:"query" jsonschema:"Topic to learn about (e.g. binary search trees, recursion, dynamic programming)"`
	TopN  int    `json:"top_n,omitempty" jsonschema:"Number of videos to consider (default 5, max 50)"`
}

type VideoSearchOutput struct {
	Query      string          `json:"query"`
	Kind       string          `json:"kind"`
	Message    string          `json:"message,omitempty"`
	Categories []VideoCategory `json:"categories,omitempty"`
	Results    []VideoResult   `json:"results,omitempty"`
}

type VideoCategory struct {
	Label  string        `json:"label"`
	Videos []VideoResult `json:"videos"`
}

type VideoResult struct {
	Name        string  `json:"name"`
	Channel     string  `json:"channel"`
	Description string  `json:"description"`
	Link        string  `json:"link"`
	PublishedAt string  `json:"published_at,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

func registerVideoSearch(server *mcp.Server, s Searcher) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_search",
		Description: "Semantic search over a catalog of educational programming videos. Ranks videos by similarity to the topic and, when an LLM is configured, groups the best matches into learning categories. Returns grouped categories, a ranked list, or a 'nothing relevant' notice.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input VideoSearchInput) (*mcp.CallToolResult, VideoSearchOutput, error) {
		out, err := videoSearch(ctx, s, input)
		if err != nil {
			return nil, VideoSearchOutput{}, err
		}
		return nil, out, nil
	})
}

// videoSearch serves one tool call. Grouped and NoneFound outcomes are cached
// under the exact query the engine saw; Ungrouped ones usually mean the LLM
// failed and are retried next time.
func videoSearch(ctx context.Context, s Searcher, input VideoSearchInput) (VideoSearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return VideoSearchOutput{}, errors.New("query is required")
	}
	topN := input.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	if topN > maxTopN {
		topN = maxTopN
	}

	cacheKey := cache.Key("video_search", query, strconv.Itoa(topN))
	if out, ok := cache.GetJSON[VideoSearchOutput](ctx, s.Cache(), cacheKey); ok {
		return out, nil
	}

	outcome, err := s.Search(ctx, query, topN)
	if err != nil {
		return VideoSearchOutput{}, fmt.Errorf("video search failed: %w", err)
	}

	out := render(query, outcome)
	if outcome.Kind != refine.KindUngrouped {
		cache.SetJSON(ctx, s.Cache(), cacheKey, out)
	}
	return out, nil
}

// render converts an Outcome to tool output with display snippets.
func render(query string, o refine.Outcome) VideoSearchOutput {
	out := VideoSearchOutput{Query: query, Kind: string(o.Kind)}
	switch o.Kind {
	case refine.KindGrouped:
		out.Categories = make([]VideoCategory, len(o.Categories))
		for i, c := range o.Categories {
			videos := make([]VideoResult, len(c.Entries))
			for j, r := range c.Entries {
				videos[j] = videoResult(r, 0)
			}
			out.Categories[i] = VideoCategory{Label: c.Label, Videos: videos}
		}
	case refine.KindNoneFound:
		out.Message = noneFoundMessage
	case refine.KindUngrouped:
		out.Results = make([]VideoResult, len(o.Ranked))
		for i, r := range o.Ranked {
			out.Results[i] = rankedResult(r)
		}
	}
	return out
}

func rankedResult(r retrieve.Result) VideoResult {
	return videoResult(r.Record, r.Score)
}

func videoResult(r catalog.Record, score float64) VideoResult {
	return VideoResult{
		Name:        r.Name,
		Channel:     r.Channel,
		Description: catalog.Snippet(r.Description),
		Link:        r.Link,
		PublishedAt: r.PublishedAt,
		Score:       score,
	}
}
