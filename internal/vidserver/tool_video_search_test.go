package vidserver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_vidrec/internal/cache"
	"github.com/anatolykoptev/go_vidrec/internal/catalog"
	"github.com/anatolykoptev/go_vidrec/internal/refine"
	"github.com/anatolykoptev/go_vidrec/internal/retrieve"
)

type fakeSearcher struct {
	outcome refine.Outcome
	err     error
	calls   int
	lastN   int
	cache   *cache.Tiered
}

func (f *fakeSearcher) Search(_ context.Context, _ string, topN int) (refine.Outcome, error) {
	f.calls++
	f.lastN = topN
	return f.outcome, f.err
}

func (f *fakeSearcher) Cache() *cache.Tiered { return f.cache }

var bst = catalog.Record{
	Name:        "BST",
	Channel:     "take U forward",
	Description: strings.Repeat("Binary search trees in depth. ", 20),
	Link:        "https://youtu.be/1",
}

func TestVideoSearch_TopNDefaults(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, defaultTopN},
		{-1, defaultTopN},
		{7, 7},
		{500, maxTopN},
	}
	for _, tt := range tests {
		f := &fakeSearcher{outcome: refine.Ungrouped(nil)}
		if _, err := videoSearch(context.Background(), f, VideoSearchInput{Query: "trees", TopN: tt.in}); err != nil {
			t.Fatalf("videoSearch: %v", err)
		}
		if f.lastN != tt.want {
			t.Errorf("top_n %d: searched with %d, want %d", tt.in, f.lastN, tt.want)
		}
	}
}

func TestVideoSearch_EmptyQuery(t *testing.T) {
	f := &fakeSearcher{}
	if _, err := videoSearch(context.Background(), f, VideoSearchInput{Query: "  "}); err == nil {
		t.Error("expected error for empty query")
	}
	if f.calls != 0 {
		t.Error("engine should not be called for empty query")
	}
}

func TestVideoSearch_EngineError(t *testing.T) {
	f := &fakeSearcher{err: retrieve.ErrInvalidArgument}
	_, err := videoSearch(context.Background(), f, VideoSearchInput{Query: "trees"})
	if !errors.Is(err, retrieve.ErrInvalidArgument) {
		t.Errorf("expected wrapped ErrInvalidArgument, got %v", err)
	}
}

func TestVideoSearch_RendersUngrouped(t *testing.T) {
	f := &fakeSearcher{outcome: refine.Ungrouped([]retrieve.Result{{Record: bst, Score: 0.9}})}
	out, err := videoSearch(context.Background(), f, VideoSearchInput{Query: "trees"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != "ungrouped" || len(out.Results) != 1 {
		t.Fatalf("unexpected output: %+v", out)
	}
	if got := out.Results[0].Description; !strings.HasSuffix(got, "...") {
		t.Errorf("description should be snipped, got %q", got)
	}
	if out.Results[0].Score != 0.9 {
		t.Errorf("score = %v, want 0.9", out.Results[0].Score)
	}
}

func TestVideoSearch_RendersNoneFound(t *testing.T) {
	f := &fakeSearcher{outcome: refine.NoneFound()}
	out, err := videoSearch(context.Background(), f, VideoSearchInput{Query: "banana bread"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != "none_found" || out.Message == "" {
		t.Errorf("unexpected output: %+v", out)
	}
}

func TestVideoSearch_CachesOnlyRefined(t *testing.T) {
	c := cache.New(cache.Config{TTL: time.Minute})
	defer c.Close()
	ctx := context.Background()

	grouped := &fakeSearcher{
		outcome: refine.Grouped([]refine.Category{{Label: "Trees", Entries: []catalog.Record{bst}}}),
		cache:   c,
	}
	for range 2 {
		out, err := videoSearch(ctx, grouped, VideoSearchInput{Query: "Trees", TopN: 3})
		if err != nil {
			t.Fatal(err)
		}
		if len(out.Categories) != 1 || out.Categories[0].Label != "Trees" {
			t.Fatalf("unexpected output: %+v", out)
		}
	}
	if grouped.calls != 1 {
		t.Errorf("grouped outcome should be cached, engine called %d times", grouped.calls)
	}

	ungrouped := &fakeSearcher{outcome: refine.Ungrouped([]retrieve.Result{{Record: bst}}), cache: c}
	for range 2 {
		if _, err := videoSearch(ctx, ungrouped, VideoSearchInput{Query: "graphs", TopN: 3}); err != nil {
			t.Fatal(err)
		}
	}
	if ungrouped.calls != 2 {
		t.Errorf("ungrouped outcome should not be cached, engine called %d times", ungrouped.calls)
	}
}

func TestVideoSearch_CacheKeyKeepsQueryCase(t *testing.T) {
	c := cache.New(cache.Config{TTL: time.Minute})
	defer c.Close()
	ctx := context.Background()

	f := &fakeSearcher{outcome: refine.NoneFound(), cache: c}
	for _, q := range []string{"Go", "go", "  Go  "} {
		if _, err := videoSearch(ctx, f, VideoSearchInput{Query: q, TopN: 3}); err != nil {
			t.Fatal(err)
		}
	}
	if f.calls != 2 {
		t.Errorf("engine called %d times, want 2 (case-distinct queries, trimmed repeat cached)", f.calls)
	}
}

func TestRegisterTools(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "dev"}, nil)
	if n := RegisterTools(server, &fakeSearcher{}); n != 1 {
		t.Errorf("RegisterTools = %d, want 1", n)
	}
}
