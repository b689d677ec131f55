package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// metricKeys fixes the output order of FormatMetrics.
var metricKeys = []string{
	"search_requests", "search_errors",
	"embed_calls",
	"llm_calls", "llm_errors",
	"outcome_grouped", "outcome_none_found", "outcome_ungrouped",
	"cache_hits", "cache_misses",
}

// Metrics returns a snapshot of all counters including cache stats.
func (e *Engine) Metrics() map[string]int64 {
	hits, misses := e.cache.Stats()
	rs := e.refiner.Stats()
	return map[string]int64{
		"search_requests":    e.searches.Load(),
		"search_errors":      e.searchErrors.Load(),
		"embed_calls":        e.index.EmbedCalls(),
		"llm_calls":          rs.LLMCalls,
		"llm_errors":         rs.LLMErrors,
		"outcome_grouped":    rs.Grouped,
		"outcome_none_found": rs.NoneFound,
		"outcome_ungrouped":  rs.Ungrouped,
		"cache_hits":         hits,
		"cache_misses":       misses,
	}
}

// FormatMetrics returns metrics as a simple text format for the HTTP endpoint.
func (e *Engine) FormatMetrics() string {
	m := e.Metrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// slowThreshold is how long an operation may run before TrackOperation warns.
var slowThreshold = 5 * time.Second

// TrackOperation logs a warning if an operation takes longer than slowThreshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > slowThreshold {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
