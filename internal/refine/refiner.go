package refine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/anatolykoptev/go_vidrec/internal/catalog"
	"github.com/anatolykoptev/go_vidrec/internal/resilience"
	"github.com/anatolykoptev/go_vidrec/internal/retrieve"
)

// Completer is a text-in/text-out generative call.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// Config tunes the refiner.
type Config struct {
	MaxEntries          int           // results sent to the LLM
	MaxDescriptionChars int           // longer descriptions need terminal punctuation
	Timeout             time.Duration // per external call, retries included
	Retry               resilience.RetryConfig
	Probe               bool    // ask a yes/no relevance question first
	RPS                 float64 // outbound call rate, 0 = unlimited
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries:          20,
		MaxDescriptionChars: 600,
		Timeout:             30 * time.Second,
		Retry:               resilience.DefaultRetryConfig,
		RPS:                 2,
	}
}

// ExternalServiceError describes a failed refinement step.
type ExternalServiceError struct {
	Stage string // probe, complete, parse
	Err   error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("refine %s: %v", e.Stage, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Stats are refiner counters since construction.
type Stats struct {
	LLMCalls  int64
	LLMErrors int64
	Grouped   int64
	NoneFound int64
	Ungrouped int64
}

// Refiner groups ranked results through a Completer. A nil completer disables
// refinement: every call returns Ungrouped without touching the network.
type Refiner struct {
	llm     Completer
	cfg     Config
	limiter *resilience.Limiter

	llmCalls  atomic.Int64
	llmErrors atomic.Int64
	grouped   atomic.Int64
	noneFound atomic.Int64
	ungrouped atomic.Int64
}

// New returns a Refiner. Pass a nil completer when no credential is configured.
func New(llm Completer, cfg Config) *Refiner {
	def := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Refiner{
		llm:     llm,
		cfg:     cfg,
		limiter: resilience.NewLimiter(cfg.RPS, 1),
	}
}

// Enabled reports whether refinement can reach an LLM.
func (r *Refiner) Enabled() bool { return r.llm != nil }

// Refine returns the grouped outcome, NoneFound, or Ungrouped(ranked) on any
// failure. It never returns an error.
func (r *Refiner) Refine(ctx context.Context, query string, ranked []retrieve.Result) Outcome {
	if r.llm == nil {
		slog.Warn("refine: LLM API key not configured, showing ranked results")
		return r.count(Ungrouped(ranked))
	}
	if len(ranked) == 0 {
		return r.count(Ungrouped(ranked))
	}

	out, err := r.refineResult(ctx, query, ranked)
	if err != nil {
		slog.Warn("refine: falling back to ranked results",
			slog.String("query", query),
			slog.Any("error", err),
		)
		return r.count(Ungrouped(ranked))
	}
	return r.count(out)
}

// Stats returns a snapshot of the counters.
func (r *Refiner) Stats() Stats {
	return Stats{
		LLMCalls:  r.llmCalls.Load(),
		LLMErrors: r.llmErrors.Load(),
		Grouped:   r.grouped.Load(),
		NoneFound: r.noneFound.Load(),
		Ungrouped: r.ungrouped.Load(),
	}
}

func (r *Refiner) count(o Outcome) Outcome {
	switch o.Kind {
	case KindGrouped:
		r.grouped.Add(1)
	case KindNoneFound:
		r.noneFound.Add(1)
	case KindUngrouped:
		r.ungrouped.Add(1)
	}
	return o
}

// refineResult runs the external protocol. Every failure is returned, not logged;
// Refine is the only place that recovers.
func (r *Refiner) refineResult(ctx context.Context, query string, ranked []retrieve.Result) (Outcome, error) {
	entries := topEntries(ranked, r.cfg.MaxEntries)
	sent := ranked[:len(entries)]

	placeholder := false
	if r.cfg.Probe {
		related, err := r.probe(ctx, query)
		switch {
		case err != nil:
			// Advisory only: continue with the real entries.
			slog.Debug("refine: relevance probe failed", slog.Any("error", err))
		case !related:
			slog.Debug("refine: query judged off-topic", slog.String("query", query))
			entries = placeholderEntries
			placeholder = true
		}
	}

	prompt, err := buildPrompt(query, entries, r.cfg.MaxDescriptionChars)
	if err != nil {
		return Outcome{}, &ExternalServiceError{Stage: "complete", Err: err}
	}
	raw, err := r.complete(ctx, systemPrompt, prompt)
	if err != nil {
		return Outcome{}, &ExternalServiceError{Stage: "complete", Err: err}
	}

	out, err := ParseResponse(SanitizeFences(raw), r.cfg.MaxDescriptionChars)
	if err != nil {
		return Outcome{}, &ExternalServiceError{Stage: "parse", Err: err}
	}
	if placeholder && out.Kind == KindGrouped {
		// Groups built from the placeholder carry no catalog content.
		return NoneFound(), nil
	}
	if out.Kind == KindGrouped {
		cats, err := groundCategories(out.Categories, sent)
		if err != nil {
			return Outcome{}, &ExternalServiceError{Stage: "parse", Err: err}
		}
		out = Grouped(cats)
	}
	return out, nil
}

// probe asks whether query belongs to the catalog's subject domain.
func (r *Refiner) probe(ctx context.Context, query string) (bool, error) {
	raw, err := r.complete(ctx, probeSystemPrompt, fmt.Sprintf(relevancePrompt, query))
	if err != nil {
		return false, &ExternalServiceError{Stage: "probe", Err: err}
	}
	answer := strings.ToLower(strings.Trim(SanitizeFences(raw), " \t\r\n.!\"'"))
	switch {
	case strings.HasPrefix(answer, "yes"):
		return true, nil
	case strings.HasPrefix(answer, "no"):
		return false, nil
	}
	return false, &ExternalServiceError{Stage: "probe", Err: fmt.Errorf("unexpected answer %q", raw)}
}

// complete performs one rate-limited, bounded, retried LLM call.
func (r *Refiner) complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	resp, err := resilience.Do(ctx, r.cfg.Retry, func(ctx context.Context) (string, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", err
		}
		r.llmCalls.Add(1)
		resp, err := r.llm.Complete(ctx, system, prompt)
		if err != nil {
			r.llmErrors.Add(1)
		}
		return resp, err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("timed out after %s: %w", r.cfg.Timeout, err)
		}
		return "", err
	}
	return resp, nil
}

// groundCategories restores catalog fields on grouped entries by matching
// links against the sent results. An entry whose link was not sent is invalid,
// and its category is dropped like any other category with an invalid entry.
func groundCategories(cats []Category, sent []retrieve.Result) ([]Category, error) {
	byLink := make(map[string]catalog.Record, len(sent))
	for _, res := range sent {
		byLink[res.Record.Link] = res.Record
	}
	kept := cats[:0]
next:
	for _, c := range cats {
		for i, e := range c.Entries {
			rec, ok := byLink[e.Link]
			if !ok {
				slog.Debug("refine: dropping category with unknown link",
					slog.String("label", c.Label), slog.String("link", e.Link))
				continue next
			}
			if c.Entries[i].PublishedAt == "" {
				c.Entries[i].PublishedAt = rec.PublishedAt
			}
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return nil, ErrNoValidCategories
	}
	return kept, nil
}
