package refine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_vidrec/internal/catalog"
	"github.com/anatolykoptev/go_vidrec/internal/resilience"
	"github.com/anatolykoptev/go_vidrec/internal/retrieve"
)

// fakeLLM returns scripted responses in order and records prompts.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	systems   []string
	delay     time.Duration
}

func (f *fakeLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	f.systems = append(f.systems, system)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	cfg.RPS = 0
	cfg.Retry = resilience.RetryConfig{MaxRetries: 2, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}
	return cfg
}

func ranked(n int) []retrieve.Result {
	out := make([]retrieve.Result, n)
	for i := range out {
		out[i] = retrieve.Result{
			Record: catalog.Record{
				Name:        fmt.Sprintf("Video %d", i),
				Channel:     "take U forward",
				Description: fmt.Sprintf("Lesson %d on recursion.", i),
				Link:        fmt.Sprintf("https://youtu.be/%d", i),
				PublishedAt: "2024-01-01",
			},
			Score: 1 - float64(i)/100,
			Index: i,
		}
	}
	return out
}

const groupedResponse = "```json\n" + `{"Recursion basics": [{"Resource Name": "Video 0", "Channel Name": "take U forward", "Description": "Lesson 0 on recursion.", "Video Link": "https://youtu.be/0"}]}` + "\n```"

func TestRefine_NoCredential(t *testing.T) {
	r := New(nil, testConfig())
	in := ranked(5)

	out := r.Refine(context.Background(), "recursion", in)
	assert.Equal(t, KindUngrouped, out.Kind)
	assert.Equal(t, in, out.Ranked)
	assert.False(t, r.Enabled())
	assert.Zero(t, r.Stats().LLMCalls)
}

func TestRefine_GroupedFromFencedJSON(t *testing.T) {
	llm := &fakeLLM{responses: []string{groupedResponse}}
	r := New(llm, testConfig())

	out := r.Refine(context.Background(), "recursion", ranked(3))
	require.Equal(t, KindGrouped, out.Kind)
	require.Len(t, out.Categories, 1)
	assert.Equal(t, "Recursion basics", out.Categories[0].Label)
	assert.Equal(t, "2024-01-01", out.Categories[0].Entries[0].PublishedAt, "catalog fields restored by link")
	assert.Equal(t, int64(1), r.Stats().Grouped)
}

func TestRefine_Sentinel(t *testing.T) {
	for _, resp := range []string{`{"no_cs_data_found": true}`, "```json\n{\"no_cs_data_found\": true}\n```", `{"A": [], "B": []}`} {
		llm := &fakeLLM{responses: []string{resp}}
		out := New(llm, testConfig()).Refine(context.Background(), "cooking pasta", ranked(3))
		assert.Equal(t, KindNoneFound, out.Kind, "response %q", resp)
	}
}

func TestRefine_FallbackOnBadResponses(t *testing.T) {
	responses := []string{
		"I could not categorize these videos.",
		`{}`,
		`[1, 2, 3]`,
		`{"Trees": "not a list"}`,
		`{"Bad": [{"Resource Name": "x", "Channel Name": "", "Description": "d.", "Video Link": "l"}]}`,
	}
	for _, resp := range responses {
		llm := &fakeLLM{responses: []string{resp}}
		in := ranked(4)
		out := New(llm, testConfig()).Refine(context.Background(), "trees", in)
		assert.Equal(t, KindUngrouped, out.Kind, "response %q", resp)
		assert.Equal(t, in, out.Ranked)
	}
}

func TestRefine_FallbackOnServiceError(t *testing.T) {
	llm := &fakeLLM{errs: []error{errors.New("401 unauthorized")}}
	r := New(llm, testConfig())
	in := ranked(2)

	out := r.Refine(context.Background(), "trees", in)
	assert.Equal(t, KindUngrouped, out.Kind)
	assert.Equal(t, in, out.Ranked)
	assert.Equal(t, 1, llm.calls(), "non-transient errors are not retried")
	assert.Equal(t, int64(1), r.Stats().LLMErrors)
}

func TestRefine_RetriesTransientErrors(t *testing.T) {
	transient := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	llm := &fakeLLM{
		errs:      []error{transient, transient, nil},
		responses: []string{"", "", groupedResponse},
	}
	out := New(llm, testConfig()).Refine(context.Background(), "recursion", ranked(2))
	assert.Equal(t, KindGrouped, out.Kind)
	assert.Equal(t, 3, llm.calls())
}

func TestRefine_DropsCategoriesWithUnsentLinks(t *testing.T) {
	resp := `{
		"Made up": [{"Resource Name": "Ghost", "Channel Name": "Nobody", "Description": "Not in the catalog.", "Video Link": "https://youtu.be/ghost"}],
		"Recursion basics": [{"Resource Name": "Video 0", "Channel Name": "take U forward", "Description": "Lesson 0 on recursion.", "Video Link": "https://youtu.be/0"}]
	}`
	llm := &fakeLLM{responses: []string{resp}}

	out := New(llm, testConfig()).Refine(context.Background(), "recursion", ranked(3))
	require.Equal(t, KindGrouped, out.Kind)
	require.Len(t, out.Categories, 1)
	assert.Equal(t, "Recursion basics", out.Categories[0].Label)
}

func TestRefine_UnsentLinksOnlyFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEntries = 2
	// Video 2 is ranked but beyond MaxEntries, so it was never sent.
	resp := `{"Later": [{"Resource Name": "Video 2", "Channel Name": "take U forward", "Description": "Lesson 2 on recursion.", "Video Link": "https://youtu.be/2"}]}`
	llm := &fakeLLM{responses: []string{resp}}
	in := ranked(3)

	out := New(llm, cfg).Refine(context.Background(), "recursion", in)
	assert.Equal(t, KindUngrouped, out.Kind)
	assert.Equal(t, in, out.Ranked)
}

func TestRefine_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	llm := &fakeLLM{delay: time.Second, responses: []string{groupedResponse}}

	start := time.Now()
	out := New(llm, cfg).Refine(context.Background(), "recursion", ranked(2))
	assert.Equal(t, KindUngrouped, out.Kind)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRefine_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	llm := &fakeLLM{responses: []string{groupedResponse}}
	out := New(llm, testConfig()).Refine(ctx, "recursion", ranked(2))
	assert.Equal(t, KindUngrouped, out.Kind)
}

func TestRefine_SendsAtMostMaxEntries(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"no_cs_data_found": true}`}}
	New(llm, testConfig()).Refine(context.Background(), "recursion", ranked(30))

	require.Equal(t, 1, llm.calls())
	prompt := llm.prompts[0]
	assert.Contains(t, prompt, `"recursion"`)
	assert.Contains(t, prompt, "https://youtu.be/19")
	assert.NotContains(t, prompt, "https://youtu.be/20")
	assert.Equal(t, 20, strings.Count(prompt, `"Video Link"`)-strings.Count(categorizePrompt, `"Video Link"`))
}

func TestRefine_ProbeUnrelatedUsesPlaceholder(t *testing.T) {
	llm := &fakeLLM{responses: []string{"No.", `{"no_cs_data_found": true}`}}
	cfg := testConfig()
	cfg.Probe = true

	out := New(llm, cfg).Refine(context.Background(), "banana bread", ranked(5))
	assert.Equal(t, KindNoneFound, out.Kind)
	require.Equal(t, 2, llm.calls())
	assert.Contains(t, llm.prompts[1], placeholderEntries[0].Name)
	assert.NotContains(t, llm.prompts[1], "https://youtu.be/0")
}

func TestRefine_ProbeUsesPlainAnswerSystemPrompt(t *testing.T) {
	llm := &fakeLLM{responses: []string{"yes", groupedResponse}}
	cfg := testConfig()
	cfg.Probe = true

	New(llm, cfg).Refine(context.Background(), "recursion", ranked(3))
	require.Equal(t, 2, llm.calls())
	assert.Equal(t, probeSystemPrompt, llm.systems[0])
	assert.NotContains(t, llm.systems[0], "JSON")
	assert.Equal(t, systemPrompt, llm.systems[1])
}

func TestRefine_ProbeUnrelatedGroupedPlaceholder(t *testing.T) {
	grouped := `{"Funny": [{"Resource Name": "Placeholder resource", "Channel Name": "Placeholder channel", "Description": "Placeholder.", "Video Link": "https://www.youtube.com/"}]}`
	llm := &fakeLLM{responses: []string{"no", grouped}}
	cfg := testConfig()
	cfg.Probe = true

	out := New(llm, cfg).Refine(context.Background(), "banana bread", ranked(5))
	assert.Equal(t, KindNoneFound, out.Kind)
}

func TestRefine_ProbeRelatedKeepsEntries(t *testing.T) {
	llm := &fakeLLM{responses: []string{"Yes", groupedResponse}}
	cfg := testConfig()
	cfg.Probe = true

	out := New(llm, cfg).Refine(context.Background(), "recursion", ranked(5))
	assert.Equal(t, KindGrouped, out.Kind)
	assert.Contains(t, llm.prompts[1], "https://youtu.be/0")
}

func TestRefine_ProbeFailureIsAdvisory(t *testing.T) {
	llm := &fakeLLM{responses: []string{"maybe?", groupedResponse}}
	cfg := testConfig()
	cfg.Probe = true

	out := New(llm, cfg).Refine(context.Background(), "recursion", ranked(5))
	assert.Equal(t, KindGrouped, out.Kind)
	assert.Contains(t, llm.prompts[1], "https://youtu.be/0")
}

func TestRefine_EmptyRanked(t *testing.T) {
	llm := &fakeLLM{}
	out := New(llm, testConfig()).Refine(context.Background(), "x", nil)
	assert.Equal(t, KindUngrouped, out.Kind)
	assert.Zero(t, llm.calls())
}

func TestExternalServiceError(t *testing.T) {
	inner := errors.New("boom")
	err := error(&ExternalServiceError{Stage: "parse", Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "refine parse: boom", err.Error())

	var ese *ExternalServiceError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &ese))
}

func TestNewLLMCompleter(t *testing.T) {
	assert.Nil(t, NewLLMCompleter(LLMConfig{}))
	assert.NotNil(t, NewLLMCompleter(LLMConfig{APIKey: "k", APIBase: "http://127.0.0.1:1", Model: "m"}))
}
