package refine

import (
	"encoding/json"
	"fmt"

	"github.com/anatolykoptev/go_vidrec/internal/retrieve"
)

const systemPrompt = `You are a precise educational video classifier. You only ever answer with strict JSON. Never add markdown, code fences, or commentary.`

// categorizePrompt: %[1]s query, %[2]d max description chars, %[3]s entries JSON.
const categorizePrompt = `A learner is looking for resources about: "%[1]s"

Classify ONLY the resources below that are relevant to this topic into meaningful,
learning-oriented categories whose names relate to the topic (for example "Core concepts",
"Problem-solving practice", "Interview preparation", "Bonus content").
Prioritize technical learning resources over motivational or opinion content.

Rules for every resource you output:
- "Resource Name", "Channel Name" and "Video Link" must be copied exactly and be non-empty.
- "Description" must be non-empty, grammatically complete, and must not be cut mid-sentence.
  It must not end with "..." or "…", and if it is longer than %[2]d characters it must end
  with terminal punctuation.
- If any resource in a category would break these rules, leave that whole category out.
  Never output an empty category. Category names must be unique.

If the topic is unrelated to computer science or programming, or none of the resources are
relevant, return exactly:
{"no_cs_data_found": true}

Otherwise return exactly this shape:
{
  "<category name>": [
    {"Resource Name": "...", "Channel Name": "...", "Description": "...", "Video Link": "..."}
  ]
}

Resources:
%[3]s`

// probeSystemPrompt replaces systemPrompt for the yes/no relevance question.
const probeSystemPrompt = `You are a precise topic classifier. Answer with a single word, yes or no, and nothing else.`

// relevancePrompt: %s query.
const relevancePrompt = `Is the topic "%s" related to computer science, programming, or software engineering? Answer with a single word: yes or no.`

// placeholderEntries replace the real results when the relevance probe judges the
// query off-topic, so the categorization call takes its sentinel branch.
var placeholderEntries = []Entry{{
	Name:        "Placeholder resource",
	Channel:     "Placeholder channel",
	Description: "This placeholder stands in for results unrelated to computer science.",
	Link:        "https://www.youtube.com/",
}}

// buildPrompt renders the categorization request.
func buildPrompt(query string, entries []Entry, maxDescChars int) (string, error) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal entries: %w", err)
	}
	return fmt.Sprintf(categorizePrompt, query, maxDescChars, data), nil
}

// topEntries converts the first limit ranked results into wire entries.
func topEntries(ranked []retrieve.Result, limit int) []Entry {
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Entry, len(ranked))
	for i, r := range ranked {
		out[i] = entryFromRecord(r.Record)
	}
	return out
}
