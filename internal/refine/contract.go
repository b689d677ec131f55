package refine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/anatolykoptev/go_vidrec/internal/catalog"
)

// sentinelKey marks the "nothing relevant" response: {"no_cs_data_found": true}.
const sentinelKey = "no_cs_data_found"

// Entry is one resource in the categorization wire format.
type Entry struct {
	Name        string `json:"Resource Name"`
	Channel     string `json:"Channel Name"`
	Description string `json:"Description"`
	Link        string `json:"Video Link"`
}

func entryFromRecord(r catalog.Record) Entry {
	return Entry{Name: r.Name, Channel: r.Channel, Description: r.Description, Link: r.Link}
}

func (e Entry) record() catalog.Record {
	return catalog.Record{
		Name:        strings.TrimSpace(e.Name),
		Channel:     strings.TrimSpace(e.Channel),
		Description: strings.TrimSpace(e.Description),
		Link:        strings.TrimSpace(e.Link),
	}
}

// truncationMarkers end a description that was cut mid-sentence.
var truncationMarkers = []string{"...", "…", "[...]", "(more)"}

// ValidEntry checks the entry contract: name, channel and link present; a
// description that is present and not truncated. A description longer than
// maxDescChars must end with terminal punctuation. maxDescChars <= 0 disables
// the length rule.
func ValidEntry(e Entry, maxDescChars int) bool {
	r := e.record()
	if r.Name == "" || r.Channel == "" || r.Link == "" || r.Description == "" {
		return false
	}
	for _, m := range truncationMarkers {
		if strings.HasSuffix(r.Description, m) {
			return false
		}
	}
	if maxDescChars > 0 && utf8.RuneCountInString(r.Description) > maxDescChars {
		return endsWithTerminal(r.Description)
	}
	return true
}

func endsWithTerminal(s string) bool {
	last, _ := utf8.DecodeLastRuneInString(s)
	switch last {
	case '.', '!', '?', '"', '\'', ')', '”', '’':
		return true
	}
	return false
}

// Contract violations. All are recovered into Ungrouped by Refiner.Refine.
var (
	ErrNotObject         = errors.New("response is not a JSON object")
	ErrEmptyMapping      = errors.New("response mapping is empty")
	ErrWrongShape        = errors.New("category value is not an array")
	ErrNoValidCategories = errors.New("no valid categories in response")
)

// ParseResponse decodes a sanitized categorization response into an Outcome.
// Categories keep response order; any category holding an invalid entry is
// dropped, as are empty categories and repeated labels.
func ParseResponse(raw string, maxDescChars int) (Outcome, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return Outcome{}, fmt.Errorf("decode: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Outcome{}, ErrNotObject
	}

	type rawCategory struct {
		label string
		value json.RawMessage
	}
	var cats []rawCategory
	sentinel := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Outcome{}, fmt.Errorf("decode key: %w", err)
		}
		label, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return Outcome{}, fmt.Errorf("decode %q: %w", label, err)
		}
		if label == sentinelKey {
			var flag bool
			if json.Unmarshal(value, &flag) == nil && flag {
				sentinel = true
			}
			continue
		}
		cats = append(cats, rawCategory{label: label, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return Outcome{}, fmt.Errorf("decode: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Outcome{}, errors.New("decode: trailing data after object")
	}

	if sentinel {
		return NoneFound(), nil
	}
	if len(cats) == 0 {
		return Outcome{}, ErrEmptyMapping
	}

	var (
		out      []Category
		seen     = make(map[string]bool, len(cats))
		allEmpty = true
	)
	for _, c := range cats {
		if !bytes.HasPrefix(bytes.TrimSpace(c.value), []byte("[")) {
			return Outcome{}, fmt.Errorf("%w: %q", ErrWrongShape, c.label)
		}
		var items []json.RawMessage
		if err := json.Unmarshal(c.value, &items); err != nil {
			return Outcome{}, fmt.Errorf("%w: %q: %v", ErrWrongShape, c.label, err)
		}
		if len(items) == 0 {
			continue
		}
		allEmpty = false

		label := strings.TrimSpace(c.label)
		if label == "" || seen[strings.ToLower(label)] {
			continue
		}
		entries, ok := decodeCategory(items, maxDescChars)
		if !ok {
			continue
		}
		seen[strings.ToLower(label)] = true
		out = append(out, Category{Label: label, Entries: entries})
	}

	if allEmpty {
		return NoneFound(), nil
	}
	if len(out) == 0 {
		return Outcome{}, ErrNoValidCategories
	}
	return Grouped(out), nil
}

// decodeCategory returns the category's records, or false if any item is not a
// valid entry.
func decodeCategory(items []json.RawMessage, maxDescChars int) ([]catalog.Record, bool) {
	records := make([]catalog.Record, 0, len(items))
	for _, it := range items {
		var e Entry
		if err := json.Unmarshal(it, &e); err != nil {
			return nil, false
		}
		if !ValidEntry(e, maxDescChars) {
			return nil, false
		}
		records = append(records, e.record())
	}
	return records, true
}
