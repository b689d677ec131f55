// Package refine asks an external LLM to group ranked results into named
// categories and falls back to the plain ranked list whenever that fails.
package refine

import (
	"github.com/anatolykoptev/go_vidrec/internal/catalog"
	"github.com/anatolykoptev/go_vidrec/internal/retrieve"
)

// Kind tags an Outcome variant.
type Kind string

const (
	KindGrouped   Kind = "grouped"
	KindNoneFound Kind = "none_found"
	KindUngrouped Kind = "ungrouped"
)

// Category is a labeled, non-empty group of records.
type Category struct {
	Label   string           `json:"label"`
	Entries []catalog.Record `json:"entries"`
}

// Outcome is the refined search result. Exactly one variant is populated:
// Categories for KindGrouped, Ranked for KindUngrouped, nothing for KindNoneFound.
type Outcome struct {
	Kind       Kind              `json:"kind"`
	Categories []Category        `json:"categories,omitempty"`
	Ranked     []retrieve.Result `json:"ranked,omitempty"`
}

// Grouped wraps validated categories.
func Grouped(cats []Category) Outcome {
	return Outcome{Kind: KindGrouped, Categories: cats}
}

// NoneFound signals that nothing in the catalog is relevant to the query.
func NoneFound() Outcome {
	return Outcome{Kind: KindNoneFound}
}

// Ungrouped returns ranked as-is.
func Ungrouped(ranked []retrieve.Result) Outcome {
	return Outcome{Kind: KindUngrouped, Ranked: ranked}
}
