// Package catalog loads the video resource dataset and normalizes it into Records.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ErrDataLoad is returned when the dataset is unreadable or holds no valid rows.
var ErrDataLoad = errors.New("catalog: data load failed")

// Record is a single video resource. Immutable once loaded.
type Record struct {
	Name        string `json:"name"`
	Channel     string `json:"channel"`
	Description string `json:"description"`
	Link        string `json:"link"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Valid reports whether every required field is present.
func (r Record) Valid() bool {
	return r.Name != "" && r.Channel != "" && r.Description != "" && r.Link != ""
}

type field int

const (
	fieldName field = iota
	fieldChannel
	fieldDescription
	fieldLink
	fieldPublishedAt
)

// columnAliases maps source header names (lowercased) to canonical fields.
// The scraper writes "Channel" / "Resource URL" / "Published At"; older exports
// already use the renamed headers.
var columnAliases = map[string]field{
	"resource name": fieldName,
	"name":          fieldName,
	"title":         fieldName,
	"channel":       fieldChannel,
	"channel name":  fieldChannel,
	"description":   fieldDescription,
	"resource url":  fieldLink,
	"video link":    fieldLink,
	"link":          fieldLink,
	"url":           fieldLink,
	"published at":  fieldPublishedAt,
	"publishedat":   fieldPublishedAt,
}

var requiredFields = []field{fieldName, fieldChannel, fieldDescription, fieldLink}

// LoadFile opens path and loads it with Load.
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDataLoad, path, err)
	}
	defer f.Close()

	records, err := Load(f)
	if err != nil {
		return nil, err
	}
	slog.Info("catalog loaded", slog.String("path", path), slog.Int("records", len(records)))
	return records, nil
}

// Load reads a CSV dataset with a header row. Rows missing a required field are
// dropped. Returns ErrDataLoad if the input cannot be parsed, lacks a required
// column, or has no valid rows.
func Load(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrDataLoad, err)
	}

	cols := make(map[field]int, len(columnAliases))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if f, ok := columnAliases[h]; ok {
			if _, seen := cols[f]; !seen {
				cols[f] = i
			}
		}
	}
	for _, f := range requiredFields {
		if _, ok := cols[f]; !ok {
			return nil, fmt.Errorf("%w: missing column for %s", ErrDataLoad, f)
		}
	}

	var (
		records []Record
		dropped int
		line    = 1
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrDataLoad, line, err)
		}

		get := func(f field) string {
			i, ok := cols[f]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}
		rec := Record{
			Name:        normalizeText(get(fieldName)),
			Channel:     normalizeText(get(fieldChannel)),
			Description: normalizeText(get(fieldDescription)),
			Link:        strings.TrimSpace(get(fieldLink)),
			PublishedAt: strings.TrimSpace(get(fieldPublishedAt)),
		}
		if !rec.Valid() {
			dropped++
			continue
		}
		records = append(records, rec)
	}

	if dropped > 0 {
		slog.Debug("catalog: dropped incomplete rows", slog.Int("dropped", dropped))
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no valid rows", ErrDataLoad)
	}
	return records, nil
}

func (f field) String() string {
	switch f {
	case fieldName:
		return "Resource Name"
	case fieldChannel:
		return "Channel Name"
	case fieldDescription:
		return "Description"
	case fieldLink:
		return "Video Link"
	case fieldPublishedAt:
		return "PublishedAt"
	}
	return "unknown"
}
