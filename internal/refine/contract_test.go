package refine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validEntry = `{"Resource Name": "BST basics", "Channel Name": "take U forward", "Description": "Covers insertion and search in binary search trees.", "Video Link": "https://youtu.be/a"}`

func TestValidEntry(t *testing.T) {
	base := Entry{Name: "n", Channel: "c", Description: "A complete sentence.", Link: "https://youtu.be/x"}
	long := strings.Repeat("word ", 30)

	tests := []struct {
		name   string
		mutate func(e *Entry)
		max    int
		want   bool
	}{
		{"valid", func(*Entry) {}, 100, true},
		{"empty name", func(e *Entry) { e.Name = "" }, 100, false},
		{"blank channel", func(e *Entry) { e.Channel = "   " }, 100, false},
		{"empty link", func(e *Entry) { e.Link = "" }, 100, false},
		{"empty description", func(e *Entry) { e.Description = "" }, 100, false},
		{"ascii ellipsis", func(e *Entry) { e.Description = "Learn trees and..." }, 100, false},
		{"unicode ellipsis", func(e *Entry) { e.Description = "Learn trees and…" }, 100, false},
		{"bracket marker", func(e *Entry) { e.Description = "Learn trees [...]" }, 100, false},
		{"short without punctuation", func(e *Entry) { e.Description = "Learn trees" }, 100, true},
		{"long without punctuation", func(e *Entry) { e.Description = long + "end" }, 100, false},
		{"long with period", func(e *Entry) { e.Description = long + "end." }, 100, true},
		{"long with question", func(e *Entry) { e.Description = long + "why?" }, 100, true},
		{"length rule disabled", func(e *Entry) { e.Description = long + "end" }, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base
			tt.mutate(&e)
			assert.Equal(t, tt.want, ValidEntry(e, tt.max))
		})
	}
}

func TestParseResponse_Sentinel(t *testing.T) {
	out, err := ParseResponse(`{"no_cs_data_found": true}`, 600)
	require.NoError(t, err)
	assert.Equal(t, KindNoneFound, out.Kind)
}

func TestParseResponse_AllEmpty(t *testing.T) {
	out, err := ParseResponse(`{"Trees": [], "Graphs": []}`, 600)
	require.NoError(t, err)
	assert.Equal(t, KindNoneFound, out.Kind)
}

func TestParseResponse_Grouped(t *testing.T) {
	raw := `{
		"Core concepts": [` + validEntry + `],
		"Practice": [` + validEntry + `, ` + validEntry + `]
	}`
	out, err := ParseResponse(raw, 600)
	require.NoError(t, err)
	require.Equal(t, KindGrouped, out.Kind)
	require.Len(t, out.Categories, 2)
	assert.Equal(t, "Core concepts", out.Categories[0].Label)
	assert.Equal(t, "Practice", out.Categories[1].Label)
	assert.Len(t, out.Categories[1].Entries, 2)
	assert.Equal(t, "take U forward", out.Categories[0].Entries[0].Channel)
}

func TestParseResponse_DropsInvalidCategory(t *testing.T) {
	bad := `{"Resource Name": "X", "Channel Name": "", "Description": "Fine.", "Video Link": "https://youtu.be/x"}`
	raw := `{"Good": [` + validEntry + `], "Bad": [` + validEntry + `, ` + bad + `]}`

	out, err := ParseResponse(raw, 600)
	require.NoError(t, err)
	require.Equal(t, KindGrouped, out.Kind)
	require.Len(t, out.Categories, 1)
	assert.Equal(t, "Good", out.Categories[0].Label)
}

func TestParseResponse_DropsEmptyAndDuplicateLabels(t *testing.T) {
	raw := `{"Trees": [` + validEntry + `], "Empty": [], "trees": [` + validEntry + `], "  ": [` + validEntry + `]}`
	out, err := ParseResponse(raw, 600)
	require.NoError(t, err)
	require.Len(t, out.Categories, 1)
	assert.Equal(t, "Trees", out.Categories[0].Label)
}

func TestParseResponse_Failures(t *testing.T) {
	bad := `{"Resource Name": "X", "Channel Name": "", "Description": "Fine.", "Video Link": "l"}`
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "Here are your categories!"},
		{"empty object", `{}`},
		{"array", `[` + validEntry + `]`},
		{"string", `"grouped"`},
		{"category not array", `{"Trees": {"Resource Name": "x"}}`},
		{"entry not object", `{"Trees": ["just a string"]}`},
		{"every category invalid", `{"Trees": [` + bad + `]}`},
		{"sentinel false", `{"no_cs_data_found": false}`},
		{"truncated json", `{"Trees": [` + validEntry},
		{"trailing garbage", `{"no_cs_data_found": true} extra`},
		{"trailing brace", `{"no_cs_data_found": true}}`},
		{"trailing brackets", `{"Trees": [` + validEntry + `]}]]`},
		{"second object", `{"no_cs_data_found": true} {"no_cs_data_found": true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.raw, 600)
			assert.Error(t, err)
		})
	}
}
