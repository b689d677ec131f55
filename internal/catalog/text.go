package catalog

import (
	"strings"

	"github.com/anatolykoptev/go-kit/strutil"
	"golang.org/x/net/html"
)

// SnippetLen is the display length of a description snippet, in runes.
const SnippetLen = 200

// normalizeText unescapes HTML entities (YouTube API titles carry &#39; and &amp;)
// and collapses runs of whitespace.
func normalizeText(s string) string {
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// Snippet caps a description at SnippetLen runes with a "..." suffix for display.
func Snippet(desc string) string {
	return strutil.TruncateWith(desc, SnippetLen, "...")
}
