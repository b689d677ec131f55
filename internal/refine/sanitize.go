package refine

import "strings"

// Fence markers accepted around an LLM payload.
//
// Opening: a line starting with "```", optionally followed by an info string
// such as "json", "JSON" or "javascript". Closing: "```" at the end of the
// payload. Only one wrapping fence is removed; fences inside the payload are kept.
const fenceMarker = "```"

// SanitizeFences strips one markdown code fence wrapping s and trims surrounding
// whitespace. Unfenced input is returned trimmed and otherwise unchanged.
func SanitizeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, fenceMarker) {
		return s
	}

	body := s[len(fenceMarker):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		if isInfoString(body[:nl]) {
			body = body[nl+1:]
		}
	} else {
		// Single line: ```json {...}```
		body = strings.TrimLeft(body, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}

	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, fenceMarker)
	return strings.TrimSpace(body)
}

// isInfoString reports whether the rest of the opening fence line is a language
// tag rather than payload.
func isInfoString(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
