package enrich

import "strings"

// Repair closes a truncated JSON object by appending a single "}" when the
// trimmed text does not already end with one. Applying it twice is the same
// as applying it once.
func Repair(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasSuffix(content, "}") {
		return content
	}
	return content + "}"
}

// stripFence removes a surrounding markdown code fence, which some models
// wrap around JSON replies.
func stripFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return content
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
