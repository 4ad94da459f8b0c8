package llm

import "strings"

// StripCodeFences returns the body of the first Markdown code fence in text,
// dropping a language tag such as "sql" or "json". Text without fences is
// returned trimmed.
func StripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	s = s[start+3:]
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		if isFenceTag(strings.TrimSpace(s[:nl])) {
			s = s[nl+1:]
		}
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// isFenceTag reports whether the first fence line is a language tag. Tags
// compare case-insensitively; a bare SELECT or WITH starts the query.
func isFenceTag(tag string) bool {
	tag = strings.ToLower(tag)
	if tag == "select" || tag == "with" {
		return false
	}
	for _, r := range tag {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}
