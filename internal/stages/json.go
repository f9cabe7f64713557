package stages

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrNoJSON is returned when a reply contains no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// decodeJSON pulls the first JSON object out of a model reply, tolerating
// markdown fences and surrounding prose, and unmarshals it into v.
func decodeJSON(reply string, v any) error {
	raw := extractJSON(reply)
	if raw == "" {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func extractJSON(s string) string {
	if block := extractJSONBlock(s); block != "" {
		if obj := extractJSONObject(block); obj != "" {
			return obj
		}
	}
	return extractJSONObject(s)
}

// extractJSONBlock returns the contents of the first fenced code block.
func extractJSONBlock(s string) string {
	open := strings.Index(s, "```")
	if open == -1 {
		return ""
	}
	rest := s[open+3:]
	nl := strings.Index(rest, "\n")
	if nl == -1 {
		return ""
	}
	rest = rest[nl+1:]
	end := strings.Index(rest, "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// extractJSONObject returns the first balanced {...} in s. Braces inside
// string literals are ignored.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// truncateString cuts s to at most maxLen bytes, ellipsis included,
// without splitting a rune.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
