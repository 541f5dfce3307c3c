package trend

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

// Extract recovers a structured payload from raw upstream text. The reply is
// untrusted and frequently malformed, so recovery runs through an ordered
// chain of strategies, each more permissive than the last, short-circuiting
// on the first success. When nothing usable is found the second return value
// is false; extraction never panics and never returns an error.
func Extract(raw string) (*Payload, bool) {
	strategies := []struct {
		name string
		fn   func(string) (*Payload, bool)
	}{
		{"direct", parseDirect},
		{"repaired", parseRepaired},
		{"results-object", parseResultsObject},
		{"bare-array", parseBareArray},
	}

	for _, s := range strategies {
		if p, ok := s.fn(raw); ok {
			if s.name != "direct" {
				slog.Debug("recovered upstream payload", "strategy", s.name)
			}
			return p, true
		}
	}

	slog.Warn("no usable payload in upstream reply", "prefix", truncate(raw, 500))
	return nil, false
}

// parseDirect parses the whole text as JSON. Success requires a top-level
// object that actually carries a results key.
func parseDirect(raw string) (*Payload, bool) {
	var probe struct {
		Results *[]Candidate `json:"results"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil || probe.Results == nil {
		return nil, false
	}
	return &Payload{Results: *probe.Results}, true
}

func parseRepaired(raw string) (*Payload, bool) {
	return parseDirect(repair(raw))
}

// parseResultsObject finds the first brace-delimited object containing a
// "results" key followed by an array and parses that substring alone.
func parseResultsObject(raw string) (*Payload, bool) {
	search := raw
	offset := 0

	for {
		i := strings.Index(search, `"results"`)
		if i < 0 {
			return nil, false
		}
		abs := offset + i

		if keyPrecedesArray(raw, abs+len(`"results"`)) {
			start := strings.LastIndex(raw[:abs], "{")
			if start >= 0 {
				if end := scanBalanced(raw, start); end > start {
					sub := raw[start:end]
					if p, ok := parseDirect(sub); ok {
						return p, true
					}
					if p, ok := parseDirect(repair(sub)); ok {
						return p, true
					}
				}
			}
		}

		offset = abs + len(`"results"`)
		if offset >= len(raw) {
			return nil, false
		}
		search = raw[offset:]
	}
}

// parseBareArray finds the first top-level array literal and wraps it as
// {"results": ...}.
func parseBareArray(raw string) (*Payload, bool) {
	start := strings.Index(raw, "[")
	if start < 0 {
		return nil, false
	}
	end := scanBalanced(raw, start)
	if end <= start {
		return nil, false
	}

	for _, sub := range []string{raw[start:end], repair(raw[start:end])} {
		var results []Candidate
		if err := json.Unmarshal([]byte(sub), &results); err == nil {
			return &Payload{Results: results}, true
		}
	}
	return nil, false
}

var (
	trailingCommaRe    = regexp.MustCompile(`,\s*([\]}])`)
	underscoreDigitRe  = regexp.MustCompile(`(\d)_(\d)`)
	emptyElementMidRe  = regexp.MustCompile(`,\s*""\s*,`)
	emptyElementHeadRe = regexp.MustCompile(`\[\s*""\s*,`)
	emptyElementTailRe = regexp.MustCompile(`,\s*""\s*\]`)

	smartQuotes = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`,
		"‘", "'", "’", "'",
	)
)

// repair fixes the defects this upstream is known to produce: markdown code
// fences, smart quotes, trailing commas before closing brackets, stray
// empty-string array elements, and numeric literals split by underscores.
func repair(raw string) string {
	s := stripFences(strings.TrimSpace(raw))
	s = smartQuotes.Replace(s)
	s = trailingCommaRe.ReplaceAllString(s, "$1")

	for {
		next := emptyElementMidRe.ReplaceAllString(s, ",")
		next = emptyElementHeadRe.ReplaceAllString(next, "[")
		next = emptyElementTailRe.ReplaceAllString(next, "]")
		next = underscoreDigitRe.ReplaceAllString(next, "$1$2")
		if next == s {
			return s
		}
		s = next
	}
}

// stripFences removes a wrapping markdown code block, if present.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s[3:], "\n"); idx >= 0 {
		s = s[3+idx+1:]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-3]
	}
	return strings.TrimSpace(s)
}

// keyPrecedesArray reports whether the text after a key literal is a colon
// followed by an array opener.
func keyPrecedesArray(s string, pos int) bool {
	i := pos
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	if i >= len(s) || s[i] != ':' {
		return false
	}
	i++
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i < len(s) && s[i] == '['
}

// scanBalanced returns the index just past the bracket matching the opener
// at start, skipping over string literals. Returns -1 when unbalanced.
func scanBalanced(s string, start int) int {
	open := s[start]
	var close byte
	switch open {
	case '{':
		close = '}'
	case '[':
		close = ']'
	default:
		return -1
	}

	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
