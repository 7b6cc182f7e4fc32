package domain

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no JSON object can be found in a text response.
var ErrNoJSON = errors.New("no JSON object found")

// ExtractJSON returns the first balanced JSON object embedded in text, such as an
// object wrapped in prose or a fenced code block.
func ExtractJSON(text string) (json.RawMessage, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate), nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, ErrNoJSON
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
				return i
			}
		}
	}
	return -1
}

// DefaultAnalysis is the payload used when an analysis response cannot be read.
func DefaultAnalysis(kind AnalysisKind) map[string]any {
	switch kind {
	case AnalysisBody:
		return map[string]any{
			"body_fat_percentage":    0.0,
			"muscle_mass_percentage": 0.0,
			"bmi":                    0.0,
			"posture":                "unknown",
			"summary":                "Analysis unavailable.",
		}
	case AnalysisFood:
		return map[string]any{
			"calories": 0.0,
			"protein":  0.0,
			"carbs":    0.0,
			"fats":     0.0,
			"summary":  "Analysis unavailable.",
		}
	}
	return map[string]any{"summary": "Analysis unavailable."}
}

// ParseAnalysisNotes extracts the analysis payload from a notes blob. The second
// return value is false when the default payload was substituted.
func ParseAnalysisNotes(kind AnalysisKind, raw string) (map[string]any, bool) {
	body, err := ExtractJSON(raw)
	if err != nil {
		return DefaultAnalysis(kind), false
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || len(payload) == 0 {
		return DefaultAnalysis(kind), false
	}
	return payload, true
}

// NumericMetrics keeps the top-level numeric values of an analysis payload.
func NumericMetrics(payload map[string]any) map[string]float64 {
	out := make(map[string]float64)
	for k, v := range payload {
		if f, ok := v.(float64); ok {
			out[k] = f
		}
	}
	return out
}
