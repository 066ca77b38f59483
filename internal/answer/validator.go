package answer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	fenceOpen  = regexp.MustCompile("```json\\s*")
	fenceClose = regexp.MustCompile("```\\s*")

	// answerField matches the "answer" string field, tolerating escaped
	// quotes and literal newlines inside the value.
	answerField = regexp.MustCompile(`(?s)("answer"\s*:\s*)"([^"\\]*(?:\\.[^"\\]*)*)"`)

	// partialAnswer extracts just the answer value from malformed JSON.
	partialAnswer = regexp.MustCompile(`(?s)"answer"\s*:\s*"([^"]*)"`)

	// numberedLine matches one "N. text" line of a numbered list.
	numberedLine = regexp.MustCompile(`(?m)^\s*\d+\.\s+(.+)$`)
)

// Validator converts arbitrary model output into a ValidatedAnswer. It is a
// total function: every input, including empty strings and truncated JSON,
// produces a well-formed answer with a valid confidence label, and no call
// ever returns an error.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{logger: slog.Default()}
}

// Validate runs the recovery ladder over raw model output:
//  1. strip markdown code fences
//  2. escape literal newlines inside the "answer" JSON field
//  3. extract the first balanced JSON object or array
//  4. strict JSON decode (list, map, and scalar shapes all accepted)
//  5. on decode failure, pull the "answer" field out of the raw text
//  6. failing that, detect a numbered list in the raw text
//  7. finally fall back to the trimmed raw text at Low confidence
func (v *Validator) Validate(raw string) ValidatedAnswer {
	cleaned := extractJSON(fixAnswerNewlines(stripFences(raw)))

	var data any
	if err := json.Unmarshal([]byte(cleaned), &data); err == nil {
		return v.fromDecoded(data)
	}

	// Secondary extraction: the answer field alone, from the raw text.
	if m := partialAnswer.FindStringSubmatch(raw); m != nil {
		text := strings.ReplaceAll(m[1], `\n`, "\n")
		text = strings.ReplaceAll(text, `\r`, "\r")
		return ValidatedAnswer{
			Answer:     text,
			Confidence: Medium,
			Reasoning:  reasoning("Extracted from partial JSON."),
		}
	}

	// A bare numbered list is still a usable answer.
	if items := numberedLine.FindAllStringSubmatch(raw, -1); len(items) > 0 {
		lines := make([]string, len(items))
		for i, m := range items {
			lines[i] = fmt.Sprintf("%d. %s", i+1, m[1])
		}
		return ValidatedAnswer{
			Answer:     strings.Join(lines, "\n"),
			Confidence: Medium,
			Reasoning:  reasoning("Extracted numbered list from response."),
		}
	}

	v.logger.Warn("response validation fell back to raw output")
	return ValidatedAnswer{
		Answer:     strings.TrimSpace(raw),
		Confidence: Low,
		Reasoning:  reasoning("Raw output fallback."),
	}
}

// fromDecoded maps a successfully decoded JSON value to a ValidatedAnswer.
func (v *Validator) fromDecoded(data any) ValidatedAnswer {
	switch val := data.(type) {
	case []any:
		return ValidatedAnswer{
			Answer:     renderList(val),
			Confidence: Medium,
			Reasoning:  reasoning("Auto-converted from list response."),
		}
	case map[string]any:
		out := ValidatedAnswer{
			Confidence: Medium,
			Reasoning:  reasoning("Standard validation."),
		}
		if ans, ok := val["answer"]; ok {
			out.Answer = renderAnswer(ans)
		} else {
			b, err := json.Marshal(val)
			if err != nil {
				out.Answer = fmt.Sprint(val)
			} else {
				out.Answer = string(b)
			}
		}
		if c, ok := val["confidence"]; ok {
			out.Confidence = normalizeConfidence(c)
		}
		if r, ok := val["reasoning"]; ok {
			if r == nil {
				out.Reasoning = nil
			} else {
				out.Reasoning = reasoning(stringify(r))
			}
		}
		return out
	default:
		return ValidatedAnswer{
			Answer:     stringify(val),
			Confidence: Low,
			Reasoning:  reasoning("Auto-converted from primitive."),
		}
	}
}

// stripFences removes markdown code fences around a JSON payload.
func stripFences(text string) string {
	text = fenceOpen.ReplaceAllString(text, "")
	return fenceClose.ReplaceAllString(text, "")
}

// fixAnswerNewlines escapes literal newline and carriage-return characters
// inside the "answer" JSON string field. Models frequently emit multi-line
// answers without escaping, which breaks strict decoding.
func fixAnswerNewlines(text string) string {
	return answerField.ReplaceAllStringFunc(text, func(m string) string {
		sub := answerField.FindStringSubmatch(m)
		content := strings.ReplaceAll(sub[2], "\n", `\n`)
		content = strings.ReplaceAll(content, "\r", `\r`)
		return sub[1] + `"` + content + `"`
	})
}

// extractJSON returns the first balanced JSON object or array substring. If
// none is found the input is returned unchanged so scalar payloads still
// decode.
func extractJSON(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}

	open := text[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}

// renderList formats a decoded JSON array: a numbered list when every
// element is a string, a bullet list of stringified elements otherwise.
func renderList(items []any) string {
	allStrings := true
	for _, it := range items {
		if _, ok := it.(string); !ok {
			allStrings = false
			break
		}
	}

	lines := make([]string, len(items))
	for i, it := range items {
		if allStrings {
			lines[i] = fmt.Sprintf("%d. %s", i+1, it.(string))
		} else {
			lines[i] = "- " + stringify(it)
		}
	}
	return strings.Join(lines, "\n")
}

// renderAnswer normalizes the decoded answer field to display text.
func renderAnswer(ans any) string {
	switch val := ans.(type) {
	case nil:
		return "No answer available."
	case string:
		return val
	case []any:
		return renderList(val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, len(keys))
		for i, k := range keys {
			lines[i] = fmt.Sprintf("**%s**: %s", k, stringify(val[k]))
		}
		return strings.Join(lines, "\n")
	default:
		return stringify(val)
	}
}

// normalizeConfidence maps any decoded confidence value onto the three
// labels. Numbers (and numeric strings) use the 0.8 / 0.5 thresholds.
func normalizeConfidence(c any) Confidence {
	switch val := c.(type) {
	case nil:
		return Low
	case float64:
		return confidenceFromScore(val)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return Low
		}
		switch strings.ToLower(s) {
		case "high":
			return High
		case "medium":
			return Medium
		case "low":
			return Low
		}
		if score, err := strconv.ParseFloat(s, 64); err == nil {
			return confidenceFromScore(score)
		}
		return Medium
	default:
		return Medium
	}
}

func confidenceFromScore(score float64) Confidence {
	switch {
	case score >= 0.8:
		return High
	case score >= 0.5:
		return Medium
	default:
		return Low
	}
}

// stringify renders any decoded JSON value as display text. Whole numbers
// drop their decimal point.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case nil:
		return "null"
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
