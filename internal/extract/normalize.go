package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var spaceRun = regexp.MustCompile(`\s+`)

// Normalize prepares extracted text for chunking: Unicode NFKC
// normalization, per-line trimming, collapsing of intra-line whitespace
// runs, and removal of blank lines.
func Normalize(text string) string {
	text = norm.NFKC.String(text)

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cleaned = append(cleaned, spaceRun.ReplaceAllString(line, " "))
	}

	return strings.Join(cleaned, "\n")
}
