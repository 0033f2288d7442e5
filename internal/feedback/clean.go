package feedback

import (
	"regexp"
	"strings"
)

var (
	openTag   = regexp.MustCompile(`(?i)^<s>\s*`)
	closeTag  = regexp.MustCompile(`(?i)</s>$`)
	jsonFence = regexp.MustCompile("(?i)```json\\s*")
)

// Clean strips a leading <s>, a trailing </s> and any code fences from
// model output, then trims whitespace. Clean(Clean(x)) == Clean(x).
func Clean(s string) string {
	for {
		next := cleanOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func cleanOnce(s string) string {
	s = strings.TrimSpace(s)
	s = openTag.ReplaceAllString(s, "")
	s = closeTag.ReplaceAllString(s, "")
	s = jsonFence.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
