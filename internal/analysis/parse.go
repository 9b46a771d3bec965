package analysis

import (
	"regexp"
	"strconv"
	"strings"
)

// NoJustification is used when a response has no Justification label.
const NoJustification = "No justification provided."

var (
	levelPattern         = regexp.MustCompile(`Level:\s*(\d)`)
	justificationPattern = regexp.MustCompile(`(?s)Justification:\s*(.*)`)
)

// ParseResponse extracts the level and justification from a model answer.
// It never fails: a missing or out-of-range level is 0 (undetermined) and a
// missing justification is NoJustification. Labels are case-sensitive and
// only the first digit after "Level:" is read.
func ParseResponse(text string) (int, string) {
	level := 0
	if m := levelPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 5 {
			level = n
		}
	}

	justification := NoJustification
	if m := justificationPattern.FindStringSubmatch(text); m != nil {
		justification = strings.TrimSpace(m[1])
	}
	return level, justification
}
