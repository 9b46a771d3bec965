package jira

import (
	"regexp"
	"strings"
)

var (
	// macroPattern matches {code}, {noformat}, {color:red} style macros.
	macroPattern = regexp.MustCompile(`\{[^{}]+\}`)

	// linkPattern matches [text|url] and [~user] style links.
	linkPattern = regexp.MustCompile(`\[[^\[\]]+\]`)

	// spaceClass is every character treated as a word separator: ASCII
	// whitespace including \v, the C0 information separators, NEL and the
	// Unicode space separators such as NBSP.
	spaceClass = `\s\v\x1c-\x1f\x85\p{Z}`

	nonWordPattern    = regexp.MustCompile(`[^a-zA-Z0-9` + spaceClass + `]`)
	whitespacePattern = regexp.MustCompile(`[` + spaceClass + `]+`)
)

// CleanText strips Jira markup and punctuation, leaving ASCII letters, digits
// and single spaces. Any whitespace, Unicode spaces included, separates words.
// The result is stable under repeated application.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = macroPattern.ReplaceAllString(text, "")
	text = linkPattern.ReplaceAllString(text, "")
	text = nonWordPattern.ReplaceAllString(text, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// CleanDescription is CleanText for the nullable description field.
func CleanDescription(desc *string) string {
	if desc == nil {
		return ""
	}
	return CleanText(*desc)
}
