// Package prompt renders the competency evaluation prompt from a
// Mustache-style template.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/andywolf/competency/internal/matrix"
)

//go:embed default.md
var defaultTemplate string

// Variable names available to templates.
const (
	VarSkill   = "skill"
	VarTickets = "tickets"
)

// variablePattern matches {{variable}} placeholders and captures the name.
var variablePattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// Template is a prompt with {{skill}}, {{level_1}}..{{level_5}} and
// {{tickets}} placeholders.
type Template struct {
	text string
}

// Default returns the built-in evaluation prompt.
func Default() *Template {
	return &Template{text: defaultTemplate}
}

// New wraps template text.
func New(text string) *Template {
	return &Template{text: text}
}

// Load reads a template file. An empty path yields the default template.
func Load(path string) (*Template, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt template %s: %w", path, err)
	}
	return New(string(data)), nil
}

// Text returns the raw template.
func (t *Template) Text() string {
	return t.text
}

// ForSkill renders the template for one matrix row against the combined ticket text.
func (t *Template) ForSkill(row matrix.Row, tickets string) string {
	return t.Render(Variables(row, tickets))
}

// Render substitutes placeholders in a single pass; substituted values are
// never re-expanded. Unknown placeholders are left as they are.
func (t *Template) Render(vars map[string]string) string {
	if len(vars) == 0 {
		return t.text
	}
	return variablePattern.ReplaceAllStringFunc(t.text, func(match string) string {
		name := variablePattern.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Variables builds the substitution map for a matrix row.
func Variables(row matrix.Row, tickets string) map[string]string {
	vars := make(map[string]string, matrix.Levels+2)
	vars[VarSkill] = row.Skill
	vars[VarTickets] = tickets
	for lvl := 1; lvl <= matrix.Levels; lvl++ {
		vars["level_"+strconv.Itoa(lvl)] = row.Level(lvl)
	}
	return vars
}
