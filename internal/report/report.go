// Package report renders analysis results as Markdown and as a terminal table.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/andywolf/competency/internal/analysis"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	// DefaultPath is where the Markdown report is written.
	DefaultPath = "data/competency_report.md"

	// TimestampLayout formats the generation time in the report header.
	TimestampLayout = "2006-01-02 15:04:05"

	title = "# Competency Matrix Report"
)

// Render builds the Markdown report. Skills appear in results order.
func Render(results *analysis.Results, generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString(title + "\n\n")
	fmt.Fprintf(&b, "Report generated on: %s\n\n", generatedAt.Format(TimestampLayout))

	if results == nil {
		return b.String()
	}
	for _, skill := range results.Skills() {
		a, _ := results.Get(skill)
		fmt.Fprintf(&b, "## %s\n\n", skill)
		fmt.Fprintf(&b, "Level: %d\n", a.Level)
		fmt.Fprintf(&b, "Justification: %s\n\n", a.Justification)
	}
	return b.String()
}

// Write renders the report and replaces the file at path, creating its
// directory if needed.
func Write(path string, results *analysis.Results, now time.Time) error {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(Render(results, now)), 0644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	levelStyle  = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Center)
	mutedStyle  = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("241"))
)

// summaryWidth caps the justification column in the terminal table.
const summaryWidth = 60

// Summary renders a Skill/Level/Justification table for the terminal.
// Undetermined levels are shown as "-".
func Summary(results *analysis.Results) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("241"))).
		Headers("Skill", "Level", "Justification")

	if results != nil {
		for _, skill := range results.Skills() {
			a, _ := results.Get(skill)
			level := "-"
			if a.Level > 0 {
				level = strconv.Itoa(a.Level)
			}
			t.Row(skill, level, truncate(a.Justification, summaryWidth))
		}
	}

	return t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 1:
			return levelStyle
		case col == 2:
			return mutedStyle
		default:
			return cellStyle
		}
	}).String()
}

func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
