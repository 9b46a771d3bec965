// Package matrix loads the competency matrix: one row per skill with a
// rubric text for each of the five levels.
package matrix

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// SkillColumn is the header of the skill name column.
const SkillColumn = "Skill"

// Levels is the number of rubric levels per skill.
const Levels = 5

// Row is one skill and its rubric. Levels[0] describes level 1.
type Row struct {
	Skill  string
	Levels [Levels]string
}

// Level returns the rubric for level n (1-based), or "" when out of range.
func (r Row) Level(n int) string {
	if n < 1 || n > Levels {
		return ""
	}
	return r.Levels[n-1]
}

// Load reads a matrix CSV file.
func Load(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open competency matrix: %w", err)
	}
	defer f.Close()

	rows, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse competency matrix %s: %w", path, err)
	}
	return rows, nil
}

// Parse reads matrix rows from CSV. The header must contain Skill and 1..5 in
// any order; other columns are ignored. Rows with an empty skill are skipped.
func Parse(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing header row")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		skill := strings.TrimSpace(field(record, index[SkillColumn]))
		if skill == "" {
			continue
		}
		row := Row{Skill: skill}
		for lvl := 1; lvl <= Levels; lvl++ {
			row.Levels[lvl-1] = strings.TrimSpace(field(record, index[strconv.Itoa(lvl)]))
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// Duplicates returns skill names that occur more than once, in first-seen order.
func Duplicates(rows []Row) []string {
	seen := make(map[string]int, len(rows))
	var dups []string
	for _, r := range rows {
		seen[r.Skill]++
		if seen[r.Skill] == 2 {
			dups = append(dups, r.Skill)
		}
	}
	return dups
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}

	required := []string{SkillColumn}
	for lvl := 1; lvl <= Levels; lvl++ {
		required = append(required, strconv.Itoa(lvl))
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}
	return index, nil
}

func field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}
