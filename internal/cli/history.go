package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/andywolf/competency/internal/config"
	"github.com/andywolf/competency/internal/history"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show stored assessments",
	Long: `List assessments from the history database, newest first.

Example:
  competency history
  competency history --skill Go --limit 5
  competency history --output yaml`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().String("skill", "", "only show this skill")
	historyCmd.Flags().Int("limit", 20, "maximum number of rows (0 for all)")
	historyCmd.Flags().StringP("output", "o", "table", "output format (table, yaml, json)")
	historyCmd.Flags().String("db", "", "history database path or postgres:// DSN")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Store.DSN = db
		cfg.Store.Driver = ""
	}

	skill, _ := cmd.Flags().GetString("skill")
	limit, _ := cmd.Flags().GetInt("limit")
	output, _ := cmd.Flags().GetString("output")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return showHistory(ctx, cfg, history.Filter{Skill: skill, Limit: limit}, output, cmd.OutOrStdout())
}

func showHistory(ctx context.Context, cfg *config.Config, filter history.Filter, output string, out io.Writer) error {
	switch output {
	case "table", "yaml", "json":
	default:
		return fmt.Errorf("invalid output format: %s (must be table, yaml, or json)", output)
	}

	store, err := history.OpenReadOnly(ctx, history.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN})
	if errors.Is(err, history.ErrNoHistory) {
		return printRecords(out, nil, output)
	}
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(ctx, filter)
	if err != nil {
		return err
	}
	return printRecords(out, records, output)
}

func printRecords(out io.Writer, records []history.Record, output string) error {
	if records == nil {
		records = []history.Record{}
	}
	switch output {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No assessments stored yet.")
		return nil
	}
	fmt.Fprintln(out, historyTable(records))
	return nil
}

func historyTable(records []history.Record) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "Timestamp", "Skill", "Level", "Justification")
	for _, r := range records {
		t.Row(
			strconv.FormatInt(r.ID, 10),
			r.Timestamp.Format("2006-01-02 15:04"),
			r.Skill,
			strconv.Itoa(r.Level),
			shorten(r.Justification, 50),
		)
	}
	return t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return lipgloss.NewStyle().Bold(true).Padding(0, 1)
		}
		return lipgloss.NewStyle().Padding(0, 1)
	}).String()
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
