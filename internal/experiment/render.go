package experiment

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

// Styles for report tables. Plain styles are used off a terminal.
type Styles struct {
	Header lipgloss.Style
	Cell   lipgloss.Style
	Best   lipgloss.Style
	Dim    lipgloss.Style
	Border lipgloss.Style
	Color  bool
}

func colorStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A3E635")).Padding(0, 1),
		Cell:   lipgloss.NewStyle().Padding(0, 1),
		Best:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A3E635")).Padding(0, 1),
		Dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Padding(0, 1),
		Border: lipgloss.NewStyle().Foreground(lipgloss.Color("#4B5563")),
		Color:  true,
	}
}

func plainStyles() Styles {
	cell := lipgloss.NewStyle().Padding(0, 1)
	return Styles{Header: cell, Cell: cell, Best: cell, Dim: cell, Border: lipgloss.NewStyle()}
}

// StylesFor picks colour styles when w is a terminal and NO_COLOR is unset.
func StylesFor(w io.Writer) Styles {
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return plainStyles()
	}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return colorStyles()
	}
	return plainStyles()
}

// Render writes the comparison table and, when perQuery is set, the
// per-query breakdown.
func Render(w io.Writer, r *Report, perQuery bool) error {
	st := StylesFor(w)
	if _, err := fmt.Fprintln(w, SummaryTable(r, st)); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, footer(r)); err != nil {
		return err
	}
	if !perQuery {
		return nil
	}
	_, err := fmt.Fprintln(w, PerQueryTable(r, st))
	return err
}

func footer(r *Report) string {
	s := fmt.Sprintf("run %s: %d queries, query set %s", r.RunID, r.Queries, r.QuerySet)
	if r.Aborted {
		s += " (aborted, partial results)"
	}
	return s
}

func newTable(st Styles) *table.Table {
	t := table.New().BorderStyle(st.Border)
	if st.Color {
		return t.Border(lipgloss.RoundedBorder())
	}
	return t.Border(lipgloss.MarkdownBorder()).BorderTop(false).BorderBottom(false)
}

// SummaryTable renders one row per pipeline with the metric means. The best
// mean of each metric is highlighted on colour terminals.
func SummaryTable(r *Report, st Styles) string {
	headers := []string{"pipeline"}
	headers = append(headers, r.Metrics...)
	headers = append(headers, "evaluated", "excluded (NA)", "failed", "cached")
	withBaseline := r.Baseline != ""
	if withBaseline {
		for _, m := range r.Metrics {
			headers = append(headers, m+" +", m+" -")
		}
	}

	best := make(map[string]float64, len(r.Metrics))
	for _, s := range r.Pipelines {
		for _, m := range r.Metrics {
			if v := s.Means[m]; v > best[m] {
				best[m] = v
			}
		}
	}

	rows := make([][]string, 0, len(r.Pipelines))
	for _, s := range r.Pipelines {
		row := []string{s.Pipeline}
		for _, m := range r.Metrics {
			if s.Evaluated == 0 {
				row = append(row, "NA")
				continue
			}
			row = append(row, formatValue(s.Means[m]))
		}
		row = append(row,
			strconv.Itoa(s.Evaluated),
			strconv.Itoa(s.Excluded),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.CacheHits),
		)
		if withBaseline {
			for _, m := range r.Metrics {
				if s.Pipeline == r.Baseline {
					row = append(row, "-", "-")
					continue
				}
				row = append(row, strconv.Itoa(s.Improved[m]), strconv.Itoa(s.Degraded[m]))
			}
		}
		rows = append(rows, row)
	}

	return newTable(st).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.Header
			}
			if col >= 1 && col <= len(r.Metrics) && row >= 0 && row < len(r.Pipelines) {
				s := r.Pipelines[row]
				m := r.Metrics[col-1]
				if s.Evaluated > 0 && best[m] > 0 && s.Means[m] == best[m] {
					return st.Best
				}
			}
			return st.Cell
		}).
		String()
}

// PerQueryTable renders one row per (pipeline, qid). Unjudged and failed
// items show NA.
func PerQueryTable(r *Report, st Styles) string {
	headers := append([]string{"pipeline", "qid"}, r.Metrics...)
	headers = append(headers, "retrieved", "note")

	rows := make([][]string, 0, len(r.Items))
	for _, it := range r.Items {
		row := []string{it.Pipeline, it.QID}
		for _, m := range r.Metrics {
			if v := it.Values[m]; v != nil {
				row = append(row, formatValue(*v))
			} else {
				row = append(row, "NA")
			}
		}
		note := ""
		switch {
		case it.Err != "":
			note = "error: " + it.Err
		case !it.Judged:
			note = "no judgments"
		case it.CacheHit:
			note = "cached"
		}
		row = append(row, strconv.Itoa(len(it.Ranking)), note)
		rows = append(rows, row)
	}

	return newTable(st).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return st.Header
			case row >= 0 && row < len(r.Items) && !r.Items[row].Evaluated():
				return st.Dim
			}
			return st.Cell
		}).
		String()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
