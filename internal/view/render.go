package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	oddRowStyle = cellStyle.Foreground(lipgloss.Color("#D1D5DB"))

	gainStyle = cellStyle.Foreground(lipgloss.Color("#10B981"))
	lossStyle = cellStyle.Foreground(lipgloss.Color("#EF4444"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Padding(0, 1)
)

// signedColumns are colored by sign when rendered.
var signedColumns = map[string]bool{
	"unrealizedPnL": true,
	"profitLoss":    true,
	"netProfit":     true,
}

// Render draws t as a bordered terminal table followed by a page footer.
func Render(w io.Writer, t Table) error {
	headers := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		headers[i] = h.Title
	}
	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = r.Cells
	}

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col < len(t.Headers) && signedColumns[t.Headers[col].Key] && row < len(rows) {
				v := rows[row][col]
				switch {
				case strings.HasPrefix(v, "-"):
					return lossStyle
				case v != "" && strings.Trim(v, "0.") != "":
					return gainStyle
				}
			}
			if row%2 == 1 {
				return oddRowStyle
			}
			return cellStyle
		})

	title := titleStyle.Render(strings.ToUpper(t.Name))
	footer := footerStyle.Render(footerText(t))
	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, title, tbl.Render(), footer))
	return err
}

func footerText(t Table) string {
	win := t.Window
	if win.Total == 0 {
		return "no records"
	}
	return fmt.Sprintf("showing %d-%d of %d  ·  page %d/%d  ·  %d per page",
		win.StartIndex+1, win.EndIndex, win.Total, win.Page, win.TotalPages, win.PageSize)
}
