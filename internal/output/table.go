package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kiwina/gules/internal/api"
	"github.com/kiwina/gules/internal/core"
)

const contentColumnWidth = 60

// PrintActivitiesTable prints a count header and one table row per activity.
func PrintActivitiesTable(w io.Writer, activities []api.Activity) error {
	st := newStyles()

	rows := make([][]string, 0, len(activities))
	for i, a := range activities {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			displayTime(a),
			a.Title(),
			core.Truncate(core.FirstLine(a.Content()), contentColumnWidth),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.rule).
		Headers("#", "Time", "Type", "Content").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.header
			}
			if col == 2 {
				return st.kind.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	var b strings.Builder
	fmt.Fprintln(&b, st.title.Render(fmt.Sprintf("Activities (%d)", len(activities))))
	fmt.Fprintln(&b, t.String())
	_, err := io.WriteString(w, b.String())
	return err
}

// displayTime shortens an RFC 3339 create time to minute precision in UTC,
// falling back to the raw string.
func displayTime(a api.Activity) string {
	t, err := a.CreatedAt()
	if err != nil {
		return a.CreateTime
	}
	return t.UTC().Format("2006-01-02 15:04")
}
