package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/kiwina/gules/internal/cache"
)

// RenderStats formats cache statistics as a report.
func RenderStats(stats cache.Stats) string {
	st := newStyles()

	status := st.ok.Render("Enabled")
	if !stats.Enabled {
		status = st.warning.Render("Disabled")
	}

	lines := []string{
		st.title.Render("Activity Cache Statistics"),
		st.rule.Render(strings.Repeat("═", 27)),
		field(st, "Status", status),
		field(st, "Location", st.value.Render(stats.Location)),
		"",
		field(st, "Sessions", fmt.Sprintf("%d/%d", stats.TotalSessions, stats.MaxSessions)),
		field(st, "Total Activities", humanize.Comma(int64(stats.TotalActivities))),
		field(st, "Disk Usage", humanize.IBytes(uint64(stats.TotalSizeBytes))),
	}

	if len(stats.Sessions) > 0 {
		lines = append(lines, "", st.title.Render("Cached Sessions:"))
		for i, s := range stats.Sessions {
			if s.Err != "" {
				lines = append(lines, st.warning.Render(
					fmt.Sprintf("  %d. %s (unreadable: %s)", i+1, s.SessionID, s.Err)))
				continue
			}
			lines = append(lines, fmt.Sprintf("  %d. %s (%d activities, %s, updated %s)",
				i+1, s.SessionID, s.Activities,
				humanize.IBytes(uint64(s.SizeBytes)),
				s.LastUpdated.Local().Format("2006-01-02 15:04")))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// PrintStats writes RenderStats to w.
func PrintStats(w io.Writer, stats cache.Stats) error {
	_, err := fmt.Fprintln(w, RenderStats(stats))
	return err
}

func field(st styles, label, value string) string {
	return st.label.Render(label+":") + " " + value
}
