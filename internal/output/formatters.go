// Package output renders activities and cache statistics for the gules CLI.
//
// Every printer takes the destination writer so commands can target
// cobra's configured output and tests can capture it.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kiwina/gules/internal/api"
)

// NoActivitiesMessage is printed by the text formats when a filter leaves
// nothing to show.
const NoActivitiesMessage = "No activities found matching the filters."

// Format selects how activities are printed.
type Format string

const (
	FormatJSON    Format = "json"
	FormatTable   Format = "table"
	FormatFull    Format = "full"
	FormatContent Format = "content"
)

// ParseFormat maps a --format value to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatTable, FormatFull, FormatContent:
		return f, nil
	case "content-only":
		return FormatContent, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (expected json, table, full or content)", s)
	}
}

// PrintActivities writes activities in the given format.
func PrintActivities(w io.Writer, activities []api.Activity, format Format) error {
	if format == FormatJSON {
		if activities == nil {
			activities = []api.Activity{}
		}
		return PrintJSON(w, activities)
	}
	if len(activities) == 0 {
		_, err := fmt.Fprintln(w, NoActivitiesMessage)
		return err
	}
	switch format {
	case FormatFull:
		return PrintActivitiesFull(w, activities)
	case FormatContent:
		return PrintActivitiesContent(w, activities)
	default:
		return PrintActivitiesTable(w, activities)
	}
}

// PrintJSON prints a single item as indented JSON.
func PrintJSON(w io.Writer, item any) error {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// PrintActivitiesFull prints every field of each activity, including its
// artifacts.
func PrintActivitiesFull(w io.Writer, activities []api.Activity) error {
	st := newStyles()
	rule := st.rule.Render(strings.Repeat("─", 41))
	var b strings.Builder

	for i, a := range activities {
		fmt.Fprintln(&b, rule)
		fmt.Fprintln(&b, st.title.Render(fmt.Sprintf("Activity %d/%d", i+1, len(activities))))
		fmt.Fprintln(&b, rule)
		fmt.Fprintf(&b, "ID: %s\n", a.ID)
		fmt.Fprintf(&b, "Type: %s\n", st.kind.Render(a.Title()))
		fmt.Fprintf(&b, "Time: %s\n", a.CreateTime)
		if a.Originator != "" {
			fmt.Fprintf(&b, "Originator: %s\n", a.Originator)
		}
		if a.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", a.Description)
		}
		if content := a.Content(); content != "" {
			fmt.Fprintf(&b, "\nContent:\n%s\n", content)
		}
		if len(a.Artifacts) > 0 {
			fmt.Fprintf(&b, "\nArtifacts: %d\n", len(a.Artifacts))
			for j, art := range a.Artifacts {
				fmt.Fprintf(&b, "  Artifact %d:\n", j+1)
				writeArtifact(&b, art)
			}
		}
		fmt.Fprintln(&b)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeArtifact(b *strings.Builder, art api.Artifact) {
	if bash := art.BashOutput; bash != nil {
		cmd := bash.Command
		if cmd == "" {
			cmd = "[Empty command]"
		}
		exit := "unknown"
		if bash.ExitCode != nil {
			exit = fmt.Sprint(*bash.ExitCode)
		}
		out := bash.Output
		if out == "" {
			out = "[No output]"
		}
		fmt.Fprintln(b, "    Type: Bash Output")
		fmt.Fprintf(b, "    Command: %s\n", cmd)
		fmt.Fprintf(b, "    Exit Code: %s\n", exit)
		fmt.Fprintln(b, "    Output:")
		fmt.Fprintf(b, "    %s\n", strings.ReplaceAll(strings.TrimRight(out, "\n"), "\n", "\n    "))
	}
	if cs := art.ChangeSet; cs != nil {
		fmt.Fprintln(b, "    Type: Change Set")
		fmt.Fprintf(b, "    Source: %s\n", cs.Source)
		if p := cs.GitPatch; p != nil {
			if p.BaseCommitID != "" {
				fmt.Fprintf(b, "    Base Commit: %s\n", p.BaseCommitID)
			}
			if p.SuggestedCommitMessage != "" {
				fmt.Fprintf(b, "    Suggested Commit: %s\n", p.SuggestedCommitMessage)
			}
			if p.UnidiffPatch == "" {
				fmt.Fprintln(b, "    (No diff available)")
			}
		}
	}
	if m := art.Media; m != nil {
		fmt.Fprintln(b, "    Type: Media")
		fmt.Fprintf(b, "    MIME Type: %s\n", m.MimeType)
	}
}

// PrintActivitiesContent prints only the content of each activity, one
// block per activity separated by "---".
func PrintActivitiesContent(w io.Writer, activities []api.Activity) error {
	var b strings.Builder
	for _, a := range activities {
		content := a.Content()
		if content == "" {
			continue
		}
		fmt.Fprintln(&b, content)
		fmt.Fprintln(&b, "---")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
