package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwina/gules/internal/api"
	"github.com/kiwina/gules/internal/cache"
)

func sampleActivities() []api.Activity {
	exit := 1
	return []api.Activity{
		{
			ID:            "a2",
			CreateTime:    "2024-05-01T12:34:56.123Z",
			Originator:    "agent",
			Kind:          api.KindAgentMessaged,
			AgentMessaged: &api.AgentMessaged{AgentMessage: "All tests pass\nsecond line"},
		},
		{
			ID:              "a1",
			CreateTime:      "2024-05-01T12:00:00Z",
			Kind:            api.KindProgressUpdated,
			ProgressUpdated: &api.ProgressUpdated{Title: "Running tests"},
			Artifacts: []api.Artifact{{
				BashOutput: &api.BashOutput{Command: "go test ./...", Output: "FAIL\nexit", ExitCode: &exit},
			}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"json":         FormatJSON,
		"TABLE":        FormatTable,
		" full ":       FormatFull,
		"content":      FormatContent,
		"content-only": FormatContent,
		"":             FormatJSON,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("yaml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestPrintActivitiesEmptyTextFormats(t *testing.T) {
	for _, f := range []Format{FormatTable, FormatFull, FormatContent} {
		var buf bytes.Buffer
		require.NoError(t, PrintActivities(&buf, nil, f))
		assert.Equal(t, NoActivitiesMessage+"\n", buf.String(), f)
	}
}

func TestPrintActivitiesEmptyJSONIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintActivities(&buf, nil, FormatJSON))
	assert.Equal(t, "[]\n", buf.String())
}

func TestPrintActivitiesJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintActivities(&buf, sampleActivities(), FormatJSON))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "a2", decoded[0]["id"])
	assert.Contains(t, decoded[0], "agentMessaged")
	assert.Contains(t, decoded[1], "progressUpdated")
}

func TestPrintActivitiesTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintActivities(&buf, sampleActivities(), FormatTable))
	out := buf.String()

	assert.Contains(t, out, "Activities (2)")
	assert.Contains(t, out, "Time")
	assert.Contains(t, out, "2024-05-01 12:34")
	assert.Contains(t, out, "Agent Messaged")
	assert.Contains(t, out, "All tests pass")
	assert.NotContains(t, out, "second line")
	assert.Contains(t, out, "Ran: go test ./...")
}

func TestPrintActivitiesTableTruncatesContent(t *testing.T) {
	long := strings.Repeat("x", 200)
	var buf bytes.Buffer
	require.NoError(t, PrintActivitiesTable(&buf, []api.Activity{{
		ID: "1", CreateTime: "not a time",
		Kind: api.KindUserMessaged, UserMessaged: &api.UserMessaged{UserMessage: long},
	}}))

	assert.Contains(t, buf.String(), "not a time")
	assert.NotContains(t, buf.String(), long)
	assert.Contains(t, buf.String(), strings.Repeat("x", contentColumnWidth-3)+"...")
}

func TestPrintActivitiesFull(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintActivities(&buf, sampleActivities(), FormatFull))
	out := buf.String()

	assert.Contains(t, out, "Activity 1/2")
	assert.Contains(t, out, "Activity 2/2")
	assert.Contains(t, out, "ID: a2")
	assert.Contains(t, out, "Originator: agent")
	assert.Contains(t, out, "Artifacts: 1")
	assert.Contains(t, out, "    Command: go test ./...")
	assert.Contains(t, out, "    Exit Code: 1")
	assert.Contains(t, out, "    FAIL\n    exit")
}

func TestPrintActivitiesFullChangeSet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintActivitiesFull(&buf, []api.Activity{{
		ID: "c", Kind: api.KindSessionCompleted, SessionCompleted: &api.SessionCompleted{},
		Artifacts: []api.Artifact{{ChangeSet: &api.ChangeSet{
			Source:   "sources/github/o/r",
			GitPatch: &api.GitPatch{BaseCommitID: "abc123", SuggestedCommitMessage: "fix it"},
		}}},
	}}))
	out := buf.String()

	assert.Contains(t, out, "Type: Change Set")
	assert.Contains(t, out, "Base Commit: abc123")
	assert.Contains(t, out, "Suggested Commit: fix it")
	assert.Contains(t, out, "(No diff available)")
}

func TestPrintActivitiesContentSkipsEmpty(t *testing.T) {
	activities := append(sampleActivities(), api.Activity{
		ID: "x", Kind: api.KindSessionCompleted, SessionCompleted: &api.SessionCompleted{},
	})
	var buf bytes.Buffer
	require.NoError(t, PrintActivities(&buf, activities, FormatContent))

	assert.Equal(t, 2, strings.Count(buf.String(), "---\n"))
	assert.True(t, strings.HasPrefix(buf.String(), "All tests pass\nsecond line\n---\n"))
}

func TestRenderStats(t *testing.T) {
	updated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	out := RenderStats(cache.Stats{
		Enabled:         true,
		TotalSessions:   2,
		MaxSessions:     50,
		TotalActivities: 1234,
		TotalSizeBytes:  3 * 1024 * 1024,
		Location:        "/tmp/gules/activities",
		Sessions: []cache.SessionStats{
			{SessionID: "s1", Activities: 1234, SizeBytes: 3 * 1024 * 1024, LastUpdated: updated},
			{SessionID: "s2", Err: "not found"},
		},
	})

	assert.Contains(t, out, "Activity Cache Statistics")
	assert.Contains(t, out, "Enabled")
	assert.Contains(t, out, "/tmp/gules/activities")
	assert.Contains(t, out, "Sessions: 2/50")
	assert.Contains(t, out, "Total Activities: 1,234")
	assert.Contains(t, out, "Disk Usage: 3.0 MiB")
	assert.Contains(t, out, "1. s1 (1234 activities, 3.0 MiB, updated 2024-05-01 10:00)")
	assert.Contains(t, out, "2. s2 (unreadable: not found)")
}

func TestRenderStatsEmptyDisabled(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintStats(&buf, cache.Stats{MaxSessions: 10, Location: "mem"}))

	assert.Contains(t, buf.String(), "Disabled")
	assert.Contains(t, buf.String(), "Sessions: 0/10")
	assert.Contains(t, buf.String(), "Disk Usage: 0 B")
	assert.NotContains(t, buf.String(), "Cached Sessions")
}
