package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kiwina/gules/internal/core"
)

// Kind identifies which payload member of an Activity is set.
type Kind string

const (
	KindNone             Kind = ""
	KindAgentMessaged    Kind = "agentMessaged"
	KindUserMessaged     Kind = "userMessaged"
	KindPlanGenerated    Kind = "planGenerated"
	KindPlanApproved     Kind = "planApproved"
	KindProgressUpdated  Kind = "progressUpdated"
	KindSessionCompleted Kind = "sessionCompleted"
	KindSessionFailed    Kind = "sessionFailed"
	KindUnknown          Kind = "unknown"
)

var knownKinds = []Kind{
	KindAgentMessaged,
	KindUserMessaged,
	KindPlanGenerated,
	KindPlanApproved,
	KindProgressUpdated,
	KindSessionCompleted,
	KindSessionFailed,
}

// Members every activity carries regardless of kind.
var standardFields = map[string]bool{
	"name":        true,
	"id":          true,
	"description": true,
	"createTime":  true,
	"originator":  true,
	"artifacts":   true,
}

// Activity is one event in a session's activity stream.
//
// Exactly one payload pointer matches Kind. Activities the client does not
// recognise decode as KindUnknown with KindField naming the remote member,
// and the payload stays available through UnknownPayload.
//
// A decoded Activity re-encodes from the members it was decoded from, so
// fields this package does not model survive a round trip to the cache.
type Activity struct {
	Name        string
	ID          string
	Description string
	CreateTime  string
	Originator  string
	Artifacts   []Artifact

	Kind      Kind
	KindField string

	AgentMessaged    *AgentMessaged
	UserMessaged     *UserMessaged
	PlanGenerated    *PlanGenerated
	PlanApproved     *PlanApproved
	ProgressUpdated  *ProgressUpdated
	SessionCompleted *SessionCompleted
	SessionFailed    *SessionFailed

	raw map[string]json.RawMessage
}

type activityFields struct {
	Name             string            `json:"name,omitempty"`
	ID               string            `json:"id"`
	Description      string            `json:"description,omitempty"`
	CreateTime       string            `json:"createTime"`
	Originator       string            `json:"originator,omitempty"`
	Artifacts        []Artifact        `json:"artifacts,omitempty"`
	AgentMessaged    *AgentMessaged    `json:"agentMessaged,omitempty"`
	UserMessaged     *UserMessaged     `json:"userMessaged,omitempty"`
	PlanGenerated    *PlanGenerated    `json:"planGenerated,omitempty"`
	PlanApproved     *PlanApproved     `json:"planApproved,omitempty"`
	ProgressUpdated  *ProgressUpdated  `json:"progressUpdated,omitempty"`
	SessionCompleted *SessionCompleted `json:"sessionCompleted,omitempty"`
	SessionFailed    *SessionFailed    `json:"sessionFailed,omitempty"`
}

// UnmarshalJSON decodes the typed view and keeps every member verbatim.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return fmt.Errorf("decode activity: %w", err)
	}
	var f activityFields
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode activity: %w", err)
	}

	raw := make(map[string]json.RawMessage, len(members))
	for k, v := range members {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return fmt.Errorf("decode activity member %q: %w", k, err)
		}
		raw[k] = json.RawMessage(buf.Bytes())
	}

	*a = Activity{
		Name:             f.Name,
		ID:               f.ID,
		Description:      f.Description,
		CreateTime:       f.CreateTime,
		Originator:       f.Originator,
		Artifacts:        f.Artifacts,
		AgentMessaged:    f.AgentMessaged,
		UserMessaged:     f.UserMessaged,
		PlanGenerated:    f.PlanGenerated,
		PlanApproved:     f.PlanApproved,
		ProgressUpdated:  f.ProgressUpdated,
		SessionCompleted: f.SessionCompleted,
		SessionFailed:    f.SessionFailed,
		raw:              raw,
	}
	a.Kind, a.KindField = detectKind(raw)
	return nil
}

// MarshalJSON emits the original members for decoded activities and the
// typed fields for activities built in code.
func (a Activity) MarshalJSON() ([]byte, error) {
	if a.raw != nil {
		return json.Marshal(a.raw)
	}
	return json.Marshal(activityFields{
		Name:             a.Name,
		ID:               a.ID,
		Description:      a.Description,
		CreateTime:       a.CreateTime,
		Originator:       a.Originator,
		Artifacts:        a.Artifacts,
		AgentMessaged:    a.AgentMessaged,
		UserMessaged:     a.UserMessaged,
		PlanGenerated:    a.PlanGenerated,
		PlanApproved:     a.PlanApproved,
		ProgressUpdated:  a.ProgressUpdated,
		SessionCompleted: a.SessionCompleted,
		SessionFailed:    a.SessionFailed,
	})
}

func detectKind(raw map[string]json.RawMessage) (Kind, string) {
	for _, k := range knownKinds {
		if v, ok := raw[string(k)]; ok && !isNull(v) {
			return k, string(k)
		}
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !standardFields[k] && !isNull(raw[k]) {
			return KindUnknown, k
		}
	}
	return KindNone, ""
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

// UnknownPayload returns the raw member of an unrecognised activity kind.
func (a Activity) UnknownPayload() json.RawMessage {
	if a.Kind != KindUnknown {
		return nil
	}
	return a.raw[a.KindField]
}

// Title is the human readable activity type, e.g. "Agent Messaged".
func (a Activity) Title() string {
	switch a.Kind {
	case KindNone:
		return "[ERROR: No Activity Type]"
	case KindUnknown:
		return core.TitleFromCamel(a.KindField) + " [UNKNOWN]"
	default:
		return core.TitleFromCamel(string(a.Kind))
	}
}

// Content is the message or summary carried by the activity, empty when the
// kind has none.
func (a Activity) Content() string {
	switch {
	case a.AgentMessaged != nil:
		return a.AgentMessaged.AgentMessage
	case a.UserMessaged != nil:
		return a.UserMessaged.UserMessage
	case a.ProgressUpdated != nil:
		if cmd := a.BashCommand(); cmd != "" {
			return "Ran: " + cmd
		}
		title := a.ProgressUpdated.Title
		if title == "" {
			title = "Progress update"
		}
		return title + ": " + a.ProgressUpdated.Description
	case a.SessionFailed != nil:
		return "Session failed: " + a.SessionFailed.Reason
	}
	return ""
}

// BashCommand returns the first bash command in the artifacts on one line.
func (a Activity) BashCommand() string {
	for _, art := range a.Artifacts {
		if art.BashOutput != nil {
			cmd := strings.TrimSpace(art.BashOutput.Command)
			cmd = strings.ReplaceAll(cmd, "\n", " ")
			return strings.ReplaceAll(cmd, "  ", " ")
		}
	}
	return ""
}

// HasBashOutput reports whether any artifact carries bash output.
func (a Activity) HasBashOutput() bool {
	for _, art := range a.Artifacts {
		if art.BashOutput != nil {
			return true
		}
	}
	return false
}

// CreatedAt parses CreateTime as RFC 3339.
func (a Activity) CreatedAt() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, a.CreateTime)
}
