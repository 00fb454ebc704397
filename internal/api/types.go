// Package api provides the HTTP client and types for the Jules API.
package api

import "context"

// Artifact is one output attached to an activity.
type Artifact struct {
	ChangeSet  *ChangeSet  `json:"changeSet,omitempty"`
	Media      *Media      `json:"media,omitempty"`
	BashOutput *BashOutput `json:"bashOutput,omitempty"`
}

// ChangeSet describes a code change produced by the agent.
type ChangeSet struct {
	Source   string    `json:"source"`
	GitPatch *GitPatch `json:"gitPatch,omitempty"`
}

// GitPatch is a unified diff against a base commit.
type GitPatch struct {
	UnidiffPatch           string `json:"unidiffPatch,omitempty"`
	BaseCommitID           string `json:"baseCommitId,omitempty"`
	SuggestedCommitMessage string `json:"suggestedCommitMessage,omitempty"`
}

// Media is a base64 encoded blob.
type Media struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// BashOutput records a command the agent ran.
type BashOutput struct {
	Command  string `json:"command"`
	Output   string `json:"output"`
	ExitCode *int   `json:"exitCode,omitempty"`
}

type AgentMessaged struct {
	AgentMessage string `json:"agentMessage"`
}

type UserMessaged struct {
	UserMessage string `json:"userMessage"`
}

type PlanGenerated struct {
	Plan Plan `json:"plan"`
}

type Plan struct {
	ID         string     `json:"id"`
	Steps      []PlanStep `json:"steps,omitempty"`
	CreateTime string     `json:"createTime,omitempty"`
}

type PlanStep struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Index       *int   `json:"index,omitempty"`
}

type PlanApproved struct {
	PlanID string `json:"planId"`
}

type ProgressUpdated struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type SessionCompleted struct{}

type SessionFailed struct {
	Reason string `json:"reason"`
}

// ListActivitiesResponse is one page of GET sessions/{id}/activities.
type ListActivitiesResponse struct {
	Activities    []Activity `json:"activities"`
	NextPageToken *string    `json:"nextPageToken,omitempty"`
}

// Transport is the interface for making API requests.
// Implementations return the raw JSON response body.
type Transport interface {
	Request(ctx context.Context, endpoint string, params map[string]string) ([]byte, error)
}
