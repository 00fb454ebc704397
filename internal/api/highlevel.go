package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/kiwina/gules/internal/core"
)

// JulesAPI provides a typed convenience layer over the Jules REST API.
type JulesAPI struct {
	transport Transport
	verbose   bool
}

// NewJulesAPI creates a new high-level API client over transport.
func NewJulesAPI(transport Transport) *JulesAPI {
	api := &JulesAPI{transport: transport}
	if c, ok := transport.(*Client); ok {
		api.verbose = c.IsVerbose()
	}
	return api
}

func (api *JulesAPI) log(msg string) {
	core.Eprint(fmt.Sprintf("[API] %s", msg), api.verbose)
}

// ListActivities fetches one page of a session's activities. A nil pageToken
// starts from the beginning.
func (api *JulesAPI) ListActivities(ctx context.Context, sessionID string, pageSize int, pageToken *string) (*ListActivitiesResponse, error) {
	params := map[string]string{}
	if pageSize > 0 {
		params["pageSize"] = strconv.Itoa(pageSize)
	}
	if pageToken != nil && *pageToken != "" {
		params["pageToken"] = *pageToken
	}

	body, err := api.transport.Request(ctx, activitiesEndpoint(sessionID), params)
	if err != nil {
		return nil, err
	}

	var resp ListActivitiesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse activities response: %w", err)
	}
	if resp.NextPageToken != nil && *resp.NextPageToken == "" {
		resp.NextPageToken = nil
	}

	next := "none"
	if resp.NextPageToken != nil {
		next = *resp.NextPageToken
	}
	api.log(fmt.Sprintf("Session %s: %d activities, nextPageToken: %s", sessionID, len(resp.Activities), next))
	return &resp, nil
}

// GetActivity fetches a single activity by id.
func (api *JulesAPI) GetActivity(ctx context.Context, sessionID, activityID string) (*Activity, error) {
	endpoint := fmt.Sprintf("%s/%s", activitiesEndpoint(sessionID), url.PathEscape(activityID))
	body, err := api.transport.Request(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var a Activity
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("failed to parse activity: %w", err)
	}
	return &a, nil
}

func activitiesEndpoint(sessionID string) string {
	return fmt.Sprintf("sessions/%s/activities", url.PathEscape(sessionID))
}
