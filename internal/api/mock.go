package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// RequestLogEntry records a request made to a fake transport.
type RequestLogEntry struct {
	Endpoint string
	Params   map[string]string
}

// InMemoryTransport is a lightweight simulation of the Jules activities API.
// Each session holds an ordered activity list served in pages whose tokens
// are decimal offsets.
type InMemoryTransport struct {
	mu         sync.Mutex
	sessions   map[string][]Activity
	RequestLog []RequestLogEntry
	// Err, when set, is returned from every request after it is logged.
	Err     error
	Verbose bool
}

// NewInMemoryTransport creates a new in-memory transport for testing.
func NewInMemoryTransport(verbose bool) *InMemoryTransport {
	return &InMemoryTransport{
		sessions:   make(map[string][]Activity),
		RequestLog: make([]RequestLogEntry, 0),
		Verbose:    verbose,
	}
}

// Seed appends activities to a session's remote list.
func (t *InMemoryTransport) Seed(sessionID string, activities ...Activity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[sessionID] = append(t.sessions[sessionID], activities...)
}

// RequestsMade returns the number of requests made to this transport.
func (t *InMemoryTransport) RequestsMade() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.RequestLog)
}

// Requests returns a copy of the request log.
func (t *InMemoryTransport) Requests() []RequestLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RequestLogEntry, len(t.RequestLog))
	copy(out, t.RequestLog)
	return out
}

// Reset clears all stored activities and recorded requests.
func (t *InMemoryTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = make(map[string][]Activity)
	t.RequestLog = make([]RequestLogEntry, 0)
	t.Err = nil
}

// Request simulates GET sessions/{id}/activities[/{activityID}].
func (t *InMemoryTransport) Request(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.RequestLog = append(t.RequestLog, RequestLogEntry{
		Endpoint: endpoint,
		Params:   copyParams(params),
	})
	if t.Err != nil {
		return nil, t.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sessionID, activityID, err := parseActivitiesEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	list := t.sessions[sessionID]

	if activityID != "" {
		for _, a := range list {
			if a.ID == activityID {
				return json.Marshal(a)
			}
		}
		return nil, &APIError{StatusCode: 404, Message: fmt.Sprintf("activity %s not found", activityID)}
	}

	limit := 50
	if l, ok := params["pageSize"]; ok && l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	startIdx := 0
	if tok, ok := params["pageToken"]; ok && tok != "" {
		idx, err := strconv.Atoi(tok)
		if err != nil || idx < 0 {
			return nil, &APIError{StatusCode: 400, Message: fmt.Sprintf("invalid page token %q", tok)}
		}
		startIdx = idx
	}
	if startIdx > len(list) {
		startIdx = len(list)
	}

	endIdx := startIdx + limit
	if endIdx > len(list) {
		endIdx = len(list)
	}

	resp := ListActivitiesResponse{Activities: append([]Activity{}, list[startIdx:endIdx]...)}
	if endIdx < len(list) {
		nc := strconv.Itoa(endIdx)
		resp.NextPageToken = &nc
	}
	return json.Marshal(resp)
}

func parseActivitiesEndpoint(endpoint string) (sessionID, activityID string, err error) {
	parts := strings.Split(strings.Trim(endpoint, "/"), "/")
	if len(parts) < 3 || parts[0] != "sessions" || parts[2] != "activities" || len(parts) > 4 {
		return "", "", &APIError{StatusCode: 404, Message: fmt.Sprintf("unknown endpoint %s", endpoint)}
	}
	if sessionID, err = url.PathUnescape(parts[1]); err != nil {
		return "", "", err
	}
	if len(parts) == 4 {
		if activityID, err = url.PathUnescape(parts[3]); err != nil {
			return "", "", err
		}
	}
	return sessionID, activityID, nil
}

// copyParams creates a copy of the params map.
func copyParams(params map[string]string) map[string]string {
	result := make(map[string]string)
	for k, v := range params {
		result[k] = v
	}
	return result
}

// MockTransport serves scripted pages, keyed by session id and then by the
// page token of the request ("" for the first page).
type MockTransport struct {
	mu         sync.Mutex
	Pages      map[string]map[string]ListActivitiesResponse
	RequestLog []RequestLogEntry
	// Errors fails requests carrying the given page token.
	Errors map[string]error
}

// NewMockTransport creates a new mock transport with the given pages.
func NewMockTransport(pages map[string]map[string]ListActivitiesResponse) *MockTransport {
	if pages == nil {
		pages = make(map[string]map[string]ListActivitiesResponse)
	}
	return &MockTransport{
		Pages:      pages,
		RequestLog: make([]RequestLogEntry, 0),
		Errors:     make(map[string]error),
	}
}

// SetPage scripts the response for sessionID at token.
func (t *MockTransport) SetPage(sessionID, token string, resp ListActivitiesResponse) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Pages[sessionID] == nil {
		t.Pages[sessionID] = make(map[string]ListActivitiesResponse)
	}
	t.Pages[sessionID][token] = resp
}

// RequestsMade returns the number of requests made to this transport.
func (t *MockTransport) RequestsMade() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.RequestLog)
}

// Request returns the scripted page, or an empty page when none is scripted.
func (t *MockTransport) Request(_ context.Context, endpoint string, params map[string]string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.RequestLog = append(t.RequestLog, RequestLogEntry{
		Endpoint: endpoint,
		Params:   copyParams(params),
	})

	token := params["pageToken"]
	if err, ok := t.Errors[token]; ok {
		return nil, err
	}

	sessionID, _, err := parseActivitiesEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	resp, ok := t.Pages[sessionID][token]
	if !ok {
		resp = ListActivitiesResponse{Activities: []Activity{}}
	}
	return json.Marshal(resp)
}

// StrPtr returns a pointer to s, for building page tokens in tests and fixtures.
func StrPtr(s string) *string {
	return &s
}
