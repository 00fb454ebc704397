package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/kiwina/gules/internal/core"
)

// RefreshResult is the outcome of refreshing one session.
type RefreshResult struct {
	SessionID  string
	Activities int
	Err        error
}

// RefreshAll brings every session in sessionIDs up to date, running at most
// parallel refreshes at once (core.RefreshMaxWorkers when parallel <= 0).
// Results are in input order. Sessions finish, and so are touched, in no
// particular order.
func (s *Store) RefreshAll(ctx context.Context, sessionIDs []string, parallel int) []RefreshResult {
	results := make([]RefreshResult, len(sessionIDs))
	if parallel <= 0 {
		parallel = core.RefreshMaxWorkers
	}

	refresh := func(i int, id string) {
		activities, err := s.GetOrRefresh(ctx, id)
		results[i] = RefreshResult{SessionID: id, Activities: len(activities), Err: err}
	}

	if len(sessionIDs) == 1 || parallel == 1 {
		for i, id := range sessionIDs {
			refresh(i, id)
		}
		return results
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, parallel)

	for i, id := range sessionIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			refresh(i, id)
		}(i, id)
	}

	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.log(fmt.Sprintf("Refreshed %d sessions (%d failed) with %d workers", len(results), failed, parallel))
	return results
}
