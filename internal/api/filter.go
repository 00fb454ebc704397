package api

import (
	"fmt"
	"strings"
)

// TypeFilter selects activities of one kind.
type TypeFilter Kind

var typeFilterAliases = map[string]Kind{
	"agent-message":     KindAgentMessaged,
	"agent":             KindAgentMessaged,
	"user-message":      KindUserMessaged,
	"user":              KindUserMessaged,
	"plan":              KindPlanGenerated,
	"plan-generated":    KindPlanGenerated,
	"plan-approved":     KindPlanApproved,
	"approved":          KindPlanApproved,
	"progress":          KindProgressUpdated,
	"progress-updated":  KindProgressUpdated,
	"completed":         KindSessionCompleted,
	"session-completed": KindSessionCompleted,
	"failed":            KindSessionFailed,
	"session-failed":    KindSessionFailed,
	"error":             KindSessionFailed,
}

// ParseTypeFilter maps a user supplied name such as "agent" or "plan-approved" to a filter.
func ParseTypeFilter(s string) (TypeFilter, error) {
	k, ok := typeFilterAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown activity type %q (valid: agent-message, user-message, plan, plan-approved, progress, completed, failed)", s)
	}
	return TypeFilter(k), nil
}

// ParseTypeFilters parses a comma separated list, ignoring empty items.
func ParseTypeFilters(list string) ([]TypeFilter, error) {
	var out []TypeFilter
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := ParseTypeFilter(part)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Matches reports whether a is of the filtered kind.
func (f TypeFilter) Matches(a Activity) bool {
	return a.Kind == Kind(f)
}

// FilterOptions narrows an activity list.
type FilterOptions struct {
	Types         []TypeFilter
	HasBashOutput bool
	Last          int // keep at most this many, 0 for all
}

// Filter applies opts to a newest-first list and returns a new slice.
func Filter(activities []Activity, opts FilterOptions) []Activity {
	out := make([]Activity, 0, len(activities))
	for _, a := range activities {
		if len(opts.Types) > 0 && !matchesAny(opts.Types, a) {
			continue
		}
		if opts.HasBashOutput && !a.HasBashOutput() {
			continue
		}
		out = append(out, a)
	}
	if opts.Last > 0 && len(out) > opts.Last {
		out = out[:opts.Last]
	}
	return out
}

func matchesAny(filters []TypeFilter, a Activity) bool {
	for _, f := range filters {
		if f.Matches(a) {
			return true
		}
	}
	return false
}
