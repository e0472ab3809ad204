package healthcheck

import (
	"context"
	"sort"
)

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusWarn indicates check completed with warning.
	StatusWarn = "warn"
	// StatusError indicates check failed.
	StatusError = "error"
	// StatusUnknown indicates the checked feature is not configured.
	StatusUnknown = "unknown"
)

// CheckResult is one readiness item produced by a checker.
type CheckResult struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Subtitle string         `json:"subtitle,omitempty"`
	Status   string         `json:"status"`
	Summary  string         `json:"summary"`
	Detail   string         `json:"detail,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Checker evaluates one or more readiness checks for an app.
type Checker interface {
	ListChecks(ctx context.Context, appID string) []CheckResult
}

// Checkers runs several checkers as one.
type Checkers []Checker

// ListChecks concatenates every checker's results ordered by ID.
func (cs Checkers) ListChecks(ctx context.Context, appID string) []CheckResult {
	items := make([]CheckResult, 0)
	for _, c := range cs {
		if c == nil {
			continue
		}
		items = append(items, c.ListChecks(ctx, appID)...)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

// Worst returns the most severe status in items; StatusOK when empty.
// Unconfigured items do not degrade the result.
func Worst(items []CheckResult) string {
	worst := StatusOK
	for _, item := range items {
		switch item.Status {
		case StatusError:
			return StatusError
		case StatusWarn:
			worst = StatusWarn
		}
	}
	return worst
}
