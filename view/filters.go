package view

import (
	"fmt"
	"strings"

	"taskdeck/domain"
)

// Status narrows the view by completion state.
type Status string

const (
	StatusAll       Status = "all"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusOverdue   Status = "overdue"
)

// ParseStatus validates a status filter label.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusAll, StatusPending, StatusCompleted, StatusOverdue:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status filter %q", s)
}

// FilterAll is the wildcard value for the category and priority filters.
const FilterAll = "all"

// Filters is the transient UI-filter state applied by ComputeView.
type Filters struct {
	Query    string `json:"query"`
	Status   Status `json:"status"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// DefaultFilters returns the filter state of a fresh session.
func DefaultFilters() Filters {
	return Filters{
		Status:   StatusAll,
		Category: FilterAll,
		Priority: FilterAll,
	}
}

// Match reports whether t passes every active predicate, with overdue
// evaluated against the given day.
func (f Filters) Match(t domain.Task, today domain.Date) bool {
	if q := strings.TrimSpace(f.Query); q != "" && !t.MatchesQuery(q) {
		return false
	}
	switch f.Status {
	case StatusPending:
		if t.Completed {
			return false
		}
	case StatusCompleted:
		if !t.Completed {
			return false
		}
	case StatusOverdue:
		if !t.Overdue(today) {
			return false
		}
	}
	if f.Category != FilterAll && f.Category != "" && string(t.Category) != f.Category {
		return false
	}
	if f.Priority != FilterAll && f.Priority != "" && string(t.Priority) != f.Priority {
		return false
	}
	return true
}
