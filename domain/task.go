package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category labels a task with one of a fixed set of life areas.
type Category string

const (
	CategoryPersonal Category = "personal"
	CategoryWork     Category = "work"
	CategoryHealth   Category = "health"
	CategoryShopping Category = "shopping"
	CategoryStudy    Category = "study"
	CategoryFamily   Category = "family"
)

// Categories lists every valid category label.
var Categories = []Category{
	CategoryPersonal,
	CategoryWork,
	CategoryHealth,
	CategoryShopping,
	CategoryStudy,
	CategoryFamily,
}

// ParseCategory validates a category label.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if Category(s) == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Priority orders tasks by urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists every valid priority label.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// ParsePriority validates a priority label.
func ParsePriority(s string) (Priority, error) {
	for _, p := range Priorities {
		if Priority(s) == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Rank maps a priority to its sort weight; higher sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Task is a single to-do record mirrored from the remote store.
// JSON tags follow the store row shape.
type Task struct {
	ID        int64     `json:"id"`
	Title     string    `json:"task"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	Category  Category  `json:"category"`
	Priority  Priority  `json:"priority"`
	DueDate   *Date     `json:"due_date"`
	Notes     string    `json:"notes,omitempty"`
}

// Overdue reports whether the task is incomplete and due strictly before today.
func (t Task) Overdue(today Date) bool {
	return !t.Completed && t.DueDate != nil && t.DueDate.Before(today)
}

// DueOn reports whether the task is due exactly on the given day,
// regardless of completion.
func (t Task) DueOn(day Date) bool {
	return t.DueDate != nil && t.DueDate.Equal(day)
}

// MatchesQuery reports whether the title or notes contain q as a
// case-insensitive substring.
func (t Task) MatchesQuery(q string) bool {
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Notes), q)
}

// TaskDraft carries the user-supplied fields of a task to be created.
type TaskDraft struct {
	Title    string
	Category Category
	Priority Priority
	DueDate  *Date
	Notes    string
}

// WithDefaults fills unset enumerated fields with their store defaults.
func (d TaskDraft) WithDefaults() TaskDraft {
	if d.Category == "" {
		d.Category = CategoryPersonal
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	return d
}

// TaskUpdate carries a partial single-record update; nil fields are
// left untouched by the store.
type TaskUpdate struct {
	Title     *string
	Completed *bool
}
