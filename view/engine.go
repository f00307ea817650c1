package view

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskdeck/domain"
)

// Store abstracts the repository adapter the engine mutates through.
// Every call is exactly one round trip to the remote task store.
type Store interface {
	FetchTasks(ctx context.Context) ([]domain.Task, error)
	InsertTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error)
	UpdateTask(ctx context.Context, id int64, upd domain.TaskUpdate) error
	DeleteTask(ctx context.Context, id int64) error
	DeleteTasks(ctx context.Context, ids []int64) error
}

var (
	// ErrEmptyTitle rejects a create or rename whose title is blank after
	// trimming. No round trip is issued.
	ErrEmptyTitle = errors.New("title must not be empty")
	// ErrTaskNotFound indicates the id is absent from the local mirror.
	ErrTaskNotFound = errors.New("task not found")
	// ErrNoEdit indicates an edit operation without an edit in progress.
	ErrNoEdit = errors.New("no edit in progress")
)

// LoadState distinguishes a failed initial load from a legitimately
// empty collection.
type LoadState string

const (
	LoadIdle   LoadState = "idle"
	LoadReady  LoadState = "ready"
	LoadFailed LoadState = "failed"
)

// Stats are the derived aggregates, always computed over the full
// collection rather than the filtered view.
type Stats struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	Completed     int `json:"completed"`
	DueToday      int `json:"dueToday"`
	Overdue       int `json:"overdue"`
	CompletionPct int `json:"completionPct"`
}

// EditState is the edit-mode sub-state machine: Idle, or Editing one
// task with a draft title.
type EditState struct {
	Editing bool   `json:"editing"`
	TaskID  int64  `json:"taskId,omitempty"`
	Draft   string `json:"draft,omitempty"`
}

// Engine owns the in-memory task mirror and turns it into the rendered
// view model. All state sits behind one mutex; store round trips run
// unlocked so an outstanding intent never blocks other reads or intents.
// Local mutation happens only after the store confirms.
type Engine struct {
	store  Store
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	tasks   []domain.Task
	filters Filters
	edit    EditState
	state   LoadState
	loadErr error
}

// NewEngine creates an engine with an empty mirror and default filters.
func NewEngine(store Store, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Engine{
		store:   store,
		logger:  logger,
		now:     time.Now,
		filters: DefaultFilters(),
		state:   LoadIdle,
	}
}

// Load mirrors the full collection from the store. On failure the mirror
// stays empty and the engine records an explicit load-error state; Load
// may be called again to retry.
func (e *Engine) Load(ctx context.Context) error {
	tasks, err := e.store.FetchTasks(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.tasks = nil
		e.state = LoadFailed
		e.loadErr = err
		e.logger.WithError(err).Error("task load failed")
		return err
	}
	e.tasks = tasks
	e.state = LoadReady
	e.loadErr = nil
	return nil
}

// LoadState returns the current load state and, when failed, its cause.
func (e *Engine) LoadState() (LoadState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.loadErr
}

// SetFilters replaces the transient filter state.
func (e *Engine) SetFilters(f Filters) {
	if f.Status == "" {
		f.Status = StatusAll
	}
	if f.Category == "" {
		f.Category = FilterAll
	}
	if f.Priority == "" {
		f.Priority = FilterAll
	}
	e.mu.Lock()
	e.filters = f
	e.mu.Unlock()
}

// Filters returns the current filter state.
func (e *Engine) Filters() Filters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filters
}

// ComputeView produces the display sequence: filter by query, status,
// category and priority, then stable-sort by priority rank descending
// and created_at descending, preserving mirror order for full ties.
// The mirror itself is never mutated and each call returns a new slice.
func (e *Engine) ComputeView() []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	today := domain.DateOf(e.now())
	out := make([]domain.Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		if e.filters.Match(t, today) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Stats recomputes the derived aggregates from the full collection.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	today := domain.DateOf(e.now())
	s := Stats{Total: len(e.tasks)}
	for _, t := range e.tasks {
		if t.Completed {
			s.Completed++
		} else {
			s.Pending++
		}
		if t.DueOn(today) {
			s.DueToday++
		}
		if t.Overdue(today) {
			s.Overdue++
		}
	}
	if s.Total > 0 {
		s.CompletionPct = int(math.Round(100 * float64(s.Completed) / float64(s.Total)))
	}
	return s
}

// Create inserts a new task and prepends the store-returned record to
// the mirror. A blank title is rejected locally with zero round trips.
func (e *Engine) Create(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	draft.Title = strings.TrimSpace(draft.Title)
	if draft.Title == "" {
		return domain.Task{}, ErrEmptyTitle
	}
	draft.Notes = strings.TrimSpace(draft.Notes)
	draft = draft.WithDefaults()

	created, err := e.store.InsertTask(ctx, draft)
	if err != nil {
		e.logger.WithError(err).Error("create task failed")
		return domain.Task{}, err
	}

	e.mu.Lock()
	e.tasks = append([]domain.Task{created}, e.tasks...)
	e.mu.Unlock()
	return created, nil
}

// ToggleCompleted flips the completion flag of the matching task after
// the store confirms. The flipped value is the one read at intent time,
// so racing toggles on one id resolve last-completion-wins.
func (e *Engine) ToggleCompleted(ctx context.Context, id int64) error {
	e.mu.Lock()
	cur, ok := e.find(id)
	var next bool
	if ok {
		next = !cur.Completed
	}
	e.mu.Unlock()
	if !ok {
		e.logger.WithField("task_id", id).Warn("toggle for unknown task")
		return ErrTaskNotFound
	}

	if err := e.store.UpdateTask(ctx, id, domain.TaskUpdate{Completed: &next}); err != nil {
		e.logger.WithError(err).WithField("task_id", id).Error("toggle failed")
		return err
	}

	e.mu.Lock()
	if t, ok := e.find(id); ok {
		t.Completed = next
	}
	e.mu.Unlock()
	return nil
}

// Rename updates only the title of the matching task. A blank new title
// is a local no-op with zero round trips.
func (e *Engine) Rename(ctx context.Context, id int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}

	e.mu.Lock()
	_, ok := e.find(id)
	e.mu.Unlock()
	if !ok {
		e.logger.WithField("task_id", id).Warn("rename for unknown task")
		return ErrTaskNotFound
	}

	if err := e.store.UpdateTask(ctx, id, domain.TaskUpdate{Title: &title}); err != nil {
		e.logger.WithError(err).WithField("task_id", id).Error("rename failed")
		return err
	}

	e.mu.Lock()
	if t, ok := e.find(id); ok {
		t.Title = title
	}
	e.mu.Unlock()
	return nil
}

// Delete removes the task from the mirror after the store confirms.
// Deleting the task currently under edit resets the edit machine.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	if err := e.store.DeleteTask(ctx, id); err != nil {
		e.logger.WithError(err).WithField("task_id", id).Error("delete failed")
		return err
	}

	e.mu.Lock()
	e.removeLocked(map[int64]struct{}{id: {}})
	e.mu.Unlock()
	return nil
}

// ClearCompleted snapshots the ids completed at call time, issues one
// bulk delete for that set, and on success removes exactly that set.
// A task completed after the snapshot is not retroactively included.
func (e *Engine) ClearCompleted(ctx context.Context) (int, error) {
	e.mu.Lock()
	ids := make([]int64, 0)
	for _, t := range e.tasks {
		if t.Completed {
			ids = append(ids, t.ID)
		}
	}
	e.mu.Unlock()
	if len(ids) == 0 {
		return 0, nil
	}

	if err := e.store.DeleteTasks(ctx, ids); err != nil {
		e.logger.WithError(err).WithField("count", len(ids)).Error("clear completed failed")
		return 0, err
	}

	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	e.mu.Lock()
	e.removeLocked(set)
	e.mu.Unlock()
	return len(ids), nil
}

// StartEdit enters Editing for the given task, seeding the draft with
// its current title. Starting over an existing edit silently replaces
// it and discards the unsaved draft.
func (e *Engine) StartEdit(id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.find(id)
	if !ok {
		return ErrTaskNotFound
	}
	e.edit = EditState{Editing: true, TaskID: id, Draft: t.Title}
	return nil
}

// UpdateDraft replaces the draft text of the edit in progress.
func (e *Engine) UpdateDraft(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.edit.Editing {
		return ErrNoEdit
	}
	e.edit.Draft = text
	return nil
}

// CancelEdit returns to Idle, discarding the draft without a store call.
func (e *Engine) CancelEdit() {
	e.mu.Lock()
	e.edit = EditState{}
	e.mu.Unlock()
}

// SaveEdit renames the edited task to the draft and returns to Idle on
// success. On a blank draft or an adapter failure the machine stays in
// Editing so the draft is never silently discarded.
func (e *Engine) SaveEdit(ctx context.Context) error {
	e.mu.Lock()
	edit := e.edit
	e.mu.Unlock()
	if !edit.Editing {
		return ErrNoEdit
	}
	if err := e.Rename(ctx, edit.TaskID, edit.Draft); err != nil {
		return err
	}

	e.mu.Lock()
	if e.edit.Editing && e.edit.TaskID == edit.TaskID {
		e.edit = EditState{}
	}
	e.mu.Unlock()
	return nil
}

// EditState returns the current edit-machine state.
func (e *Engine) EditState() EditState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.edit
}

// Snapshot copies the full mirror in mirror order, for export.
func (e *Engine) Snapshot() []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Task, len(e.tasks))
	copy(out, e.tasks)
	return out
}

// ExportFilename names an export document after the current date.
func (e *Engine) ExportFilename() string {
	return "tasks-" + domain.DateOf(e.now()).String() + ".json"
}

// find returns a pointer into the mirror; callers must hold e.mu.
func (e *Engine) find(id int64) (*domain.Task, bool) {
	for i := range e.tasks {
		if e.tasks[i].ID == id {
			return &e.tasks[i], true
		}
	}
	return nil, false
}

// removeLocked drops the given id set and resets the edit machine if it
// pointed at a removed task; callers must hold e.mu.
func (e *Engine) removeLocked(ids map[int64]struct{}) {
	kept := e.tasks[:0]
	for _, t := range e.tasks {
		if _, gone := ids[t.ID]; !gone {
			kept = append(kept, t)
		}
	}
	e.tasks = kept
	if e.edit.Editing {
		if _, gone := ids[e.edit.TaskID]; gone {
			e.edit = EditState{}
		}
	}
}
