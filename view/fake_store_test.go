package view

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskdeck/domain"
)

// fakeStore implements Store in memory and counts round trips. Calls
// may arrive from concurrent intents, so all state sits behind mu.
type fakeStore struct {
	mu     sync.Mutex
	tasks  map[int64]domain.Task
	nextID int64
	now    time.Time

	calls      int
	failNext   error
	lastInsert domain.TaskDraft
	lastUpdate domain.TaskUpdate
	lastDelete []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[int64]domain.Task{}, now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// roundTrip counts a store call; callers must hold f.mu.
func (f *fakeStore) roundTrip() error {
	f.calls++
	if err := f.failNext; err != nil {
		f.failNext = nil
		return err
	}
	return nil
}

func (f *fakeStore) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.roundTrip(); err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.roundTrip(); err != nil {
		return domain.Task{}, err
	}
	f.lastInsert = draft
	f.nextID++
	f.now = f.now.Add(time.Second)
	t := domain.Task{
		ID:        f.nextID,
		Title:     draft.Title,
		CreatedAt: f.now,
		Category:  draft.Category,
		Priority:  draft.Priority,
		DueDate:   draft.DueDate,
		Notes:     draft.Notes,
	}
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, id int64, upd domain.TaskUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.roundTrip(); err != nil {
		return err
	}
	f.lastUpdate = upd
	t, ok := f.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Completed != nil {
		t.Completed = *upd.Completed
	}
	f.tasks[id] = t
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.roundTrip(); err != nil {
		return err
	}
	f.lastDelete = []int64{id}
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) DeleteTasks(ctx context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.roundTrip(); err != nil {
		return err
	}
	f.lastDelete = append([]int64(nil), ids...)
	for _, id := range ids {
		delete(f.tasks, id)
	}
	return nil
}
