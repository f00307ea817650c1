// Package storage is the repository adapter against the remote task
// store (an Azure Storage table). Each exported method issues exactly
// one round trip; there is no caching, batching or retry beyond the
// transport policy, and no validation beyond what the store enforces.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskdeck/domain"
)

const (
	taskPartition = "tasks"
	metaPartition = "meta"
	sequenceRow   = "task-seq"

	createdAtLayout = time.RFC3339Nano
)

// Store provides row-level CRUD against the remote task table.
type Store struct {
	table *aztables.Client
	now   func() time.Time
}

// New creates a Store from the given connection string and table name.
func New(connStr, tableName string) (*Store, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Store{table: svc.NewClient(tableName), now: time.Now}, nil
}

// entityKeys carries the addressing fields of a table row.
type entityKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type taskEntity struct {
	entityKeys
	Title     string `json:"Title"`
	Completed bool   `json:"Completed"`
	CreatedAt string `json:"CreatedAt"`
	Category  string `json:"Category"`
	Priority  string `json:"Priority"`
	DueDate   string `json:"DueDate,omitempty"`
	Notes     string `json:"Notes,omitempty"`
}

type sequenceEntity struct {
	entityKeys
	ETag      string `json:"odata.etag,omitempty"`
	Value     int64  `json:"Value,string"`
	ValueType string `json:"Value@odata.type"`
}

func rowKey(id int64) string {
	return fmt.Sprintf("%012d", id)
}

func encodeTaskEntity(t domain.Task) ([]byte, error) {
	ent := taskEntity{
		entityKeys: entityKeys{
			PartitionKey: taskPartition,
			RowKey:       rowKey(t.ID),
		},
		Title:     t.Title,
		Completed: t.Completed,
		CreatedAt: t.CreatedAt.UTC().Format(createdAtLayout),
		Category:  string(t.Category),
		Priority:  string(t.Priority),
		Notes:     t.Notes,
	}
	if t.DueDate != nil {
		ent.DueDate = t.DueDate.String()
	}
	return json.Marshal(ent)
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	id, err := strconv.ParseInt(ent.RowKey, 10, 64)
	if err != nil {
		return domain.Task{}, fmt.Errorf("malformed task row key %q: %w", ent.RowKey, err)
	}
	createdAt, err := time.Parse(createdAtLayout, ent.CreatedAt)
	if err != nil {
		return domain.Task{}, fmt.Errorf("malformed created_at on task %d: %w", id, err)
	}
	task := domain.Task{
		ID:        id,
		Title:     ent.Title,
		Completed: ent.Completed,
		CreatedAt: createdAt,
		Category:  domain.Category(ent.Category),
		Priority:  domain.Priority(ent.Priority),
		Notes:     ent.Notes,
	}
	if ent.DueDate != "" {
		due, err := domain.ParseDate(ent.DueDate)
		if err != nil {
			return domain.Task{}, fmt.Errorf("malformed due_date on task %d: %w", id, err)
		}
		task.DueDate = &due
	}
	return task, nil
}

// sortNewestFirst orders tasks by created_at descending, id descending
// for equal timestamps. This is the select-all ordering the view engine
// mirrors.
func sortNewestFirst(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
}

// FetchTasks retrieves every task row, newest first.
func (s *Store) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + taskPartition + "'"
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			task, err := decodeTaskEntity(raw)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	sortNewestFirst(tasks)
	return tasks, nil
}

// InsertTask persists a new row, assigning its id and creation
// timestamp, and returns the stored record.
func (s *Store) InsertTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	id, err := s.nextID(ctx)
	if err != nil {
		return domain.Task{}, fmt.Errorf("allocate task id: %w", err)
	}
	task := domain.Task{
		ID:        id,
		Title:     draft.Title,
		CreatedAt: s.now().UTC(),
		Category:  draft.Category,
		Priority:  draft.Priority,
		DueDate:   draft.DueDate,
		Notes:     draft.Notes,
	}
	payload, err := encodeTaskEntity(task)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, classify(err)
	}
	return task, nil
}

type taskRowUpdate struct {
	entityKeys
	Title     *string `json:"Title,omitempty"`
	Completed *bool   `json:"Completed,omitempty"`
}

// UpdateTask merges the set fields of upd into the row with the given id.
func (s *Store) UpdateTask(ctx context.Context, id int64, upd domain.TaskUpdate) error {
	payload, err := json.Marshal(taskRowUpdate{
		entityKeys: entityKeys{
			PartitionKey: taskPartition,
			RowKey:       rowKey(id),
		},
		Title:     upd.Title,
		Completed: upd.Completed,
	})
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	return classify(err)
}

// DeleteTask removes the row with the given id.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	_, err := s.table.DeleteEntity(ctx, taskPartition, rowKey(id), nil)
	return classify(err)
}

// Table transactions cap at 100 operations.
const transactionLimit = 100

// DeleteTasks removes every row in ids as a partition transaction, one
// round trip per chunk of at most transactionLimit ids.
func (s *Store) DeleteTasks(ctx context.Context, ids []int64) error {
	for len(ids) > 0 {
		chunk := ids
		if len(chunk) > transactionLimit {
			chunk = chunk[:transactionLimit]
		}
		ids = ids[len(chunk):]

		actions := make([]aztables.TransactionAction, 0, len(chunk))
		for _, id := range chunk {
			payload, err := json.Marshal(entityKeys{
				PartitionKey: taskPartition,
				RowKey:       rowKey(id),
			})
			if err != nil {
				return err
			}
			actions = append(actions, aztables.TransactionAction{
				ActionType: aztables.TransactionTypeDelete,
				Entity:     payload,
			})
		}
		if _, err := s.table.SubmitTransaction(ctx, actions, nil); err != nil {
			return classify(err)
		}
	}
	return nil
}

// nextID increments the sequence entity under optimistic concurrency.
// A 412 from a concurrent increment re-reads and retries; a missing
// sequence row is seeded with the first id.
func (s *Store) nextID(ctx context.Context) (int64, error) {
	for {
		resp, err := s.table.GetEntity(ctx, metaPartition, sequenceRow, nil)
		if err != nil {
			if !hasStatus(err, 404) {
				return 0, err
			}
			seeded, seedErr := s.seedSequence(ctx)
			if seedErr != nil {
				if errors.Is(seedErr, ErrConflict) {
					continue
				}
				return 0, seedErr
			}
			return seeded, nil
		}

		var seq sequenceEntity
		if err := json.Unmarshal(resp.Value, &seq); err != nil {
			return 0, err
		}
		next := seq.Value + 1
		payload, err := json.Marshal(sequenceEntity{
			entityKeys: entityKeys{
				PartitionKey: metaPartition,
				RowKey:       sequenceRow,
			},
			Value:     next,
			ValueType: "Edm.Int64",
		})
		if err != nil {
			return 0, err
		}
		et := azcore.ETag(seq.ETag)
		_, err = s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
			IfMatch:    &et,
			UpdateMode: aztables.UpdateModeReplace,
		})
		if err != nil {
			if hasStatus(err, 412, 404) {
				continue
			}
			return 0, err
		}
		return next, nil
	}
}

func (s *Store) seedSequence(ctx context.Context) (int64, error) {
	payload, err := json.Marshal(sequenceEntity{
		entityKeys: entityKeys{
			PartitionKey: metaPartition,
			RowKey:       sequenceRow,
		},
		Value:     1,
		ValueType: "Edm.Int64",
	})
	if err != nil {
		return 0, err
	}
	if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
		return 0, classify(err)
	}
	return 1, nil
}
