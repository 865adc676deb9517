// Package redisstore persists the task collection as one JSON document in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"taskmaster/backend"
)

// DefaultKey is the key the collection is stored under.
const DefaultKey = "taskmaster:tasks"

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Backend implements backend.Persistence on a Redis server
type Backend struct {
	client *redis.Client
	key    string
}

// New connects to the server described by opts and checks it is reachable.
func New(ctx context.Context, opts Options) (*Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewWithClient(client, opts.Key), nil
}

// NewWithClient wraps an existing client. An empty key means DefaultKey.
func NewWithClient(client *redis.Client, key string) *Backend {
	if key == "" {
		key = DefaultKey
	}
	return &Backend{client: client, key: key}
}

// storedTask is the JSON shape of one task
type storedTask struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	Priority       string     `json:"priority"`
	Category       string     `json:"category"`
	Completed      bool       `json:"completed"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
	ReminderHandle string     `json:"reminderHandle,omitempty"`
}

type snapshot struct {
	SavedAt time.Time    `json:"savedAt"`
	Tasks   []storedTask `json:"tasks"`
}

// Load returns the saved collection, or nil when the key does not exist.
func (b *Backend) Load(ctx context.Context) ([]backend.Task, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", b.key, err)
	}

	tasks := make([]backend.Task, 0, len(snap.Tasks))
	for _, st := range snap.Tasks {
		t := backend.Task{
			ID:             st.ID,
			Title:          st.Title,
			Priority:       backend.Priority(st.Priority),
			Category:       backend.Category(st.Category),
			Completed:      st.Completed,
			CreatedAt:      st.CreatedAt,
			UpdatedAt:      st.UpdatedAt,
			ReminderHandle: st.ReminderHandle,
		}
		if st.DueDate != nil {
			t.DueDate = *st.DueDate
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Save overwrites the stored collection.
func (b *Backend) Save(ctx context.Context, tasks []backend.Task) error {
	snap := snapshot{SavedAt: time.Now().UTC(), Tasks: make([]storedTask, 0, len(tasks))}
	for _, t := range tasks {
		st := storedTask{
			ID:             t.ID,
			Title:          t.Title,
			Priority:       string(t.Priority),
			Category:       string(t.Category),
			Completed:      t.Completed,
			CreatedAt:      t.CreatedAt,
			UpdatedAt:      t.UpdatedAt,
			ReminderHandle: t.ReminderHandle,
		}
		if t.HasDueDate() {
			due := t.DueDate
			st.DueDate = &due
		}
		snap.Tasks = append(snap.Tasks, st)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, b.key, data, 0).Err()
}

// Close closes the client
func (b *Backend) Close() error {
	return b.client.Close()
}
