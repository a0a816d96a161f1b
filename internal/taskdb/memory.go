package taskdb

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Memory keeps tasks in process memory. Used when no database is configured.
type Memory struct {
	mu    sync.Mutex
	tasks map[string]Task
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]Task), now: time.Now}
}

func (m *Memory) Create(_ context.Context, id, filename string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; ok {
		return Task{}, fmt.Errorf("task %s already exists", id)
	}
	now := m.now()
	t := Task{ID: id, Filename: filename, Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	m.tasks[id] = t
	return t, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, status Status, numPages *int, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	t.NumPages = numPages
	t.ErrorMessage = errMsg
	t.UpdatedAt = m.now()
	m.tasks[id] = t
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) List(_ context.Context) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Task) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}
