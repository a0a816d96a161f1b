package taskdb

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown task ids.
var ErrNotFound = errors.New("task not found")

// Status is the processing state of an uploaded document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Task is the persisted record of one uploaded document.
type Task struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	Status       Status    `json:"status"`
	NumPages     *int      `json:"num_pages"`
	ErrorMessage *string   `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists task records.
type Store interface {
	Create(ctx context.Context, id, filename string) (Task, error)
	// UpdateStatus sets the status together with the page count and error
	// message; nil clears them.
	UpdateStatus(ctx context.Context, id string, status Status, numPages *int, errMsg *string) error
	Get(ctx context.Context, id string) (Task, error)
	// List returns all tasks, newest first.
	List(ctx context.Context) ([]Task, error)
	Delete(ctx context.Context, id string) error
}

// Int and String are shorthands for the optional UpdateStatus arguments.
func Int(n int) *int          { return &n }
func String(s string) *string { return &s }
