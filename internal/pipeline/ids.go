package pipeline

import "github.com/google/uuid"

// NewTaskID returns a random task id. Task ids double as directory names
// under the static root.
func NewTaskID() string {
	return uuid.NewString()
}
