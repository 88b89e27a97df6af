package activitylog

import "context"

// Repository is append-only. There is deliberately no update or delete.
type Repository interface {
	// Append stores e. Appending an ID twice fails with cerr.AlreadyExists.
	Append(ctx context.Context, e *Entry) error
	// ListByTask returns the entries of a task in chronological order.
	ListByTask(ctx context.Context, taskID string, limit, offset int) ([]*Entry, int, error)
}
