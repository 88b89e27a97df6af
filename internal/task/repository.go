package task

import (
	"context"

	"github.com/prism/prism/internal/lifecycle"
)

type Filter struct {
	ProjectID       string
	AssignedAgentID string
	Status          lifecycle.Status
}

func (f Filter) Match(t *Task) bool {
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if f.AssignedAgentID != "" && t.AssignedAgentID != f.AssignedAgentID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// Repository persists tasks.
//
// Update is a compare-and-swap on Version: it fails with cerr.Aborted when
// the stored version differs from t.Version, and on success increments
// t.Version.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Task, int, error)
	Update(ctx context.Context, t *Task) error
}
