// Package taskstore records task changes together with their audit entries.
package taskstore

import (
	"context"

	"gorm.io/gorm"

	"github.com/prism/prism/internal/activitylog"
	activityrepo "github.com/prism/prism/internal/activitylog/repositoryimpl"
	"github.com/prism/prism/internal/task"
	taskrepo "github.com/prism/prism/internal/task/repositoryimpl"
)

// Recorder persists a task change and the audit entry describing it.
type Recorder interface {
	// Create stores a new task and its creation entry.
	Create(ctx context.Context, t *task.Task, e *activitylog.Entry) error
	// Update stores t with the version check of task.Repository.Update.
	Update(ctx context.Context, t *task.Task, e *activitylog.Entry) error
	// Audit records e for a report that leaves the stored task as it is.
	Audit(ctx context.Context, e *activitylog.Entry) error
}

// SequentialRecorder writes to two independent repositories. On Update the
// entry is appended first: an audit failure leaves the task untouched, and
// a failed task write leaves the entry behind.
type SequentialRecorder struct {
	tasks      task.Repository
	activities activitylog.Repository
}

func NewSequentialRecorder(tasks task.Repository, activities activitylog.Repository) *SequentialRecorder {
	return &SequentialRecorder{tasks: tasks, activities: activities}
}

func (r *SequentialRecorder) Create(ctx context.Context, t *task.Task, e *activitylog.Entry) error {
	if err := r.tasks.Create(ctx, t); err != nil {
		return err
	}
	return r.activities.Append(ctx, e)
}

func (r *SequentialRecorder) Update(ctx context.Context, t *task.Task, e *activitylog.Entry) error {
	if err := r.activities.Append(ctx, e); err != nil {
		return err
	}
	return r.tasks.Update(ctx, t)
}

func (r *SequentialRecorder) Audit(ctx context.Context, e *activitylog.Entry) error {
	return r.activities.Append(ctx, e)
}

// GormRecorder writes the task and its entry in one transaction.
type GormRecorder struct {
	db *gorm.DB
}

func NewGormRecorder(db *gorm.DB) *GormRecorder {
	return &GormRecorder{db: db}
}

func (r *GormRecorder) Create(ctx context.Context, t *task.Task, e *activitylog.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := taskrepo.NewGormRepository(tx).Create(ctx, t); err != nil {
			return err
		}
		return activityrepo.NewGormRepository(tx).Append(ctx, e)
	})
}

func (r *GormRecorder) Update(ctx context.Context, t *task.Task, e *activitylog.Entry) error {
	version, updatedAt := t.Version, t.UpdatedAt
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := activityrepo.NewGormRepository(tx).Append(ctx, e); err != nil {
			return err
		}
		return taskrepo.NewGormRepository(tx).Update(ctx, t)
	})
	if err != nil {
		t.Version, t.UpdatedAt = version, updatedAt
	}
	return err
}

func (r *GormRecorder) Audit(ctx context.Context, e *activitylog.Entry) error {
	return activityrepo.NewGormRepository(r.db.WithContext(ctx)).Append(ctx, e)
}
