package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/prism/prism/internal/lifecycle"
	"github.com/prism/prism/internal/task"
	"github.com/prism/prism/pkg/cerr"
)

// TaskModel is the tasks table row.
type TaskModel struct {
	ID              string `gorm:"primaryKey;size:26"`
	ProjectID       string `gorm:"size:26;index"`
	Title           string `gorm:"size:255;not null"`
	Description     string `gorm:"type:text"`
	Priority        string `gorm:"size:10;not null;default:'MEDIUM'"`
	CreatedBy       string `gorm:"size:64"`
	AssignedAgentID string `gorm:"size:26;index"`
	Status          string `gorm:"size:20;not null;index"`
	GitPhase        string `gorm:"size:20;not null;default:'NONE'"`

	AutoCommit   bool
	AutoPush     bool
	ProjectPath  string `gorm:"type:text"`
	TargetRepo   string `gorm:"type:text"`
	PRBaseBranch string `gorm:"size:255"`

	GitBranch     string `gorm:"size:255"`
	GitCommitHash string `gorm:"size:64"`
	GitPRURL      string `gorm:"type:text"`
	GitPRStatus   string `gorm:"size:20"`

	StartedAt   *time.Time
	GeneratedAt *time.Time
	CommittedAt *time.Time
	PushedAt    *time.Time
	CompletedAt *time.Time

	ProgressLog string `gorm:"type:text"`
	Version     int64  `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (TaskModel) TableName() string {
	return "tasks"
}

func NewTaskModel(t *task.Task) *TaskModel {
	return &TaskModel{
		ID:              t.ID,
		ProjectID:       t.ProjectID,
		Title:           t.Title,
		Description:     t.Description,
		Priority:        string(t.Priority),
		CreatedBy:       t.CreatedBy,
		AssignedAgentID: t.AssignedAgentID,
		Status:          string(t.Status),
		GitPhase:        string(t.GitPhase),
		AutoCommit:      t.AutoCommit,
		AutoPush:        t.AutoPush,
		ProjectPath:     t.ProjectPath,
		TargetRepo:      t.TargetRepo,
		PRBaseBranch:    t.PRBaseBranch,
		GitBranch:       t.GitBranch,
		GitCommitHash:   t.GitCommitHash,
		GitPRURL:        t.GitPRURL,
		GitPRStatus:     string(t.GitPRStatus),
		StartedAt:       t.StartedAt,
		GeneratedAt:     t.GeneratedAt,
		CommittedAt:     t.CommittedAt,
		PushedAt:        t.PushedAt,
		CompletedAt:     t.CompletedAt,
		ProgressLog:     t.ProgressLog,
		Version:         t.Version,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func (m *TaskModel) ToTask() *task.Task {
	return &task.Task{
		ID:              m.ID,
		ProjectID:       m.ProjectID,
		Title:           m.Title,
		Description:     m.Description,
		Priority:        task.Priority(m.Priority),
		CreatedBy:       m.CreatedBy,
		AssignedAgentID: m.AssignedAgentID,
		Status:          lifecycle.Status(m.Status),
		GitPhase:        lifecycle.GitPhase(m.GitPhase),
		AutoCommit:      m.AutoCommit,
		AutoPush:        m.AutoPush,
		ProjectPath:     m.ProjectPath,
		TargetRepo:      m.TargetRepo,
		PRBaseBranch:    m.PRBaseBranch,
		GitBranch:       m.GitBranch,
		GitCommitHash:   m.GitCommitHash,
		GitPRURL:        m.GitPRURL,
		GitPRStatus:     task.PRStatus(m.GitPRStatus),
		StartedAt:       m.StartedAt,
		GeneratedAt:     m.GeneratedAt,
		CommittedAt:     m.CommittedAt,
		PushedAt:        m.PushedAt,
		CompletedAt:     m.CompletedAt,
		ProgressLog:     m.ProgressLog,
		Version:         m.Version,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// GormRepository stores tasks in PostgreSQL. Passing a transaction handle
// to NewGormRepository makes every call part of that transaction.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Create(ctx context.Context, t *task.Task) error {
	if err := r.db.WithContext(ctx).Create(NewTaskModel(t)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return cerr.NewError(cerr.AlreadyExists, "task already exists", err)
		}
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert task: %w", err))
	}
	return nil
}

func (r *GormRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	var m TaskModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, cerr.NewError(cerr.NotFound, "task not found", err)
		}
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to select task: %w", err))
	}
	return m.ToTask(), nil
}

func (r *GormRepository) List(ctx context.Context, f task.Filter, limit, offset int) ([]*task.Task, int, error) {
	q := r.db.WithContext(ctx).Model(&TaskModel{})
	if f.ProjectID != "" {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.AssignedAgentID != "" {
		q = q.Where("assigned_agent_id = ?", f.AssignedAgentID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count tasks: %w", err))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var models []TaskModel
	if err := q.Order("id").Find(&models).Error; err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list tasks: %w", err))
	}
	tasks := make([]*task.Task, len(models))
	for i := range models {
		tasks[i] = models[i].ToTask()
	}
	return tasks, int(total), nil
}

func (r *GormRepository) Update(ctx context.Context, t *task.Task) error {
	m := NewTaskModel(t)
	m.Version = t.Version + 1
	m.UpdatedAt = time.Now()

	res := r.db.WithContext(ctx).
		Model(&TaskModel{}).
		Where("id = ? AND version = ?", t.ID, t.Version).
		Select("*").
		Omit("id", "created_at").
		Updates(m)
	if res.Error != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to update task: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, t.ID); err != nil {
			return err
		}
		return cerr.NewError(cerr.Aborted, "task was modified concurrently",
			fmt.Errorf("task %s: no row at version %d", t.ID, t.Version))
	}
	t.Version = m.Version
	t.UpdatedAt = m.UpdatedAt
	return nil
}
