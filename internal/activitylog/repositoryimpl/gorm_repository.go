package repositoryimpl

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"gorm.io/gorm"

	"github.com/prism/prism/internal/activitylog"
	"github.com/prism/prism/pkg/cerr"
)

// Details is stored in a jsonb column.
type Details map[string]any

func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(map[string]any(d))
}

func (d *Details) Scan(value any) error {
	if value == nil {
		*d = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Details", value)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("cannot unmarshal Details: %w", err)
	}
	*d = m
	return nil
}

// ActivityModel is the activity_logs table row. Rows are only inserted.
type ActivityModel struct {
	ID        string    `gorm:"primaryKey;size:26"`
	TaskID    string    `gorm:"size:26;not null;index:idx_activity_logs_task,priority:1"`
	AgentID   string    `gorm:"size:64"`
	UserID    string    `gorm:"size:64"`
	Action    string    `gorm:"size:32;not null"`
	Details   Details   `gorm:"type:jsonb"`
	Timestamp time.Time `gorm:"not null"`
}

func (ActivityModel) TableName() string {
	return "activity_logs"
}

func NewActivityModel(e *activitylog.Entry) *ActivityModel {
	return &ActivityModel{
		ID:        e.ID,
		TaskID:    e.TaskID,
		AgentID:   e.AgentID,
		UserID:    e.UserID,
		Action:    string(e.Action),
		Details:   Details(e.Details),
		Timestamp: e.Timestamp,
	}
}

func (m *ActivityModel) ToEntry() *activitylog.Entry {
	return &activitylog.Entry{
		ID:        m.ID,
		TaskID:    m.TaskID,
		AgentID:   m.AgentID,
		UserID:    m.UserID,
		Action:    activitylog.Action(m.Action),
		Details:   map[string]any(m.Details),
		Timestamp: m.Timestamp,
	}
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Append(ctx context.Context, e *activitylog.Entry) error {
	if err := r.db.WithContext(ctx).Create(NewActivityModel(e)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return cerr.NewError(cerr.AlreadyExists, "activity log entry already exists", err)
		}
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert activity log entry: %w", err))
	}
	return nil
}

func (r *GormRepository) ListByTask(ctx context.Context, taskID string, limit, offset int) ([]*activitylog.Entry, int, error) {
	q := r.db.WithContext(ctx).Model(&ActivityModel{}).Where("task_id = ?", taskID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count activity log: %w", err))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var models []ActivityModel
	if err := q.Order("id").Find(&models).Error; err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list activity log: %w", err))
	}
	entries := make([]*activitylog.Entry, len(models))
	for i := range models {
		entries[i] = models[i].ToEntry()
	}
	return entries, int(total), nil
}
