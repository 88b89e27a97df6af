package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/prism/prism/internal/agent"
	"github.com/prism/prism/pkg/cerr"
)

type AgentModel struct {
	ID           string `gorm:"primaryKey;size:26"`
	Name         string `gorm:"size:255;not null"`
	Role         string `gorm:"size:64"`
	Description  string
	ModelName    string             `gorm:"size:128"`
	Capabilities agent.Capabilities `gorm:"embedded"`
	CreatedAt    time.Time          `gorm:"not null"`
	UpdatedAt    time.Time          `gorm:"not null"`
}

func (AgentModel) TableName() string {
	return "agents"
}

func (m *AgentModel) toAgent() *agent.Agent {
	return &agent.Agent{
		ID:           m.ID,
		Name:         m.Name,
		Role:         m.Role,
		Description:  m.Description,
		ModelName:    m.ModelName,
		Capabilities: m.Capabilities,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Create(ctx context.Context, a *agent.Agent) error {
	m := &AgentModel{
		ID:           a.ID,
		Name:         a.Name,
		Role:         a.Role,
		Description:  a.Description,
		ModelName:    a.ModelName,
		Capabilities: a.Capabilities,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return cerr.NewError(cerr.AlreadyExists, "agent already exists", err)
		}
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert agent: %w", err))
	}
	return nil
}

func (r *GormRepository) Get(ctx context.Context, id string) (*agent.Agent, error) {
	var m AgentModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, cerr.NewError(cerr.NotFound, "agent not found", err)
		}
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to get agent: %w", err))
	}
	return m.toAgent(), nil
}

func (r *GormRepository) List(ctx context.Context, limit, offset int) ([]*agent.Agent, int, error) {
	q := r.db.WithContext(ctx).Model(&AgentModel{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count agents: %w", err))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var models []AgentModel
	if err := q.Order("id").Find(&models).Error; err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list agents: %w", err))
	}
	agents := make([]*agent.Agent, len(models))
	for i := range models {
		agents[i] = models[i].toAgent()
	}
	return agents, int(total), nil
}
