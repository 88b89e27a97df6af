package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/prism/prism/internal/project"
	"github.com/prism/prism/pkg/cerr"
)

type ProjectModel struct {
	ID          string `gorm:"primaryKey;size:26"`
	Name        string `gorm:"size:255;not null"`
	Description string
	RepoURL     string    `gorm:"size:1024"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (ProjectModel) TableName() string {
	return "projects"
}

func (m *ProjectModel) toProject() *project.Project {
	return &project.Project{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		RepoURL:     m.RepoURL,
		CreatedAt:   m.CreatedAt,
	}
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Create(ctx context.Context, p *project.Project) error {
	m := &ProjectModel{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		RepoURL:     p.RepoURL,
		CreatedAt:   p.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return cerr.NewError(cerr.AlreadyExists, "project already exists", err)
		}
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert project: %w", err))
	}
	return nil
}

func (r *GormRepository) Get(ctx context.Context, id string) (*project.Project, error) {
	var m ProjectModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, cerr.NewError(cerr.NotFound, "project not found", err)
		}
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to get project: %w", err))
	}
	return m.toProject(), nil
}

func (r *GormRepository) List(ctx context.Context, limit, offset int) ([]*project.Project, int, error) {
	q := r.db.WithContext(ctx).Model(&ProjectModel{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count projects: %w", err))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var models []ProjectModel
	if err := q.Order("id").Find(&models).Error; err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list projects: %w", err))
	}
	projects := make([]*project.Project, len(models))
	for i := range models {
		projects[i] = models[i].toProject()
	}
	return projects, int(total), nil
}
