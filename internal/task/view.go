package task

import (
	"time"

	"github.com/prism/prism/internal/lifecycle"
)

// View is the JSON representation of a task. NextAction is derived on
// every call and never stored.
type View struct {
	ID              string               `json:"id"`
	ProjectID       string               `json:"projectId"`
	Title           string               `json:"title"`
	Description     string               `json:"description,omitempty"`
	Priority        Priority             `json:"priority"`
	CreatedBy       string               `json:"createdBy,omitempty"`
	AssignedAgentID string               `json:"assignedAgentId,omitempty"`
	Status          lifecycle.Status     `json:"status"`
	GitPhase        lifecycle.GitPhase   `json:"gitPhase"`
	NextAction      lifecycle.NextAction `json:"nextAction"`
	AutoCommit      bool                 `json:"autoCommit"`
	AutoPush        bool                 `json:"autoPush"`
	ProjectPath     string               `json:"projectPath,omitempty"`
	TargetRepo      string               `json:"targetRepo,omitempty"`
	PRBaseBranch    string               `json:"prBaseBranch,omitempty"`
	GitBranch       string               `json:"gitBranch,omitempty"`
	GitCommitHash   string               `json:"gitCommitHash,omitempty"`
	GitPRURL        string               `json:"gitPrUrl,omitempty"`
	GitPRStatus     PRStatus             `json:"gitPrStatus,omitempty"`
	StartedAt       *time.Time           `json:"startedAt,omitempty"`
	GeneratedAt     *time.Time           `json:"generatedAt,omitempty"`
	CommittedAt     *time.Time           `json:"committedAt,omitempty"`
	PushedAt        *time.Time           `json:"pushedAt,omitempty"`
	CompletedAt     *time.Time           `json:"completedAt,omitempty"`
	ProgressLog     string               `json:"progressLog,omitempty"`
	Version         int64                `json:"version"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

func NewView(t *Task) *View {
	return &View{
		ID:              t.ID,
		ProjectID:       t.ProjectID,
		Title:           t.Title,
		Description:     t.Description,
		Priority:        t.Priority,
		CreatedBy:       t.CreatedBy,
		AssignedAgentID: t.AssignedAgentID,
		Status:          t.Status,
		GitPhase:        t.GitPhase,
		NextAction:      t.NextAction(),
		AutoCommit:      t.AutoCommit,
		AutoPush:        t.AutoPush,
		ProjectPath:     t.ProjectPath,
		TargetRepo:      t.TargetRepo,
		PRBaseBranch:    t.PRBaseBranch,
		GitBranch:       t.GitBranch,
		GitCommitHash:   t.GitCommitHash,
		GitPRURL:        t.GitPRURL,
		GitPRStatus:     t.GitPRStatus,
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
