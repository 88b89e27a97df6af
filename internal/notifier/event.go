package notifier

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/prism/prism/internal/lifecycle"
	"github.com/prism/prism/internal/task"
)

type EventType string

const (
	EventStatusUpdate    EventType = "STATUS_UPDATE"
	EventTaskCreated     EventType = "TASK_CREATED"
	EventTaskAssigned    EventType = "TASK_ASSIGNED"
	EventApprovalGranted EventType = "APPROVAL_GRANTED"
)

// Event describes a task change to observers. Git fields are only set when
// the change carried them.
type Event struct {
	ID            string               `json:"id"`
	Type          EventType            `json:"type"`
	TaskID        string               `json:"taskId"`
	Status        lifecycle.Status     `json:"status"`
	GitPhase      lifecycle.GitPhase   `json:"gitPhase"`
	NextAction    lifecycle.NextAction `json:"nextAction"`
	Details       string               `json:"details,omitempty"`
	GitBranch     string               `json:"gitBranch,omitempty"`
	GitCommitHash string               `json:"gitCommitHash,omitempty"`
	GitPRURL      string               `json:"gitPrUrl,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
}

// NewEvent snapshots t.
func NewEvent(typ EventType, t *task.Task, details string, now time.Time) *Event {
	return &Event{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Type:       typ,
		TaskID:     t.ID,
		Status:     t.Status,
		GitPhase:   t.GitPhase,
		NextAction: t.NextAction(),
		Details:    details,
		Timestamp:  now,
	}
}

func (e *Event) WithGit(g task.GitFields) *Event {
	e.GitBranch = g.Branch
	e.GitCommitHash = g.CommitHash
	e.GitPRURL = g.PRURL
	return e
}
