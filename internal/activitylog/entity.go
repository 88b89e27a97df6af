package activitylog

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type Action string

const (
	ActionTaskCreated      Action = "TASK_CREATED"
	ActionTaskAssigned     Action = "TASK_ASSIGNED"
	ActionTaskStatusUpdate Action = "TASK_STATUS_UPDATE"
	ActionTaskRedispatched Action = "TASK_REDISPATCHED"
	ActionCommitApproved   Action = "COMMIT_APPROVED"
	ActionPushApproved     Action = "PUSH_APPROVED"
)

// Entry is one immutable audit record. Exactly one of AgentID and UserID
// names the actor.
type Entry struct {
	ID        string         `yaml:"id" json:"id"`
	TaskID    string         `yaml:"task_id" json:"taskId"`
	AgentID   string         `yaml:"agent_id,omitempty" json:"agentId,omitempty"`
	UserID    string         `yaml:"user_id,omitempty" json:"userId,omitempty"`
	Action    Action         `yaml:"action" json:"action"`
	Details   map[string]any `yaml:"details,omitempty" json:"details,omitempty"`
	Timestamp time.Time      `yaml:"timestamp" json:"timestamp"`
}

// NewEntry stamps a new entry. IDs are ULIDs, so sorting by ID yields
// creation order.
func NewEntry(taskID string, action Action, details map[string]any, now time.Time) *Entry {
	return &Entry{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		TaskID:    taskID,
		Action:    action,
		Details:   details,
		Timestamp: now,
	}
}

func (e *Entry) ByAgent(agentID string) *Entry {
	e.AgentID = agentID
	return e
}

func (e *Entry) ByUser(userID string) *Entry {
	e.UserID = userID
	return e
}
