package dispatch

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type Kind string

const (
	KindAssign Kind = "ASSIGN"
	KindCommit Kind = "COMMIT"
	KindPush   Kind = "PUSH"
)

type CommitOptions struct {
	Message string `json:"message"`
}

type PushOptions struct {
	CreatePR   bool     `json:"createPr"`
	PRTitle    string   `json:"prTitle,omitempty"`
	PRBody     string   `json:"prBody,omitempty"`
	BaseBranch string   `json:"baseBranch,omitempty"`
	Reviewers  []string `json:"reviewers,omitempty"`
	Labels     []string `json:"labels,omitempty"`
}

// Message is a command for one agent. Commit is set for KindCommit and Push
// for KindPush.
type Message struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	TaskID      string         `json:"taskId"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	ProjectPath string         `json:"projectPath,omitempty"`
	Commit      *CommitOptions `json:"commit,omitempty"`
	Push        *PushOptions   `json:"push,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func NewMessage(kind Kind, taskID, title string, now time.Time) *Message {
	return &Message{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Kind:      kind,
		TaskID:    taskID,
		Title:     title,
		CreatedAt: now,
	}
}
