// Package ingestion applies agent status reports to tasks.
package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prism/prism/internal/activitylog"
	"github.com/prism/prism/internal/lifecycle"
	"github.com/prism/prism/internal/notifier"
	"github.com/prism/prism/internal/task"
	"github.com/prism/prism/internal/taskstore"
	"github.com/prism/prism/pkg/cerr"
	"github.com/prism/prism/pkg/keylock"
)

const maxAttempts = 3

// Report is one status update sent by an agent.
type Report struct {
	TaskID        string
	Status        string
	Details       string
	AgentID       string
	GitBranch     string
	GitCommitHash string
	GitPRURL      string
}

func (r Report) git() task.GitFields {
	return task.GitFields{Branch: r.GitBranch, CommitHash: r.GitCommitHash, PRURL: r.GitPRURL}
}

type Service struct {
	tasks    task.Repository
	recorder taskstore.Recorder
	hub      *notifier.Hub
	locks    *keylock.KeyLock
	now      func() time.Time
}

// NewService wires the service. locks must be shared with every other
// component that mutates tasks.
func NewService(tasks task.Repository, recorder taskstore.Recorder, hub *notifier.Hub, locks *keylock.KeyLock) *Service {
	return &Service{
		tasks:    tasks,
		recorder: recorder,
		hub:      hub,
		locks:    locks,
		now:      time.Now,
	}
}

// Report applies r and returns the stored task.
//
// Reports for one task are applied one at a time, in arrival order. Every
// accepted report is audited and published, including those that leave the
// status unchanged. A version conflict with another writer is retried;
// cerr.Aborted is only returned once the retries are used up.
func (s *Service) Report(ctx context.Context, r Report) (*task.Task, error) {
	if r.TaskID == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "task_id is required", nil)
	}

	unlock := s.locks.Lock(r.TaskID)
	defer unlock()

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var t *task.Task
		t, err = s.apply(ctx, r)
		if err == nil {
			return t, nil
		}
		if !cerr.IsCode(err, cerr.Aborted) {
			return nil, err
		}
		slog.DebugContext(ctx, "status report conflicted, retrying", "task_id", r.TaskID, "attempt", attempt)
	}
	return nil, err
}

func (s *Service) apply(ctx context.Context, r Report) (*task.Task, error) {
	current, err := s.tasks.Get(ctx, r.TaskID)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			slog.WarnContext(ctx, "status report for unknown task", "task_id", r.TaskID, "agent_id", r.AgentID)
		}
		return nil, err
	}
	if r.AgentID != "" && current.Assigned() && r.AgentID != current.AssignedAgentID {
		slog.WarnContext(ctx, "status report from an agent the task is not assigned to",
			"task_id", r.TaskID, "agent_id", r.AgentID, "assigned_agent_id", current.AssignedAgentID)
	}

	report, known := lifecycle.ParseReport(r.Status)
	if !known {
		slog.WarnContext(ctx, "status report with unknown status word", "task_id", r.TaskID, "status", r.Status)
	}
	d, err := lifecycle.Decide(current.State(), lifecycle.Event{
		Report:    report,
		HasCommit: r.GitCommitHash != "",
		HasPR:     r.GitPRURL != "",
	})
	if err != nil {
		if errors.Is(err, lifecycle.ErrInvalidTransition) {
			slog.WarnContext(ctx, "rejected status report", "task_id", r.TaskID, "status", current.Status, "report", r.Status)
			return nil, cerr.NewError(cerr.FailedPrecondition, err.Error(), err)
		}
		return nil, err
	}

	now := s.now()
	if !d.Has(lifecycle.EffectPersist) {
		return s.recordOnly(ctx, current, r, d, now)
	}

	next := current.Clone()
	next.Apply(d, now)
	changed := next.MergeGit(r.git())
	next.AppendProgress(r.Details)

	entry := activitylog.NewEntry(next.ID, activitylog.ActionTaskStatusUpdate, auditDetails(r, d), now).ByAgent(r.AgentID)
	if err := s.recorder.Update(ctx, next, entry); err != nil {
		return nil, err
	}

	s.hub.Publish(next.ID, notifier.NewEvent(notifier.EventStatusUpdate, next, r.Details, now).WithGit(changed))

	if d.Changed() {
		slog.InfoContext(ctx, "task status updated", "task_id", next.ID, "from", d.From, "to", d.To, "report", r.Status)
	} else {
		slog.DebugContext(ctx, "task status unchanged", "task_id", next.ID, "status", d.To, "report", r.Status, "ignored", d.Ignored)
	}
	return next, nil
}

// recordOnly audits and publishes a report on a finished task without
// touching the stored task.
func (s *Service) recordOnly(ctx context.Context, current *task.Task, r Report, d lifecycle.Decision, now time.Time) (*task.Task, error) {
	entry := activitylog.NewEntry(current.ID, activitylog.ActionTaskStatusUpdate, auditDetails(r, d), now).ByAgent(r.AgentID)
	if err := s.recorder.Audit(ctx, entry); err != nil {
		return nil, err
	}
	s.hub.Publish(current.ID, notifier.NewEvent(notifier.EventStatusUpdate, current, r.Details, now))
	slog.DebugContext(ctx, "status report on finished task recorded", "task_id", current.ID, "status", current.Status, "report", r.Status)
	return current, nil
}

func auditDetails(r Report, d lifecycle.Decision) map[string]any {
	details := map[string]any{
		"status": r.Status,
		"from":   string(d.From),
		"to":     string(d.To),
	}
	if r.Details != "" {
		details["details"] = r.Details
	}
	if r.GitBranch != "" {
		details["git_branch"] = r.GitBranch
	}
	if r.GitCommitHash != "" {
		details["git_commit"] = r.GitCommitHash
	}
	if r.GitPRURL != "" {
		details["git_pr_url"] = r.GitPRURL
	}
	if d.Ignored {
		details["ignored"] = true
	}
	return details
}
