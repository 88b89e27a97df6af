package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/prism/prism/internal/activitylog"
	"github.com/prism/prism/internal/agent"
	"github.com/prism/prism/internal/dispatch"
	"github.com/prism/prism/internal/lifecycle"
	"github.com/prism/prism/internal/notifier"
	"github.com/prism/prism/internal/project"
	"github.com/prism/prism/internal/task"
	"github.com/prism/prism/internal/taskstore"
	"github.com/prism/prism/pkg/cerr"
	"github.com/prism/prism/pkg/keylock"
)

const defaultBaseBranch = "main"

type Orchestrator struct {
	tasks      task.Repository
	projects   project.Repository
	agents     agent.Repository
	activities activitylog.Repository
	recorder   taskstore.Recorder
	hub        *notifier.Hub
	registry   *dispatch.Registry
	locks      *keylock.KeyLock
	now        func() time.Time
}

type Deps struct {
	Tasks      task.Repository
	Projects   project.Repository
	Agents     agent.Repository
	Activities activitylog.Repository
	Recorder   taskstore.Recorder
	Hub        *notifier.Hub
	Registry   *dispatch.Registry
	Locks      *keylock.KeyLock
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{
		tasks:      d.Tasks,
		projects:   d.Projects,
		agents:     d.Agents,
		activities: d.Activities,
		recorder:   d.Recorder,
		hub:        d.Hub,
		registry:   d.Registry,
		locks:      d.Locks,
		now:        time.Now,
	}
}

// Outcome is the result of an operation that hands work to an agent.
// Delivered is false when the agent was not listening; the message is
// then lost and the operation has to be repeated.
type Outcome struct {
	Task      *task.Task
	Message   *dispatch.Message
	Delivered bool
}

type CreateTaskRequest struct {
	ProjectID       string
	Title           string
	Description     string
	Priority        string
	AssignedAgentID string
	CreatedBy       string
	AutoCommit      bool
	AutoPush        bool
	ProjectPath     string
	TargetRepo      string
	PRBaseBranch    string
}

// CreateTask stores a new CREATED task and hands it to its agent, if any.
// An empty ProjectID selects the oldest project.
func (o *Orchestrator) CreateTask(ctx context.Context, req CreateTaskRequest) (*Outcome, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "title is required", nil).
			AddDetailMessage("title must not be empty", "task.title.required")
	}
	proj, err := o.resolveProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	assignee := "Unassigned"
	if req.AssignedAgentID != "" {
		a, err := o.resolveAgent(ctx, req.AssignedAgentID)
		if err != nil {
			return nil, err
		}
		assignee = a.Name
	}

	now := o.now()
	t := &task.Task{
		ID:              ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		ProjectID:       proj.ID,
		Title:           title,
		Description:     req.Description,
		Priority:        task.ParsePriority(req.Priority),
		CreatedBy:       req.CreatedBy,
		AssignedAgentID: req.AssignedAgentID,
		Status:          lifecycle.StatusCreated,
		GitPhase:        lifecycle.GitPhaseNone,
		AutoCommit:      req.AutoCommit,
		AutoPush:        req.AutoCommit && req.AutoPush,
		ProjectPath:     req.ProjectPath,
		TargetRepo:      req.TargetRepo,
		PRBaseBranch:    req.PRBaseBranch,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	entry := activitylog.NewEntry(t.ID, activitylog.ActionTaskCreated, map[string]any{
		"title":       t.Title,
		"assigned_to": assignee,
	}, now).ByUser(req.CreatedBy)
	if err := o.recorder.Create(ctx, t, entry); err != nil {
		return nil, err
	}
	o.hub.Publish(t.ID, notifier.NewEvent(notifier.EventTaskCreated, t, "", now))
	slog.InfoContext(ctx, "task created", "task_id", t.ID, "project_id", t.ProjectID, "assigned_agent_id", t.AssignedAgentID)

	out := &Outcome{Task: t}
	if t.Assigned() {
		out.Message, out.Delivered = o.send(ctx, t, o.assignMessage(t, now))
	}
	return out, nil
}

// AssignTask gives an unassigned CREATED task to an agent.
func (o *Orchestrator) AssignTask(ctx context.Context, taskID, agentID, actorID string) (*Outcome, error) {
	if agentID == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "agent_id is required", nil)
	}
	unlock := o.locks.Lock(taskID)
	defer unlock()

	t, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != lifecycle.StatusCreated || t.Assigned() {
		return nil, cerr.NewErrorf(cerr.FailedPrecondition, nil,
			"task %s is %s and assigned to %q; only unassigned CREATED tasks can be assigned", t.ID, t.Status, t.AssignedAgentID)
	}
	a, err := o.resolveAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	now := o.now()
	next := t.Clone()
	next.AssignedAgentID = a.ID
	entry := activitylog.NewEntry(t.ID, activitylog.ActionTaskAssigned, map[string]any{
		"agent_id":   a.ID,
		"agent_name": a.Name,
	}, now).ByUser(actorID)
	if err := o.recorder.Update(ctx, next, entry); err != nil {
		return nil, err
	}
	o.hub.Publish(next.ID, notifier.NewEvent(notifier.EventTaskAssigned, next, "assigned to "+a.Name, now))
	slog.InfoContext(ctx, "task assigned", "task_id", next.ID, "agent_id", a.ID)

	out := &Outcome{Task: next}
	out.Message, out.Delivered = o.send(ctx, next, o.assignMessage(next, now))
	return out, nil
}

// Redispatch repeats the assignment of a CREATED task whose agent missed
// the first dispatch.
func (o *Orchestrator) Redispatch(ctx context.Context, taskID, actorID string) (*Outcome, error) {
	unlock := o.locks.Lock(taskID)
	defer unlock()

	t, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != lifecycle.StatusCreated || !t.Assigned() {
		return nil, cerr.NewErrorf(cerr.FailedPrecondition, nil,
			"task %s is %s; only assigned CREATED tasks can be redispatched", t.ID, t.Status)
	}

	now := o.now()
	msg := o.assignMessage(t, now)
	entry := activitylog.NewEntry(t.ID, activitylog.ActionTaskRedispatched, map[string]any{
		"agent_id":   t.AssignedAgentID,
		"message_id": msg.ID,
	}, now).ByUser(actorID)
	if err := o.activities.Append(ctx, entry); err != nil {
		return nil, err
	}

	out := &Outcome{Task: t}
	out.Message, out.Delivered = o.send(ctx, t, msg)
	return out, nil
}

// ApproveCommit asks the agent to commit the generated code. The task
// status is left alone; the agent's next report records the result.
func (o *Orchestrator) ApproveCommit(ctx context.Context, taskID, actorID string, opts dispatch.CommitOptions) (*Outcome, error) {
	unlock := o.locks.Lock(taskID)
	defer unlock()

	t, err := o.approvable(ctx, taskID, lifecycle.NextActionCommitApproval)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Message) == "" {
		opts.Message = fmt.Sprintf("feat: Auto-generated code for task %s", t.Title)
	}

	now := o.now()
	msg := dispatch.NewMessage(dispatch.KindCommit, t.ID, t.Title, now)
	msg.ProjectPath = t.ProjectPath
	msg.Commit = &opts
	entry := activitylog.NewEntry(t.ID, activitylog.ActionCommitApproved, map[string]any{
		"commit_message": opts.Message,
		"message_id":     msg.ID,
	}, now).ByUser(actorID)
	return o.approve(ctx, t, msg, entry, "commit approved")
}

// PushRequest leaves CreatePR nil to get the default of opening a PR.
type PushRequest struct {
	CreatePR   *bool
	PRTitle    string
	PRBody     string
	BaseBranch string
	Reviewers  []string
	Labels     []string
}

// ApprovePush asks the agent to push the committed code and, unless told
// otherwise, open a PR. Like ApproveCommit it does not change the status.
func (o *Orchestrator) ApprovePush(ctx context.Context, taskID, actorID string, req PushRequest) (*Outcome, error) {
	unlock := o.locks.Lock(taskID)
	defer unlock()

	t, err := o.approvable(ctx, taskID, lifecycle.NextActionPushApproval)
	if err != nil {
		return nil, err
	}
	opts := pushOptions(t, req)

	now := o.now()
	msg := dispatch.NewMessage(dispatch.KindPush, t.ID, t.Title, now)
	msg.ProjectPath = t.ProjectPath
	msg.Push = opts
	entry := activitylog.NewEntry(t.ID, activitylog.ActionPushApproved, map[string]any{
		"create_pr":   opts.CreatePR,
		"base_branch": opts.BaseBranch,
		"message_id":  msg.ID,
	}, now).ByUser(actorID)
	return o.approve(ctx, t, msg, entry, "push approved")
}

func pushOptions(t *task.Task, req PushRequest) *dispatch.PushOptions {
	opts := &dispatch.PushOptions{
		CreatePR:   req.CreatePR == nil || *req.CreatePR,
		PRTitle:    req.PRTitle,
		PRBody:     req.PRBody,
		BaseBranch: req.BaseBranch,
		Reviewers:  req.Reviewers,
		Labels:     req.Labels,
	}
	if opts.BaseBranch == "" {
		opts.BaseBranch = t.PRBaseBranch
	}
	if opts.BaseBranch == "" {
		opts.BaseBranch = defaultBaseBranch
	}
	if opts.CreatePR {
		if opts.PRTitle == "" {
			opts.PRTitle = t.Title
		}
		if opts.PRBody == "" {
			opts.PRBody = t.Description
		}
	}
	return opts
}

func (o *Orchestrator) approvable(ctx context.Context, taskID string, want lifecycle.NextAction) (*task.Task, error) {
	t, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if got := t.NextAction(); got != want {
		return nil, cerr.NewErrorf(cerr.FailedPrecondition, nil,
			"task %s is %s with next action %s, not %s", t.ID, t.Status, got, want)
	}
	if !t.Assigned() {
		return nil, cerr.NewErrorf(cerr.FailedPrecondition, nil, "task %s has no assigned agent", t.ID)
	}
	return t, nil
}

func (o *Orchestrator) approve(ctx context.Context, t *task.Task, msg *dispatch.Message, entry *activitylog.Entry, details string) (*Outcome, error) {
	if err := o.activities.Append(ctx, entry); err != nil {
		return nil, err
	}
	o.hub.Publish(t.ID, notifier.NewEvent(notifier.EventApprovalGranted, t, details, entry.Timestamp))
	slog.InfoContext(ctx, "approval granted", "task_id", t.ID, "kind", msg.Kind, "user_id", entry.UserID)

	out := &Outcome{Task: t}
	out.Message, out.Delivered = o.send(ctx, t, msg)
	return out, nil
}

func (o *Orchestrator) assignMessage(t *task.Task, now time.Time) *dispatch.Message {
	msg := dispatch.NewMessage(dispatch.KindAssign, t.ID, t.Title, now)
	msg.Description = t.Description
	msg.ProjectPath = t.ProjectPath
	return msg
}

func (o *Orchestrator) send(ctx context.Context, t *task.Task, msg *dispatch.Message) (*dispatch.Message, bool) {
	delivered := o.registry.Send(t.AssignedAgentID, msg)
	if !delivered {
		slog.DebugContext(ctx, "dispatch unreachable", "task_id", t.ID, "agent_id", t.AssignedAgentID, "kind", msg.Kind)
	}
	return msg, delivered
}

func (o *Orchestrator) resolveProject(ctx context.Context, id string) (*project.Project, error) {
	if id == "" {
		projects, _, err := o.projects.List(ctx, 1, 0)
		if err != nil {
			return nil, err
		}
		if len(projects) == 0 {
			return nil, cerr.NewError(cerr.InvalidArgument, "no project exists to attach the task to", nil)
		}
		return projects[0], nil
	}
	p, err := o.projects.Get(ctx, id)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return nil, cerr.NewError(cerr.InvalidArgument, "project not found", err)
		}
		return nil, err
	}
	return p, nil
}

func (o *Orchestrator) resolveAgent(ctx context.Context, id string) (*agent.Agent, error) {
	a, err := o.agents.Get(ctx, id)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return nil, cerr.NewError(cerr.InvalidArgument, "agent not found", err)
		}
		return nil, err
	}
	return a, nil
}
