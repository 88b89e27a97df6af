package task

import (
	"strings"
	"time"

	"github.com/prism/prism/internal/lifecycle"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority defaults to MEDIUM for empty or unknown input.
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p
	}
	return PriorityMedium
}

type PRStatus string

const PRStatusOpen PRStatus = "OPEN"

type Task struct {
	ID              string             `yaml:"id"`
	ProjectID       string             `yaml:"project_id"`
	Title           string             `yaml:"title"`
	Description     string             `yaml:"description"`
	Priority        Priority           `yaml:"priority"`
	CreatedBy       string             `yaml:"created_by"`
	AssignedAgentID string             `yaml:"assigned_agent_id"`
	Status          lifecycle.Status   `yaml:"status"`
	GitPhase        lifecycle.GitPhase `yaml:"git_phase"`

	AutoCommit   bool   `yaml:"auto_commit"`
	AutoPush     bool   `yaml:"auto_push"`
	ProjectPath  string `yaml:"project_path"`
	TargetRepo   string `yaml:"target_repo"`
	PRBaseBranch string `yaml:"pr_base_branch"`

	GitBranch     string   `yaml:"git_branch"`
	GitCommitHash string   `yaml:"git_commit_hash"`
	GitPRURL      string   `yaml:"git_pr_url"`
	GitPRStatus   PRStatus `yaml:"git_pr_status"`

	StartedAt   *time.Time `yaml:"started_at,omitempty"`
	GeneratedAt *time.Time `yaml:"generated_at,omitempty"`
	CommittedAt *time.Time `yaml:"committed_at,omitempty"`
	PushedAt    *time.Time `yaml:"pushed_at,omitempty"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty"`

	ProgressLog string    `yaml:"progress_log"`
	Version     int64     `yaml:"version"`
	CreatedAt   time.Time `yaml:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

func (t *Task) Assigned() bool {
	return t.AssignedAgentID != ""
}

func (t *Task) State() lifecycle.State {
	return lifecycle.State{
		Status:   t.Status,
		GitPhase: t.GitPhase,
		Assigned: t.Assigned(),
	}
}

func (t *Task) NextAction() lifecycle.NextAction {
	return lifecycle.NextActionFor(t.Status, t.AutoCommit, t.AutoPush)
}

// Apply moves the task to the decided status. Phase timestamps are only
// set when still empty.
func (t *Task) Apply(d lifecycle.Decision, now time.Time) {
	t.Status = d.To
	t.GitPhase = t.GitPhase.Max(d.GitPhase)
	for _, ts := range d.Stamps {
		field := t.stampField(ts)
		if *field == nil {
			at := now
			*field = &at
		}
	}
}

func (t *Task) stampField(ts lifecycle.Timestamp) **time.Time {
	switch ts {
	case lifecycle.TimestampStarted:
		return &t.StartedAt
	case lifecycle.TimestampGenerated:
		return &t.GeneratedAt
	case lifecycle.TimestampCommitted:
		return &t.CommittedAt
	case lifecycle.TimestampPushed:
		return &t.PushedAt
	default:
		return &t.CompletedAt
	}
}

// GitFields carries the optional git attributes of a report.
type GitFields struct {
	Branch     string
	CommitHash string
	PRURL      string
}

// MergeGit copies the non-empty incoming fields and returns the ones that
// actually changed. Empty input never clears a stored value.
func (t *Task) MergeGit(in GitFields) GitFields {
	var changed GitFields
	if in.Branch != "" && in.Branch != t.GitBranch {
		t.GitBranch = in.Branch
		changed.Branch = in.Branch
	}
	if in.CommitHash != "" && in.CommitHash != t.GitCommitHash {
		t.GitCommitHash = in.CommitHash
		changed.CommitHash = in.CommitHash
	}
	if in.PRURL != "" && in.PRURL != t.GitPRURL {
		t.GitPRURL = in.PRURL
		t.GitPRStatus = PRStatusOpen
		changed.PRURL = in.PRURL
	}
	return changed
}

// AppendProgress adds agent detail text as a new line of the progress log.
func (t *Task) AppendProgress(details string) {
	details = strings.TrimSpace(details)
	if details == "" {
		return
	}
	if t.ProgressLog == "" {
		t.ProgressLog = details
		return
	}
	t.ProgressLog += "\n" + details
}

func (t *Task) Clone() *Task {
	c := *t
	for _, p := range []**time.Time{&c.StartedAt, &c.GeneratedAt, &c.CommittedAt, &c.PushedAt, &c.CompletedAt} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return &c
}
