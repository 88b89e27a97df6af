// Package lifecycle holds the task workflow rules: which status may follow
// which, how the git phase advances, what the next required action is and
// how agent reports map onto status changes. Everything here is pure.
package lifecycle

type Status string

const (
	StatusCreated       Status = "CREATED"
	StatusGenerating    Status = "GENERATING"
	StatusGenerated     Status = "GENERATED"
	StatusCommitPending Status = "COMMIT_PENDING"
	StatusCommitted     Status = "COMMITTED"
	StatusPushPending   Status = "PUSH_PENDING"
	StatusPushed        Status = "PUSHED"
	StatusPRCreated     Status = "PR_CREATED"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{
	StatusCreated,
	StatusGenerating,
	StatusGenerated,
	StatusCommitPending,
	StatusCommitted,
	StatusPushPending,
	StatusPushed,
	StatusPRCreated,
	StatusCompleted,
	StatusFailed,
}

var rank = map[Status]int{
	StatusCreated:       0,
	StatusGenerating:    1,
	StatusGenerated:     2,
	StatusCommitPending: 3,
	StatusCommitted:     4,
	StatusPushPending:   5,
	StatusPushed:        6,
	StatusPRCreated:     7,
	StatusCompleted:     8,
}

// edges are the forward transitions. The edges into COMPLETED from
// GENERATED, COMMITTED and PUSHED exist because the commit and push phases
// are optional and a push does not require a PR. FAILED is handled
// separately since it is reachable from every non-terminal status.
var edges = map[Status][]Status{
	StatusCreated:       {StatusGenerating},
	StatusGenerating:    {StatusGenerated},
	StatusGenerated:     {StatusCommitPending, StatusCommitted, StatusCompleted},
	StatusCommitPending: {StatusCommitted},
	StatusCommitted:     {StatusPushPending, StatusPushed, StatusCompleted},
	StatusPushPending:   {StatusPushed},
	StatusPushed:        {StatusPRCreated, StatusCompleted},
	StatusPRCreated:     {StatusCompleted},
}

func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok || s == StatusFailed
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether to may directly follow from.
func CanTransition(from, to Status) bool {
	if !from.Valid() || from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// path returns the shortest chain of forward transitions leading from one
// status to another, excluding from itself. ok is false when to cannot be
// reached without going through FAILED.
func path(from, to Status) (hops []Status, ok bool) {
	if from == to {
		return nil, true
	}
	prev := map[Status]Status{from: from}
	queue := []Status{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range edges[cur] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == to {
				for s := to; s != from; s = prev[s] {
					hops = append([]Status{s}, hops...)
				}
				return hops, true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

type GitPhase string

const (
	GitPhaseNone      GitPhase = "NONE"
	GitPhaseCommitted GitPhase = "COMMITTED"
	GitPhasePushed    GitPhase = "PUSHED"
	GitPhasePRCreated GitPhase = "PR_CREATED"
)

var gitPhaseOrder = map[GitPhase]int{
	GitPhaseNone:      0,
	GitPhaseCommitted: 1,
	GitPhasePushed:    2,
	GitPhasePRCreated: 3,
}

func (p GitPhase) Valid() bool {
	_, ok := gitPhaseOrder[p]
	return ok
}

// Max returns the later of the two phases.
func (p GitPhase) Max(other GitPhase) GitPhase {
	if gitPhaseOrder[other] > gitPhaseOrder[p] {
		return other
	}
	if !p.Valid() {
		return GitPhaseNone
	}
	return p
}

// AtLeast reports whether p is at or beyond other.
func (p GitPhase) AtLeast(other GitPhase) bool {
	return gitPhaseOrder[p] >= gitPhaseOrder[other]
}

// ImpliedGitPhase is the git milestone a status proves was reached.
func ImpliedGitPhase(s Status) GitPhase {
	switch s {
	case StatusCommitted, StatusPushPending:
		return GitPhaseCommitted
	case StatusPushed:
		return GitPhasePushed
	case StatusPRCreated:
		return GitPhasePRCreated
	}
	return GitPhaseNone
}
