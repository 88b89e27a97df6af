package lifecycle

type NextAction string

const (
	NextActionWaitGeneration NextAction = "WAIT_GENERATION"
	NextActionCommitApproval NextAction = "COMMIT_APPROVAL"
	NextActionAutoCommit     NextAction = "AUTO_COMMIT"
	NextActionPushApproval   NextAction = "PUSH_APPROVAL"
	NextActionAutoPush       NextAction = "AUTO_PUSH"
	NextActionComplete       NextAction = "COMPLETE"
	NextActionCompleted      NextAction = "COMPLETED"
	NextActionRetryOrCancel  NextAction = "RETRY_OR_CANCEL"
	NextActionUnknown        NextAction = "UNKNOWN"
)

// NextActionFor derives what has to happen next for a task. It is never
// stored; callers recompute it from the current status on every read.
func NextActionFor(status Status, autoCommit, autoPush bool) NextAction {
	switch status {
	case StatusCreated, StatusGenerating:
		return NextActionWaitGeneration
	case StatusGenerated:
		if autoCommit {
			return NextActionAutoCommit
		}
		return NextActionCommitApproval
	case StatusCommitPending:
		return NextActionCommitApproval
	case StatusCommitted:
		if autoPush {
			return NextActionAutoPush
		}
		return NextActionPushApproval
	case StatusPushPending:
		return NextActionPushApproval
	case StatusPushed, StatusPRCreated:
		return NextActionComplete
	case StatusCompleted:
		return NextActionCompleted
	case StatusFailed:
		return NextActionRetryOrCancel
	}
	return NextActionUnknown
}

// RequiresApproval reports whether a human has to act before the task can
// move on.
func (a NextAction) RequiresApproval() bool {
	return a == NextActionCommitApproval || a == NextActionPushApproval
}
