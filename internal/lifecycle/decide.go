package lifecycle

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("invalid transition")

type TransitionError struct {
	From   Status
	Report string
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: report %q from %s: %s", e.Report, e.From, e.Reason)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// State is the part of a task the lifecycle decides on.
type State struct {
	Status   Status
	GitPhase GitPhase
	Assigned bool
}

// Event is one agent report. HasCommit and HasPR tell whether the report
// carries a commit hash or PR URL, which coarse reports use as evidence of
// the git milestones reached.
type Event struct {
	Report    Report
	HasCommit bool
	HasPR     bool
}

type Timestamp int

const (
	TimestampStarted Timestamp = iota
	TimestampGenerated
	TimestampCommitted
	TimestampPushed
	TimestampCompleted
)

type Effect int

const (
	// EffectPersist applies the decision to the stored task. Finished tasks
	// are history and never get it.
	EffectPersist Effect = iota
	EffectAudit
	EffectNotify
)

// Decision is the outcome of applying an Event to a State.
type Decision struct {
	From     Status
	To       Status
	Path     []Status // statuses passed through in order, ending with To
	GitPhase GitPhase
	Stamps   []Timestamp
	Effects  []Effect
	// Ignored is set for reports outside the vocabulary.
	Ignored bool
}

// Changed reports whether the decision moves the task to another status.
func (d Decision) Changed() bool {
	return len(d.Path) > 0
}

func (d Decision) Has(e Effect) bool {
	for _, x := range d.Effects {
		if x == e {
			return true
		}
	}
	return false
}

// HasStamp reports whether the decision sets the given timestamp.
func (d Decision) HasStamp(ts Timestamp) bool {
	for _, s := range d.Stamps {
		if s == ts {
			return true
		}
	}
	return false
}

func (d *Decision) addStamp(ts Timestamp) {
	if !d.HasStamp(ts) {
		d.Stamps = append(d.Stamps, ts)
	}
}

// Decide computes how ev changes st. Accepted reports always produce an
// audit entry and a notification, including reports that leave the status
// unchanged. Only reports on open tasks are persisted.
func Decide(st State, ev Event) (Decision, error) {
	d := Decision{
		From:     st.Status,
		To:       st.Status,
		GitPhase: st.GitPhase.Max(GitPhaseNone),
		Effects:  []Effect{EffectPersist, EffectAudit, EffectNotify},
	}
	if st.Status.IsTerminal() {
		d.Effects = []Effect{EffectAudit, EffectNotify}
	}
	invalid := func(reason string) (Decision, error) {
		return Decision{}, &TransitionError{From: st.Status, Report: ev.Report.Raw, Reason: reason}
	}
	if !st.Status.Valid() {
		return invalid("current status is unknown")
	}

	var hops []Status
	switch ev.Report.Kind {
	case ReportUnknown:
		d.Ignored = true
		return d, nil

	case ReportInProgress:
		if st.Status.IsTerminal() {
			return invalid("task already finished")
		}
		milestones := []Status{StatusGenerating}
		if ev.HasCommit {
			milestones = append(milestones, StatusCommitted)
		}
		if ev.HasPR {
			milestones = append(milestones, StatusPRCreated)
		}
		var ok bool
		if hops, ok = walk(st.Status, milestones); !ok {
			return invalid("no forward path")
		}
		d.addStamp(TimestampStarted)

	case ReportDone:
		switch st.Status {
		case StatusCompleted:
			return d, nil
		case StatusFailed:
			return invalid("task already failed")
		}
		milestones := []Status{StatusGenerated}
		if ev.HasCommit {
			milestones = append(milestones, StatusCommitted)
		}
		if ev.HasPR {
			milestones = append(milestones, StatusPRCreated)
		}
		milestones = append(milestones, StatusCompleted)
		var ok bool
		if hops, ok = walk(st.Status, milestones); !ok {
			return invalid("no forward path to completion")
		}

	case ReportFailed:
		switch st.Status {
		case StatusFailed:
			return d, nil
		case StatusCompleted:
			return invalid("task already completed")
		}
		hops = []Status{StatusFailed}

	case ReportStatus:
		if ev.Report.Status == st.Status {
			return d, nil
		}
		if st.Status.IsTerminal() || rank[ev.Report.Status] <= rank[st.Status] {
			return invalid(fmt.Sprintf("%s may not follow %s", ev.Report.Status, st.Status))
		}
		// A milestone report implies the statuses on the way to it.
		var ok bool
		if hops, ok = path(st.Status, ev.Report.Status); !ok {
			return invalid(fmt.Sprintf("%s is not reachable from %s", ev.Report.Status, st.Status))
		}
	}

	if len(hops) > 0 && st.Status == StatusCreated && !st.Assigned {
		return invalid("task has no assigned agent")
	}

	d.Path = hops
	for _, s := range hops {
		d.To = s
		d.GitPhase = d.GitPhase.Max(ImpliedGitPhase(s))
		if ts, ok := stampFor(s); ok {
			d.addStamp(ts)
		}
	}
	return d, nil
}

// walk chains shortest paths through the milestones that lie ahead of from.
// Milestones at or behind from are skipped, so a repeated report never
// moves a task backwards.
func walk(from Status, milestones []Status) ([]Status, bool) {
	var hops []Status
	cur := from
	for _, m := range milestones {
		if rank[m] <= rank[cur] {
			continue
		}
		p, ok := path(cur, m)
		if !ok {
			return nil, false
		}
		hops = append(hops, p...)
		cur = m
	}
	return hops, true
}

func stampFor(s Status) (Timestamp, bool) {
	switch s {
	case StatusGenerating:
		return TimestampStarted, true
	case StatusGenerated:
		return TimestampGenerated, true
	case StatusCommitted:
		return TimestampCommitted, true
	case StatusPushed:
		return TimestampPushed, true
	case StatusCompleted:
		return TimestampCompleted, true
	}
	return 0, false
}
