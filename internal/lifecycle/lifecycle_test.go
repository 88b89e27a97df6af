package lifecycle

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	legal := [][2]Status{
		{StatusCreated, StatusGenerating},
		{StatusGenerating, StatusGenerated},
		{StatusGenerated, StatusCommitPending},
		{StatusGenerated, StatusCommitted},
		{StatusGenerated, StatusCompleted},
		{StatusCommitPending, StatusCommitted},
		{StatusCommitted, StatusPushPending},
		{StatusCommitted, StatusPushed},
		{StatusCommitted, StatusCompleted},
		{StatusPushPending, StatusPushed},
		{StatusPushed, StatusPRCreated},
		{StatusPushed, StatusCompleted},
		{StatusPRCreated, StatusCompleted},
	}
	allowed := map[[2]Status]bool{}
	for _, e := range legal {
		allowed[e] = true
	}
	for _, from := range Statuses {
		if !from.IsTerminal() {
			allowed[[2]Status{from, StatusFailed}] = true
		}
	}

	for _, from := range Statuses {
		for _, to := range Statuses {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransition("BOGUS", StatusFailed))
}

func TestCanTransition_NeverBackward(t *testing.T) {
	for _, from := range Statuses {
		for _, to := range Statuses {
			if to == StatusFailed || !CanTransition(from, to) {
				continue
			}
			assert.Greater(t, rank[to], rank[from], "%s -> %s", from, to)
		}
	}
}

func TestGitPhase_Max(t *testing.T) {
	assert.Equal(t, GitPhasePushed, GitPhaseCommitted.Max(GitPhasePushed))
	assert.Equal(t, GitPhasePushed, GitPhasePushed.Max(GitPhaseCommitted))
	assert.Equal(t, GitPhaseNone, GitPhase("").Max(GitPhaseNone))
	assert.True(t, GitPhasePRCreated.AtLeast(GitPhasePushed))
	assert.False(t, GitPhaseNone.AtLeast(GitPhaseCommitted))
}

func TestNextActionFor(t *testing.T) {
	tests := []struct {
		status     Status
		autoCommit bool
		autoPush   bool
		want       NextAction
	}{
		{StatusCreated, false, false, NextActionWaitGeneration},
		{StatusGenerating, true, true, NextActionWaitGeneration},
		{StatusGenerated, false, false, NextActionCommitApproval},
		{StatusGenerated, true, false, NextActionAutoCommit},
		{StatusCommitPending, true, true, NextActionCommitApproval},
		{StatusCommitted, true, false, NextActionPushApproval},
		{StatusCommitted, true, true, NextActionAutoPush},
		{StatusPushPending, true, true, NextActionPushApproval},
		{StatusPushed, false, false, NextActionComplete},
		{StatusPRCreated, false, false, NextActionComplete},
		{StatusCompleted, false, false, NextActionCompleted},
		{StatusFailed, false, false, NextActionRetryOrCancel},
		{"BOGUS", false, false, NextActionUnknown},
	}
	for _, tt := range tests {
		got := NextActionFor(tt.status, tt.autoCommit, tt.autoPush)
		assert.Equal(t, tt.want, got, "%s commit=%v push=%v", tt.status, tt.autoCommit, tt.autoPush)
		// Same inputs, same answer.
		assert.Equal(t, got, NextActionFor(tt.status, tt.autoCommit, tt.autoPush))
	}
	assert.True(t, NextActionCommitApproval.RequiresApproval())
	assert.False(t, NextActionAutoPush.RequiresApproval())
}

func TestParseReport(t *testing.T) {
	tests := []struct {
		raw  string
		want Report
	}{
		{"IN_PROGRESS", Report{Kind: ReportInProgress, Raw: "IN_PROGRESS"}},
		{" in-progress ", Report{Kind: ReportInProgress, Raw: " in-progress "}},
		{"done", Report{Kind: ReportDone, Raw: "done"}},
		{"Failed", Report{Kind: ReportFailed, Raw: "Failed"}},
		{"pr created", Report{Kind: ReportStatus, Status: StatusPRCreated, Raw: "pr created"}},
		{"COMMITTED", Report{Kind: ReportStatus, Status: StatusCommitted, Raw: "COMMITTED"}},
		{"", Report{Kind: ReportUnknown, Raw: ""}},
		{"DANCING", Report{Kind: ReportUnknown, Raw: "DANCING"}},
	}
	for _, tt := range tests {
		got, ok := ParseReport(tt.raw)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseReport(%q) mismatch (-want +got):\n%s", tt.raw, diff)
		}
		if ok != (tt.want.Kind != ReportUnknown) {
			t.Errorf("ParseReport(%q) ok = %t", tt.raw, ok)
		}
	}
}

func parsed(raw string) Report {
	r, _ := ParseReport(raw)
	return r
}

func assigned(s Status, p GitPhase) State {
	return State{Status: s, GitPhase: p, Assigned: true}
}

func TestDecide(t *testing.T) {
	effects := []Effect{EffectPersist, EffectAudit, EffectNotify}
	history := []Effect{EffectAudit, EffectNotify}
	tests := []struct {
		name  string
		state State
		event Event
		want  Decision
	}{
		{
			name:  "first in progress starts generation",
			state: assigned(StatusCreated, GitPhaseNone),
			event: Event{Report: parsed("IN_PROGRESS")},
			want: Decision{
				From: StatusCreated, To: StatusGenerating,
				Path:     []Status{StatusGenerating},
				GitPhase: GitPhaseNone,
				Stamps:   []Timestamp{TimestampStarted},
				Effects:  effects,
			},
		},
		{
			name:  "repeated in progress stays",
			state: assigned(StatusGenerating, GitPhaseNone),
			event: Event{Report: parsed("IN_PROGRESS")},
			want: Decision{
				From: StatusGenerating, To: StatusGenerating,
				GitPhase: GitPhaseNone,
				Stamps:   []Timestamp{TimestampStarted},
				Effects:  effects,
			},
		},
		{
			name:  "in progress with commit hash records the commit",
			state: assigned(StatusGenerating, GitPhaseNone),
			event: Event{Report: parsed("IN_PROGRESS"), HasCommit: true},
			want: Decision{
				From: StatusGenerating, To: StatusCommitted,
				Path:     []Status{StatusGenerated, StatusCommitted},
				GitPhase: GitPhaseCommitted,
				Stamps:   []Timestamp{TimestampStarted, TimestampGenerated, TimestampCommitted},
				Effects:  effects,
			},
		},
		{
			name:  "done without git work completes directly",
			state: assigned(StatusGenerating, GitPhaseNone),
			event: Event{Report: parsed("DONE")},
			want: Decision{
				From: StatusGenerating, To: StatusCompleted,
				Path:     []Status{StatusGenerated, StatusCompleted},
				GitPhase: GitPhaseNone,
				Stamps:   []Timestamp{TimestampGenerated, TimestampCompleted},
				Effects:  effects,
			},
		},
		{
			name:  "done with commit and pr walks every git milestone",
			state: assigned(StatusGenerating, GitPhaseNone),
			event: Event{Report: parsed("DONE"), HasCommit: true, HasPR: true},
			want: Decision{
				From: StatusGenerating, To: StatusCompleted,
				Path: []Status{
					StatusGenerated, StatusCommitted, StatusPushed, StatusPRCreated, StatusCompleted,
				},
				GitPhase: GitPhasePRCreated,
				Stamps: []Timestamp{
					TimestampGenerated, TimestampCommitted, TimestampPushed, TimestampCompleted,
				},
				Effects: effects,
			},
		},
		{
			name:  "done on completed is idempotent",
			state: assigned(StatusCompleted, GitPhasePushed),
			event: Event{Report: parsed("DONE")},
			want: Decision{
				From: StatusCompleted, To: StatusCompleted,
				GitPhase: GitPhasePushed,
				Effects:  history,
			},
		},
		{
			name:  "failed from any open status",
			state: assigned(StatusPushPending, GitPhaseCommitted),
			event: Event{Report: parsed("FAILED")},
			want: Decision{
				From: StatusPushPending, To: StatusFailed,
				Path:     []Status{StatusFailed},
				GitPhase: GitPhaseCommitted,
				Effects:  effects,
			},
		},
		{
			name:  "explicit status follows a single edge",
			state: assigned(StatusGenerated, GitPhaseNone),
			event: Event{Report: parsed("COMMIT_PENDING")},
			want: Decision{
				From: StatusGenerated, To: StatusCommitPending,
				Path:     []Status{StatusCommitPending},
				GitPhase: GitPhaseNone,
				Effects:  effects,
			},
		},
		{
			name:  "milestone report implies the statuses before it",
			state: assigned(StatusCreated, GitPhaseNone),
			event: Event{Report: parsed("GENERATED")},
			want: Decision{
				From: StatusCreated, To: StatusGenerated,
				Path:     []Status{StatusGenerating, StatusGenerated},
				GitPhase: GitPhaseNone,
				Stamps:   []Timestamp{TimestampStarted, TimestampGenerated},
				Effects:  effects,
			},
		},
		{
			name:  "unknown word on a failed task is only audited",
			state: assigned(StatusFailed, GitPhaseCommitted),
			event: Event{Report: parsed("bogus"), HasCommit: true},
			want: Decision{
				From: StatusFailed, To: StatusFailed,
				GitPhase: GitPhaseCommitted,
				Effects:  history,
				Ignored:  true,
			},
		},
		{
			name:  "repeated rich status on a completed task is only audited",
			state: assigned(StatusCompleted, GitPhaseNone),
			event: Event{Report: parsed("COMPLETED"), HasPR: true},
			want: Decision{
				From: StatusCompleted, To: StatusCompleted,
				GitPhase: GitPhaseNone,
				Effects:  history,
			},
		},
		{
			name:  "unknown word is ignored",
			state: assigned(StatusGenerated, GitPhaseNone),
			event: Event{Report: parsed("DANCING")},
			want: Decision{
				From: StatusGenerated, To: StatusGenerated,
				GitPhase: GitPhaseNone,
				Effects:  effects,
				Ignored:  true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decide(tt.state, tt.event)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decide mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecide_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		raw   string
	}{
		{"pending branch not on the way", assigned(StatusCommitted, GitPhaseCommitted), "COMMIT_PENDING"},
		{"push pending after pushed", assigned(StatusPushed, GitPhasePushed), "PUSH_PENDING"},
		{"backward", assigned(StatusCommitted, GitPhaseCommitted), "GENERATING"},
		{"in progress after completion", assigned(StatusCompleted, GitPhaseNone), "IN_PROGRESS"},
		{"done after failure", assigned(StatusFailed, GitPhaseNone), "DONE"},
		{"failed after completion", assigned(StatusCompleted, GitPhaseNone), "FAILED"},
		{"unassigned cannot start", State{Status: StatusCreated, GitPhase: GitPhaseNone}, "IN_PROGRESS"},
		{"unassigned cannot fail", State{Status: StatusCreated, GitPhase: GitPhaseNone}, "FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decide(tt.state, Event{Report: parsed(tt.raw)})
			require.ErrorIs(t, err, ErrInvalidTransition)
			var terr *TransitionError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, tt.state.Status, terr.From)
		})
	}
}

// Every accepted decision only moves forward along legal edges and never
// lowers the git phase.
func TestDecide_Properties(t *testing.T) {
	words := []string{"IN_PROGRESS", "DONE", "FAILED", "?"}
	for _, s := range Statuses {
		words = append(words, string(s))
	}
	phases := []GitPhase{GitPhaseNone, GitPhaseCommitted, GitPhasePushed, GitPhasePRCreated}

	for _, from := range Statuses {
		for _, phase := range phases {
			for _, word := range words {
				for _, evidence := range [][2]bool{{false, false}, {true, false}, {false, true}, {true, true}} {
					st := assigned(from, phase)
					d, err := Decide(st, Event{Report: parsed(word), HasCommit: evidence[0], HasPR: evidence[1]})
					if err != nil {
						continue
					}
					assert.True(t, d.GitPhase.AtLeast(phase), "%s/%s %s lowered git phase", from, phase, word)
					cur := from
					for _, hop := range d.Path {
						require.True(t, CanTransition(cur, hop), "%s %s: illegal hop %s -> %s", from, word, cur, hop)
						cur = hop
					}
					assert.Equal(t, cur, d.To)
					if from.IsTerminal() {
						assert.False(t, d.Changed(), "terminal %s changed by %s", from, word)
						assert.False(t, d.Has(EffectPersist), "terminal %s persisted by %s", from, word)
					} else {
						assert.True(t, d.Has(EffectPersist), "%s not persisted by %s", from, word)
					}
					assert.True(t, d.Has(EffectAudit))
					assert.True(t, d.Has(EffectNotify))
				}
			}
		}
	}
}
