package metrics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
)

// Canonical state classes reconstructed from Linear workflow state names.
const (
	ClassBacklog    = "Backlog"
	ClassQueue      = "Queue"
	ClassInProgress = "InProgress"
	ClassBlocked    = "Blocked"
	ClassDone       = "Done"
	ClassCanceled   = "Canceled"
)

const (
	IntervalInProgress = "in_progress"
	IntervalBlocked    = "blocked"
)

// ClassifyState maps a Linear state name onto a canonical class.
// Heuristic fallback: unknown names count as queued, not as work.
func ClassifyState(state string) string {
	s := strings.ToLower(strings.TrimSpace(state))
	switch {
	case s == "backlog" || strings.Contains(s, "triage"):
		return ClassBacklog
	case strings.Contains(s, "cancel") || strings.Contains(s, "duplicate") || strings.Contains(s, "won't"):
		return ClassCanceled
	case strings.Contains(s, "done") || strings.Contains(s, "complete") || strings.Contains(s, "resolve") || strings.Contains(s, "merged") || strings.Contains(s, "released") || strings.Contains(s, "deployed"):
		return ClassDone
	case strings.Contains(s, "block") || strings.Contains(s, "on hold") || strings.Contains(s, "waiting"):
		return ClassBlocked
	case strings.Contains(s, "in progress") || s == "doing" || s == "started" || strings.Contains(s, "review") || strings.Contains(s, "test") || strings.Contains(s, "qa"):
		return ClassInProgress
	default:
		return ClassQueue
	}
}

type Interval struct {
	Kind  string
	Start time.Time
	End   time.Time
}

func (iv Interval) Duration() time.Duration { return iv.End.Sub(iv.Start) }

// Covers reports whether the interval overlaps the calendar day starting
// at day (midnight UTC).
func (iv Interval) Covers(day time.Time) bool {
	dayEnd := day.Add(24 * time.Hour)
	return iv.Start.Before(dayEnd) && iv.End.After(day)
}

// Timeline is a normalized view of one issue's working life: ordered,
// non-overlapping in-progress and blocked spans from the first entry
// into a started-class state until completion (or now if still open).
type Timeline struct {
	IssueID     string
	StartedAt   *time.Time
	CompletedAt *time.Time
	Intervals   []Interval
}

// Open reports whether the issue is still in flight: work started but no
// terminal transition observed. Open issues count toward WIP, never
// toward completed cycle-time statistics.
func (tl Timeline) Open() bool { return tl.StartedAt != nil && tl.CompletedAt == nil }

// ActiveCycleTime is wall-clock cycle time minus blocked time.
func (tl Timeline) ActiveCycleTime() time.Duration {
	var d time.Duration
	for _, iv := range tl.Intervals {
		if iv.Kind == IntervalInProgress {
			d += iv.Duration()
		}
	}
	return d
}

// WallClockCycleTime is the full span from work start to completion (or
// to the end of the last interval for open issues).
func (tl Timeline) WallClockCycleTime() time.Duration {
	if tl.StartedAt == nil || len(tl.Intervals) == 0 {
		return 0
	}
	return tl.Intervals[len(tl.Intervals)-1].End.Sub(*tl.StartedAt)
}

// BlockedTime is the total blocked duration within the working span.
func (tl Timeline) BlockedTime() time.Duration {
	var d time.Duration
	for _, iv := range tl.Intervals {
		if iv.Kind == IntervalBlocked {
			d += iv.Duration()
		}
	}
	return d
}

// InProgressOn reports whether the issue had non-blocked active work
// overlapping the given calendar day.
func (tl Timeline) InProgressOn(day time.Time) bool {
	for _, iv := range tl.Intervals {
		if iv.Kind == IntervalInProgress && iv.Covers(day) {
			return true
		}
	}
	return false
}

// BuildTimeline reconstructs an issue's normalized timeline from its
// ordered state-change history and blocked periods.
//
// The first transition into a started-class state marks cycle-time
// start; the first subsequent transition into a done-class state marks
// cycle-time end. An open blocked period is clipped to now for duration
// purposes but stays open in storage. A history whose from-states do not
// chain, or whose blocked periods overlap, yields
// domain.ErrInconsistentHistory and the issue is skipped for cycle-time
// purposes.
func BuildTimeline(issue domain.Issue, changes []domain.StateChange, blocked []domain.BlockedPeriod, now time.Time) (Timeline, error) {
	tl := Timeline{IssueID: issue.ID}

	seq := make([]domain.StateChange, len(changes))
	copy(seq, changes)
	sort.Slice(seq, func(i, j int) bool { return seq[i].At.Before(seq[j].At) })

	for i := 1; i < len(seq); i++ {
		if seq[i].FromState != seq[i-1].ToState {
			return tl, fmt.Errorf("issue %s: transition %q->%q does not follow %q: %w",
				issue.ID, seq[i].FromState, seq[i].ToState, seq[i-1].ToState, domain.ErrInconsistentHistory)
		}
	}

	var started, completed, canceled *time.Time
	for _, sc := range seq {
		class := ClassifyState(sc.ToState)
		if started == nil {
			if class == ClassInProgress {
				at := sc.At
				started = &at
			}
			continue
		}
		if class == ClassDone {
			at := sc.At
			completed = &at
			break
		}
		if class == ClassCanceled {
			// terminates the working span without counting as done
			at := sc.At
			canceled = &at
			break
		}
	}
	tl.StartedAt = started
	tl.CompletedAt = completed
	if started == nil {
		return tl, nil
	}

	end := now
	if completed != nil {
		end = *completed
	} else if canceled != nil {
		end = *canceled
	}
	if !end.After(*started) {
		return tl, nil
	}

	spans, err := blockedSpans(issue.ID, blocked, *started, end, now)
	if err != nil {
		return tl, err
	}

	// Weave blocked spans into the working window.
	cursor := *started
	for _, b := range spans {
		if b.Start.After(cursor) {
			tl.Intervals = append(tl.Intervals, Interval{Kind: IntervalInProgress, Start: cursor, End: b.Start})
		}
		tl.Intervals = append(tl.Intervals, Interval{Kind: IntervalBlocked, Start: b.Start, End: b.End})
		cursor = b.End
	}
	if cursor.Before(end) {
		tl.Intervals = append(tl.Intervals, Interval{Kind: IntervalInProgress, Start: cursor, End: end})
	}
	return tl, nil
}

// blockedSpans clips an issue's blocked periods to the working window
// [start, end] and validates the non-overlap invariant. Open periods are
// clipped to now.
func blockedSpans(issueID string, blocked []domain.BlockedPeriod, start, end, now time.Time) ([]Interval, error) {
	periods := make([]domain.BlockedPeriod, len(blocked))
	copy(periods, blocked)
	sort.Slice(periods, func(i, j int) bool { return periods[i].StartedAt.Before(periods[j].StartedAt) })

	var out []Interval
	var prevEnd time.Time
	for i, p := range periods {
		pEnd := now
		if p.EndedAt != nil {
			pEnd = *p.EndedAt
		}
		if pEnd.Before(p.StartedAt) {
			return nil, fmt.Errorf("issue %s: blocked period ends before it starts: %w", issueID, domain.ErrInconsistentHistory)
		}
		if i > 0 && p.StartedAt.Before(prevEnd) {
			return nil, fmt.Errorf("issue %s: overlapping blocked periods: %w", issueID, domain.ErrInconsistentHistory)
		}
		prevEnd = pEnd

		s, e := p.StartedAt, pEnd
		if s.Before(start) {
			s = start
		}
		if e.After(end) {
			e = end
		}
		if !e.After(s) {
			continue
		}
		out = append(out, Interval{Kind: IntervalBlocked, Start: s, End: e})
	}
	return out, nil
}
