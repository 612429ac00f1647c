package funnel

import "fmt"

// Stage is one step in a lead's sales-conversion lifecycle.
type Stage string

const (
	StageBaitSent    Stage = "bait_sent"
	StageReplied     Stage = "replied"
	StageInterested  Stage = "interested"
	StageNegotiating Stage = "negotiating"
	StageHot         Stage = "hot"
	StageClosed      Stage = "closed"
	StageLost        Stage = "lost"
)

// HappyPath is the linear progression a lead follows when everything goes well.
// StageLost sits outside the path and is reachable from any non-terminal stage.
var HappyPath = []Stage{
	StageBaitSent,
	StageReplied,
	StageInterested,
	StageNegotiating,
	StageHot,
	StageClosed,
}

// ErrInvalidTransition is returned when a requested stage change is not
// allowed from the lead's current stage. The lead is left unchanged.
type ErrInvalidTransition struct {
	From Stage
	To   Stage
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("funnel: invalid transition %s -> %s", e.From, e.To)
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	if s == StageLost {
		return true
	}
	for _, st := range HappyPath {
		if st == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are accepted from s.
func (s Stage) Terminal() bool {
	return s == StageClosed || s == StageLost
}

// Next returns the immediate successor on the happy path, or "" for
// terminal stages.
func (s Stage) Next() Stage {
	for i, st := range HappyPath {
		if st == s && i+1 < len(HappyPath) {
			return HappyPath[i+1]
		}
	}
	return ""
}

// CanAdvance reports whether a lead currently at from may move to target.
// Only the immediate successor on the happy path is allowed; lost is allowed
// from any non-terminal stage. Skipping stages is rejected so funnel
// analytics reflect real progression. A lead with no stage history may only
// enter at bait_sent; an unrecognized from stage rejects everything,
// including lost.
func CanAdvance(from, to Stage) bool {
	if from == "" {
		return to == StageBaitSent
	}
	if !from.Valid() || from.Terminal() {
		return false
	}
	if to == StageLost {
		return true
	}
	return from.Next() == to
}
