// internal/agent/loopdetect.go
package agent

import "fmt"

// LoopDetector recognizes unproductively repetitive action sequences. It is a
// pure function over the entry slice; all state lives in the thresholds.
type LoopDetector struct {
	// SameKindRun is how many consecutive same-kind entries flag a loop.
	SameKindRun int
	// SwipeRun overrides SameKindRun for swipes, which are often legitimately
	// repeated while scrolling.
	SwipeRun int
	// PointTolerance is the per-axis distance within which two tap points
	// count as the same tap. Exact equality never fires on a jittery model.
	PointTolerance int
}

// NewLoopDetector returns a detector with the default thresholds.
func NewLoopDetector() LoopDetector {
	return LoopDetector{SameKindRun: 3, SwipeRun: 5, PointTolerance: 50}
}

// CheckLoop evaluates three independent heuristics in order; the first match
// wins. It returns whether a loop was detected and a human-readable message.
func (d LoopDetector) CheckLoop(entries []HistoryEntry) (bool, string) {
	if ok, msg := d.checkSameKindRun(entries); ok {
		return true, msg
	}
	if ok, msg := d.checkAlternation(entries); ok {
		return true, msg
	}
	if ok, msg := d.checkExactRepeat(entries); ok {
		return true, msg
	}
	return false, ""
}

// checkSameKindRun flags when the last N entries share one action kind, with
// the swipe exemption and the tap point-tolerance requirement.
func (d LoopDetector) checkSameKindRun(entries []HistoryEntry) (bool, string) {
	if len(entries) < d.SameKindRun {
		return false, ""
	}
	kind := entries[len(entries)-1].Action.Kind

	run := d.SameKindRun
	if kind == ActionSwipe {
		run = d.SwipeRun
	}
	if len(entries) < run {
		return false, ""
	}
	recent := entries[len(entries)-run:]
	for _, e := range recent {
		if e.Action.Kind != kind {
			return false, ""
		}
	}

	if kind == ActionClick {
		// Repeated taps only count as stuck when they land in one place.
		if !d.pointsClustered(recent) {
			return false, ""
		}
		return true, fmt.Sprintf("tap on the same spot repeated %d times", d.RepeatRun(entries))
	}
	return true, fmt.Sprintf("last %d actions are all %s", run, kind)
}

// pointsClustered reports whether every pair of tap points in entries lies
// within the tolerance.
func (d LoopDetector) pointsClustered(entries []HistoryEntry) bool {
	points := make([]Point, 0, len(entries))
	for _, e := range entries {
		p, ok := e.Action.Point("point")
		if !ok {
			return false
		}
		points = append(points, p)
	}
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			if !d.pointsClose(points[i], points[j]) {
				return false
			}
		}
	}
	return true
}

// checkAlternation flags a strict A,B,A,B pattern over the last four entries.
func (d LoopDetector) checkAlternation(entries []HistoryEntry) (bool, string) {
	if len(entries) < 4 {
		return false, ""
	}
	last := entries[len(entries)-4:]
	a := last[0].Action.Kind
	b := last[1].Action.Kind
	if a == b {
		return false, ""
	}
	if last[2].Action.Kind == a && last[3].Action.Kind == b {
		return true, fmt.Sprintf("actions alternating between %s and %s", a, b)
	}
	return false, ""
}

// checkExactRepeat counts backward from the newest entry while consecutive
// entries are functionally identical; a run reaching the same-kind threshold
// flags with the repeat count.
func (d LoopDetector) checkExactRepeat(entries []HistoryEntry) (bool, string) {
	count := d.RepeatRun(entries)
	if count >= d.SameKindRun {
		return true, fmt.Sprintf("same action repeated %d times", count)
	}
	return false, ""
}

// RepeatRun returns the length of the newest run of functionally identical
// entries. The control loop compares this against its hard abort ceiling.
func (d LoopDetector) RepeatRun(entries []HistoryEntry) int {
	if len(entries) == 0 {
		return 0
	}
	count := 1
	for i := len(entries) - 1; i > 0; i-- {
		if !d.sameAction(entries[i].Action, entries[i-1].Action) {
			break
		}
		count++
	}
	return count
}

// sameAction is equality-with-tolerance: taps match within the point
// tolerance, typed text must be identical, swipes match when both endpoints
// are within tolerance, and parameterless navigation always matches itself.
func (d LoopDetector) sameAction(a, b Action) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ActionClick, ActionDoubleTap, ActionLongPress:
		pa, okA := a.Point("point")
		pb, okB := b.Point("point")
		return okA && okB && d.pointsClose(pa, pb)
	case ActionTypeText:
		ta, _ := a.StringParam("text")
		tb, _ := b.StringParam("text")
		return ta == tb
	case ActionSwipe:
		return d.sameSwipe(a, b)
	case ActionBack, ActionHome, ActionWait:
		return true
	default:
		return false
	}
}

func (d LoopDetector) sameSwipe(a, b Action) bool {
	a1, okA1 := a.Point("point1")
	a2, okA2 := a.Point("point2")
	b1, okB1 := b.Point("point1")
	b2, okB2 := b.Point("point2")
	if okA1 && okA2 && okB1 && okB2 {
		return d.pointsClose(a1, b1) && d.pointsClose(a2, b2)
	}
	// Direction-form swipes compare by origin and direction.
	pa, okPA := a.Point("point")
	pb, okPB := b.Point("point")
	da, _ := a.StringParam("direction")
	db, _ := b.StringParam("direction")
	return okPA && okPB && d.pointsClose(pa, pb) && da == db
}

func (d LoopDetector) pointsClose(a, b Point) bool {
	return abs(a.X-b.X) <= d.PointTolerance && abs(a.Y-b.Y) <= d.PointTolerance
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
