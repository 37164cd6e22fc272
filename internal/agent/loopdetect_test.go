package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entriesOf(actions ...Action) []HistoryEntry {
	entries := make([]HistoryEntry, len(actions))
	for i, a := range actions {
		entries[i] = HistoryEntry{Step: i + 1, Action: a}
	}
	return entries
}

func tapAt(x, y int) Action {
	return NewAction(ActionClick).WithParam("point", Point{X: x, Y: y})
}

func TestLoopDetectorExactRepeat(t *testing.T) {
	t.Parallel()
	d := NewLoopDetector()

	entries := entriesOf(tapAt(500, 500), tapAt(500, 500), tapAt(500, 500))
	looping, msg := d.CheckLoop(entries)
	require.True(t, looping)
	assert.Contains(t, msg, "3")
}

func TestLoopDetectorJitteredTapsStillMatch(t *testing.T) {
	t.Parallel()
	d := NewLoopDetector()

	// Points within the 50-unit tolerance count as the same tap.
	entries := entriesOf(tapAt(500, 500), tapAt(520, 510), tapAt(480, 490))
	looping, msg := d.CheckLoop(entries)
	require.True(t, looping, "jittered taps within tolerance must be flagged")
	assert.Contains(t, msg, "3")
}

func TestLoopDetectorDistantTapsNotFlagged(t *testing.T) {
	t.Parallel()
	d := NewLoopDetector()

	entries := entriesOf(tapAt(100, 100), tapAt(500, 500), tapAt(900, 900))
	looping, _ := d.CheckLoop(entries)
	assert.False(t, looping, "taps on different targets are progress, not a loop")
}

func TestLoopDetectorAlternation(t *testing.T) {
	t.Parallel()
	d := NewLoopDetector()

	entries := entriesOf(
		NewAction(ActionBack),
		tapAt(100, 900),
		NewAction(ActionBack),
		tapAt(500, 200),
	)
	looping, msg := d.CheckLoop(entries)
	require.True(t, looping)
	assert.Contains(t, msg, "alternating")
}

func TestLoopDetectorNoAlternationWhenBroken(t *testing.T) {
	t.Parallel()
	d := NewLoopDetector()

	entries := entriesOf(
		NewAction(ActionBack),
		tapAt(100, 900),
		NewAction(ActionHome),
		tapAt(500, 200),
	)
	looping, _ := d.CheckLoop(entries)
	assert.False(t, looping)
}

func TestLoopDetectorSwipeExemption(t *testing.T) {
	t.Parallel()
	d := NewLoopDetector()

	swipe := func(y1, y2 int) Action {
		return NewAction(ActionSwipe).
			WithParam("point1", Point{X: 500, Y: y1}).
			WithParam("point2", Point{X: 500, Y: y2})
	}

	// Four scrolls with sliding coordinates: normal scrolling, not a loop.
	entries := entriesOf(
		swipe(800, 200), swipe(700, 100), swipe(820, 230), swipe(900, 320),
	)
	looping, _ := d.CheckLoop(entries)
	assert.False(t, looping, "four varied swipes are legitimate scrolling")

	// Five identical swipes cross the swipe threshold.
	entries = entriesOf(
		swipe(800, 200), swipe(800, 200), swipe(800, 200), swipe(800, 200), swipe(800, 200),
	)
	looping, msg := d.CheckLoop(entries)
	require.True(t, looping)
	assert.NotEmpty(t, msg)
}

func TestLoopDetectorSameKindRunNonTap(t *testing.T) {
	t.Parallel()
	d := NewLoopDetector()

	entries := entriesOf(
		NewAction(ActionBack), NewAction(ActionBack), NewAction(ActionBack),
	)
	looping, msg := d.CheckLoop(entries)
	require.True(t, looping)
	assert.NotEmpty(t, msg)
}

func TestLoopDetectorTypeTextComparison(t *testing.T) {
	t.Parallel()
	d := NewLoopDetector()

	typeText := func(s string) Action {
		return NewAction(ActionTypeText).WithParam("text", s)
	}

	entries := entriesOf(typeText("a"), typeText("b"), typeText("c"))
	// Same kind run fires for three TYPE actions regardless of text.
	looping, _ := d.CheckLoop(entries)
	assert.True(t, looping)

	// But the repeat run only counts identical text.
	assert.Equal(t, 1, d.RepeatRun(entries))
	assert.Equal(t, 3, d.RepeatRun(entriesOf(typeText("a"), typeText("a"), typeText("a"))))
}

func TestLoopDetectorShortHistoryNeverFlags(t *testing.T) {
	t.Parallel()
	d := NewLoopDetector()

	looping, _ := d.CheckLoop(nil)
	assert.False(t, looping)
	looping, _ = d.CheckLoop(entriesOf(tapAt(1, 2), tapAt(1, 2)))
	assert.False(t, looping)
}

func TestRepeatRunCountsBackward(t *testing.T) {
	t.Parallel()
	d := NewLoopDetector()

	entries := entriesOf(
		tapAt(900, 900),
		tapAt(500, 500), tapAt(510, 505), tapAt(495, 498),
	)
	assert.Equal(t, 3, d.RepeatRun(entries))
}
