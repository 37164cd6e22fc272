package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequiredParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		action Action
		ok     bool
	}{
		{"click with point", NewAction(ActionClick).WithParam("point", Point{X: 10, Y: 20}), true},
		{"click without point", NewAction(ActionClick), false},
		{"type with text", NewAction(ActionTypeText).WithParam("text", "hello"), true},
		{"type without text", NewAction(ActionTypeText), false},
		{"launch with app", NewAction(ActionLaunch).WithParam("app", "settings"), true},
		{"launch without app", NewAction(ActionLaunch), false},
		{"info with message", NewAction(ActionInfo).WithParam("message", "which account?"), true},
		{"info without message", NewAction(ActionInfo), false},
		{"back needs nothing", NewAction(ActionBack), true},
		{"home needs nothing", NewAction(ActionHome), true},
		{"wait needs nothing", NewAction(ActionWait), true},
		{"complete needs nothing", NewAction(ActionComplete), true},
		{"unknown kind", NewAction(ActionType("FLY")), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, reason := Validate(tt.action)
			assert.Equal(t, tt.ok, ok, reason)
			if !tt.ok {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestValidateSwipeDisjunction(t *testing.T) {
	t.Parallel()

	p1 := Point{X: 500, Y: 800}
	p2 := Point{X: 500, Y: 200}

	tests := []struct {
		name   string
		action Action
		ok     bool
	}{
		{
			"endpoint form",
			NewAction(ActionSwipe).WithParam("point1", p1).WithParam("point2", p2),
			true,
		},
		{
			"direction form",
			NewAction(ActionSwipe).WithParam("point", p1).WithParam("direction", "up"),
			true,
		},
		{
			"direction is case-insensitive",
			NewAction(ActionSwipe).WithParam("point", p1).WithParam("direction", "Down"),
			true,
		},
		{
			"missing second endpoint",
			NewAction(ActionSwipe).WithParam("point1", p1),
			false,
		},
		{
			"point without direction",
			NewAction(ActionSwipe).WithParam("point", p1),
			false,
		},
		{
			"both forms mixed",
			NewAction(ActionSwipe).WithParam("point1", p1).WithParam("point2", p2).WithParam("point", p1).WithParam("direction", "up"),
			false,
		},
		{
			"invalid direction",
			NewAction(ActionSwipe).WithParam("point", p1).WithParam("direction", "sideways"),
			false,
		},
		{
			"no parameters at all",
			NewAction(ActionSwipe),
			false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, reason := Validate(tt.action)
			assert.Equal(t, tt.ok, ok, reason)
		})
	}
}

func TestValidatePointValues(t *testing.T) {
	t.Parallel()

	// A point parameter that failed to parse stays a string and is named.
	a := NewAction(ActionClick).WithParam("point", "12;34")
	ok, reason := Validate(a)
	assert.False(t, ok)
	assert.Contains(t, reason, "point")

	// Out-of-range points are rejected even when well-formed.
	a = NewAction(ActionClick).WithParam("point", Point{X: 1200, Y: 50})
	ok, reason = Validate(a)
	assert.False(t, ok)
	assert.Contains(t, reason, "outside")
}
