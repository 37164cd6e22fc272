package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPointRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		x, y    int
		wantErr bool
	}{
		{"origin", 0, 0, false},
		{"center", 500, 500, false},
		{"max corner", 1000, 1000, false},
		{"negative x", -1, 500, true},
		{"negative y", 500, -1, true},
		{"x above span", 1001, 500, true},
		{"y above span", 500, 1001, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := NewPoint(tt.x, tt.y)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, p.InRange())
		})
	}
}

func TestPointToPixels(t *testing.T) {
	t.Parallel()

	p := Point{X: 500, Y: 250}
	x, y := p.ToPixels(1080, 2400)
	assert.Equal(t, 540, x)
	assert.Equal(t, 600, y)

	// Corners map to corners.
	x, y = Point{X: 0, Y: 0}.ToPixels(1080, 2400)
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)
	x, y = Point{X: 1000, Y: 1000}.ToPixels(1080, 2400)
	assert.Equal(t, 1080, x)
	assert.Equal(t, 2400, y)
}

func TestPointClamp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Point{X: 0, Y: 1000}, Point{X: -50, Y: 1200}.Clamp())
	assert.Equal(t, Point{X: 300, Y: 400}, Point{X: 300, Y: 400}.Clamp())
}

func TestActionWithParamDoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	base := NewAction(ActionClick).WithParam("point", Point{X: 1, Y: 2})
	modified := base.WithParam("message", "careful")

	_, ok := base.Params["message"]
	assert.False(t, ok, "WithParam must copy the parameter map")
	msg, ok := modified.StringParam("message")
	require.True(t, ok)
	assert.Equal(t, "careful", msg)
}

func TestStringParamStringifies(t *testing.T) {
	t.Parallel()

	a := NewAction(ActionClick).WithParam("count", 3)
	v, ok := a.StringParam("count")
	require.True(t, ok)
	assert.Equal(t, "3", v)

	_, ok = a.StringParam("missing")
	assert.False(t, ok)
}
