// internal/agent/space.go
package agent

import (
	"fmt"
	"strings"
)

// requiredParams is the required-parameter table keyed by action kind. SWIPE
// is absent here because its requirement is disjunctive (see Validate).
var requiredParams = map[ActionType][]string{
	ActionClick:     {"point"},
	ActionDoubleTap: {"point"},
	ActionLongPress: {"point"},
	ActionTypeText:  {"text"},
	ActionLaunch:    {"app"},
	ActionInfo:      {"message"},
	ActionBack:      {},
	ActionHome:      {},
	ActionWait:      {},
	ActionComplete:  {},
	ActionAbort:     {},
	ActionTakeOver:  {},
	ActionNote:      {},
}

// pointKeys are the parameter names whose values must be normalized Points.
var pointKeys = []string{"point", "point1", "point2"}

// KnownActionTypes lists every canonical action kind, in a stable order.
var KnownActionTypes = []ActionType{
	ActionClick, ActionDoubleTap, ActionLongPress, ActionSwipe, ActionTypeText,
	ActionBack, ActionHome, ActionLaunch, ActionWait, ActionInfo,
	ActionComplete, ActionAbort, ActionTakeOver, ActionNote,
}

// Validate checks an action against the parameter schema. It returns ok plus
// a structured reason on failure. Validation is advisory: the control loop
// logs failures and still attempts best-effort execution.
func Validate(a Action) (bool, string) {
	required, known := requiredParams[a.Kind]
	if !known && a.Kind != ActionSwipe {
		return false, fmt.Sprintf("unknown action kind %q", a.Kind)
	}

	if a.Kind == ActionSwipe {
		if ok, reason := validateSwipe(a); !ok {
			return false, reason
		}
	} else {
		for _, key := range required {
			if _, ok := a.Params[key]; !ok {
				return false, fmt.Sprintf("%s requires parameter %q", a.Kind, key)
			}
		}
	}

	// Any point-valued parameter must be an in-range Point.
	for _, key := range pointKeys {
		v, ok := a.Params[key]
		if !ok {
			continue
		}
		p, isPoint := v.(Point)
		if !isPoint {
			return false, fmt.Sprintf("parameter %q is not a point", key)
		}
		if !p.InRange() {
			return false, fmt.Sprintf("parameter %q (%d,%d) outside [0,1000]", key, p.X, p.Y)
		}
	}

	return true, ""
}

// validateSwipe enforces the swipe contract: either both endpoints, or a
// single point plus a direction, never a mix of the two forms.
func validateSwipe(a Action) (bool, string) {
	_, hasP1 := a.Params["point1"]
	_, hasP2 := a.Params["point2"]
	_, hasPoint := a.Params["point"]
	dir, hasDir := a.StringParam("direction")

	switch {
	case hasP1 && hasP2 && !hasPoint && !hasDir:
		return true, ""
	case hasPoint && hasDir && !hasP1 && !hasP2:
		switch SwipeDirection(strings.ToLower(dir)) {
		case SwipeUp, SwipeDown, SwipeLeft, SwipeRight:
			return true, ""
		}
		return false, fmt.Sprintf("SWIPE direction %q is not one of up, down, left, right", dir)
	default:
		return false, "SWIPE requires either point1+point2 or point+direction"
	}
}
