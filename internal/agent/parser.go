// internal/agent/parser.go
package agent

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Safphere/OMG-Agent/internal/llmutil"
)

// ParseError is the typed failure value of the parser. Expected failure modes
// (unknown action names, missing action field) are returned, never panicked;
// the control loop decides retry-vs-abort by counting these.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("action parse error: %s", e.Reason)
}

// actionNameMap translates surface action names emitted by the function-call
// grammar onto canonical kinds. Matching is exact-first, then
// case-insensitive. The table is data-driven so new model families can be
// added without touching the parsing logic.
var actionNameMap = map[string]ActionType{
	"Tap":        ActionClick,
	"Click":      ActionClick,
	"Double Tap": ActionDoubleTap,
	"Long Press": ActionLongPress,
	"Swipe":      ActionSwipe,
	"Type":       ActionTypeText,
	"Input":      ActionTypeText,
	"Back":       ActionBack,
	"Home":       ActionHome,
	"Launch":     ActionLaunch,
	"Open App":   ActionLaunch,
	"Wait":       ActionWait,
	"Call User":  ActionInfo,
	"Interact":   ActionInfo,
	"Take Over":  ActionTakeOver,
	"Note":       ActionNote,
	"Finish":     ActionComplete,
	"Abort":      ActionAbort,
}

// lowerNameMap is the case-insensitive fallback, built once at startup from
// actionNameMap plus the canonical kind names themselves.
var lowerNameMap = func() map[string]ActionType {
	m := make(map[string]ActionType, len(actionNameMap)+len(KnownActionTypes))
	for name, kind := range actionNameMap {
		m[strings.ToLower(name)] = kind
	}
	for _, kind := range KnownActionTypes {
		m[strings.ToLower(string(kind))] = kind
	}
	return m
}()

// resolveActionName maps a surface name to a canonical kind.
func resolveActionName(name string) (ActionType, bool) {
	if kind, ok := actionNameMap[name]; ok {
		return kind, true
	}
	kind, ok := lowerNameMap[strings.ToLower(strings.TrimSpace(name))]
	return kind, ok
}

// Parse converts free-form model output into a validated-shape Action. It
// tries the function-call grammar first (a balanced do(...)/finish(...) call
// anywhere in the text); when no call is found it falls back to the tab/field
// grammar, which degrades gracefully into a best-effort key/value split.
func Parse(raw string) (Action, *ParseError) {
	thinking, text := llmutil.SplitThinking(raw)

	if call, ok := extractCall(text); ok {
		action, err := parseFunctionCall(call)
		if err != nil {
			return Action{}, &ParseError{Reason: err.Error(), Raw: raw}
		}
		action.Reasoning = thinking
		return action, nil
	}

	action, err := parseTabFields(text)
	if err != nil {
		return Action{}, &ParseError{Reason: err.Error(), Raw: raw}
	}
	action.Reasoning = thinking
	return action, nil
}

// -- Function-call grammar --

// callExpr is one extracted call: the callee name and its raw argument text.
type callExpr struct {
	name string
	args string
}

// scanState enumerates the quote context of the balanced-paren scanner.
type scanState int

const (
	scanNormal scanState = iota
	scanInSingle
	scanInDouble
	scanEscaped
)

var callStartRegex = regexp.MustCompile(`\b(do|finish)\s*\(`)

// extractCall locates one balanced parenthesized do(...)/finish(...) call in
// text, respecting quoted strings and escaped quotes. An unbalanced call
// yields no extraction, letting the caller fall through to the tab grammar.
func extractCall(text string) (callExpr, bool) {
	loc := callStartRegex.FindStringSubmatchIndex(text)
	if loc == nil {
		return callExpr{}, false
	}
	name := text[loc[2]:loc[3]]
	openIdx := strings.Index(text[loc[0]:], "(") + loc[0]

	depth := 0
	state := scanNormal
	var prev scanState
	for i := openIdx; i < len(text); i++ {
		c := text[i]
		switch state {
		case scanEscaped:
			state = prev
		case scanInSingle:
			switch c {
			case '\\':
				prev, state = state, scanEscaped
			case '\'':
				state = scanNormal
			}
		case scanInDouble:
			switch c {
			case '\\':
				prev, state = state, scanEscaped
			case '"':
				state = scanNormal
			}
		case scanNormal:
			switch c {
			case '\'':
				state = scanInSingle
			case '"':
				state = scanInDouble
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return callExpr{name: name, args: text[openIdx+1 : i]}, true
				}
			}
		}
	}
	// Never balanced.
	return callExpr{}, false
}

// parseFunctionCall evaluates the literal arguments of an extracted call and
// maps them onto an Action. Only literals are evaluated; there is no code
// execution of any kind.
func parseFunctionCall(call callExpr) (Action, error) {
	args, err := parseCallArgs(call.args)
	if err != nil {
		return Action{}, err
	}

	if call.name == "finish" {
		action := NewAction(ActionComplete)
		if msg, ok := args["message"]; ok {
			action.Params["message"] = literalString(msg)
		}
		return action, nil
	}

	rawName, ok := args["action"]
	if !ok {
		return Action{}, fmt.Errorf("do() call missing action argument")
	}
	name := literalString(rawName)
	kind, ok := resolveActionName(name)
	if !ok {
		return Action{}, fmt.Errorf("unknown action name %q", name)
	}

	action := NewAction(kind)
	for key, value := range args {
		if key == "action" {
			continue
		}
		switch key {
		case "element":
			if err := assignElement(&action, value); err != nil {
				return Action{}, err
			}
		case "begin", "start":
			if p, ok := literalPoint(value); ok {
				action.Params["point1"] = p
			}
		case "end":
			if p, ok := literalPoint(value); ok {
				action.Params["point2"] = p
			}
		default:
			action.Params[key] = literalString(value)
		}
	}
	canonicalizeParams(&action)
	return action, nil
}

// assignElement maps the element argument: [x,y] becomes the primary point,
// [[x1,y1],[x2,y2]] becomes a swipe's two endpoints.
func assignElement(action *Action, value literal) error {
	if value.kind != litList {
		return fmt.Errorf("element argument must be a list")
	}
	if p, ok := literalPoint(value); ok {
		action.Params["point"] = p
		return nil
	}
	if len(value.list) == 2 {
		p1, ok1 := literalPoint(value.list[0])
		p2, ok2 := literalPoint(value.list[1])
		if ok1 && ok2 {
			action.Params["point1"] = p1
			action.Params["point2"] = p2
			// A two-endpoint element is a swipe in endpoint form; the single
			// point slot must stay empty for validation.
			return nil
		}
	}
	return fmt.Errorf("element argument is not an [x,y] pair or endpoint pair")
}

// -- Literal argument evaluation --

type litKind int

const (
	litString litKind = iota
	litNumber
	litList
	litWord
)

// literal is one safely evaluated argument value.
type literal struct {
	kind   litKind
	str    string
	number float64
	list   []literal
}

func literalString(l literal) string {
	switch l.kind {
	case litString, litWord:
		return l.str
	case litNumber:
		if l.number == float64(int(l.number)) {
			return strconv.Itoa(int(l.number))
		}
		return strconv.FormatFloat(l.number, 'f', -1, 64)
	default:
		return ""
	}
}

// literalPoint interprets a two-number list as a normalized point. Out-of-range
// values still construct (validation reports them later).
func literalPoint(l literal) (Point, bool) {
	if l.kind != litList || len(l.list) != 2 {
		return Point{}, false
	}
	if l.list[0].kind != litNumber || l.list[1].kind != litNumber {
		return Point{}, false
	}
	return Point{X: int(l.list[0].number), Y: int(l.list[1].number)}, true
}

// parseCallArgs splits "key=value, key=value" argument text into evaluated
// literals, honoring quotes, escapes and nested brackets.
func parseCallArgs(args string) (map[string]literal, error) {
	out := map[string]literal{}
	for _, part := range splitTopLevel(args, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := indexTopLevel(part, '=')
		if eq < 0 {
			return nil, fmt.Errorf("argument %q is not key=value", truncateRaw(part))
		}
		key := strings.TrimSpace(part[:eq])
		value, err := parseLiteral(strings.TrimSpace(part[eq+1:]))
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

// parseLiteral evaluates one literal: quoted string, number, bracketed list,
// or bare word. Nothing resembling code evaluation happens here.
func parseLiteral(s string) (literal, error) {
	if s == "" {
		return literal{}, fmt.Errorf("empty argument value")
	}
	switch s[0] {
	case '"', '\'':
		str, err := unquote(s)
		if err != nil {
			return literal{}, err
		}
		return literal{kind: litString, str: str}, nil
	case '[':
		if !strings.HasSuffix(s, "]") {
			return literal{}, fmt.Errorf("unterminated list %q", truncateRaw(s))
		}
		inner := s[1 : len(s)-1]
		var items []literal
		for _, part := range splitTopLevel(inner, ',') {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			item, err := parseLiteral(part)
			if err != nil {
				return literal{}, err
			}
			items = append(items, item)
		}
		return literal{kind: litList, list: items}, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return literal{kind: litNumber, number: n}, nil
	}
	return literal{kind: litWord, str: s}, nil
}

// unquote strips matching quotes and resolves backslash escapes.
func unquote(s string) (string, error) {
	if len(s) < 2 {
		return "", fmt.Errorf("unterminated string %q", s)
	}
	quote := s[0]
	if s[len(s)-1] != quote {
		return "", fmt.Errorf("unterminated string %q", truncateRaw(s))
	}
	var b strings.Builder
	escaped := false
	for i := 1; i < len(s)-1; i++ {
		c := s[i]
		if escaped {
			switch c {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(c)
			}
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

// splitTopLevel splits s on sep occurrences outside quotes and brackets.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	state := scanNormal
	var prev scanState
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case scanEscaped:
			state = prev
		case scanInSingle:
			switch c {
			case '\\':
				prev, state = state, scanEscaped
			case '\'':
				state = scanNormal
			}
		case scanInDouble:
			switch c {
			case '\\':
				prev, state = state, scanEscaped
			case '"':
				state = scanNormal
			}
		case scanNormal:
			switch c {
			case '\'':
				state = scanInSingle
			case '"':
				state = scanInDouble
			case '[', '(':
				depth++
			case ']', ')':
				depth--
			default:
				if c == sep && depth == 0 {
					parts = append(parts, s[start:i])
					start = i + 1
				}
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// indexTopLevel finds the first sep outside quotes and brackets, or -1.
func indexTopLevel(s string, sep byte) int {
	depth := 0
	state := scanNormal
	var prev scanState
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case scanEscaped:
			state = prev
		case scanInSingle:
			switch c {
			case '\\':
				prev, state = state, scanEscaped
			case '\'':
				state = scanNormal
			}
		case scanInDouble:
			switch c {
			case '\\':
				prev, state = state, scanEscaped
			case '"':
				state = scanNormal
			}
		case scanNormal:
			switch c {
			case '\'':
				state = scanInSingle
			case '"':
				state = scanInDouble
			case '[', '(':
				depth++
			case ']', ')':
				depth--
			default:
				if c == sep && depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

// -- Tab/field grammar --

var (
	fieldSplitRegex = regexp.MustCompile(`\t+|\s{2,}`)
	pointValueRegex = regexp.MustCompile(`^\s*(-?\d+)\s*[, ]\s*(-?\d+)\s*$`)
)

// parseTabFields parses the key:value field grammar: a single line of fields
// separated by tabs or runs of two-plus spaces. Keys are case-normalized;
// unknown keys are preserved as extra parameters rather than discarded.
func parseTabFields(text string) (Action, error) {
	line := pickActionLine(text)
	if line == "" {
		return Action{}, fmt.Errorf("no action field in response")
	}

	var kind ActionType
	kindSeen := false
	params := map[string]any{}
	var explain, summary string

	for _, field := range fieldSplitRegex.Split(line, -1) {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		colon := strings.Index(field, ":")
		if colon < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(field[:colon]))
		value := strings.TrimSpace(field[colon+1:])

		switch key {
		case "action":
			resolved, ok := resolveActionName(value)
			if !ok {
				return Action{}, fmt.Errorf("unknown action name %q", value)
			}
			kind = resolved
			kindSeen = true
		case "explain":
			explain = value
		case "summary":
			summary = value
		case "point", "point1", "point2":
			if p, ok := parsePointValue(value); ok {
				params[key] = p
			} else {
				// Keep the malformed text; validation names the offender.
				params[key] = value
			}
		default:
			params[key] = value
		}
	}

	if !kindSeen {
		return Action{}, fmt.Errorf("no action field in response")
	}

	action := Action{Kind: kind, Explanation: explain, Summary: summary, Params: params}
	canonicalizeParams(&action)
	return action, nil
}

// pickActionLine returns the first line containing an action: field, falling
// back to the first non-empty line.
func pickActionLine(text string) string {
	var fallback string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.Contains(trimmed, "action:") {
			return trimmed
		}
		if fallback == "" {
			fallback = trimmed
		}
	}
	return fallback
}

// parsePointValue parses "x,y" or "x y" into a Point.
func parsePointValue(s string) (Point, bool) {
	m := pointValueRegex.FindStringSubmatch(s)
	if m == nil {
		return Point{}, false
	}
	x, _ := strconv.Atoi(m[1])
	y, _ := strconv.Atoi(m[2])
	return Point{X: x, Y: y}, true
}

// canonicalizeParams copies well-known alias keys ("value", "return") into
// the canonical parameter slot for the action's kind. The alias itself is
// preserved, so no surface information is dropped.
func canonicalizeParams(a *Action) {
	alias := func(canonical string, aliases ...string) {
		if _, ok := a.Params[canonical]; ok {
			return
		}
		for _, name := range aliases {
			if v, ok := a.Params[name]; ok {
				a.Params[canonical] = v
				return
			}
		}
	}
	switch a.Kind {
	case ActionLaunch:
		alias("app", "value", "name", "package")
	case ActionTypeText:
		alias("text", "value")
	case ActionInfo:
		alias("message", "value", "question")
	case ActionComplete, ActionAbort, ActionTakeOver, ActionNote:
		alias("message", "return", "value")
	}
}

// -- Serializers --

// SerializeTab renders an action back to the tab/field surface grammar.
// Parsing the output reproduces the same kind and parameter set. Tabs and
// newlines inside values would corrupt the field framing, so they are
// flattened to single spaces.
func SerializeTab(a Action) string {
	var fields []string
	if a.Explanation != "" {
		fields = append(fields, "explain:"+flattenField(a.Explanation))
	}
	fields = append(fields, "action:"+string(a.Kind))
	for _, key := range sortedParamKeys(a) {
		fields = append(fields, key+":"+flattenField(paramText(a.Params[key])))
	}
	if a.Summary != "" {
		fields = append(fields, "summary:"+flattenField(a.Summary))
	}
	return strings.Join(fields, "\t")
}

var fieldWhitespaceRegex = regexp.MustCompile(`[\t\r\n]+|\s{2,}`)

func flattenField(s string) string {
	return fieldWhitespaceRegex.ReplaceAllString(s, " ")
}

// SerializeFunctionCall renders an action to the function-call surface
// grammar: finish(...) for COMPLETE, do(...) for everything else.
func SerializeFunctionCall(a Action) string {
	if a.Kind == ActionComplete {
		msg, _ := a.StringParam("message")
		return fmt.Sprintf("finish(message=%q)", msg)
	}

	name := surfaceName(a.Kind)
	parts := []string{fmt.Sprintf("action=%q", name)}

	if p1, ok1 := a.Point("point1"); ok1 {
		if p2, ok2 := a.Point("point2"); ok2 {
			parts = append(parts, fmt.Sprintf("element=[[%d, %d], [%d, %d]]", p1.X, p1.Y, p2.X, p2.Y))
		}
	} else if p, ok := a.Point("point"); ok {
		parts = append(parts, fmt.Sprintf("element=[%d, %d]", p.X, p.Y))
	}

	for _, key := range sortedParamKeys(a) {
		switch key {
		case "point", "point1", "point2":
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%q", key, paramText(a.Params[key])))
	}
	return fmt.Sprintf("do(%s)", strings.Join(parts, ", "))
}

// surfaceName picks the preferred function-grammar name for a kind.
var kindSurfaceNames = map[ActionType]string{
	ActionClick:     "Tap",
	ActionDoubleTap: "Double Tap",
	ActionLongPress: "Long Press",
	ActionSwipe:     "Swipe",
	ActionTypeText:  "Type",
	ActionBack:      "Back",
	ActionHome:      "Home",
	ActionLaunch:    "Launch",
	ActionWait:      "Wait",
	ActionInfo:      "Call User",
	ActionAbort:     "Abort",
	ActionTakeOver:  "Take Over",
	ActionNote:      "Note",
}

func surfaceName(kind ActionType) string {
	if name, ok := kindSurfaceNames[kind]; ok {
		return name
	}
	return string(kind)
}

func sortedParamKeys(a Action) []string {
	keys := make([]string, 0, len(a.Params))
	for k := range a.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func paramText(v any) string {
	if p, ok := v.(Point); ok {
		return fmt.Sprintf("%d,%d", p.X, p.Y)
	}
	return fmt.Sprintf("%v", v)
}

func truncateRaw(s string) string {
	if len(s) <= 80 {
		return s
	}
	return s[:80] + "..."
}
