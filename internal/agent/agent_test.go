package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Safphere/OMG-Agent/api/schemas"
	"github.com/Safphere/OMG-Agent/internal/config"
	"github.com/Safphere/OMG-Agent/internal/device"
)

// scriptedLLM replays canned responses in order.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	calls     int
	identity  string
}

func (s *scriptedLLM) Generate(_ context.Context, _ schemas.GenerationRequest) (schemas.GenerationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.responses) {
		return schemas.GenerationResult{Text: `finish(message="script exhausted")`}, nil
	}
	text := s.responses[s.calls]
	s.calls++
	return schemas.GenerationResult{Text: text}, nil
}

func (s *scriptedLLM) ModelIdentity() string {
	if s.identity == "" {
		return "test-model"
	}
	return s.identity
}

// fakeInspector reports fixed device state.
type fakeInspector struct {
	foreground   string
	screenOn     bool
	wakeErr      error
	woken        bool
	wakeNoEffect bool
}

func (f *fakeInspector) ForegroundApp(context.Context) (string, error) { return f.foreground, nil }
func (f *fakeInspector) ScreenOn(context.Context) (bool, error)        { return f.screenOn, nil }
func (f *fakeInspector) Wake(context.Context) error {
	if f.wakeErr != nil {
		return f.wakeErr
	}
	f.woken = true
	if !f.wakeNoEffect {
		f.screenOn = true
	}
	return nil
}

// fakeScreens serves a constant frame.
type fakeScreens struct{}

func (fakeScreens) CaptureScreenshot(context.Context) (device.Screenshot, error) {
	return device.Screenshot{DataURL: "data:image/jpeg;base64,FRAME", Width: 640, Height: 1280}, nil
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxSteps:       10,
		StepDelay:      0,
		MaxParseErrors: 3,
		MaxLoopRepeats: 5,
		HistoryWindow:  10,
		ReplyMode:      config.ReplyManual,
		Language:       "en",
	}
}

func newTestAgent(t *testing.T, cfg config.AgentConfig, llm *scriptedLLM, ctrl *fakeController) (*Agent, *fakeInspector) {
	t.Helper()
	inspector := &fakeInspector{foreground: "com.android.launcher", screenOn: true}
	a := New(cfg, Options{
		LLM:        llm,
		Controller: ctrl,
		Inspector:  inspector,
		Screens:    fakeScreens{},
	}, zaptest.NewLogger(t))
	return a, inspector
}

func TestAgentRunCompletesScriptedTask(t *testing.T) {
	t.Parallel()

	llm := &scriptedLLM{responses: []string{
		"action:LAUNCH\tvalue:settings",
		`finish(message="settings opened")`,
	}}
	ctrl := newFakeController()
	a, _ := newTestAgent(t, testAgentConfig(), llm, ctrl)

	result := a.Run(context.Background(), "open settings")
	assert.True(t, result.Success)
	assert.Equal(t, StopCompleted, result.StopReason)
	assert.Equal(t, 2, result.Steps)
	assert.Equal(t, "settings opened", result.Message)
	require.NotNil(t, result.LastAction)
	assert.Equal(t, ActionComplete, result.LastAction.Kind)
	assert.Equal(t, []string{"launch com.android.settings"}, ctrl.calls)
}

func TestAgentAbortsAfterConsecutiveParseFailures(t *testing.T) {
	t.Parallel()

	llm := &scriptedLLM{responses: []string{
		"I am not sure what to do.",
		"Still thinking about it...",
		"Maybe we could try something?",
	}}
	ctrl := newFakeController()
	a, _ := newTestAgent(t, testAgentConfig(), llm, ctrl)

	result := a.Run(context.Background(), "do something impossible")
	assert.False(t, result.Success)
	assert.Equal(t, StopAborted, result.StopReason)
	assert.Contains(t, result.Message, "unparsable")
	// Two substituted waits plus the synthesized abort.
	assert.Equal(t, 3, result.Steps)
	assert.Empty(t, ctrl.calls, "no device action should have been dispatched")
}

func TestAgentParseRecoveryResetsCounter(t *testing.T) {
	t.Parallel()

	llm := &scriptedLLM{responses: []string{
		"garbage",
		"garbage",
		"action:BACK", // resets the counter
		"garbage",
		"garbage",
		`finish(message="recovered")`,
	}}
	ctrl := newFakeController()
	a, _ := newTestAgent(t, testAgentConfig(), llm, ctrl)

	result := a.Run(context.Background(), "wander around")
	assert.True(t, result.Success, result.Message)
	assert.Equal(t, StopCompleted, result.StopReason)
	assert.Equal(t, []string{"back"}, ctrl.calls)
}

func TestAgentAbortsOnHardLoopCeiling(t *testing.T) {
	t.Parallel()

	tap := `do(action="Tap", element=[500,300])`
	llm := &scriptedLLM{responses: []string{tap, tap, tap, tap, tap, tap, tap}}
	ctrl := newFakeController()
	a, _ := newTestAgent(t, testAgentConfig(), llm, ctrl)

	result := a.Run(context.Background(), "keep tapping")
	assert.False(t, result.Success)
	assert.Equal(t, StopAborted, result.StopReason)
	assert.Contains(t, result.Message, "repeated")
	// Four executed taps, then the fifth repeat is aborted instead.
	assert.Len(t, ctrl.calls, 4)
	assert.Equal(t, 5, result.Steps)
}

func TestAgentPausesOnInfoInPauseMode(t *testing.T) {
	t.Parallel()

	cfg := testAgentConfig()
	cfg.ReplyMode = config.ReplyPause
	llm := &scriptedLLM{responses: []string{
		`do(action="Call User", message="which account should I use?")`,
	}}
	ctrl := newFakeController()
	a, _ := newTestAgent(t, cfg, llm, ctrl)

	result := a.Run(context.Background(), "log into the app")
	assert.Equal(t, StopPaused, result.StopReason)
	assert.False(t, result.Success)
	assert.Equal(t, "which account should I use?", result.Message)
	assert.Equal(t, 1, result.Steps)
}

func TestAgentManualReplyFeedsNextTurn(t *testing.T) {
	t.Parallel()

	cfg := testAgentConfig()
	llm := &scriptedLLM{responses: []string{
		`do(action="Call User", message="work or personal?")`,
		`finish(message="used the work account")`,
	}}
	ctrl := newFakeController()
	inspector := &fakeInspector{foreground: "com.android.launcher", screenOn: true}

	asked := ""
	a := New(cfg, Options{
		LLM:        llm,
		Controller: ctrl,
		Inspector:  inspector,
		Screens:    fakeScreens{},
		AskUser: func(prompt string) string {
			asked = prompt
			return "work"
		},
	}, zaptest.NewLogger(t))

	result := a.Run(context.Background(), "log in")
	assert.True(t, result.Success)
	assert.Equal(t, "work or personal?", asked)
	assert.Equal(t, 2, result.Steps)
}

func TestAgentStopsOnScreenOff(t *testing.T) {
	t.Parallel()

	llm := &scriptedLLM{responses: []string{`finish(message="never reached")`}}
	ctrl := newFakeController()
	a, inspector := newTestAgent(t, testAgentConfig(), llm, ctrl)
	inspector.screenOn = false

	result := a.Run(context.Background(), "anything")
	assert.Equal(t, StopScreenOff, result.StopReason)
	assert.Zero(t, result.Steps)
}

func TestAgentAutoWakeRecoversScreenOff(t *testing.T) {
	t.Parallel()

	cfg := testAgentConfig()
	cfg.AutoWake = true
	llm := &scriptedLLM{responses: []string{`finish(message="done after wake")`}}
	ctrl := newFakeController()
	a, inspector := newTestAgent(t, cfg, llm, ctrl)
	inspector.screenOn = false

	result := a.Run(context.Background(), "anything")
	assert.Equal(t, StopCompleted, result.StopReason)
	assert.True(t, inspector.woken)
}

func TestAgentStopsWhenWakeDoesNotTurnScreenOn(t *testing.T) {
	t.Parallel()

	cfg := testAgentConfig()
	cfg.AutoWake = true
	llm := &scriptedLLM{responses: []string{`finish(message="never reached")`}}
	ctrl := newFakeController()
	a, inspector := newTestAgent(t, cfg, llm, ctrl)
	inspector.screenOn = false
	inspector.wakeNoEffect = true

	result := a.Run(context.Background(), "anything")
	assert.Equal(t, StopScreenOff, result.StopReason)
	assert.True(t, inspector.woken)
	assert.Zero(t, result.Steps)
	assert.Empty(t, ctrl.calls)
}

func TestAgentMaxStepsCeiling(t *testing.T) {
	t.Parallel()

	cfg := testAgentConfig()
	cfg.MaxSteps = 3
	// BACK then HOME alternating never triggers loop detection with only
	// three steps and never finishes.
	llm := &scriptedLLM{responses: []string{
		"action:BACK", "action:HOME", "action:BACK",
	}}
	ctrl := newFakeController()
	a, _ := newTestAgent(t, cfg, llm, ctrl)

	result := a.Run(context.Background(), "wander forever")
	assert.False(t, result.Success)
	assert.Equal(t, StopMaxSteps, result.StopReason)
	assert.Equal(t, 3, result.Steps)
}

func TestSelectGrammar(t *testing.T) {
	t.Parallel()

	assert.Equal(t, GrammarFunctionCall, SelectGrammar("autoglm-phone-9b"))
	assert.Equal(t, GrammarFunctionCall, SelectGrammar("AutoGLM-OS"))
	assert.Equal(t, GrammarTab, SelectGrammar("gpt-4o"))
	assert.Equal(t, GrammarTab, SelectGrammar("qwen2.5-vl"))
}

func TestSystemPromptLanguageAndGrammar(t *testing.T) {
	t.Parallel()

	en := SystemPrompt(GrammarTab, "en")
	assert.Contains(t, en, "action:CLICK")
	assert.Contains(t, en, "0-1000")

	zh := SystemPrompt(GrammarFunctionCall, "zh-CN")
	assert.Contains(t, zh, "do(action=")
	assert.Contains(t, zh, "手机")
}
