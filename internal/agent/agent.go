// internal/agent/agent.go

// Package agent contains the perception-action core: the action model and
// parser, the executor, conversation history with loop detection, the task
// planner, and the control loop that ties them to a device and an LLM.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Safphere/OMG-Agent/api/schemas"
	"github.com/Safphere/OMG-Agent/internal/config"
	"github.com/Safphere/OMG-Agent/internal/device"
	"github.com/Safphere/OMG-Agent/internal/session"
)

// AskUserFunc resolves an INFO question into a user reply. Console frontends
// block on interactive input; GUI frontends substitute their own.
type AskUserFunc func(prompt string) string

// Agent is the top-level control loop. One Agent runs one task at a time;
// construct a fresh one per concurrent device.
type Agent struct {
	cfg      config.AgentConfig
	llm      schemas.LLMClient
	handler  *Handler
	inspect  device.Inspector
	screens  device.ScreenshotProvider
	planner  *Planner
	sessions *session.Manager
	detector LoopDetector
	askUser  AskUserFunc
	log      *zap.Logger

	systemPrompt string
	deviceID     string
}

// Options carries the collaborators the Agent needs beyond configuration.
// Sessions and AskUser are optional; a nil session manager disables
// persistence and a nil AskUser disables the manual and callback reply modes.
type Options struct {
	LLM        schemas.LLMClient
	Controller device.Controller
	Inspector  device.Inspector
	Screens    device.ScreenshotProvider
	Callbacks  Callbacks
	Sessions   *session.Manager
	AskUser    AskUserFunc
	DeviceID   string
}

// New assembles an agent. The prompt grammar is chosen from the model
// identity so AutoGLM-family models receive the call syntax they were trained
// on.
func New(cfg config.AgentConfig, opts Options, logger *zap.Logger) *Agent {
	grammar := SelectGrammar(opts.LLM.ModelIdentity())
	log := logger.Named("agent")
	log.Debug("Prompt grammar selected", zap.String("grammar", string(grammar)))

	return &Agent{
		cfg:          cfg,
		llm:          opts.LLM,
		handler:      NewHandler(opts.Controller, opts.Callbacks, logger),
		inspect:      opts.Inspector,
		screens:      opts.Screens,
		planner:      NewPlanner(logger),
		sessions:     opts.Sessions,
		detector:     NewLoopDetector(),
		askUser:      opts.AskUser,
		log:          log,
		systemPrompt: SystemPrompt(grammar, cfg.Language),
		deviceID:     opts.DeviceID,
	}
}

// observation is one snapshot of device state gathered before a step.
type observation struct {
	screenshot device.Screenshot
	foreground string
	screenOn   bool
}

// observe gathers the screenshot, foreground app, and screen power state
// concurrently. A screenshot failure is fatal; the metadata reads degrade to
// neutral values since the loop can proceed without them.
func (a *Agent) observe(ctx context.Context) (observation, error) {
	obs := observation{screenOn: true}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		shot, err := a.screens.CaptureScreenshot(gctx)
		if err != nil {
			return fmt.Errorf("screenshot capture failed: %w", err)
		}
		obs.screenshot = shot
		return nil
	})
	g.Go(func() error {
		app, err := a.inspect.ForegroundApp(gctx)
		if err != nil {
			a.log.Debug("Foreground app unavailable", zap.Error(err))
			return nil
		}
		obs.foreground = app
		return nil
	})
	g.Go(func() error {
		on, err := a.inspect.ScreenOn(gctx)
		if err != nil {
			a.log.Debug("Screen power state unavailable", zap.Error(err))
			return nil
		}
		obs.screenOn = on
		return nil
	})

	if err := g.Wait(); err != nil {
		return observation{}, err
	}
	return obs, nil
}

// Run executes a task from scratch.
func (a *Agent) Run(ctx context.Context, task string) RunResult {
	history := NewConversationHistory(task)
	history.Plan = a.planner.CreatePlan(ctx, task, a.cfg.UsePlannerLLM, a.llm)
	a.log.Info("Task plan created",
		zap.String("task", task), zap.String("plan", history.Plan.Progress()))

	sessionID := ""
	if a.sessions != nil {
		state, err := a.sessions.Create(ctx, task, a.deviceID)
		if err != nil {
			a.log.Warn("Session creation failed, continuing without persistence", zap.Error(err))
		} else {
			sessionID = state.ID
		}
	}

	result := a.runLoop(ctx, history, sessionID, "")
	a.finishSession(ctx, sessionID, result)
	return result
}

// Resume continues a paused session with the user's answer to its pending
// question. The conversation is rebuilt from the session record; the device
// is re-observed from scratch.
func (a *Agent) Resume(ctx context.Context, sessionID, reply string) (RunResult, error) {
	if a.sessions == nil {
		return RunResult{}, fmt.Errorf("session persistence is not configured")
	}
	state, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return RunResult{}, err
	}
	pending := state.PendingQuestion
	if _, err := a.sessions.Resume(ctx, sessionID); err != nil {
		return RunResult{}, err
	}

	history := NewConversationHistory(state.Task)
	history.Plan = a.planner.CreatePlan(ctx, state.Task, a.cfg.UsePlannerLLM, a.llm)
	if pending != "" && reply != "" {
		history.AddQA(pending, reply)
	}

	initialNote := ""
	if pending != "" {
		initialNote = fmt.Sprintf("Earlier you asked: %q. The user answered: %q.", pending, reply)
	}
	result := a.runLoop(ctx, history, sessionID, initialNote)
	a.finishSession(ctx, sessionID, result)
	return result, nil
}

func (a *Agent) finishSession(ctx context.Context, sessionID string, result RunResult) {
	if a.sessions == nil || sessionID == "" || result.StopReason == StopPaused {
		return
	}
	var err error
	if result.StopReason == StopCompleted {
		_, err = a.sessions.Complete(ctx, sessionID, result.Message)
	} else {
		_, err = a.sessions.Abort(ctx, sessionID, result.Message)
	}
	if err != nil {
		a.log.Warn("Failed to finalize session", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// runLoop is the per-step state machine.
func (a *Agent) runLoop(ctx context.Context, history *ConversationHistory, sessionID, initialNote string) RunResult {
	var (
		parseErrors      int
		actionsOnCurrent int
		lastAction       *Action
	)

	fail := func(reason StopReason, msg string) RunResult {
		return RunResult{
			StopReason: reason,
			Message:    msg,
			Steps:      len(history.Entries),
			LastAction: lastAction,
			SessionID:  sessionID,
		}
	}

	for step := 1; step <= a.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return fail(StopError, "run cancelled")
		}

		obs, err := a.observe(ctx)
		if err != nil {
			return fail(StopError, err.Error())
		}
		if !obs.screenOn {
			if !a.cfg.AutoWake {
				return fail(StopScreenOff, "device screen is off")
			}
			if err := a.inspect.Wake(ctx); err != nil {
				return fail(StopScreenOff, fmt.Sprintf("device screen is off and wake failed: %v", err))
			}
			if obs, err = a.observe(ctx); err != nil {
				return fail(StopError, err.Error())
			}
			if !obs.screenOn {
				return fail(StopScreenOff, "device screen is still off after wake")
			}
		}

		obsText := a.observationText(history, obs, initialNote)
		initialNote = ""

		messages := append(
			[]schemas.ChatMessage{schemas.NewTextMessage(schemas.RoleSystem, a.systemPrompt)},
			history.ToMessages(a.cfg.HistoryWindow, CurrentTurn{
				Observation: obsText,
				Screenshot:  obs.screenshot.DataURL,
			})...,
		)

		genResult, err := a.llm.Generate(ctx, schemas.GenerationRequest{Messages: messages})
		if err != nil {
			return fail(StopError, fmt.Sprintf("llm call failed: %v", err))
		}

		action, perr := Parse(genResult.Text)
		if perr != nil {
			parseErrors++
			a.log.Warn("Response parse failed",
				zap.Int("consecutive", parseErrors), zap.Error(perr))
			if parseErrors >= a.cfg.MaxParseErrors {
				action = synthesizeAbort(fmt.Sprintf("aborted after %d consecutive unparsable responses", parseErrors))
			} else {
				action = NewAction(ActionWait)
				action.Summary = "waiting after an unparsable response"
			}
		} else {
			parseErrors = 0
			if genResult.Thinking != "" && action.Reasoning == "" {
				action.Reasoning = genResult.Thinking
			}
		}

		if ok, reason := Validate(action); !ok {
			// Log-only: execution is still attempted and the backend reports
			// its own failure.
			a.log.Warn("Action failed validation",
				zap.String("action", string(action.Kind)), zap.String("reason", reason))
		}

		// Speculative loop check before executing the candidate.
		scratch := append(append([]HistoryEntry(nil), history.Entries...), HistoryEntry{Action: action})
		if looping, msg := a.detector.CheckLoop(scratch); looping {
			repeat := a.detector.RepeatRun(scratch)
			a.log.Warn("Loop detected",
				zap.String("detail", msg), zap.Int("repeat", repeat))
			if note := a.planner.SuggestRecovery(repeat); note != "" && history.Plan != nil {
				history.Plan.AddNote(note)
			}
			if repeat >= a.cfg.MaxLoopRepeats {
				action = synthesizeAbort(fmt.Sprintf("aborted: %s", msg))
			}
		}

		execResult := a.handler.Execute(ctx, action)
		lastAction = &action
		a.log.Info("Step executed",
			zap.Int("step", step),
			zap.String("action", string(action.Kind)),
			zap.Bool("success", execResult.Success),
			zap.String("message", execResult.Message))

		entry := HistoryEntry{
			Step:        history.NextStep(),
			Action:      action,
			Observation: obsText,
			Screenshot:  obs.screenshot.DataURL,
			Timestamp:   time.Now().UTC(),
		}
		if cur := history.Plan.Current(); cur != nil {
			entry.SubTaskID = cur.ID
		}

		finished := action.Kind == ActionComplete || action.Kind == ActionAbort || execResult.ShouldFinish

		if !finished && execResult.RequiresUserInput {
			reply, paused := a.resolveReply(ctx, execResult.UserPrompt)
			if paused {
				history.Append(entry)
				a.pauseSession(ctx, sessionID, execResult.UserPrompt, history)
				return RunResult{
					StopReason: StopPaused,
					Message:    execResult.UserPrompt,
					Steps:      len(history.Entries),
					LastAction: lastAction,
					SessionID:  sessionID,
				}
			}
			entry.UserReply = reply
			history.AddQA(execResult.UserPrompt, reply)
		}

		history.Append(entry)
		a.touchSession(ctx, sessionID, history, action.Summary)

		if !finished && execResult.Success {
			actionsOnCurrent++
			if cur := history.Plan.Current(); cur != nil {
				if a.planner.ShouldAdvance(*cur, action, actionsOnCurrent) {
					history.Plan.MarkCurrentComplete()
					actionsOnCurrent = 0
					a.log.Debug("Plan advanced", zap.String("plan", history.Plan.Progress()))
				}
			}
		}

		if finished {
			msg := execResult.Message
			if action.Kind == ActionComplete {
				return RunResult{
					Success:    true,
					StopReason: StopCompleted,
					Message:    msg,
					Steps:      len(history.Entries),
					LastAction: lastAction,
					SessionID:  sessionID,
				}
			}
			return fail(StopAborted, msg)
		}

		if a.cfg.StepDelay > 0 {
			select {
			case <-ctx.Done():
				return fail(StopError, "run cancelled")
			case <-time.After(a.cfg.StepDelay):
			}
		}
	}

	return fail(StopMaxSteps, fmt.Sprintf("stopped after %d steps without finishing", a.cfg.MaxSteps))
}

// observationText assembles the user-turn text: foreground app, plan state,
// planner advisories, and any resume note.
func (a *Agent) observationText(history *ConversationHistory, obs observation, initialNote string) string {
	var b strings.Builder
	if initialNote != "" {
		b.WriteString(initialNote)
		b.WriteString("\n")
	}
	if obs.foreground != "" {
		fmt.Fprintf(&b, "Current app: %s\n", obs.foreground)
	}
	if section := PlanPromptSection(history.Plan); section != "" {
		b.WriteString(section)
	}
	// Advisory only; the model decides what to do about it.
	if suggestion := a.planner.UpdateFromObservation(obs.foreground); suggestion != "" {
		b.WriteString(suggestion)
		b.WriteString("\n")
	}
	b.WriteString("Here is the current screen. Decide the next action.")
	return b.String()
}

// resolveReply answers an INFO question according to the configured reply
// mode. The second return is true when the run must pause instead.
func (a *Agent) resolveReply(ctx context.Context, prompt string) (string, bool) {
	switch a.cfg.ReplyMode {
	case config.ReplyPause:
		return "", true

	case config.ReplyAuto:
		reply, err := a.autoReply(ctx, prompt)
		if err != nil {
			a.log.Warn("Auto-reply failed, pausing instead", zap.Error(err))
			return "", true
		}
		return reply, false

	case config.ReplyManual, config.ReplyCallback:
		if a.askUser == nil {
			a.log.Warn("No user-input hook configured, pausing instead")
			return "", true
		}
		return a.askUser(prompt), false

	default:
		return "", true
	}
}

const autoReplyPrompt = `A phone automation agent asked the user the following question while working on a task. Answer briefly and decisively on the user's behalf so the task can continue. If the question asks for credentials or payment authorization, answer that the agent should stop and wait for the real user.

Question: %s`

// autoReply asks the LLM to answer on the user's behalf.
func (a *Agent) autoReply(ctx context.Context, prompt string) (string, error) {
	result, err := a.llm.Generate(ctx, schemas.GenerationRequest{
		Messages: []schemas.ChatMessage{
			schemas.NewTextMessage(schemas.RoleUser, fmt.Sprintf(autoReplyPrompt, prompt)),
		},
		Options: schemas.GenerationOptions{Temperature: 0.3},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Text), nil
}

func (a *Agent) pauseSession(ctx context.Context, sessionID, question string, history *ConversationHistory) {
	if a.sessions == nil || sessionID == "" {
		return
	}
	a.touchSession(ctx, sessionID, history, "")
	if _, err := a.sessions.Pause(ctx, sessionID, question); err != nil {
		a.log.Warn("Failed to pause session", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (a *Agent) touchSession(ctx context.Context, sessionID string, history *ConversationHistory, summary string) {
	if a.sessions == nil || sessionID == "" {
		return
	}
	if _, err := a.sessions.Touch(ctx, sessionID, len(history.Entries), summary); err != nil {
		a.log.Warn("Failed to update session", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func synthesizeAbort(message string) Action {
	action := NewAction(ActionAbort).WithParam("message", message)
	action.Summary = message
	return action
}
