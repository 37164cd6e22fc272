// internal/agent/planner.go
package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Safphere/OMG-Agent/api/schemas"
	"github.com/Safphere/OMG-Agent/internal/device"
	"github.com/Safphere/OMG-Agent/internal/llmutil"
)

// SubTaskStatus is the lifecycle of one checklist item. The progression is
// non-cyclic; Failed and Blocked are terminal for the attempt.
type SubTaskStatus string

const (
	SubTaskPending    SubTaskStatus = "pending"
	SubTaskInProgress SubTaskStatus = "in_progress"
	SubTaskCompleted  SubTaskStatus = "completed"
	SubTaskFailed     SubTaskStatus = "failed"
	SubTaskBlocked    SubTaskStatus = "blocked"
)

// SubTask is one checklist item inside a decomposed task plan. IDs are
// 1-based and renumbered whenever the list is edited.
type SubTask struct {
	ID          int           `json:"id"`
	Description string        `json:"description"`
	Status      SubTaskStatus `json:"status"`
	// AppTarget is the package expected in the foreground after this step.
	AppTarget string `json:"app_target,omitempty"`
	// Verification is the human-readable completion signal.
	Verification string `json:"verification,omitempty"`
}

// TaskPlan is an ordered checklist decomposed from one natural-language task.
// CurrentStep indexes into SubTasks, or sits at len(SubTasks) meaning done.
type TaskPlan struct {
	OriginalTask   string    `json:"original_task"`
	SubTasks       []SubTask `json:"sub_tasks"`
	CurrentStep    int       `json:"current_step"`
	ExecutionNotes []string  `json:"execution_notes,omitempty"`
	ReplannedCount int       `json:"replanned_count"`
}

// Current returns the active sub-task, or nil when the plan is exhausted.
// Safe on a nil plan.
func (p *TaskPlan) Current() *SubTask {
	if p == nil || p.CurrentStep < 0 || p.CurrentStep >= len(p.SubTasks) {
		return nil
	}
	return &p.SubTasks[p.CurrentStep]
}

// MarkCurrentComplete completes the active sub-task and advances. Calling it
// past the final sub-task is a no-op, leaving CurrentStep at len(SubTasks).
func (p *TaskPlan) MarkCurrentComplete() {
	if cur := p.Current(); cur != nil {
		cur.Status = SubTaskCompleted
		p.CurrentStep++
		if next := p.Current(); next != nil {
			next.Status = SubTaskInProgress
		}
	}
}

// SkipCurrent marks the active sub-task blocked and advances past it.
func (p *TaskPlan) SkipCurrent() {
	if cur := p.Current(); cur != nil {
		cur.Status = SubTaskBlocked
		p.CurrentStep++
		if next := p.Current(); next != nil {
			next.Status = SubTaskInProgress
		}
	}
}

// InsertStep splices a new sub-task in front of the active one and renumbers
// the list so IDs stay contiguous and 1-based.
func (p *TaskPlan) InsertStep(description string) {
	sub := SubTask{Description: description, Status: SubTaskInProgress}
	at := p.CurrentStep
	if at > len(p.SubTasks) {
		at = len(p.SubTasks)
	}
	if cur := p.Current(); cur != nil && cur.Status == SubTaskInProgress {
		cur.Status = SubTaskPending
	}
	p.SubTasks = append(p.SubTasks[:at], append([]SubTask{sub}, p.SubTasks[at:]...)...)
	p.Renumber()
	p.ReplannedCount++
}

// AddNote appends a free-text execution note.
func (p *TaskPlan) AddNote(note string) {
	p.ExecutionNotes = append(p.ExecutionNotes, note)
}

// Renumber rewrites sub-task IDs to be contiguous and 1-based, preserving
// order.
func (p *TaskPlan) Renumber() {
	for i := range p.SubTasks {
		p.SubTasks[i].ID = i + 1
	}
}

// IsComplete reports whether every sub-task finished successfully.
func (p *TaskPlan) IsComplete() bool {
	if len(p.SubTasks) == 0 {
		return false
	}
	for _, s := range p.SubTasks {
		if s.Status != SubTaskCompleted {
			return false
		}
	}
	return true
}

// Progress renders a one-line checklist summary for prompts and logs.
func (p *TaskPlan) Progress() string {
	done := 0
	for _, s := range p.SubTasks {
		if s.Status == SubTaskCompleted {
			done++
		}
	}
	var current string
	if cur := p.Current(); cur != nil {
		current = cur.Description
	} else {
		current = "(all steps done)"
	}
	return fmt.Sprintf("%d/%d sub-tasks done, current: %s", done, len(p.SubTasks), current)
}

// planTemplate is one regex-keyed plan pattern. Order in the table is
// load-bearing: specific patterns must precede generic ones so that a broad
// "search" pattern cannot shadow a cross-app template.
type planTemplate struct {
	name    string
	pattern *regexp.Regexp
	build   func(task string) []SubTask
}

var planTemplates = []planTemplate{
	{
		name:    "price-then-note",
		pattern: regexp.MustCompile(`(?i)(price|价格|比价).*(note|memo|备忘|记录|记下)`),
		build: func(task string) []SubTask {
			return []SubTask{
				{Description: "Open the shopping app", AppTarget: "com.taobao.taobao", Verification: "shopping app home screen visible"},
				{Description: "Search for the product mentioned in the task", Verification: "search results listed"},
				{Description: "Open the top result and read its price", Verification: "product page with price visible"},
				{Description: "Open the notes app", AppTarget: "com.miui.notes", Verification: "notes editor visible"},
				{Description: "Write down the product name and price", Verification: "note saved with the price"},
			}
		},
	},
	{
		name:    "send-message",
		pattern: regexp.MustCompile(`(?i)(send|reply|发送|回复|发).*(message|msg|消息|微信|短信)`),
		build: func(task string) []SubTask {
			return []SubTask{
				{Description: "Open the messaging app", AppTarget: "com.tencent.mm", Verification: "chat list visible"},
				{Description: "Find and open the target conversation", Verification: "conversation open"},
				{Description: "Type the message text", Verification: "message in the input field"},
				{Description: "Send the message", Verification: "message appears in the thread"},
			}
		},
	},
	{
		name:    "search-in-app",
		pattern: regexp.MustCompile(`(?i)(search|find|look up|搜索|查找|查询)`),
		build: func(task string) []SubTask {
			return []SubTask{
				{Description: "Open the app named in the task", Verification: "app home screen visible"},
				{Description: "Tap the search box", Verification: "keyboard raised in the search field"},
				{Description: "Type the search keywords", Verification: "keywords visible in the field"},
				{Description: "Submit the search and review results", Verification: "result list visible"},
			}
		},
	},
	{
		name:    "open-app",
		pattern: openAppRegex,
		build: func(task string) []SubTask {
			target := ""
			if m := openAppRegex.FindStringSubmatch(task); m != nil {
				if pkg, ok := device.ResolvePackage(m[1]); ok {
					target = pkg
				}
			}
			return []SubTask{
				{Description: "Launch the requested app", AppTarget: target, Verification: "app in the foreground"},
				{Description: "Confirm the app opened to its main screen", Verification: "main screen rendered"},
			}
		},
	},
}

var openAppRegex = regexp.MustCompile(`(?i)^\s*(?:open|launch|start|打开|启动)\s+(.+?)\s*$`)

// Planner decomposes tasks into plans and offers advisory guidance during a
// run. It holds no per-task state; all progress lives in the TaskPlan.
type Planner struct {
	logger *zap.Logger
}

// NewPlanner builds a planner.
func NewPlanner(logger *zap.Logger) *Planner {
	return &Planner{logger: logger.Named("planner")}
}

// planSubTaskDTO is the JSON shape requested from the LLM fallback.
type planSubTaskDTO struct {
	ID           int    `json:"id"`
	Description  string `json:"description"`
	AppTarget    string `json:"app_target"`
	Verification string `json:"verification"`
}

// CreatePlan decomposes a task. Templates are tried in order, first match
// wins; if none match and useLLM is set, the LLM is asked for a JSON
// checklist. Every failure path falls back to a generic two-step plan.
func (pl *Planner) CreatePlan(ctx context.Context, task string, useLLM bool, client schemas.LLMClient) *TaskPlan {
	for _, tmpl := range planTemplates {
		if tmpl.pattern.MatchString(task) {
			pl.logger.Debug("Plan template matched", zap.String("template", tmpl.name))
			return newPlan(task, tmpl.build(task))
		}
	}

	if useLLM && client != nil {
		if plan, err := pl.planWithLLM(ctx, task, client); err == nil {
			return plan
		} else {
			pl.logger.Warn("LLM planning failed, using generic plan", zap.Error(err))
		}
	}

	return genericPlan(task)
}

func newPlan(task string, subs []SubTask) *TaskPlan {
	plan := &TaskPlan{OriginalTask: task, SubTasks: subs}
	plan.Renumber()
	for i := range plan.SubTasks {
		plan.SubTasks[i].Status = SubTaskPending
	}
	if len(plan.SubTasks) > 0 {
		plan.SubTasks[0].Status = SubTaskInProgress
	}
	return plan
}

// genericPlan is the last-resort decomposition: start, then finish.
func genericPlan(task string) *TaskPlan {
	return newPlan(task, []SubTask{
		{Description: "Start working on the task", Verification: "first concrete step taken"},
		{Description: "Complete the task and verify the result", Verification: "task outcome visible on screen"},
	})
}

const planPromptTemplate = `Decompose the following phone automation task into 2-6 ordered sub-tasks.
Respond with ONLY a JSON array of objects shaped like
{"id": 1, "description": "...", "app_target": "android.package.or.empty", "verification": "..."}.

Task: %s`

// planWithLLM asks the model for a checklist. The JSON array is located by
// scanning from the first '[' to the last ']' so surrounding prose is
// tolerated.
func (pl *Planner) planWithLLM(ctx context.Context, task string, client schemas.LLMClient) (*TaskPlan, error) {
	req := schemas.GenerationRequest{
		Messages: []schemas.ChatMessage{
			schemas.NewTextMessage(schemas.RoleUser, fmt.Sprintf(planPromptTemplate, task)),
		},
		Options: schemas.GenerationOptions{Temperature: 0.2},
	}
	result, err := client.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	dtos, err := llmutil.ParseJSONResponse[[]planSubTaskDTO](result.Text)
	if err != nil {
		return nil, err
	}
	if len(*dtos) == 0 {
		return nil, fmt.Errorf("plan response contained no sub-tasks")
	}

	subs := make([]SubTask, 0, len(*dtos))
	for _, dto := range *dtos {
		if strings.TrimSpace(dto.Description) == "" {
			continue
		}
		subs = append(subs, SubTask{
			Description:  dto.Description,
			AppTarget:    dto.AppTarget,
			Verification: dto.Verification,
		})
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("plan response contained no usable sub-tasks")
	}
	return newPlan(task, subs), nil
}

// Observation keyword families. Matching any word in a family produces the
// family's advisory suggestion for the next prompt; nothing is ever acted on
// automatically.
var observationFamilies = []struct {
	keywords   []string
	suggestion string
}{
	{
		keywords:   []string{"login", "sign in", "password", "登录", "密码", "验证码"},
		suggestion: "The screen appears to show a login prompt. Authenticate or ask the user for credentials before continuing.",
	},
	{
		keywords:   []string{"loading", "please wait", "加载", "载入中"},
		suggestion: "The screen appears to be loading. Consider waiting before the next action.",
	},
	{
		keywords:   []string{"popup", "dialog", "allow", "deny", "permission", "弹窗", "允许", "拒绝", "确认", "取消"},
		suggestion: "A dialog or permission prompt appears to be open. Dismiss or answer it before continuing the task.",
	},
}

// UpdateFromObservation scans screen text for known obstruction patterns and
// returns an advisory suggestion, or "" when nothing matched.
func (pl *Planner) UpdateFromObservation(screenText string) string {
	lower := strings.ToLower(screenText)
	for _, family := range observationFamilies {
		for _, kw := range family.keywords {
			if strings.Contains(lower, kw) {
				return family.suggestion
			}
		}
	}
	return ""
}

// SuggestRecovery maps an escalating repetition count to an escalating
// recovery suggestion.
func (pl *Planner) SuggestRecovery(stuckCount int) string {
	switch {
	case stuckCount >= 5:
		return "Repeated actions are not working. Abort the task or hand control to the user."
	case stuckCount >= 3:
		return "Still stuck. Go back or return home and approach the goal a different way."
	case stuckCount >= 2:
		return "The last action repeated without visible progress. Try a different target or position."
	default:
		return ""
	}
}

// Keyword families linking sub-task wording to action kinds for advancement.
var (
	clickKeywords  = []string{"click", "tap", "press", "select", "open", "点击", "选择", "打开"}
	typeKeywords   = []string{"input", "type", "enter", "search", "send", "write", "输入", "搜索", "发送", "写"}
	returnKeywords = []string{"return", "back", "home", "desktop", "返回", "桌面", "主屏"}
)

// ShouldAdvance applies the best-effort sub-task advancement heuristics: app
// overlap for launches, keyword families for taps and typing, return wording
// for navigation, and a three-action cap that forces progress when every
// other signal misses. The heuristics can over- and under-advance; they are a
// known approximation, not ground truth.
func (pl *Planner) ShouldAdvance(sub SubTask, action Action, actionsOnCurrent int) bool {
	desc := strings.ToLower(sub.Description)

	switch action.Kind {
	case ActionLaunch:
		app, _ := action.StringParam("app")
		if sub.AppTarget != "" && app != "" && packagesOverlap(sub.AppTarget, app) {
			return true
		}
	case ActionClick, ActionDoubleTap, ActionLongPress:
		if containsAny(desc, clickKeywords) {
			return true
		}
	case ActionTypeText:
		if containsAny(desc, typeKeywords) {
			return true
		}
	case ActionBack, ActionHome:
		if containsAny(desc, returnKeywords) {
			return true
		}
	}

	// Stall breaker: too many actions against one checklist item.
	return actionsOnCurrent >= 3
}

// packagesOverlap compares package identifiers loosely: equality, containment,
// or a shared trailing segment.
func packagesOverlap(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	as := a[strings.LastIndex(a, ".")+1:]
	bs := b[strings.LastIndex(b, ".")+1:]
	return as != "" && as == bs
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
