package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCreatePlanTemplateOrder(t *testing.T) {
	t.Parallel()
	pl := NewPlanner(zaptest.NewLogger(t))

	// A task matching both the cross-app template and the generic search
	// template must get the specific plan.
	plan := pl.CreatePlan(context.Background(), "search taobao for the price of AirPods and note it down", false, nil)
	require.NotNil(t, plan)
	require.Len(t, plan.SubTasks, 5)
	assert.Equal(t, "com.taobao.taobao", plan.SubTasks[0].AppTarget)
	assert.Equal(t, SubTaskInProgress, plan.SubTasks[0].Status)
}

func TestCreatePlanSearchTemplate(t *testing.T) {
	t.Parallel()
	pl := NewPlanner(zaptest.NewLogger(t))

	plan := pl.CreatePlan(context.Background(), "search for coffee shops nearby", false, nil)
	require.Len(t, plan.SubTasks, 4)
}

func TestCreatePlanOpenAppResolvesPackage(t *testing.T) {
	t.Parallel()
	pl := NewPlanner(zaptest.NewLogger(t))

	plan := pl.CreatePlan(context.Background(), "open wechat", false, nil)
	require.Len(t, plan.SubTasks, 2)
	assert.Equal(t, "com.tencent.mm", plan.SubTasks[0].AppTarget)
}

func TestCreatePlanGenericFallback(t *testing.T) {
	t.Parallel()
	pl := NewPlanner(zaptest.NewLogger(t))

	plan := pl.CreatePlan(context.Background(), "do the thing", false, nil)
	require.Len(t, plan.SubTasks, 2)
	assert.Equal(t, 1, plan.SubTasks[0].ID)
	assert.Equal(t, 2, plan.SubTasks[1].ID)
}

func TestCreatePlanLLMFallback(t *testing.T) {
	t.Parallel()
	pl := NewPlanner(zaptest.NewLogger(t))

	llm := &scriptedLLM{responses: []string{
		`Here is the plan:
[{"id": 1, "description": "Open the app", "app_target": "com.example", "verification": "app open"},
 {"id": 2, "description": "Do the work", "app_target": "", "verification": "work done"}]
Good luck!`,
	}}

	plan := pl.CreatePlan(context.Background(), "do the thing", true, llm)
	require.Len(t, plan.SubTasks, 2)
	assert.Equal(t, "Open the app", plan.SubTasks[0].Description)
	assert.Equal(t, "com.example", plan.SubTasks[0].AppTarget)
}

func TestCreatePlanLLMGarbageFallsBackToGeneric(t *testing.T) {
	t.Parallel()
	pl := NewPlanner(zaptest.NewLogger(t))

	llm := &scriptedLLM{responses: []string{"I cannot help with that."}}
	plan := pl.CreatePlan(context.Background(), "do the thing", true, llm)
	require.Len(t, plan.SubTasks, 2)
	assert.Equal(t, "Start working on the task", plan.SubTasks[0].Description)
}

func TestPlanAdvancementAndRenumbering(t *testing.T) {
	t.Parallel()
	pl := NewPlanner(zaptest.NewLogger(t))
	plan := pl.CreatePlan(context.Background(), "search for something", false, nil)
	total := len(plan.SubTasks)

	plan.MarkCurrentComplete()
	assert.Equal(t, SubTaskCompleted, plan.SubTasks[0].Status)
	assert.Equal(t, SubTaskInProgress, plan.SubTasks[1].Status)
	assert.Equal(t, 1, plan.CurrentStep)

	plan.SkipCurrent()
	assert.Equal(t, SubTaskBlocked, plan.SubTasks[1].Status)
	assert.Equal(t, 2, plan.CurrentStep)

	plan.InsertStep("dismiss the update dialog")
	assert.Equal(t, total+1, len(plan.SubTasks))
	assert.Equal(t, "dismiss the update dialog", plan.SubTasks[2].Description)
	for i, s := range plan.SubTasks {
		assert.Equal(t, i+1, s.ID, "ids must stay contiguous and 1-based")
	}
}

func TestMarkCompleteIdempotentAtEnd(t *testing.T) {
	t.Parallel()
	plan := newPlan("t", []SubTask{{Description: "only step"}})

	plan.MarkCurrentComplete()
	assert.True(t, plan.IsComplete())
	assert.Nil(t, plan.Current())

	// Completing past the end changes nothing.
	before := *plan
	plan.MarkCurrentComplete()
	plan.SkipCurrent()
	assert.Equal(t, before.CurrentStep, plan.CurrentStep)
	assert.True(t, plan.IsComplete())
}

func TestIsCompleteRequiresEverySubTask(t *testing.T) {
	t.Parallel()
	plan := newPlan("t", []SubTask{{Description: "a"}, {Description: "b"}})

	plan.MarkCurrentComplete()
	plan.SkipCurrent()
	// A blocked sub-task means the plan never counts as complete.
	assert.False(t, plan.IsComplete())
	assert.Nil(t, plan.Current())
}

func TestUpdateFromObservation(t *testing.T) {
	t.Parallel()
	pl := NewPlanner(zaptest.NewLogger(t))

	tests := []struct {
		text string
		want string
	}{
		{"Please sign in to continue", "login"},
		{"请输入密码", "login"},
		{"Loading, please wait", "loading"},
		{"Allow this app to access your location?", "dialog"},
		{"a perfectly normal screen", ""},
	}
	for _, tt := range tests {
		got := pl.UpdateFromObservation(tt.text)
		if tt.want == "" {
			assert.Empty(t, got, tt.text)
		} else {
			assert.Contains(t, got, tt.want, tt.text)
		}
	}
}

func TestSuggestRecoveryEscalation(t *testing.T) {
	t.Parallel()
	pl := NewPlanner(zaptest.NewLogger(t))

	assert.Empty(t, pl.SuggestRecovery(1))
	assert.Contains(t, pl.SuggestRecovery(2), "different target")
	assert.Contains(t, pl.SuggestRecovery(3), "back")
	assert.Contains(t, pl.SuggestRecovery(5), "Abort")
}

func TestShouldAdvance(t *testing.T) {
	t.Parallel()
	pl := NewPlanner(zaptest.NewLogger(t))

	launch := NewAction(ActionLaunch).WithParam("app", "com.tencent.mm")
	assert.True(t, pl.ShouldAdvance(SubTask{Description: "Open the messaging app", AppTarget: "com.tencent.mm"}, launch, 1))
	assert.False(t, pl.ShouldAdvance(SubTask{Description: "Open the notes app", AppTarget: "com.miui.notes"}, launch, 1))

	click := tapAt(500, 300)
	assert.True(t, pl.ShouldAdvance(SubTask{Description: "Tap the search box"}, click, 1))
	assert.False(t, pl.ShouldAdvance(SubTask{Description: "Read the product price"}, click, 1))

	typeAction := NewAction(ActionTypeText).WithParam("text", "coffee")
	assert.True(t, pl.ShouldAdvance(SubTask{Description: "Type the search keywords"}, typeAction, 1))

	back := NewAction(ActionBack)
	assert.True(t, pl.ShouldAdvance(SubTask{Description: "Return to the home screen"}, back, 1))

	// Three actions against one sub-task force an advance regardless.
	wait := NewAction(ActionWait)
	assert.False(t, pl.ShouldAdvance(SubTask{Description: "Read the product price"}, wait, 2))
	assert.True(t, pl.ShouldAdvance(SubTask{Description: "Read the product price"}, wait, 3))
}
