// internal/agent/history.go
package agent

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/Safphere/OMG-Agent/api/schemas"
)

var jsonit = jsoniter.ConfigCompatibleWithStandardLibrary

// QAPair is one asked-and-answered exchange accumulated from INFO actions.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ConversationHistory owns the ordered record of one task attempt: the
// original instruction, the step entries, the question/answer pairs, and the
// optional plan. It is created once per attempt and mutated only by appending.
type ConversationHistory struct {
	Task    string
	Entries []HistoryEntry
	QAPairs []QAPair
	Plan    *TaskPlan
}

// NewConversationHistory starts an empty history for one task attempt.
func NewConversationHistory(task string) *ConversationHistory {
	return &ConversationHistory{Task: task}
}

// Append records one completed step. Entries are never modified afterwards.
func (h *ConversationHistory) Append(entry HistoryEntry) {
	h.Entries = append(h.Entries, entry)
}

// AddQA records an answered INFO exchange.
func (h *ConversationHistory) AddQA(question, answer string) {
	h.QAPairs = append(h.QAPairs, QAPair{Question: question, Answer: answer})
}

// NextStep returns the 1-based index the next entry will carry.
func (h *ConversationHistory) NextStep() int {
	return len(h.Entries) + 1
}

// CurrentTurn is the not-yet-recorded observation the model is being asked to
// act on. Its screenshot is the only one ever attached to the context.
type CurrentTurn struct {
	Observation string
	Screenshot  string // data URL; empty to send text only
}

// ToMessages renders the most recent maxHistory entries plus the current turn
// into an alternating user/assistant sequence for LLM context. The first
// rendered user message carries the task text and, only when earlier entries
// were dropped, an explicit truncation marker. Historical turns are rendered
// text-only regardless of what was captured at the time, which keeps the
// payload bounded no matter how long the task runs.
func (h *ConversationHistory) ToMessages(maxHistory int, current CurrentTurn) []schemas.ChatMessage {
	entries := h.Entries
	truncated := false
	if maxHistory > 0 && len(entries) > maxHistory {
		entries = entries[len(entries)-maxHistory:]
		truncated = true
	}

	var messages []schemas.ChatMessage
	first := true
	for _, entry := range entries {
		messages = append(messages, schemas.NewTextMessage(schemas.RoleUser, h.userText(entry.Observation, first, truncated)))
		first = false
		messages = append(messages, schemas.NewTextMessage(schemas.RoleAssistant, renderAssistantTurn(entry.Action)))
		if entry.UserReply != "" {
			messages = append(messages, schemas.NewTextMessage(schemas.RoleUser, "User reply: "+entry.UserReply))
		}
	}

	currentText := h.userText(current.Observation, first, truncated)
	if current.Screenshot != "" {
		messages = append(messages, schemas.NewImageMessage(currentText, current.Screenshot))
	} else {
		messages = append(messages, schemas.NewTextMessage(schemas.RoleUser, currentText))
	}
	return messages
}

// userText decorates an observation with the task prefix and the truncation
// marker on the first rendered user turn.
func (h *ConversationHistory) userText(observation string, first, truncated bool) string {
	if !first {
		return observation
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", h.Task)
	if truncated {
		b.WriteString("(previous steps truncated)\n")
	}
	b.WriteString(observation)
	return b.String()
}

// renderAssistantTurn renders an action the way the model emitted it:
// reasoning first, then a minimal JSON projection of the action. The
// Reasoning field is excluded from the JSON to avoid duplicating it.
func renderAssistantTurn(a Action) string {
	projection, err := jsonit.MarshalToString(a)
	if err != nil {
		// Marshal of these shapes cannot realistically fail; degrade to the
		// tab serialization rather than dropping the turn.
		projection = SerializeTab(a)
	}
	if a.Reasoning == "" {
		return projection
	}
	return a.Reasoning + "\n" + projection
}
