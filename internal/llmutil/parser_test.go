package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type planStep struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

func TestParseJSONResponsePlain(t *testing.T) {
	t.Parallel()

	out, err := ParseJSONResponse[planStep](`{"id": 1, "description": "open the app"}`)
	require.NoError(t, err)
	assert.Equal(t, 1, out.ID)
	assert.Equal(t, "open the app", out.Description)
}

func TestParseJSONResponseMarkdownFence(t *testing.T) {
	t.Parallel()

	response := "```json\n{\"id\": 2, \"description\": \"tap search\"}\n```"
	out, err := ParseJSONResponse[planStep](response)
	require.NoError(t, err)
	assert.Equal(t, 2, out.ID)
}

func TestParseJSONResponseArrayInFence(t *testing.T) {
	t.Parallel()

	response := "```\n[{\"id\": 1, \"description\": \"a\"}, {\"id\": 2, \"description\": \"b\"}]\n```"
	out, err := ParseJSONResponse[[]planStep](response)
	require.NoError(t, err)
	assert.Len(t, *out, 2)
}

func TestParseJSONResponseBuriedInProse(t *testing.T) {
	t.Parallel()

	response := `Sure! Here is the plan you asked for:
[{"id": 1, "description": "open the app"}]
Let me know if you need anything else.`
	out, err := ParseJSONResponse[[]planStep](response)
	require.NoError(t, err)
	require.Len(t, *out, 1)
	assert.Equal(t, "open the app", (*out)[0].Description)
}

func TestParseJSONResponseGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseJSONResponse[planStep]("I cannot produce JSON today.")
	assert.Error(t, err)
}

func TestSplitThinking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		input        string
		wantThinking string
		wantText     string
	}{
		{
			"no block",
			"action:BACK",
			"",
			"action:BACK",
		},
		{
			"canonical block",
			"<think>go back</think>\naction:BACK",
			"go back",
			"action:BACK",
		},
		{
			"uppercase variant",
			"<THINK>go back</THINK>action:BACK",
			"go back",
			"action:BACK",
		},
		{
			"truncated tink variant",
			"<tink>go back</tink>action:BACK",
			"go back",
			"action:BACK",
		},
		{
			"spaced closing tag",
			"<think>go back< / think>action:BACK",
			"go back",
			"action:BACK",
		},
		{
			"unterminated block swallows the rest",
			"action:BACK\n<think>and then I keep going",
			"and then I keep going",
			"action:BACK",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			thinking, text := SplitThinking(tt.input)
			assert.Equal(t, tt.wantThinking, thinking)
			assert.Equal(t, tt.wantText, text)
		})
	}
}
