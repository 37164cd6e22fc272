// api/schemas/llm.go
package schemas

import "context"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Content part types.
const (
	ContentTypeText     = "text"
	ContentTypeImageURL = "image_url"
)

// ContentPart is one fragment of a multimodal chat message. Exactly one of
// Text or ImageURL is set.
type ContentPart struct {
	Type     string `json:"type"` // ContentTypeText or ContentTypeImageURL
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"` // data URL or remote URL
}

// ChatMessage is a single role-tagged turn in an LLM conversation. Simple
// text-only turns populate Text; turns carrying a screenshot use Parts.
type ChatMessage struct {
	Role  Role          `json:"role"`
	Text  string        `json:"text,omitempty"`
	Parts []ContentPart `json:"parts,omitempty"`
}

// NewTextMessage builds a plain text message for the given role.
func NewTextMessage(role Role, text string) ChatMessage {
	return ChatMessage{Role: role, Text: text}
}

// NewImageMessage builds a user message carrying text plus one inline image.
func NewImageMessage(text, imageURL string) ChatMessage {
	return ChatMessage{
		Role: RoleUser,
		Parts: []ContentPart{
			{Type: ContentTypeImageURL, ImageURL: imageURL},
			{Type: ContentTypeText, Text: text},
		},
	}
}

// GenerationOptions tunes a single generation request.
type GenerationOptions struct {
	Temperature float64 `json:"temperature"` // Controls randomness. Lower is more deterministic.
	TopP        float64 `json:"top_p"`       // Nucleus sampling parameter.
	MaxTokens   int     `json:"max_tokens"`  // Upper bound on generated tokens.
}

// GenerationRequest is the provider-agnostic payload handed to an LLMClient.
type GenerationRequest struct {
	Messages []ChatMessage     `json:"messages"`
	Options  GenerationOptions `json:"options"`
}

// GenerationResult carries the final concatenated model output. Thinking holds
// the content of a <think>...</think> block when the model emitted one; Text
// never contains the thinking block.
type GenerationResult struct {
	Text     string `json:"text"`
	Thinking string `json:"thinking,omitempty"`
}

// LLMClient is the boundary contract for any large language model backend.
// Implementations must be safe for concurrent use.
type LLMClient interface {
	// Generate sends the chat transcript to the model and blocks until the
	// final response is available or ctx is done.
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
	// ModelIdentity returns the configured model name, used to select the
	// action grammar the model was trained on.
	ModelIdentity() string
}
