// internal/llmclient/openai_client.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Safphere/OMG-Agent/api/schemas"
	"github.com/Safphere/OMG-Agent/internal/config"
	"github.com/Safphere/OMG-Agent/internal/llmutil"
)

// OpenAIClient implements schemas.LLMClient against any OpenAI-compatible
// /chat/completions endpoint (vLLM, stepfun, bigmodel, modelscope, z.ai).
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	profile    config.ModelProfile
}

var _ schemas.LLMClient = (*OpenAIClient)(nil)

// -- OpenAI wire structures (internal to this file) --

type oaiTextPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiImageURL struct {
	URL string `json:"url"`
}

type oaiMessage struct {
	Role string `json:"role"`
	// Content is a plain string for text-only turns and a part array for
	// multimodal turns, per the OpenAI chat schema.
	Content any `json:"content"`
}

type oaiRequestPayload struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float64      `json:"temperature,omitempty"`
	TopP        float64      `json:"top_p,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Stream      bool         `json:"stream"`
}

type oaiResponsePayload struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient initializes the client from a model profile.
func NewOpenAIClient(profile config.ModelProfile, logger *zap.Logger) (*OpenAIClient, error) {
	if profile.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if profile.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	var limiter *rate.Limiter
	if profile.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(profile.RequestsPerMinute)/60.0), 1)
	}

	return &OpenAIClient{
		baseURL: strings.TrimRight(profile.BaseURL, "/"),
		apiKey:  profile.APIKey,
		profile: profile,
		limiter: limiter,
		httpClient: &http.Client{
			Timeout: profile.APITimeout,
		},
		logger: logger.Named("llm_client.openai"),
	}, nil
}

// ModelIdentity returns the configured model name.
func (c *OpenAIClient) ModelIdentity() string {
	return c.profile.Model
}

// Generate sends the chat transcript to the API and returns the final text
// with any thinking segment split out. Transient failures are retried with
// exponential backoff.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return schemas.GenerationResult{}, fmt.Errorf("rate limiter wait aborted: %w", err)
		}
	}

	body, err := json.Marshal(c.buildRequestPayload(req))
	if err != nil {
		return schemas.GenerationResult{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var result schemas.GenerationResult

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var payload oaiResponsePayload
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if payload.Error != nil {
			return backoff.Permanent(fmt.Errorf("API error: %s (%s)", payload.Error.Message, payload.Error.Type))
		}
		if len(payload.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("API returned no choices"))
		}

		choice := payload.Choices[0]
		c.logger.Info("LLM generation complete",
			zap.Duration("duration", duration),
			zap.String("finish_reason", choice.FinishReason),
			zap.Int("prompt_tokens", payload.Usage.PromptTokens),
			zap.Int("completion_tokens", payload.Usage.CompletionTokens),
			zap.Int("total_tokens", payload.Usage.TotalTokens),
		)

		thinking, text := llmutil.SplitThinking(choice.Message.Content)
		if thinking == "" && choice.Message.ReasoningContent != "" {
			// Some backends surface thinking out-of-band instead of in-line.
			thinking = strings.TrimSpace(choice.Message.ReasoningContent)
		}
		result = schemas.GenerationResult{Text: text, Thinking: thinking}
		return nil
	}

	if err = backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return schemas.GenerationResult{}, err
	}
	return result, nil
}

func (c *OpenAIClient) buildRequestPayload(req schemas.GenerationRequest) oaiRequestPayload {
	messages := make([]oaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, oaiMessage{
			Role:    string(m.Role),
			Content: buildContent(m),
		})
	}

	temperature := req.Options.Temperature
	if temperature == 0 {
		temperature = c.profile.Temperature
	}
	topP := req.Options.TopP
	if topP == 0 {
		topP = c.profile.TopP
	}
	maxTokens := req.Options.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.profile.MaxTokens
	}

	return oaiRequestPayload{
		Model:       c.profile.Model,
		Messages:    messages,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Stream:      false,
	}
}

// buildContent renders a ChatMessage into the string-or-parts shape the wire
// format expects.
func buildContent(m schemas.ChatMessage) any {
	if len(m.Parts) == 0 {
		return m.Text
	}
	parts := make([]oaiTextPart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case schemas.ContentTypeImageURL:
			parts = append(parts, oaiTextPart{Type: schemas.ContentTypeImageURL, ImageURL: &oaiImageURL{URL: p.ImageURL}})
		default:
			parts = append(parts, oaiTextPart{Type: schemas.ContentTypeText, Text: p.Text})
		}
	}
	return parts
}

func (c *OpenAIClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("LLM API returned error status", zap.Int("status", statusCode), zap.String("response", truncate(string(body), 500)))
	err := fmt.Errorf("LLM API error: status %d, body: %s", statusCode, truncate(string(body), 500))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return err // Transient errors, retry.
	default:
		return backoff.Permanent(err) // Permanent errors.
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
