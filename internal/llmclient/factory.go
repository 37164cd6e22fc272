// internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Safphere/OMG-Agent/api/schemas"
	"github.com/Safphere/OMG-Agent/internal/config"
)

// NewClient constructs the LLM client matching the profile's provider. Every
// currently supported vendor speaks the OpenAI chat completions dialect; the
// switch exists so new transport families slot in without touching callers.
func NewClient(profile config.ModelProfile, logger *zap.Logger) (schemas.LLMClient, error) {
	switch profile.Provider {
	case config.ProviderOpenAI, "":
		return NewOpenAIClient(profile, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", profile.Provider)
	}
}
