package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/michaelwaves/coinchase/services/dispute/datatypes"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any hosted LLM backend used
// as the dispute analysis agent.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
}

// NewClientFromEnv constructs the backend named by backend ("anthropic" or
// "openai"); an empty string selects Anthropic.
func NewClientFromEnv(backend string) (LLMClient, error) {
	switch strings.ToLower(backend) {
	case "", "anthropic":
		return NewAnthropicClient()
	case "openai":
		return NewOpenAIClient()
	default:
		return nil, fmt.Errorf("unknown LLM backend %q (want anthropic or openai)", backend)
	}
}
