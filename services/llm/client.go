package llm

import (
	"context"

	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/sashabaranov/go-openai/jsonschema"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// ToolDefinition describes one callable tool in the wire format the chat
// completion endpoint expects.
type ToolDefinition struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Parameters  jsonschema.Definition `json:"parameters"`
}

// LLMClient defines the standard interface for any LLM backend.
//
// Generate is a single-shot prompt completion. Chat carries a full
// conversation transcript plus tool definitions; the returned assistant
// message may contain tool calls, in which case the caller executes them and
// calls Chat again with the tool results appended.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, messages []datatypes.Message, tools []ToolDefinition, params GenerationParams) (*datatypes.Message, error)
}
