// Package provider abstracts the underlying reasoning model. The
// orchestrator never talks to a vendor SDK directly; it holds a Reasoner
// chosen once at startup from the provider:model configuration string.
package provider

import (
	"context"
	"fmt"
)

// Reasoner is the interface to a reasoning model provider
type Reasoner interface {
	// Call makes one model invocation
	Call(ctx context.Context, request Request) (*Response, error)

	// Provider returns the provider name
	Provider() string
}

// Message is one conversation entry in a request
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolSpec declares a callable tool for the model
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Request contains the parameters of one model invocation
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolSpec
	Temperature  float64
	MaxTokens    int
}

// ToolCall is a tool invocation requested by the model
type ToolCall struct {
	ID         string
	Name       string
	Parameters map[string]interface{}
}

// TokenUsage reports token consumption of one invocation
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Response contains the model's reply
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// New creates a Reasoner for the named provider
func New(providerName, apiKey string) (Reasoner, error) {
	switch providerName {
	case "anthropic":
		return NewAnthropic(apiKey), nil
	case "openai":
		return NewOpenAI(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerName)
	}
}
