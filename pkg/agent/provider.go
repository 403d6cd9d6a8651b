package agent

import (
	"context"
	"fmt"
	"iter"
)

// Provider is the completion provider boundary
type Provider interface {
	// Complete returns a single assistant message
	Complete(ctx context.Context, request *CompletionRequest) (*Message, error)

	// Stream returns the assistant message as a sequence of fragments.
	// An error ends the sequence.
	Stream(ctx context.Context, request *CompletionRequest) iter.Seq2[*Delta, error]

	// Name returns the provider name
	Name() string
}

// CompletionRequest contains what is sent to a provider for one completion
type CompletionRequest struct {
	Model    string
	Messages []Message
	Tools    []ToolSchema

	// ToolChoice is a provider directive ("auto", "none", "required" or a
	// function name). Empty means absent.
	ToolChoice string

	// ParallelToolCalls is only set when tools are present.
	ParallelToolCalls *bool

	Stream bool
}

// ProviderConfig selects and configures a provider
type ProviderConfig struct {
	Provider  string `json:"provider" yaml:"provider" mapstructure:"provider"` // "openai", "anthropic"
	APIKey    string `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
}

// NewProvider creates a provider from its configuration
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// errorSeq yields err once
func errorSeq(err error) iter.Seq2[*Delta, error] {
	return func(yield func(*Delta, error) bool) {
		yield(nil, err)
	}
}
