// Package llm provides clients for interacting with Large Language Models.
package llm

import (
	"context"
	"fmt"

	"admate-rag-go/internal/config"
)

// Options controls generation. A nil Temperature and zero TopP or MaxTokens
// leave the provider default in place; a temperature of 0 is sent as is.
type Options struct {
	Temperature *float64
	TopP        float64
	MaxTokens   int
}

// Float64 returns a pointer to v, for Options.Temperature.
func Float64(v float64) *float64 { return &v }

// Client defines the interface for an LLM client.
type Client interface {
	// Complete sends a single prompt and returns the full generated text.
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
	// Model is the model name reported in chat responses.
	Model() string
	// Ping checks that the provider is reachable.
	Ping(ctx context.Context) error
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaClient(cfg), nil
	case "openai":
		return NewOpenAICompatibleClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// OptionsFromConfig converts the generation section of the config. The configured
// temperature is always sent, including 0.
func OptionsFromConfig(gen config.LLMGenerationConfig) Options {
	return Options{
		Temperature: Float64(gen.Temperature),
		TopP:        gen.TopP,
		MaxTokens:   gen.MaxTokens,
	}
}
