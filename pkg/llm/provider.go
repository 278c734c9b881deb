package llm

import (
	"context"
	"time"
)

// Provider defines the interface for chat completion backends.
// Implementations handle protocol-specific details such as request
// formatting, authentication, and response parsing.
type Provider interface {
	// Complete sends a completion request and returns the model's text output.
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is a single completion request: a system prompt, prior turns,
// and the user message.
type Request struct {
	System      string
	History     []Message
	User        string
	Temperature float32
}

// Message is one prior conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds common configuration for providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32

	// Timeout bounds each completion call. Zero means no bound.
	Timeout time.Duration
}
