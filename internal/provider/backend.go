// Package provider executes single completion calls against model providers
// and tracks their token usage.
package provider

import "context"

// Request is a single completion call.
type Request struct {
	// System is the system prompt framing the worker's role.
	System string
	// Prompt is the user-visible instruction, including any shared context.
	Prompt string
	// MaxTokens caps the output size. Zero uses the backend default.
	MaxTokens int64
}

// Result is the outcome of a completion call.
type Result struct {
	// Text is the generated output.
	Text string
	// InputTokens and OutputTokens are the usage reported by the provider.
	InputTokens  int64
	OutputTokens int64
}

// Backend executes completions for one configured provider.
type Backend interface {
	Complete(ctx context.Context, req Request) (Result, error)
}
