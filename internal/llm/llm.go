// Package llm provides the language model completion collaborator used
// for query synthesis and natural-language summarization.
package llm

import (
	"context"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 120 * time.Second

// DefaultModel is the model used when the caller does not name one.
const DefaultModel = "gpt-4o"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// CompletionRequest describes one completion call.
type CompletionRequest struct {
	Model       string
	Temperature float64
	Messages    []Message
}

// Completer is the interface to the completion service.
type Completer interface {
	// Name returns the completer name (e.g. "openai").
	Name() string

	// Available reports whether the completer can serve requests
	// (API key present, endpoint configured).
	Available() bool

	// Complete sends the messages and returns the completion text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Ask is a convenience for single-prompt calls.
func Ask(ctx context.Context, c Completer, model string, temperature float64, prompt string) (string, error) {
	return c.Complete(ctx, CompletionRequest{
		Model:       model,
		Temperature: temperature,
		Messages:    []Message{User(prompt)},
	})
}

// Surrogate converts a completion outcome into text that never fails:
// on error it returns a textual error surrogate instead. Callers that
// must always have something to show the user go through this.
func Surrogate(resp string, err error) string {
	if err != nil {
		return fmt.Sprintf("An error occurred while getting a response: %v", err)
	}
	return resp
}
