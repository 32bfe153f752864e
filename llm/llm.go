// Package llm talks to the upstream chat-completion provider. The gate never
// calls this package directly; the transport invokes the provider after a
// full gate pass and reports the outcome back to the circuit breaker.
package llm

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRequestFailed is returned when the provider call fails; the
	// underlying cause is wrapped but treated as opaque by callers.
	ErrRequestFailed = errors.New("completion request failed")

	// ErrEmptyResponse is returned when the provider answers with no usable
	// choice.
	ErrEmptyResponse = errors.New("empty response from provider")
)

// Role identifies the author of a chat message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// User creates a user message stamped with the current time.
func User(content string) Message {
	now := time.Now().UTC()
	return Message{Role: RoleUser, Content: content, Timestamp: &now}
}

// Assistant creates an assistant message stamped with the current time.
func Assistant(content string) Message {
	now := time.Now().UTC()
	return Message{Role: RoleAssistant, Content: content, Timestamp: &now}
}

// System creates a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Provider turns a message list into response text or fails with an opaque
// error. Implementations may block on network I/O and should honor ctx.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}
