// Package provider defines the streaming contract the voice pipeline consumes
// from LLM backends.
package provider

import (
	"context"
	"iter"

	"github.com/sweetpotato0/voicecart/message"
)

// EventType tags stream events.
type EventType string

const (
	// EventTextDelta carries an incremental piece of assistant text.
	EventTextDelta EventType = "text_delta"
	// EventDone carries the final accumulated assistant message; its
	// ToolCalls are populated when the model requested tools.
	EventDone EventType = "done"
)

// Event is one element of a provider token stream.
type Event struct {
	Type    EventType
	Text    string
	Message *message.Message
}

// Request bundles inputs for a streaming LLM invocation.
type Request struct {
	Messages []*message.Message
	Tools    []map[string]any
}

// Client is a streaming chat-completion backend with function calling.
// Implementations yield zero or more EventTextDelta events followed by
// exactly one EventDone, or an error that terminates the sequence.
type Client interface {
	Stream(ctx context.Context, req *Request) iter.Seq2[*Event, error]
}
