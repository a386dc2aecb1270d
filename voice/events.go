// Package voice implements the turn pipeline: streaming generation, sentence
// segmentation, concurrent speech synthesis with ordered emission, and
// per-session turn coordination.
package voice

import (
	"context"
	"fmt"
)

// SentenceChunk is one speakable unit of assistant text. Seq numbers are
// gapless and monotonically increasing within a turn, starting at 0.
type SentenceChunk struct {
	Seq      int    `json:"seq"`
	Text     string `json:"text"`
	Terminal bool   `json:"terminal"`
}

// AudioChunk is the synthesized counterpart of a SentenceChunk. Skipped is
// set when synthesis failed after retry; the text still reached the client.
type AudioChunk struct {
	Seq        int    `json:"seq"`
	Text       string `json:"text"`
	Data       []byte `json:"data,omitempty"`
	Format     string `json:"format,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	Terminal   bool   `json:"terminal"`
}

// TurnEventType tags events on a session's outbound stream.
type TurnEventType string

const (
	EventTurnStarted  TurnEventType = "turn.started"
	EventTextChunk    TurnEventType = "text.chunk"
	EventAudioChunk   TurnEventType = "audio.chunk"
	EventToolStarted  TurnEventType = "tool.started"
	EventToolFinished TurnEventType = "tool.finished"
	EventTurnComplete TurnEventType = "turn.complete"
	EventTurnError    TurnEventType = "turn.error"
)

// TurnEvent is one element of a session's event stream.
type TurnEvent struct {
	Type     TurnEventType  `json:"type"`
	TurnID   string         `json:"turn_id"`
	Sentence *SentenceChunk `json:"sentence,omitempty"`
	Audio    *AudioChunk    `json:"audio,omitempty"`
	ToolName string         `json:"tool_name,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// StreamError marks a provider stream failure that aborts the turn. The
// coordinator substitutes the fallback spoken apology when it sees one.
type StreamError struct {
	TurnID string
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("turn %s: provider stream failed: %v", e.TurnID, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// ToolInvoker executes a named tool with decoded arguments. tool.Registry
// satisfies this.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
}
