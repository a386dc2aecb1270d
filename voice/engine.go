package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/voicecart/message"
	"github.com/sweetpotato0/voicecart/pkg/logging"
	"github.com/sweetpotato0/voicecart/pkg/telemetry"
	"github.com/sweetpotato0/voicecart/provider"
	"github.com/sweetpotato0/voicecart/tool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxToolRounds bounds tool-call-and-resume continuations inside one turn so
// a misbehaving model cannot loop forever.
const maxToolRounds = 5

// EngineConfig tunes the streaming response engine.
type EngineConfig struct {
	Segmenter     SegmenterConfig
	MaxToolRounds int
}

// Hooks receive pipeline events as the engine produces them. Nil hooks are
// skipped.
type Hooks struct {
	OnSentence  func(SentenceChunk)
	OnToolStart func(name string)
	OnToolEnd   func(name string, err error)
}

// Engine drives one streaming LLM call per turn: it forwards text deltas
// through the segmenter, executes tool calls inline, and resumes generation
// with the tool results as continuations of the same turn.
type Engine struct {
	provider provider.Client
	tools    ToolInvoker
	config   EngineConfig
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewEngine creates a streaming response engine.
func NewEngine(client provider.Client, tools ToolInvoker, config EngineConfig) *Engine {
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = maxToolRounds
	}
	return &Engine{
		provider: client,
		tools:    tools,
		config:   config,
		logger:   logging.WithComponent("engine"),
		tracer:   telemetry.Tracer("voicecart/voice"),
	}
}

// Run executes one turn against the given history. It returns the messages
// the turn appended (assistant messages and tool results, in order) so the
// caller can extend the session transcript. Sentence chunks flow through
// hooks.OnSentence with gapless sequence numbers; the last chunk is
// terminal. A provider failure is returned as a *StreamError and the turn's
// partial output ends with no terminal chunk.
func (e *Engine) Run(ctx context.Context, turnID string, history []*message.Message, toolSchemas []map[string]any, hooks Hooks) ([]*message.Message, error) {
	ctx, span := e.tracer.Start(ctx, "engine.run")
	span.SetAttributes(attribute.String("turn.id", turnID))
	var runErr error
	defer func() { telemetry.End(span, runErr) }()

	segmenter := NewSegmenter(e.config.Segmenter)
	working := append([]*message.Message{}, history...)
	var appended []*message.Message

	for round := 0; ; round++ {
		final, err := e.streamOnce(ctx, working, toolSchemas, segmenter, hooks)
		if err != nil {
			runErr = &StreamError{TurnID: turnID, Err: err}
			return appended, runErr
		}

		working = append(working, final)
		appended = append(appended, final)

		if len(final.ToolCalls) == 0 {
			break
		}
		if round >= e.config.MaxToolRounds {
			e.logger.Warn("tool round limit reached", "turn_id", turnID, "rounds", round)
			break
		}

		for _, call := range final.ToolCalls {
			result := e.executeTool(ctx, turnID, call, hooks)
			working = append(working, result)
			appended = append(appended, result)
		}
	}

	if hooks.OnSentence != nil {
		hooks.OnSentence(segmenter.Flush())
	}
	return appended, nil
}

// streamOnce consumes a single provider stream, pushing text deltas through
// the segmenter and returning the accumulated final message.
func (e *Engine) streamOnce(ctx context.Context, msgs []*message.Message, toolSchemas []map[string]any, segmenter *Segmenter, hooks Hooks) (*message.Message, error) {
	var final *message.Message
	for event, err := range e.provider.Stream(ctx, &provider.Request{Messages: msgs, Tools: toolSchemas}) {
		if err != nil {
			return nil, err
		}
		switch event.Type {
		case provider.EventTextDelta:
			if hooks.OnSentence == nil {
				continue
			}
			for _, chunk := range segmenter.Push(event.Text) {
				hooks.OnSentence(chunk)
			}
		case provider.EventDone:
			final = event.Message
		}
	}
	if final == nil {
		return nil, fmt.Errorf("provider stream ended without a final message")
	}
	return final, nil
}

// executeTool runs one tool call and packages the outcome as a tool-result
// message. Validation and execution failures are recovered locally: the
// error text goes back to the model instead of aborting the turn.
func (e *Engine) executeTool(ctx context.Context, turnID string, call message.ToolCall, hooks Hooks) *message.Message {
	ctx, span := e.tracer.Start(ctx, "engine.tool")
	span.SetAttributes(
		attribute.String("turn.id", turnID),
		attribute.String("tool.name", call.Name),
	)

	if hooks.OnToolStart != nil {
		hooks.OnToolStart(call.Name)
	}

	result, err := e.tools.Invoke(ctx, call.Name, call.Args)
	telemetry.End(span, err)
	if hooks.OnToolEnd != nil {
		hooks.OnToolEnd(call.Name, err)
	}

	if err != nil {
		var verr *tool.ValidationError
		if errors.As(err, &verr) {
			e.logger.Warn("tool arguments rejected", "turn_id", turnID, "tool", call.Name, "reason", verr.Reason)
		} else {
			e.logger.Error("tool execution failed", "turn_id", turnID, "tool", call.Name, "error", err)
		}
		result = toolErrorResult(err)
	} else {
		e.logger.Info("tool executed", "turn_id", turnID, "tool", call.Name)
	}

	msg := message.NewToolResponseMessage(call.ID, result)
	msg.Metadata["tool_name"] = call.Name
	return msg
}

func toolErrorResult(err error) string {
	payload, merr := json.Marshal(map[string]any{"success": false, "error": err.Error()})
	if merr != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(payload)
}
