package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/sweetpotato0/voicecart/errors"
	"github.com/sweetpotato0/voicecart/message"
	"github.com/sweetpotato0/voicecart/pkg/logging"
	"github.com/sweetpotato0/voicecart/pkg/telemetry"
	"github.com/sweetpotato0/voicecart/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultFallbackMessage is spoken when the provider stream fails mid-turn.
const DefaultFallbackMessage = "I'm sorry, I'm having trouble responding right now. Could you say that again?"

// CoordinatorConfig tunes per-session turn handling.
type CoordinatorConfig struct {
	// TurnTimeout bounds one whole turn: generation, tools and synthesis.
	TurnTimeout time.Duration
	// QueueSize bounds utterances waiting behind an in-progress turn.
	// Overflow is rejected with ErrSessionBusy.
	QueueSize int
	// EventBuffer sizes the outbound event channel.
	EventBuffer int
	// FallbackMessage is spoken when the stream aborts.
	FallbackMessage string
}

// DefaultCoordinatorConfig returns production coordination settings.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		TurnTimeout:     60 * time.Second,
		QueueSize:       4,
		EventBuffer:     256,
		FallbackMessage: DefaultFallbackMessage,
	}
}

// PromptBuilder assembles the provider message list from session history
// plus the current utterance. prompt.Builder satisfies this.
type PromptBuilder interface {
	Build(history []*message.Message) []*message.Message
}

// Persister saves a session transcript after each turn. session.Manager
// satisfies this.
type Persister interface {
	Persist(ctx context.Context, sess *session.Session) error
}

// Coordinator owns one session's turn-taking: at most one turn runs at a
// time, later utterances queue FIFO, and every event of a turn flows out the
// Events channel in order.
type Coordinator struct {
	sess       *session.Session
	engine     *Engine
	dispatcher *Dispatcher
	prompts    PromptBuilder
	persister  Persister
	schemas    []map[string]any
	config     CoordinatorConfig

	ctx         context.Context
	cancelAll   context.CancelFunc
	events      chan TurnEvent
	queue       chan string
	mu          sync.Mutex
	cancelTurn  context.CancelFunc
	closed      bool
	turnCounter int

	logger *slog.Logger
	tracer trace.Tracer
}

// NewCoordinator creates and starts a coordinator for one session.
func NewCoordinator(sess *session.Session, engine *Engine, dispatcher *Dispatcher, prompts PromptBuilder, persister Persister, schemas []map[string]any, config CoordinatorConfig) *Coordinator {
	defaults := DefaultCoordinatorConfig()
	if config.TurnTimeout <= 0 {
		config.TurnTimeout = defaults.TurnTimeout
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = defaults.EventBuffer
	}
	if config.FallbackMessage == "" {
		config.FallbackMessage = defaults.FallbackMessage
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		sess:       sess,
		engine:     engine,
		dispatcher: dispatcher,
		prompts:    prompts,
		persister:  persister,
		schemas:    schemas,
		config:     config,
		ctx:        ctx,
		cancelAll:  cancel,
		events:     make(chan TurnEvent, config.EventBuffer),
		queue:      make(chan string, config.QueueSize),
		logger:     logging.WithComponent("coordinator").With("session_id", sess.ID()),
		tracer:     telemetry.Tracer("voicecart/voice"),
	}
	go c.loop()
	return c
}

// Events returns the session's outbound event stream. It closes when the
// coordinator shuts down.
func (c *Coordinator) Events() <-chan TurnEvent {
	return c.events
}

// Session returns the coordinated session.
func (c *Coordinator) Session() *session.Session {
	return c.sess
}

// Submit hands a user utterance to the session. If a turn is in progress
// the utterance queues FIFO behind it; a full queue returns ErrSessionBusy.
func (c *Coordinator) Submit(utterance string) error {
	if utterance == "" {
		return fmt.Errorf("utterance cannot be empty: %w", apperrors.ErrInvalidInput)
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return apperrors.ErrSessionClosed
	}

	select {
	case c.queue <- utterance:
		return nil
	default:
		c.logger.Warn("turn queue full, rejecting utterance")
		return apperrors.ErrSessionBusy
	}
}

// Interrupt cancels the in-flight turn, if any. Queued utterances survive.
func (c *Coordinator) Interrupt() {
	c.mu.Lock()
	cancel := c.cancelTurn
	c.mu.Unlock()
	if cancel != nil {
		c.logger.Info("turn interrupted")
		cancel()
	}
}

// Close cancels everything and stops the event stream. Used on client
// disconnect and session teardown.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancelAll()
}

func (c *Coordinator) loop() {
	defer close(c.events)
	for {
		select {
		case <-c.ctx.Done():
			return
		case utterance := <-c.queue:
			c.runTurn(utterance)
		}
	}
}

// runTurn executes one complete turn: prompt assembly, streaming generation
// with inline tools, concurrent synthesis with ordered emission, transcript
// persistence.
func (c *Coordinator) runTurn(utterance string) {
	c.mu.Lock()
	c.turnCounter++
	turnID := fmt.Sprintf("%s_turn_%d", c.sess.ID(), c.turnCounter)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, c.config.TurnTimeout)
	c.setTurnCancel(cancel)
	defer func() {
		c.setTurnCancel(nil)
		cancel()
	}()

	ctx, span := c.tracer.Start(ctx, "coordinator.turn")
	span.SetAttributes(attribute.String("turn.id", turnID))
	defer span.End()

	c.sess.SetState(session.StateTurnInProgress)
	defer c.sess.SetState(session.StateIdle)

	c.logger.Info("turn started", "turn_id", turnID)
	c.emit(TurnEvent{Type: EventTurnStarted, TurnID: turnID})

	userMsg := message.NewMessage(message.RoleUser, utterance)
	history := append(c.sess.Messages(), userMsg)
	msgs := c.prompts.Build(history)

	sentences := make(chan SentenceChunk, 64)
	audioDone := make(chan error, 1)
	go func() {
		audioDone <- c.dispatcher.Run(ctx, sentences, func(audio AudioChunk) {
			c.emit(TurnEvent{Type: EventAudioChunk, TurnID: turnID, Audio: &audio})
		})
	}()

	sentCount := 0
	hooks := Hooks{
		OnSentence: func(chunk SentenceChunk) {
			sentCount = chunk.Seq + 1
			c.emit(TurnEvent{Type: EventTextChunk, TurnID: turnID, Sentence: &chunk})
			select {
			case sentences <- chunk:
			case <-ctx.Done():
			}
		},
		OnToolStart: func(name string) {
			c.emit(TurnEvent{Type: EventToolStarted, TurnID: turnID, ToolName: name})
		},
		OnToolEnd: func(name string, err error) {
			ev := TurnEvent{Type: EventToolFinished, TurnID: turnID, ToolName: name}
			if err != nil {
				ev.Error = err.Error()
			}
			c.emit(ev)
		},
	}

	appended, runErr := c.engine.Run(ctx, turnID, msgs, c.schemas, hooks)

	if runErr != nil && ctx.Err() == nil {
		// stream aborted: speak the fallback instead of going silent
		c.logger.Error("turn aborted by stream failure", "turn_id", turnID, "error", runErr)
		c.emit(TurnEvent{Type: EventTurnError, TurnID: turnID, Error: runErr.Error()})

		fallback := SentenceChunk{Seq: sentCount, Text: c.config.FallbackMessage, Terminal: true}
		c.emit(TurnEvent{Type: EventTextChunk, TurnID: turnID, Sentence: &fallback})
		select {
		case sentences <- fallback:
		case <-ctx.Done():
		}
		appended = append(appended, message.NewMessage(message.RoleAssistant, c.config.FallbackMessage))
	}

	close(sentences)
	if err := <-audioDone; err != nil && ctx.Err() == nil {
		c.logger.Error("dispatcher failed", "turn_id", turnID, "error", err)
	}

	if ctx.Err() != nil {
		// interrupted, disconnected or timed out: keep what the user said,
		// drop the half-finished assistant output, emit nothing further
		c.sess.Append(userMsg)
		c.persist()
		c.logger.Info("turn cancelled", "turn_id", turnID, "cause", ctx.Err())
		return
	}

	c.sess.Append(userMsg)
	c.sess.Append(appended...)
	c.persist()

	if runErr == nil {
		c.logger.Info("turn complete", "turn_id", turnID, "sentences", sentCount)
		c.emit(TurnEvent{Type: EventTurnComplete, TurnID: turnID})
	}
}

func (c *Coordinator) persist() {
	if c.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.persister.Persist(ctx, c.sess); err != nil {
		c.logger.Error("transcript persistence failed", "error", err)
	}
}

func (c *Coordinator) setTurnCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancelTurn = cancel
	c.mu.Unlock()
}

func (c *Coordinator) emit(event TurnEvent) {
	select {
	case c.events <- event:
	case <-c.ctx.Done():
	}
}
