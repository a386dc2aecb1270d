package voice

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/sweetpotato0/voicecart/errors"
	"github.com/sweetpotato0/voicecart/message"
	"github.com/sweetpotato0/voicecart/provider"
	"github.com/sweetpotato0/voicecart/session"
	"github.com/sweetpotato0/voicecart/tts"
)

type passthroughPrompts struct{}

func (passthroughPrompts) Build(history []*message.Message) []*message.Message {
	return history
}

func newTestCoordinator(p provider.Client, synth tts.Synthesizer, config CoordinatorConfig) *Coordinator {
	sess := session.New("sess-test")
	engine := NewEngine(p, &fakeInvoker{}, EngineConfig{})
	dispatcher := NewDispatcher(synth, DispatcherConfig{Timeout: time.Second})
	return NewCoordinator(sess, engine, dispatcher, passthroughPrompts{}, nil, nil, config)
}

func waitForState(t *testing.T, sess *session.Session, want session.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sess.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session never reached state %s", want)
}

func drainEvents(t *testing.T, c *Coordinator) []TurnEvent {
	t.Helper()
	var events []TurnEvent
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
		}
	}
}

// blockingProvider parks each stream until released, so tests can hold a
// turn open and observe queueing behavior.
type blockingProvider struct {
	mu        sync.Mutex
	calls     int
	active    int
	maxActive int
	release   chan struct{}
}

func (p *blockingProvider) Stream(ctx context.Context, req *provider.Request) iter.Seq2[*provider.Event, error] {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	p.mu.Unlock()

	return func(yield func(*provider.Event, error) bool) {
		defer func() {
			p.mu.Lock()
			p.active--
			p.mu.Unlock()
		}()

		select {
		case <-p.release:
		case <-ctx.Done():
			yield(nil, ctx.Err())
			return
		}

		text := fmt.Sprintf("This is response number %d.", call)
		final := message.NewMessage(message.RoleAssistant, text)
		if !yield(&provider.Event{Type: provider.EventTextDelta, Text: text}, nil) {
			return
		}
		yield(&provider.Event{Type: provider.EventDone, Message: final}, nil)
	}
}

func TestCoordinatorQueuesMidTurnAndBoundsQueue(t *testing.T) {
	p := &blockingProvider{release: make(chan struct{})}
	c := newTestCoordinator(p, &slowSynth{}, CoordinatorConfig{QueueSize: 1})

	if err := c.Submit("first utterance"); err != nil {
		t.Fatalf("Submit first: %v", err)
	}
	waitForState(t, c.Session(), session.StateTurnInProgress)

	if err := c.Submit("second utterance"); err != nil {
		t.Fatalf("second utterance should queue, got %v", err)
	}
	if err := c.Submit("third utterance"); !errors.Is(err, apperrors.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy on overflow, got %v", err)
	}

	p.release <- struct{}{}
	p.release <- struct{}{}

	// wait for both turns to finish before closing
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(c.Session().Messages()) >= 4 && c.Session().State() == session.StateIdle {
			break
		}
		time.Sleep(time.Millisecond)
	}
	c.Close()
	events := drainEvents(t, c)

	if p.maxActive != 1 {
		t.Errorf("provider ran %d streams concurrently; coordinator must serialize turns", p.maxActive)
	}
	if p.calls != 2 {
		t.Errorf("expected 2 turns, got %d provider calls", p.calls)
	}

	var completes int
	var texts []string
	for _, ev := range events {
		if ev.Type == EventTurnComplete {
			completes++
		}
		if ev.Type == EventTextChunk && ev.Sentence.Text != "" {
			texts = append(texts, ev.Sentence.Text)
		}
	}
	if completes != 2 {
		t.Errorf("expected 2 completed turns, got %d (events: %+v)", completes, events)
	}
	if len(texts) != 2 || !strings.Contains(texts[0], "number 1") || !strings.Contains(texts[1], "number 2") {
		t.Errorf("turns ran out of order: %v", texts)
	}
}

// failingProvider aborts every stream.
type failingProvider struct{}

func (failingProvider) Stream(ctx context.Context, req *provider.Request) iter.Seq2[*provider.Event, error] {
	return func(yield func(*provider.Event, error) bool) {
		yield(nil, errors.New("upstream connection reset"))
	}
}

func TestCoordinatorSpeaksFallbackOnStreamError(t *testing.T) {
	c := newTestCoordinator(failingProvider{}, &slowSynth{}, CoordinatorConfig{})

	if err := c.Submit("show me hoodies"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var sawError bool
	var fallbackAudio *AudioChunk
	timeout := time.After(3 * time.Second)
	for fallbackAudio == nil {
		select {
		case ev := <-c.Events():
			switch ev.Type {
			case EventTurnError:
				sawError = true
			case EventAudioChunk:
				fallbackAudio = ev.Audio
			}
		case <-timeout:
			t.Fatal("never received fallback audio")
		}
	}

	if !sawError {
		t.Error("turn.error event missing")
	}
	if fallbackAudio.Text != DefaultFallbackMessage || !fallbackAudio.Terminal {
		t.Errorf("unexpected fallback audio: %+v", fallbackAudio)
	}

	waitForState(t, c.Session(), session.StateIdle)
	msgs := c.Session().Messages()
	last := msgs[len(msgs)-1]
	if last.Role != message.RoleAssistant || last.Content != DefaultFallbackMessage {
		t.Errorf("fallback not recorded in transcript: %+v", last)
	}
	c.Close()
}

// disconnectProvider emits one sentence then hangs until the turn context
// is cancelled.
type disconnectProvider struct{}

func (disconnectProvider) Stream(ctx context.Context, req *provider.Request) iter.Seq2[*provider.Event, error] {
	return func(yield func(*provider.Event, error) bool) {
		if !yield(&provider.Event{Type: provider.EventTextDelta, Text: "Here is the first sentence. "}, nil) {
			return
		}
		<-ctx.Done()
		yield(nil, ctx.Err())
	}
}

func TestCoordinatorDisconnectStopsEmission(t *testing.T) {
	c := newTestCoordinator(disconnectProvider{}, &slowSynth{}, CoordinatorConfig{})

	if err := c.Submit("show me hoodies"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// wait for the first audio chunk, then disconnect
	timeout := time.After(3 * time.Second)
	var gotAudio bool
	for !gotAudio {
		select {
		case ev := <-c.Events():
			if ev.Type == EventAudioChunk {
				gotAudio = true
			}
		case <-timeout:
			t.Fatal("never received first audio chunk")
		}
	}
	c.Close()

	events := drainEvents(t, c)
	for _, ev := range events {
		if ev.Type == EventTurnComplete {
			t.Error("cancelled turn must not complete")
		}
		if ev.Type == EventAudioChunk && ev.Audio.Terminal {
			t.Error("no terminal audio may follow a disconnect")
		}
	}
}

func TestCoordinatorInterruptReturnsToIdle(t *testing.T) {
	p := &blockingProvider{release: make(chan struct{})}
	c := newTestCoordinator(p, &slowSynth{}, CoordinatorConfig{})

	if err := c.Submit("first utterance"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForState(t, c.Session(), session.StateTurnInProgress)

	c.Interrupt()
	waitForState(t, c.Session(), session.StateIdle)

	// the session accepts new turns after an interrupt
	if err := c.Submit("try again"); err != nil {
		t.Fatalf("Submit after interrupt: %v", err)
	}
	waitForState(t, c.Session(), session.StateTurnInProgress)
	p.release <- struct{}{}
	waitForState(t, c.Session(), session.StateIdle)
	c.Close()
}

func TestCoordinatorRejectsAfterClose(t *testing.T) {
	c := newTestCoordinator(&blockingProvider{release: make(chan struct{})}, &slowSynth{}, CoordinatorConfig{})
	c.Close()
	if err := c.Submit("hello there"); !errors.Is(err, apperrors.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}
