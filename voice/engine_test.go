package voice

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"testing"

	"github.com/sweetpotato0/voicecart/message"
	"github.com/sweetpotato0/voicecart/provider"
)

// scriptedStream is one canned provider response: text deltas followed by a
// final message, or an error.
type scriptedStream struct {
	deltas    []string
	toolCalls []message.ToolCall
	err       error
}

type fakeProvider struct {
	scripts []scriptedStream
	calls   int
}

func (f *fakeProvider) Stream(ctx context.Context, req *provider.Request) iter.Seq2[*provider.Event, error] {
	script := f.scripts[f.calls]
	f.calls++
	return func(yield func(*provider.Event, error) bool) {
		final := message.NewMessage(message.RoleAssistant, "")
		for _, d := range script.deltas {
			final.AppendText(d)
			if !yield(&provider.Event{Type: provider.EventTextDelta, Text: d}, nil) {
				return
			}
		}
		if script.err != nil {
			yield(nil, script.err)
			return
		}
		final.ToolCalls = script.toolCalls
		yield(&provider.Event{Type: provider.EventDone, Message: final}, nil)
	}
}

type fakeInvoker struct {
	calls []string
	fail  error
}

func (f *fakeInvoker) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	f.calls = append(f.calls, name)
	if f.fail != nil {
		return "", f.fail
	}
	return fmt.Sprintf(`{"success":true,"data":"result of %s"}`, name), nil
}

func runEngine(t *testing.T, p *fakeProvider, inv *fakeInvoker) ([]SentenceChunk, []*message.Message, error) {
	t.Helper()
	engine := NewEngine(p, inv, EngineConfig{})
	var chunks []SentenceChunk
	appended, err := engine.Run(context.Background(), "turn-1",
		[]*message.Message{message.NewMessage(message.RoleUser, "hi")},
		nil,
		Hooks{OnSentence: func(c SentenceChunk) { chunks = append(chunks, c) }})
	return chunks, appended, err
}

func TestEngineSingleCallPerTurn(t *testing.T) {
	p := &fakeProvider{scripts: []scriptedStream{
		{deltas: []string{"Hello there. ", "How can I help?"}},
	}}
	chunks, appended, err := runEngine(t, p, &fakeInvoker{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.calls != 1 {
		t.Errorf("expected exactly 1 provider call, got %d", p.calls)
	}
	if len(appended) != 1 || appended[0].Role != message.RoleAssistant {
		t.Fatalf("unexpected appended messages: %+v", appended)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %+v", chunks)
	}
	if !chunks[len(chunks)-1].Terminal {
		t.Error("last chunk must be terminal")
	}
	for i, c := range chunks {
		if c.Seq != i {
			t.Errorf("chunk %d has seq %d, want gapless", i, c.Seq)
		}
	}
}

func TestEngineToolRoundIsOneTurn(t *testing.T) {
	p := &fakeProvider{scripts: []scriptedStream{
		{
			deltas: []string{"Let me check the catalog. "},
			toolCalls: []message.ToolCall{
				{ID: "call_1", Name: "search_products", Args: map[string]any{"query": "shoes"}},
			},
		},
		{deltas: []string{"I found two options for you."}},
	}}
	inv := &fakeInvoker{}

	chunks, appended, err := runEngine(t, p, inv)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.calls != 2 {
		t.Errorf("tool round should resume with one continuation, got %d calls", p.calls)
	}
	if len(inv.calls) != 1 || inv.calls[0] != "search_products" {
		t.Errorf("expected one search_products invocation, got %v", inv.calls)
	}

	// assistant w/ tool call, tool result, final assistant
	if len(appended) != 3 {
		t.Fatalf("expected 3 appended messages, got %d", len(appended))
	}
	if appended[1].Role != message.RoleTool || appended[1].ToolID != "call_1" {
		t.Errorf("tool result not threaded: %+v", appended[1])
	}
	if !strings.Contains(appended[1].Content, "result of search_products") {
		t.Errorf("tool result content missing: %q", appended[1].Content)
	}

	// sequence numbers stay gapless across the continuation boundary
	for i, c := range chunks {
		if c.Seq != i {
			t.Fatalf("chunk %d has seq %d", i, c.Seq)
		}
	}
	if !chunks[len(chunks)-1].Terminal {
		t.Error("last chunk must be terminal")
	}
}

func TestEngineToolFailureRecoveredLocally(t *testing.T) {
	p := &fakeProvider{scripts: []scriptedStream{
		{toolCalls: []message.ToolCall{
			{ID: "call_1", Name: "search_products", Args: map[string]any{}},
		}},
		{deltas: []string{"Sorry, I could not search just now."}},
	}}
	inv := &fakeInvoker{fail: errors.New("missing required parameter")}

	_, appended, err := runEngine(t, p, inv)
	if err != nil {
		t.Fatalf("tool failure must not abort the turn: %v", err)
	}
	if len(appended) != 3 {
		t.Fatalf("expected 3 appended messages, got %d", len(appended))
	}
	if !strings.Contains(appended[1].Content, "missing required parameter") {
		t.Errorf("error text should flow back to the model: %q", appended[1].Content)
	}
}

func TestEngineStreamErrorAbortsTurn(t *testing.T) {
	p := &fakeProvider{scripts: []scriptedStream{
		{deltas: []string{"Here is what "}, err: errors.New("connection reset")},
	}}

	chunks, _, err := runEngine(t, p, &fakeInvoker{})
	var serr *StreamError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StreamError, got %v", err)
	}
	for _, c := range chunks {
		if c.Terminal {
			t.Error("aborted turn must not emit a terminal chunk")
		}
	}
}
