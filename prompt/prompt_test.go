package prompt

import (
	"strings"
	"testing"

	"github.com/sweetpotato0/voicecart/message"
)

// wordCounter counts whitespace-separated words so budgets are predictable.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func TestBuildPrependsSystemPrompt(t *testing.T) {
	b := NewBuilder(Config{StoreName: "Sunrise Outfitters"}).WithCounter(wordCounter{})

	msgs := b.Build([]*message.Message{
		message.NewMessage(message.RoleUser, "show me hoodies"),
	})

	if len(msgs) != 2 {
		t.Fatalf("expected system + user, got %d messages", len(msgs))
	}
	if msgs[0].Role != message.RoleSystem {
		t.Fatalf("first message must be the system prompt, got %s", msgs[0].Role)
	}
	if !strings.Contains(msgs[0].Content, "Sunrise Outfitters") {
		t.Error("store name missing from system prompt")
	}
	if msgs[1].Content != "show me hoodies" {
		t.Errorf("user utterance lost: %+v", msgs[1])
	}
}

func TestBuildTrimsOldestFirst(t *testing.T) {
	b := NewBuilder(Config{MaxHistoryTokens: 200}).WithCounter(wordCounter{})

	long := strings.Repeat("word ", 60)
	history := []*message.Message{
		message.NewMessage(message.RoleUser, long),
		message.NewMessage(message.RoleAssistant, long),
		message.NewMessage(message.RoleUser, "latest question"),
	}

	msgs := b.Build(history)

	last := msgs[len(msgs)-1]
	if last.Content != "latest question" {
		t.Fatal("current utterance must never be trimmed")
	}
	if len(msgs) >= len(history)+1 {
		t.Errorf("expected oldest history dropped, got %d messages", len(msgs))
	}
}

func TestBuildNeverOrphansToolResult(t *testing.T) {
	b := NewBuilder(Config{MaxHistoryTokens: 330}).WithCounter(wordCounter{})

	filler := strings.Repeat("word ", 400)
	toolResult := message.NewToolResponseMessage("call_1", `{"success":true}`)
	history := []*message.Message{
		message.NewMessage(message.RoleUser, filler),
		toolResult,
		message.NewMessage(message.RoleAssistant, "Found two hoodies."),
		message.NewMessage(message.RoleUser, "what about the first one?"),
	}

	msgs := b.Build(history)

	for i, m := range msgs {
		if m.Role != message.RoleTool {
			continue
		}
		if i == 1 {
			t.Error("history must not start with an orphaned tool result")
		}
	}
}
