// Package prompt assembles the message list for each turn: system prompt
// first, then as much recent history as fits the token budget.
package prompt

import (
	"fmt"
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sweetpotato0/voicecart/message"
	"github.com/sweetpotato0/voicecart/pkg/logging"
)

const systemTemplate = `You are %s, a helpful voice sales assistant for %s.
You help customers find products, answer questions about inventory, and provide information about items in the catalog.

Your capabilities include:
- Searching for products by name, category or price range
- Providing detailed product information
- Checking inventory availability

Be conversational, helpful, and guide customers to find what they're looking for.
If you're not sure about something, ask clarifying questions.

Your answers are spoken aloud. Keep responses short, use complete sentences, and never use markdown, lists or emoji. Include prices and key details when presenting products.`

// Config tunes prompt assembly.
type Config struct {
	AssistantName string
	StoreName     string
	// MaxHistoryTokens bounds the token count of the assembled history,
	// system prompt included. Oldest turns are dropped first.
	MaxHistoryTokens int
	// Encoding names the tiktoken encoding used for counting.
	Encoding string
}

// DefaultConfig returns production prompt settings.
func DefaultConfig() Config {
	return Config{
		AssistantName:    "Vera",
		StoreName:        "our online store",
		MaxHistoryTokens: 6000,
		Encoding:         "cl100k_base",
	}
}

// TokenCounter counts tokens in a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// tiktokenCounter counts with a real BPE encoding.
type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// estimateCounter approximates tokens as len/4, the usual rule of thumb for
// English text. Used when the BPE vocabulary is unavailable (tiktoken-go
// fetches it over the network on first use).
type estimateCounter struct{}

func (estimateCounter) Count(text string) int {
	return len(text)/4 + 1
}

// NewTokenCounter returns a tiktoken-backed counter, degrading to the
// estimator when the encoding cannot be loaded.
func NewTokenCounter(encoding string) TokenCounter {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logging.WithComponent("prompt").Warn("tiktoken unavailable, estimating tokens", "error", err)
		return estimateCounter{}
	}
	return &tiktokenCounter{enc: enc}
}

// Builder produces the per-turn message list.
type Builder struct {
	config  Config
	system  string
	counter TokenCounter
	logger  *slog.Logger
}

// NewBuilder creates a prompt builder.
func NewBuilder(config Config) *Builder {
	defaults := DefaultConfig()
	if config.AssistantName == "" {
		config.AssistantName = defaults.AssistantName
	}
	if config.StoreName == "" {
		config.StoreName = defaults.StoreName
	}
	if config.MaxHistoryTokens <= 0 {
		config.MaxHistoryTokens = defaults.MaxHistoryTokens
	}
	if config.Encoding == "" {
		config.Encoding = defaults.Encoding
	}
	return &Builder{
		config:  config,
		system:  fmt.Sprintf(systemTemplate, config.AssistantName, config.StoreName),
		counter: NewTokenCounter(config.Encoding),
		logger:  logging.WithComponent("prompt"),
	}
}

// WithCounter replaces the token counter; tests use this to stay offline.
func (b *Builder) WithCounter(counter TokenCounter) *Builder {
	b.counter = counter
	return b
}

// System returns the rendered system prompt.
func (b *Builder) System() string {
	return b.system
}

// Build assembles system prompt plus trimmed history. Trimming drops oldest
// messages first but never the current user utterance, and never orphans a
// tool-result message from the assistant tool call that produced it.
func (b *Builder) Build(history []*message.Message) []*message.Message {
	budget := b.config.MaxHistoryTokens - b.counter.Count(b.system)

	start := 0
	total := 0
	// walk backwards accumulating until the budget is spent
	for i := len(history) - 1; i >= 0; i-- {
		cost := b.counter.Count(history[i].Content) + 4
		if total+cost > budget && i < len(history)-1 {
			start = i + 1
			break
		}
		total += cost
	}

	// never start on a tool result whose call was trimmed away
	for start < len(history) && history[start].Role == message.RoleTool {
		start++
	}

	if start > 0 {
		b.logger.Debug("history trimmed", "dropped", start, "kept", len(history)-start)
	}

	msgs := make([]*message.Message, 0, len(history)-start+1)
	msgs = append(msgs, message.NewMessage(message.RoleSystem, b.system))
	msgs = append(msgs, history[start:]...)
	return msgs
}
