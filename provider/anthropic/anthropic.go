package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/sweetpotato0/voicecart/message"
	"github.com/sweetpotato0/voicecart/provider"
)

// Config holds Claude provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default Claude configuration
func DefaultConfig() *Config {
	return &Config{
		Model:       "claude-3-5-haiku-latest",
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

// Provider implements the provider.Client interface for Claude
type Provider struct {
	config *Config
	client anthropic.Client
}

// New creates a new Claude provider using the official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Model == "" {
		config.Model = "claude-3-5-haiku-latest"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		config: config,
		client: anthropic.NewClient(options...),
	}
}

// Stream implements provider.Client against the Messages streaming API.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) iter.Seq2[*provider.Event, error] {
	return func(yield func(*provider.Event, error) bool) {
		if req == nil {
			yield(nil, fmt.Errorf("stream request cannot be nil"))
			return
		}

		params, err := p.buildParams(req)
		if err != nil {
			yield(nil, err)
			return
		}

		stream := p.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		acc := anthropic.Message{}
		finalMsg := message.NewMessage(message.RoleAssistant, "")

		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				yield(nil, fmt.Errorf("claude stream accumulate: %w", err))
				return
			}

			if event.Type == "content_block_delta" {
				delta := event.AsContentBlockDelta()
				if delta.Delta.Type == "text_delta" && delta.Delta.Text != "" {
					finalMsg.AppendText(delta.Delta.Text)
					if !yield(&provider.Event{Type: provider.EventTextDelta, Text: delta.Delta.Text}, nil) {
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			yield(nil, fmt.Errorf("claude streaming error: %w", err))
			return
		}

		var toolCalls []message.ToolCall
		for _, block := range acc.Content {
			if block.Type != "tool_use" {
				continue
			}
			call := message.ToolCall{
				ID:      block.ID,
				Name:    block.Name,
				RawArgs: string(block.Input),
			}
			var args map[string]any
			if err := json.Unmarshal(block.Input, &args); err == nil {
				call.Args = args
			} else {
				call.Args = make(map[string]any)
			}
			toolCalls = append(toolCalls, call)
		}
		if len(toolCalls) > 0 {
			finalMsg.ToolCalls = toolCalls
		}

		yield(&provider.Event{Type: provider.EventDone, Message: finalMsg}, nil)
	}
}

func (p *Provider) buildParams(req *provider.Request) (anthropic.MessageNewParams, error) {
	// Claude keeps the system prompt out of the message list
	var systemPrompts []string
	conversationMessages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case message.RoleSystem:
			systemPrompts = append(systemPrompts, msg.Content)
		case message.RoleUser:
			conversationMessages = append(conversationMessages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case message.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input := any(tc.Args)
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
			conversationMessages = append(conversationMessages, anthropic.NewAssistantMessage(blocks...))
		case message.RoleTool:
			// Tool results travel back as user-role tool_result blocks
			conversationMessages = append(conversationMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolID, msg.Text(), false)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		Messages:  conversationMessages,
		MaxTokens: p.config.MaxTokens,
	}

	if len(systemPrompts) > 0 {
		systemText := ""
		for i, sp := range systemPrompts {
			if i > 0 {
				systemText += "\n"
			}
			systemText += sp
		}
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}

	if p.config.Temperature > 0 {
		params.Temperature = param.NewOpt(p.config.Temperature)
	}

	if len(req.Tools) > 0 {
		claudeTools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			toolParam, err := convertTool(t)
			if err != nil {
				return anthropic.MessageNewParams{}, err
			}
			claudeTools = append(claudeTools, anthropic.ToolUnionParam{OfTool: toolParam})
		}
		params.Tools = claudeTools
	}

	return params, nil
}

// convertTool maps an OpenAI-shaped function schema onto Claude's tool shape.
func convertTool(schema map[string]any) (*anthropic.ToolParam, error) {
	fn, ok := schema["function"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tool schema missing function block")
	}

	toolJSON, err := json.Marshal(map[string]any{
		"name":         fn["name"],
		"description":  fn["description"],
		"input_schema": fn["parameters"],
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool: %w", err)
	}

	var toolParam anthropic.ToolParam
	if err := json.Unmarshal(toolJSON, &toolParam); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool param: %w", err)
	}
	return &toolParam, nil
}
