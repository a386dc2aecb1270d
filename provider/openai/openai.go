package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/sweetpotato0/voicecart/message"
	"github.com/sweetpotato0/voicecart/provider"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig() *Config {
	return &Config{
		Model:       "gpt-4o-mini",
		MaxTokens:   2000,
		Temperature: 0.7,
	}
}

// Provider implements the provider.Client interface for OpenAI
type Provider struct {
	config *Config
	client openai.Client
}

// New creates a new OpenAI provider using the official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	client := openai.NewClient(options...)

	return &Provider{
		config: config,
		client: client,
	}
}

// Stream implements provider.Client with token streaming and tool-call delta
// accumulation.
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

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		finalMsg := message.NewMessage(message.RoleAssistant, "")
		var accumulated []message.ToolCall

		for stream.Next() {
			event := stream.Current()
			if len(event.Choices) == 0 {
				continue
			}
			choice := event.Choices[0]

			if choice.Delta.Content != "" {
				finalMsg.AppendText(choice.Delta.Content)
				if !yield(&provider.Event{Type: provider.EventTextDelta, Text: choice.Delta.Content}, nil) {
					return
				}
			}

			for _, tc := range choice.Delta.ToolCalls {
				idx := int(tc.Index)
				for len(accumulated) <= idx {
					accumulated = append(accumulated, message.ToolCall{})
				}
				if tc.ID != "" {
					accumulated[idx].ID = tc.ID
				}
				if tc.Function.Name != "" {
					accumulated[idx].Name = tc.Function.Name
				}
				// Argument JSON arrives in fragments; it only parses
				// once the stream says the call is complete.
				accumulated[idx].RawArgs += tc.Function.Arguments
			}
		}

		if err := stream.Err(); err != nil {
			yield(nil, fmt.Errorf("openai streaming error: %w", err))
			return
		}

		for i := range accumulated {
			if accumulated[i].RawArgs != "" {
				var args map[string]any
				if err := json.Unmarshal([]byte(accumulated[i].RawArgs), &args); err == nil {
					accumulated[i].Args = args
				}
			}
			if accumulated[i].Args == nil {
				accumulated[i].Args = make(map[string]any)
			}
		}
		if len(accumulated) > 0 {
			finalMsg.ToolCalls = accumulated
		}

		yield(&provider.Event{Type: provider.EventDone, Message: finalMsg}, nil)
	}
}

func (p *Provider) buildParams(req *provider.Request) (openai.ChatCompletionNewParams, error) {
	openAIMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case message.RoleSystem:
			openAIMessages = append(openAIMessages, openai.SystemMessage(msg.Text()))
		case message.RoleUser:
			openAIMessages = append(openAIMessages, openai.UserMessage(msg.Text()))
		case message.RoleAssistant:
			assistantMsg := openai.AssistantMessage(msg.Text())
			if len(msg.ToolCalls) > 0 {
				toolCalls, err := encodeToolCalls(msg.ToolCalls)
				if err != nil {
					return openai.ChatCompletionNewParams{}, fmt.Errorf("failed to encode tool calls: %w", err)
				}
				if assistantMsg.OfAssistant != nil {
					assistantMsg.OfAssistant.ToolCalls = toolCalls
				}
			}
			openAIMessages = append(openAIMessages, assistantMsg)
		case message.RoleTool:
			openAIMessages = append(openAIMessages, openai.ToolMessage(msg.Text(), msg.ToolID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: openAIMessages,
		Model:    openai.ChatModel(p.config.Model),
	}
	if p.config.Temperature > 0 {
		params.Temperature = param.NewOpt(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(p.config.MaxTokens)
	}

	if len(req.Tools) > 0 {
		openAITools := make([]openai.ChatCompletionToolUnionParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			toolJSON, err := json.Marshal(tool)
			if err != nil {
				return openai.ChatCompletionNewParams{}, fmt.Errorf("failed to marshal tool: %w", err)
			}

			var toolParam openai.ChatCompletionFunctionToolParam
			if err := json.Unmarshal(toolJSON, &toolParam); err != nil {
				return openai.ChatCompletionNewParams{}, fmt.Errorf("failed to unmarshal tool param: %w", err)
			}
			openAITools = append(openAITools, openai.ChatCompletionToolUnionParam{OfFunction: &toolParam})
		}
		params.Tools = openAITools
	}

	return params, nil
}

func encodeToolCalls(calls []message.ToolCall) ([]openai.ChatCompletionMessageToolCallUnionParam, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	params := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(calls))
	for _, tc := range calls {
		raw := tc.RawArgs
		if raw == "" {
			args := tc.Args
			if args == nil {
				args = make(map[string]any)
			}
			encoded, err := json.Marshal(args)
			if err != nil {
				return nil, err
			}
			raw = string(encoded)
		}
		params = append(params, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: raw,
				},
			},
		})
	}
	return params, nil
}
