// Package gemini talks to the Google Gemini generateContent API over plain
// HTTP. The official SDK lags the streaming surface, so the wire format is
// implemented directly.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/sweetpotato0/voicecart/message"
	"github.com/sweetpotato0/voicecart/provider"
)

const geminiAPIURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig() *Config {
	return &Config{
		Model:       "gemini-2.0-flash",
		MaxTokens:   2048,
		Temperature: 0.7,
		Timeout:     60 * time.Second,
	}
}

// Provider implements the provider.Client interface for Google Gemini
type Provider struct {
	config *Config
	client *http.Client
}

// New creates a new Gemini provider
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if config.BaseURL == "" {
		config.BaseURL = geminiAPIURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDeclaration struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Tools             []struct {
		FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
	} `json:"tools,omitempty"`
	GenerationConfig struct {
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
		Temperature     float32 `json:"temperature,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *geminiError `json:"error,omitempty"`
}

type geminiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Stream implements provider.Client via the streamGenerateContent SSE
// endpoint. Each SSE data line is a partial geminiResponse.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) iter.Seq2[*provider.Event, error] {
	return func(yield func(*provider.Event, error) bool) {
		if p.config.APIKey == "" {
			yield(nil, fmt.Errorf("gemini API key not configured"))
			return
		}
		if req == nil {
			yield(nil, fmt.Errorf("stream request cannot be nil"))
			return
		}

		reqBody, err := json.Marshal(p.buildRequest(req))
		if err != nil {
			yield(nil, fmt.Errorf("failed to marshal request: %w", err))
			return
		}

		url := fmt.Sprintf("%s/%s:streamGenerateContent?alt=sse&key=%s",
			p.config.BaseURL, p.config.Model, p.config.APIKey)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			yield(nil, fmt.Errorf("failed to create request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		httpResp, err := p.client.Do(httpReq)
		if err != nil {
			yield(nil, fmt.Errorf("failed to send request: %w", err))
			return
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
			yield(nil, fmt.Errorf("gemini API error (status %d): %s", httpResp.StatusCode, string(respBody)))
			return
		}

		finalMsg := message.NewMessage(message.RoleAssistant, "")
		var toolCalls []message.ToolCall

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				continue
			}

			var chunk geminiResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				yield(nil, fmt.Errorf("failed to unmarshal stream chunk: %w", err))
				return
			}
			if chunk.Error != nil {
				yield(nil, fmt.Errorf("gemini API error (code %d): %s", chunk.Error.Code, chunk.Error.Message))
				return
			}
			if len(chunk.Candidates) == 0 {
				continue
			}

			for _, part := range chunk.Candidates[0].Content.Parts {
				if part.Text != "" {
					finalMsg.AppendText(part.Text)
					if !yield(&provider.Event{Type: provider.EventTextDelta, Text: part.Text}, nil) {
						return
					}
				}
				if part.FunctionCall != nil {
					args := part.FunctionCall.Args
					if args == nil {
						args = make(map[string]any)
					}
					raw, _ := json.Marshal(args)
					toolCalls = append(toolCalls, message.ToolCall{
						ID:      fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, len(toolCalls)),
						Name:    part.FunctionCall.Name,
						Args:    args,
						RawArgs: string(raw),
					})
				}
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("gemini streaming error: %w", err))
			return
		}

		if len(toolCalls) > 0 {
			finalMsg.ToolCalls = toolCalls
		}
		yield(&provider.Event{Type: provider.EventDone, Message: finalMsg}, nil)
	}
}

func (p *Provider) buildRequest(req *provider.Request) geminiRequest {
	var payload geminiRequest
	payload.GenerationConfig.MaxOutputTokens = p.config.MaxTokens
	payload.GenerationConfig.Temperature = p.config.Temperature

	for _, msg := range req.Messages {
		switch msg.Role {
		case message.RoleSystem:
			if payload.SystemInstruction == nil {
				payload.SystemInstruction = &geminiContent{}
			}
			payload.SystemInstruction.Parts = append(payload.SystemInstruction.Parts,
				geminiPart{Text: msg.Content})
		case message.RoleUser:
			payload.Contents = append(payload.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: msg.Text()}},
			})
		case message.RoleAssistant:
			content := geminiContent{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, geminiPart{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content.Parts = append(content.Parts, geminiPart{
					FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: tc.Args},
				})
			}
			if len(content.Parts) > 0 {
				payload.Contents = append(payload.Contents, content)
			}
		case message.RoleTool:
			// Gemini wants tool output wrapped in a JSON object, not bare text
			response := map[string]any{}
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]any{"result": msg.Content}
			}
			name := msg.ToolID
			if n, ok := msg.Metadata["tool_name"].(string); ok && n != "" {
				name = n
			}
			payload.Contents = append(payload.Contents, geminiContent{
				Role: "user",
				Parts: []geminiPart{{
					FunctionResponse: &geminiFunctionResponse{Name: name, Response: response},
				}},
			})
		}
	}

	if len(req.Tools) > 0 {
		declarations := make([]geminiFunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			fn, ok := t["function"].(map[string]any)
			if !ok {
				continue
			}
			decl := geminiFunctionDeclaration{}
			decl.Name, _ = fn["name"].(string)
			decl.Description, _ = fn["description"].(string)
			decl.Parameters = fn["parameters"]
			declarations = append(declarations, decl)
		}
		payload.Tools = append(payload.Tools, struct {
			FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
		}{FunctionDeclarations: declarations})
	}

	return payload
}
