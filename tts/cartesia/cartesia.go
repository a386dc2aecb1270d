// Package cartesia implements the tts.Synthesizer interface against the
// Cartesia bytes endpoint.
package cartesia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sweetpotato0/voicecart/tts"
)

const (
	defaultBaseURL = "https://api.cartesia.ai"
	apiVersion     = "2024-06-10"
)

// Config holds Cartesia client configuration
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	VoiceID    string
	SampleRate int
	Timeout    time.Duration
}

// DefaultConfig returns default Cartesia configuration
func DefaultConfig() *Config {
	return &Config{
		Model:      "sonic-english",
		SampleRate: 24000,
		Timeout:    15 * time.Second,
	}
}

// Synthesizer calls the Cartesia /tts/bytes endpoint.
type Synthesizer struct {
	config *Config
	client *http.Client
}

// New creates a Cartesia synthesizer
func New(config *Config) *Synthesizer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = "sonic-english"
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 24000
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &Synthesizer{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type synthesisRequest struct {
	ModelID    string `json:"model_id"`
	Transcript string `json:"transcript"`
	Voice      struct {
		Mode string `json:"mode"`
		ID   string `json:"id"`
	} `json:"voice"`
	OutputFormat struct {
		Container  string `json:"container"`
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sample_rate"`
	} `json:"output_format"`
}

// Synthesize converts text into raw PCM audio bytes.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*tts.Audio, error) {
	if s.config.APIKey == "" {
		return nil, &tts.SynthesisError{Backend: "cartesia", Err: fmt.Errorf("API key not configured")}
	}

	payload := synthesisRequest{
		ModelID:    s.config.Model,
		Transcript: text,
	}
	payload.Voice.Mode = "id"
	payload.Voice.ID = s.config.VoiceID
	payload.OutputFormat.Container = "raw"
	payload.OutputFormat.Encoding = "pcm_s16le"
	payload.OutputFormat.SampleRate = s.config.SampleRate

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, &tts.SynthesisError{Backend: "cartesia", Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.BaseURL+"/tts/bytes", bytes.NewReader(reqBody))
	if err != nil {
		return nil, &tts.SynthesisError{Backend: "cartesia", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", s.config.APIKey)
	httpReq.Header.Set("Cartesia-Version", apiVersion)

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &tts.SynthesisError{Backend: "cartesia", Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 2048))
		return nil, &tts.SynthesisError{
			Backend: "cartesia",
			Err:     fmt.Errorf("status %d: %s", httpResp.StatusCode, string(respBody)),
		}
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &tts.SynthesisError{Backend: "cartesia", Err: fmt.Errorf("read audio: %w", err)}
	}

	return &tts.Audio{
		Data:       data,
		Format:     "pcm_s16le",
		SampleRate: s.config.SampleRate,
		DurationMS: tts.EstimateDurationMS(data, "pcm_s16le", s.config.SampleRate),
	}, nil
}
