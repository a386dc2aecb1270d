// Package openai implements the tts.Synthesizer interface with the OpenAI
// speech endpoint as an alternative to Cartesia.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sweetpotato0/voicecart/tts"
)

// Config holds OpenAI TTS configuration
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Timeout time.Duration
}

// DefaultConfig returns default OpenAI TTS configuration
func DefaultConfig() *Config {
	return &Config{
		Model:   "tts-1",
		Voice:   "alloy",
		Timeout: 15 * time.Second,
	}
}

// Synthesizer calls the OpenAI audio speech endpoint.
type Synthesizer struct {
	config *Config
	client openai.Client
}

// New creates an OpenAI synthesizer
func New(config *Config) *Synthesizer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Model == "" {
		config.Model = "tts-1"
	}
	if config.Voice == "" {
		config.Voice = "alloy"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Synthesizer{
		config: config,
		client: openai.NewClient(options...),
	}
}

// Synthesize converts text into MP3 audio bytes.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*tts.Audio, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.config.Model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(s.config.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, &tts.SynthesisError{Backend: "openai", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &tts.SynthesisError{
			Backend: "openai",
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &tts.SynthesisError{Backend: "openai", Err: fmt.Errorf("read audio: %w", err)}
	}

	return &tts.Audio{
		Data:       data,
		Format:     "mp3",
		DurationMS: tts.EstimateDurationMS(data, "mp3", 0),
	}, nil
}
