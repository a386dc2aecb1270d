// Package tts defines the speech-synthesis contract the dispatcher consumes.
package tts

import (
	"context"
	"fmt"
	"time"
)

// Audio is one synthesized utterance.
type Audio struct {
	Data       []byte
	Format     string // e.g. "mp3", "pcm_s16le"
	SampleRate int
	DurationMS int
}

// SynthesisError wraps a backend failure for one utterance. The dispatcher
// retries once on these and then skips the chunk.
type SynthesisError struct {
	Backend string
	Err     error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("tts %s: synthesis failed: %v", e.Backend, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// Synthesizer converts one chunk of text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

// WithTimeout wraps a Synthesizer with a per-call deadline.
func WithTimeout(s Synthesizer, timeout time.Duration) Synthesizer {
	if timeout <= 0 {
		return s
	}
	return &timeoutSynthesizer{inner: s, timeout: timeout}
}

type timeoutSynthesizer struct {
	inner   Synthesizer
	timeout time.Duration
}

func (t *timeoutSynthesizer) Synthesize(ctx context.Context, text string) (*Audio, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Synthesize(ctx, text)
}

// estimateDurationMS guesses playback length from byte size when the backend
// does not report one. Rough, but good enough for pacing metrics.
func EstimateDurationMS(data []byte, format string, sampleRate int) int {
	switch format {
	case "pcm_s16le":
		if sampleRate > 0 {
			return len(data) * 1000 / (sampleRate * 2)
		}
	case "mp3":
		// assume ~16 kB/s at 128 kbps
		return len(data) * 1000 / 16000
	}
	return 0
}
