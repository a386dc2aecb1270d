package voice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sweetpotato0/voicecart/pkg/logging"
	"github.com/sweetpotato0/voicecart/tts"
)

// DispatcherConfig tunes the speech synthesis dispatcher.
type DispatcherConfig struct {
	// Timeout bounds each synthesis call.
	Timeout time.Duration
	// Retries is how many times a failed synthesis is reattempted before
	// the chunk is skipped.
	Retries int
}

// DefaultDispatcherConfig returns the production dispatch tuning.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Timeout: 10 * time.Second,
		Retries: 1,
	}
}

// Dispatcher synthesizes sentence chunks concurrently and re-serializes the
// results: audio is emitted strictly in sentence order even when later
// chunks finish synthesis first.
type Dispatcher struct {
	synth  tts.Synthesizer
	config DispatcherConfig
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given synthesizer.
func NewDispatcher(synth tts.Synthesizer, config DispatcherConfig) *Dispatcher {
	if config.Timeout <= 0 {
		config.Timeout = DefaultDispatcherConfig().Timeout
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	return &Dispatcher{
		synth:  tts.WithTimeout(synth, config.Timeout),
		config: config,
		logger: logging.WithComponent("dispatcher"),
	}
}

// Run consumes sentence chunks until in closes, synthesizing each in its own
// goroutine, and emits AudioChunks in sequence order. It returns once all
// audio has been emitted, or with ctx.Err() on cancellation, in which case
// in-flight results are discarded and nothing further is emitted.
//
// Sequence numbers must start at zero and be gapless, which is what the
// segmenter produces for one turn.
func (d *Dispatcher) Run(ctx context.Context, in <-chan SentenceChunk, emit func(AudioChunk)) error {
	results := make(chan AudioChunk)

	go func() {
		var wg sync.WaitGroup
	feed:
		for {
			select {
			case <-ctx.Done():
				break feed
			case chunk, ok := <-in:
				if !ok {
					break feed
				}
				wg.Add(1)
				go func(c SentenceChunk) {
					defer wg.Done()
					audio := d.synthesize(ctx, c)
					select {
					case results <- audio:
					case <-ctx.Done():
					}
				}(chunk)
			}
		}
		wg.Wait()
		close(results)
	}()

	next := 0
	pending := make(map[int]AudioChunk)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case audio, ok := <-results:
			if !ok {
				return nil
			}
			pending[audio.Seq] = audio
			for {
				buffered, ready := pending[next]
				if !ready {
					break
				}
				delete(pending, next)
				next++
				emit(buffered)
			}
		}
	}
}

// synthesize converts one chunk, retrying per config. A chunk that still
// fails is emitted as a skipped marker so ordering and turn completion are
// preserved; the text already reached the client.
func (d *Dispatcher) synthesize(ctx context.Context, chunk SentenceChunk) AudioChunk {
	out := AudioChunk{Seq: chunk.Seq, Text: chunk.Text, Terminal: chunk.Terminal}
	if chunk.Text == "" {
		// empty terminal marker: nothing to speak
		return out
	}

	var lastErr error
	for attempt := 0; attempt <= d.config.Retries; attempt++ {
		if ctx.Err() != nil {
			out.Skipped = true
			return out
		}
		audio, err := d.synth.Synthesize(ctx, chunk.Text)
		if err == nil {
			out.Data = audio.Data
			out.Format = audio.Format
			out.DurationMS = audio.DurationMS
			return out
		}
		lastErr = err
		d.logger.Warn("synthesis attempt failed",
			"seq", chunk.Seq, "attempt", attempt, "error", err)
	}

	d.logger.Error("synthesis failed, skipping chunk", "seq", chunk.Seq, "error", lastErr)
	out.Skipped = true
	return out
}
