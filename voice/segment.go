package voice

import (
	"strings"
	"unicode"
)

// SegmenterConfig tunes sentence boundary detection.
type SegmenterConfig struct {
	// Terminators are the runes that can end a sentence.
	Terminators []rune
	// Abbreviations that end in a period but do not end a sentence.
	Abbreviations []string
	// MinChunkRunes suppresses splits that would emit a fragment shorter
	// than this, so the synthesizer is not called for single words.
	MinChunkRunes int
}

// DefaultSegmenterConfig returns the tuning used in production.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		Terminators: []rune{'.', '!', '?'},
		Abbreviations: []string{
			"mr.", "mrs.", "ms.", "dr.", "st.", "vs.",
			"etc.", "e.g.", "i.e.", "no.",
		},
		MinChunkRunes: 12,
	}
}

// Segmenter accumulates streamed text deltas and cuts them into speakable
// sentences. It is not safe for concurrent use; each turn owns one.
type Segmenter struct {
	config  SegmenterConfig
	buf     []rune
	nextSeq int
}

// NewSegmenter creates a segmenter with the given config, falling back to
// defaults for zero values.
func NewSegmenter(config SegmenterConfig) *Segmenter {
	defaults := DefaultSegmenterConfig()
	if len(config.Terminators) == 0 {
		config.Terminators = defaults.Terminators
	}
	if config.Abbreviations == nil {
		config.Abbreviations = defaults.Abbreviations
	}
	if config.MinChunkRunes <= 0 {
		config.MinChunkRunes = defaults.MinChunkRunes
	}
	return &Segmenter{config: config}
}

// Push feeds a text delta and returns zero or more completed sentence
// chunks. A sentence is cut at a terminator followed by whitespace, so
// decimals like $99.99 never split mid-number.
func (s *Segmenter) Push(delta string) []SentenceChunk {
	var chunks []SentenceChunk
	for _, r := range delta {
		s.buf = append(s.buf, r)
		if !unicode.IsSpace(r) {
			continue
		}
		// the rune before the whitespace must be a terminator
		if len(s.buf) < 2 || !s.isTerminator(s.buf[len(s.buf)-2]) {
			continue
		}
		sentence := s.buf[:len(s.buf)-1]
		if len(sentence) < s.config.MinChunkRunes {
			continue
		}
		if s.endsWithAbbreviation(sentence) {
			continue
		}
		if text := strings.TrimSpace(string(sentence)); text != "" {
			chunks = append(chunks, s.emit(text, false))
		}
		s.buf = s.buf[:0]
	}
	return chunks
}

// Flush drains whatever remains in the buffer as the terminal chunk. When
// the buffer is empty an empty terminal marker is returned so downstream
// consumers still see end-of-turn.
func (s *Segmenter) Flush() SentenceChunk {
	text := strings.TrimSpace(string(s.buf))
	s.buf = s.buf[:0]
	return s.emit(text, true)
}

// Pending reports whether un-flushed text remains buffered.
func (s *Segmenter) Pending() bool {
	return strings.TrimSpace(string(s.buf)) != ""
}

// NextSeq returns the sequence number the next chunk will carry.
func (s *Segmenter) NextSeq() int {
	return s.nextSeq
}

func (s *Segmenter) emit(text string, terminal bool) SentenceChunk {
	chunk := SentenceChunk{Seq: s.nextSeq, Text: text, Terminal: terminal}
	s.nextSeq++
	return chunk
}

func (s *Segmenter) isTerminator(r rune) bool {
	for _, t := range s.config.Terminators {
		if r == t {
			return true
		}
	}
	return false
}

func (s *Segmenter) endsWithAbbreviation(sentence []rune) bool {
	lower := strings.ToLower(string(sentence))
	// compare against the last whitespace-delimited token
	if idx := strings.LastIndexFunc(lower, unicode.IsSpace); idx >= 0 {
		lower = lower[idx+1:]
	}
	for _, abbr := range s.config.Abbreviations {
		if lower == abbr {
			return true
		}
	}
	return false
}
