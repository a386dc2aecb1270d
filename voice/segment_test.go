package voice

import (
	"testing"
)

func collect(s *Segmenter, deltas ...string) []SentenceChunk {
	var chunks []SentenceChunk
	for _, d := range deltas {
		chunks = append(chunks, s.Push(d)...)
	}
	chunks = append(chunks, s.Flush())
	return chunks
}

func TestSegmenterThreeSentences(t *testing.T) {
	s := NewSegmenter(SegmenterConfig{})

	// deltas split mid-word the way a token stream would
	chunks := collect(s, "Hello th", "ere. How are ", "you? I'm f", "ine!")

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}
	want := []string{"Hello there.", "How are you?", "I'm fine!"}
	for i, chunk := range chunks {
		if chunk.Text != want[i] {
			t.Errorf("chunk %d: got %q, want %q", i, chunk.Text, want[i])
		}
		if chunk.Seq != i {
			t.Errorf("chunk %d: seq %d, want gapless from 0", i, chunk.Seq)
		}
	}
	if chunks[0].Terminal || chunks[1].Terminal {
		t.Error("only the last chunk may be terminal")
	}
	if !chunks[2].Terminal {
		t.Error("last chunk must be terminal")
	}
}

func TestSegmenterDecimalPrice(t *testing.T) {
	s := NewSegmenter(SegmenterConfig{})

	chunks := collect(s, "These shoes cost $99.99 and ship free. Want them?")

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Text != "These shoes cost $99.99 and ship free." {
		t.Errorf("decimal split the sentence: %q", chunks[0].Text)
	}
}

func TestSegmenterAbbreviation(t *testing.T) {
	s := NewSegmenter(SegmenterConfig{})

	chunks := collect(s, "You should talk to Dr. Smith about sizing. Sound good?")

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Text != "You should talk to Dr. Smith about sizing." {
		t.Errorf("abbreviation split the sentence: %q", chunks[0].Text)
	}
}

func TestSegmenterMinChunkLength(t *testing.T) {
	s := NewSegmenter(SegmenterConfig{MinChunkRunes: 12})

	chunks := collect(s, "Sure. Let me check the catalog for you.")

	// "Sure." is below the floor, so it merges into the next sentence
	if len(chunks) != 1 {
		t.Fatalf("expected 1 merged chunk, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Text != "Sure. Let me check the catalog for you." {
		t.Errorf("unexpected merge result: %q", chunks[0].Text)
	}
}

func TestSegmenterEmptyFlush(t *testing.T) {
	s := NewSegmenter(SegmenterConfig{})

	chunks := collect(s, "All set. ")

	if len(chunks) != 2 {
		t.Fatalf("expected sentence plus empty terminal marker, got %+v", chunks)
	}
	final := chunks[1]
	if final.Text != "" || !final.Terminal {
		t.Errorf("expected empty terminal marker, got %+v", final)
	}
}
