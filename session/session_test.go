package session

import (
	"testing"

	"github.com/sweetpotato0/voicecart/message"
)

func TestSessionRecordRoundTrip(t *testing.T) {
	sess := New("sess-1")
	sess.Append(
		message.NewMessage(message.RoleUser, "show me hoodies"),
		message.NewMessage(message.RoleAssistant, "Here are two hoodies."),
	)

	record := sess.Record()
	if record.ID != "sess-1" || len(record.Messages) != 2 {
		t.Fatalf("unexpected record: %+v", record)
	}

	// record must be a snapshot, not a live view
	record.Messages[0].Content = "mutated"
	if sess.Messages()[0].Content != "show me hoodies" {
		t.Error("record mutation leaked into the session")
	}

	restored := Restore(record)
	if restored.ID() != "sess-1" || len(restored.Messages()) != 2 {
		t.Errorf("restore mismatch: %v", restored.Messages())
	}
	if restored.State() != StateIdle {
		t.Errorf("restored session should be idle, got %s", restored.State())
	}
}

func TestSessionStateTransitions(t *testing.T) {
	sess := New("sess-2")
	if sess.State() != StateIdle {
		t.Fatalf("new session must be idle, got %s", sess.State())
	}
	sess.SetState(StateTurnInProgress)
	if sess.State() != StateTurnInProgress {
		t.Fatal("state change not visible")
	}
	sess.SetState(StateIdle)
	if sess.State() != StateIdle {
		t.Fatal("state did not return to idle")
	}
}
