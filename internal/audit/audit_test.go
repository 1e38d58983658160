package audit

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndQueryTransitions(t *testing.T) {
	db := openTestDB(t)

	if err := db.RecordTransition("010203", "session-1", "DISCOVERING", "ALIVE_CHECK"); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	if err := db.RecordTransition("010203", "session-1", "ALIVE_CHECK", "LEARNING_MODE"); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	if err := db.RecordTransition("ffffff", "session-2", "DISCOVERING", "ALIVE_CHECK"); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}

	got, err := db.Transitions("010203")
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Transitions) = %d, want 2", len(got))
	}
	if got[0].ToState != "ALIVE_CHECK" || got[1].ToState != "LEARNING_MODE" {
		t.Fatalf("transitions out of order: %+v", got)
	}
}

func TestRecordCompletedPairingAndRecent(t *testing.T) {
	db := openTestDB(t)

	if err := db.RecordCompletedPairing("010203", "MyPlug", 0x123, 0x04, 0x07); err != nil {
		t.Fatalf("RecordCompletedPairing: %v", err)
	}
	if err := db.RecordCompletedPairing("040506", "Shutter", 0x321, 0x01, 0x07); err != nil {
		t.Fatalf("RecordCompletedPairing: %v", err)
	}

	got, err := db.RecentCompletedPairings(10)
	if err != nil {
		t.Fatalf("RecentCompletedPairings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(RecentCompletedPairings) = %d, want 2", len(got))
	}
	if got[0].Address != "040506" {
		t.Fatalf("most recent address = %q, want 040506 (newest first)", got[0].Address)
	}
}

func TestRecordFailure(t *testing.T) {
	db := openTestDB(t)
	if err := db.RecordFailure("010203", "session-1", "pairing: timed out"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
}

func TestSinkSwallowsNoErrors(t *testing.T) {
	db := openTestDB(t)
	sink := NewSink(db)

	// Sink methods return nothing; this just exercises them for
	// panics and confirms the rows land in the underlying DB.
	sink.RecordTransition("010203", "session-1", "DISCOVERING", "ALIVE_CHECK")
	sink.RecordCompletedPairing("010203", "MyPlug", 0x123, 0x04, 0x07)
	sink.RecordFailure("010203", "session-1", "pairing: timed out")

	transitions, err := db.Transitions("010203")
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(transitions) != 1 {
		t.Fatalf("len(Transitions) = %d, want 1", len(transitions))
	}
}
