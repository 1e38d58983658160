package audit

import "log"

// Sink adapts DB to the pairing engine's AuditSink interface, whose
// methods return nothing: auditing must never block or fail the
// protocol state machine, so write errors are logged here instead of
// propagated.
type Sink struct {
	db *DB
}

// NewSink wraps db as a pairing.AuditSink.
func NewSink(db *DB) *Sink {
	return &Sink{db: db}
}

func (s *Sink) RecordTransition(address, sessionID, fromState, toState string) {
	if err := s.db.RecordTransition(address, sessionID, fromState, toState); err != nil {
		log.Printf("audit: record transition for %s: %v", address, err)
	}
}

func (s *Sink) RecordCompletedPairing(address, name string, nodeType uint16, nodeSubtype, manufacturer uint8) {
	if err := s.db.RecordCompletedPairing(address, name, nodeType, nodeSubtype, manufacturer); err != nil {
		log.Printf("audit: record completed pairing for %s: %v", address, err)
	}
}

func (s *Sink) RecordFailure(address, sessionID, reason string) {
	if err := s.db.RecordFailure(address, sessionID, reason); err != nil {
		log.Printf("audit: record failure for %s: %v", address, err)
	}
}
