package pairing

import (
	"time"

	"github.com/google/uuid"

	"github.com/kfroeschl/iohomecontrol-ai/internal/frame"
	"github.com/kfroeschl/iohomecontrol-ai/internal/radio"
)

const (
	pairingDeadline    = 30 * time.Second
	discoveryInterval  = 500 * time.Millisecond
	interStateWait     = 5 * time.Second
	sendRetryInterval  = 100 * time.Millisecond
	maxSendAttempts    = 5
	maxNotReadyCount   = 6
	legacyBroadcastGap = 200 * time.Millisecond
	legacyBroadcastN   = 4
)

// pendingSend tracks a single outbound frame the engine is still
// trying to get transmitted. onSuccess advances session state and is
// invoked only after the Radio Gateway confirms the send, never
// before, since advancing on an unconfirmed send would leave the
// device record ahead of what was actually transmitted.
type pendingSend struct {
	target    frame.Address
	cmd       byte
	payload   []byte
	opts      radio.SendOptions
	attempts  int
	nextAt    time.Time
	onSuccess func()
}

// session holds everything the engine needs to drive one peripheral
// through pairing that does not already live in its registry.Device
// record. The device record remains the source of truth for
// PairingState; this struct is scratch state for the state machine's
// mechanics (retries, dialect, broadcast counters).
type session struct {
	// id correlates every log line and audit row emitted over the
	// lifetime of one pairing attempt; it has no wire
	// presence and never leaves the process.
	id      uuid.UUID
	addr    frame.Address
	dialect Dialect

	startedAt       time.Time
	stateEnteredAt  time.Time
	lastWakeAt      time.Time
	notReadyCount   int
	legacyBcastSent int
	pending         *pendingSend

	// freshChallenge is the 6-byte challenge the engine generates
	// itself in dialect B (where the engine, not the peripheral,
	// issues CmdChallenge).
	freshChallenge [6]byte

	// lastAuthCmdByte is the command byte of the most recently
	// emitted command whose authentication is still outstanding; it
	// is the frame_data for a mac2W call triggered by the
	// peripheral's CmdChallenge (frame_data is the command byte,
	// never 0x3D).
	lastAuthCmdByte byte

	// lastKeyTransferFrameData is the full cmd+payload of the most
	// recently sent CmdKeyTransfer frame; the re-challenge that can
	// follow it is authenticated over the whole frame, not just the
	// command byte, because the wrapped key material itself must be
	// covered by the MAC.
	lastKeyTransferFrameData []byte

	// lastSent* record the most recently transmitted outbound frame
	// so an inter-state timeout can re-assert it without the engine
	// having to special-case every state.
	lastSentTarget  frame.Address
	lastSentCmd     byte
	lastSentPayload []byte
	lastSentOpts    radio.SendOptions
}

func newSession(addr frame.Address, now time.Time) *session {
	return &session{
		id:             uuid.New(),
		addr:           addr,
		startedAt:      now,
		stateEnteredAt: now,
	}
}

func (s *session) enterState(now time.Time) {
	s.stateEnteredAt = now
	s.pending = nil
}
