package pairing

import (
	"fmt"
	"log"
	"time"

	"github.com/kfroeschl/iohomecontrol-ai/internal/crypto"
	"github.com/kfroeschl/iohomecontrol-ai/internal/frame"
	"github.com/kfroeschl/iohomecontrol-ai/internal/radio"
	"github.com/kfroeschl/iohomecontrol-ai/internal/registry"
)

// dispatch routes one inbound frame from the session's peer to the
// handler for the device's current pairing state.
func (e *Engine) dispatch(f *frame.Frame, now time.Time) {
	d, err := e.registry.Get(e.session.addr)
	if err != nil {
		e.fail(err)
		return
	}

	if f.Cmd == frame.CmdErrorStatus {
		e.handleErrorStatus(f)
		return
	}

	switch d.PairingState {
	case registry.Discovering:
		if f.Cmd == frame.CmdDiscoveryAnswer {
			e.onDiscoveryAnswer(f)
		}
	case registry.AliveCheck:
		if f.Cmd == frame.CmdAliveCheckAnswer {
			e.onAliveCheckAnswer(f)
		}
	case registry.LearningMode:
		if f.Cmd == frame.CmdChallenge {
			e.onPeripheralChallenge(f)
		}
	case registry.ChallengeSent:
		switch f.Cmd {
		case frame.CmdChallenge:
			e.onPeripheralChallenge(f)
		case frame.CmdPairingConfirm:
			e.onPairingConfirm(f)
		}
	case registry.WaitingBeforeLearning:
		if f.Cmd == frame.CmdPriorityAddrAns {
			e.onPriorityAddrAnswer(f)
		}
	case registry.ChallengeReceived:
		if f.Cmd == frame.CmdPairingConfirm {
			e.onPairingConfirm(f)
		}
	case registry.AskingChallenge:
		switch f.Cmd {
		case frame.CmdChallenge:
			e.onAskingChallengeChallenge(f)
		case frame.CmdKeyTransferAck:
			e.onKeyTransferAck(f)
		}
	case registry.KeyExchanged:
		e.onKeyExchangedInfo(f)
	}
}

func (e *Engine) onDiscoveryAnswer(f *frame.Frame) {
	if err := e.registry.UpdateFromDiscoveryAnswer(f.Source, f.Payload); err != nil {
		log.Printf("pairing: decode discovery answer from %s: %v", f.Source, err)
	}
	e.send(f.Source, frame.CmdAliveCheckRequest, nil, radio.SendOptions{ShortPreamble: true}, func() {
		e.advance(registry.AliveCheck)
	})
}

func (e *Engine) onAliveCheckAnswer(f *frame.Frame) {
	e.session.lastAuthCmdByte = frame.CmdLearningMode
	e.send(f.Source, frame.CmdLearningMode, []byte{0x02}, radio.SendOptions{}, func() {
		e.session.dialect = DialectA
		e.advance(registry.LearningMode)
	})
}

// onPeripheralChallenge answers a CmdChallenge from the peripheral,
// reached either from LEARNING_MODE (dialect A) or CHALLENGE_SENT
// (dialect B's mutual challenge). frame_data is always the command
// byte of the most recently emitted authenticated command, never
// 0x3D.
func (e *Engine) onPeripheralChallenge(f *frame.Frame) {
	challenge, err := challengeFromPayload(f.Payload)
	if err != nil {
		return
	}
	if err := e.registry.StoreChallenge(f.Source, challenge); err != nil {
		log.Printf("pairing: store challenge for %s: %v", f.Source, err)
		return
	}
	mac, err := crypto.MAC2W(challenge, e.systemKey, []byte{e.session.lastAuthCmdByte})
	if err != nil {
		e.fail(fmt.Errorf("pairing: mac2W: %w", err))
		return
	}
	e.send(f.Source, frame.CmdChallengeResponse, mac[:], radio.SendOptions{}, func() {
		e.advance(registry.ChallengeReceived)
		if err := e.registry.ClearChallenge(f.Source); err != nil {
			log.Printf("pairing: clear challenge for %s: %v", f.Source, err)
		}
	})
}

func (e *Engine) onPriorityAddrAnswer(f *frame.Frame) {
	e.session.freshChallenge = randomChallenge()
	e.send(f.Source, frame.CmdChallenge, e.session.freshChallenge[:], radio.SendOptions{}, func() {
		e.advance(registry.ChallengeSent)
	})
}

func (e *Engine) onPairingConfirm(f *frame.Frame) {
	if len(f.Payload) < 1 || f.Payload[0] != frame.PairingConfirmStatusOK {
		e.fail(fmt.Errorf("pairing: confirmation status %v, want 0x02", f.Payload))
		return
	}
	e.advance(registry.PairingConfirmed)
	e.session.lastAuthCmdByte = frame.CmdAskChallenge
	e.send(f.Source, frame.CmdAskChallenge, nil, radio.SendOptions{}, func() {
		e.advance(registry.AskingChallenge)
	})
}

// onAskingChallengeChallenge handles every CmdChallenge received
// while ASKING_CHALLENGE: the first is the peripheral answering our
// 0x31 (we must wrap and transfer the system key); any subsequent one
// is the peripheral re-challenging the just-sent 0x32 (we must
// authenticate the whole key-transfer frame, not just its command
// byte, since the wrapped key material is what needs protecting).
func (e *Engine) onAskingChallengeChallenge(f *frame.Frame) {
	challenge, err := challengeFromPayload(f.Payload)
	if err != nil {
		return
	}
	if err := e.registry.StoreChallenge(f.Source, challenge); err != nil {
		log.Printf("pairing: store challenge for %s: %v", f.Source, err)
		return
	}

	if e.session.lastKeyTransferFrameData == nil {
		wrapped, err := crypto.WrapKey2W(e.systemKey, challenge, []byte{frame.CmdAskChallenge})
		if err != nil {
			e.fail(fmt.Errorf("pairing: wrapKey2W: %w", err))
			return
		}
		if err := e.registry.StoreStackKey(f.Source, wrapped); err != nil {
			log.Printf("pairing: store stack key for %s: %v", f.Source, err)
		}
		target := f.Source
		e.send(target, frame.CmdKeyTransfer, wrapped[:], radio.SendOptions{}, func() {
			kf, err := frame.New(e.controllerAddr, target, frame.CmdKeyTransfer, wrapped[:])
			if err != nil {
				e.fail(err)
				return
			}
			e.session.lastKeyTransferFrameData = kf.FrameData()
		})
		return
	}

	mac, err := crypto.MAC2W(challenge, e.systemKey, e.session.lastKeyTransferFrameData)
	if err != nil {
		e.fail(fmt.Errorf("pairing: mac2W: %w", err))
		return
	}
	e.send(f.Source, frame.CmdChallengeResponse, mac[:], radio.SendOptions{}, nil)
}

func (e *Engine) onKeyTransferAck(f *frame.Frame) {
	e.send(f.Source, frame.CmdNameRequest, nil, radio.SendOptions{}, func() {
		e.advance(registry.KeyExchanged)
	})
}

func (e *Engine) onKeyExchangedInfo(f *frame.Frame) {
	switch f.Cmd {
	case frame.CmdNameAnswer:
		if err := e.registry.UpdateFromNameAnswer(f.Source, decodeASCII(f.Payload)); err != nil {
			log.Printf("pairing: store name for %s: %v", f.Source, err)
		}
		e.send(f.Source, frame.CmdGeneralInfo1Req, nil, radio.SendOptions{}, nil)

	case frame.CmdGeneralInfo1Ans:
		if err := e.registry.UpdateFromGeneralInfo1(f.Source, f.Payload); err != nil {
			log.Printf("pairing: store general info 1 for %s: %v", f.Source, err)
			return
		}
		e.send(f.Source, frame.CmdGeneralInfo2Req, nil, radio.SendOptions{}, nil)

	case frame.CmdGeneralInfo2Ans:
		if err := e.registry.UpdateFromGeneralInfo2(f.Source, f.Payload); err != nil {
			log.Printf("pairing: store general info 2 for %s: %v", f.Source, err)
			return
		}
		if err := e.registry.StoreSystemKey(f.Source, e.systemKey); err != nil {
			e.fail(err)
			return
		}
		if err := e.registry.CompletePairing(f.Source); err != nil {
			e.fail(err)
			return
		}
		if e.audit != nil {
			if d, err := e.registry.Get(f.Source); err == nil {
				e.audit.RecordCompletedPairing(d.AddressStr, d.Capabilities.Name, d.Capabilities.NodeType,
					d.Capabilities.NodeSubtype, d.Capabilities.Manufacturer)
			}
		}
		e.active = false
		e.session = nil
	}
}

func (e *Engine) handleErrorStatus(f *frame.Frame) {
	if len(f.Payload) == 0 {
		return
	}
	switch f.Payload[0] {
	case frame.StatusAuthRejected:
		e.fail(ErrAuthRejected)
	case frame.StatusPeripheralNotReady:
		e.session.notReadyCount++
		if e.session.notReadyCount > maxNotReadyCount {
			e.fail(fmt.Errorf("pairing: peripheral not ready %d times", e.session.notReadyCount))
		}
	}
}

// tickBroadcasting2A drives dialect B's four spaced CmdLegacyPairingBcast
// transmissions followed by a single CmdPriorityAddrReq.
func (e *Engine) tickBroadcasting2A(d *registry.Device, now time.Time) {
	s := e.session
	if s.legacyBcastSent < legacyBroadcastN {
		if s.legacyBcastSent == 0 || now.Sub(s.lastWakeAt) >= legacyBroadcastGap {
			s.legacyBcastSent++
			s.lastWakeAt = now
			e.send(frame.Broadcast, frame.CmdLegacyPairingBcast, make([]byte, 12), radio.SendOptions{}, nil)
		}
		return
	}
	e.session.lastAuthCmdByte = frame.CmdPriorityAddrReq
	e.send(d.Address, frame.CmdPriorityAddrReq, nil, radio.SendOptions{}, func() {
		e.advance(registry.WaitingBeforeLearning)
	})
}

// onInterStateTimeout fires after 5 s without forward progress. The
// LEARNING_MODE/dialect-A case falls through to dialect B; every
// other state simply re-asserts its last outbound frame.
func (e *Engine) onInterStateTimeout(d *registry.Device, now time.Time) {
	s := e.session
	log.Printf("pairing: %s inter-state wait elapsed in %s", s.addr, d.PairingState)

	if d.PairingState == registry.LearningMode && s.dialect == DialectA {
		s.legacyBcastSent = 0
		e.advance(registry.Broadcasting2A)
		return
	}

	if s.lastSentTarget != (frame.Address{}) {
		e.send(s.lastSentTarget, s.lastSentCmd, s.lastSentPayload, s.lastSentOpts, nil)
	}
	s.stateEnteredAt = now
}

func challengeFromPayload(payload []byte) ([6]byte, error) {
	var c [6]byte
	if len(payload) < 6 {
		return c, fmt.Errorf("pairing: challenge payload too short: %d bytes", len(payload))
	}
	copy(c[:], payload[:6])
	return c, nil
}

// decodeASCII trims the trailing NUL padding from a fixed-width
// ASCII field such as CmdNameAnswer's payload.
func decodeASCII(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
