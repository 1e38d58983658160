// Package command implements the Authenticated Command Gateway (C6):
// issuing unsolicited commands to PAIRED devices and answering the
// mid-command challenge a peripheral can issue while executing any of
// them.
package command

import (
	"fmt"
	"log"

	"github.com/kfroeschl/iohomecontrol-ai/internal/crypto"
	"github.com/kfroeschl/iohomecontrol-ai/internal/frame"
	"github.com/kfroeschl/iohomecontrol-ai/internal/radio"
	"github.com/kfroeschl/iohomecontrol-ai/internal/registry"
)

// Result reports what HandleInbound did with a frame.
type Result int

const (
	Ignored Result = iota
	Consumed
)

// sender is the slice of radio.Gateway this gateway depends on. It
// exists so tests can substitute a fake transceiver without standing
// up real ZeroMQ sockets, mirroring the pairing package's own sender
// seam.
type sender interface {
	Send(f *frame.Frame, opts radio.SendOptions) error
}

// Gateway issues commands to PAIRED devices and owns their
// per-command challenge/response authentication.
type Gateway struct {
	registry       *registry.Registry
	gateway        sender
	controllerAddr frame.Address

	// onResult is the caller's completion callback for the single
	// in-flight command per address. Spec §9 keeps per-command
	// authentication memory as one slot per device because observed
	// peripherals never overlap challenges for distinct commands; this
	// callback map follows the same single-slot assumption.
	onResult map[frame.Address]func(error)
}

// New constructs a Gateway bound to a registry and radio gateway.
// controllerAddr is the 3-byte identity this gateway sends frames
// from.
func New(reg *registry.Registry, gw sender, controllerAddr frame.Address) *Gateway {
	return &Gateway{
		registry:       reg,
		gateway:        gw,
		controllerAddr: controllerAddr,
		onResult:       make(map[frame.Address]func(error)),
	}
}

// Send issues cmd/payload to addr, which must already be PAIRED, and
// records it in the device's lastCommand slot so a later mid-command
// challenge can compute its MAC over the right frame_data. onResult,
// if non-nil, is invoked exactly once when the matching CmdStatusAnswer
// arrives.
func (g *Gateway) Send(addr frame.Address, cmd byte, payload []byte, onResult func(error)) error {
	d, err := g.registry.Get(addr)
	if err != nil {
		return fmt.Errorf("command: %w", err)
	}
	if d.PairingState != registry.Paired {
		return fmt.Errorf("command: %s is not paired (state %s)", addr, d.PairingState)
	}

	f, err := frame.New(g.controllerAddr, addr, cmd, payload)
	if err != nil {
		return fmt.Errorf("command: build frame: %w", err)
	}
	if err := g.gateway.Send(f, radio.SendOptions{ShortPreamble: true}); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	if err := g.registry.StoreLastCommand(addr, cmd, payload); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	if onResult != nil {
		g.onResult[addr] = onResult
	} else {
		delete(g.onResult, addr)
	}
	return nil
}

// HandleInbound answers a mid-command challenge from a PAIRED device
// and surfaces command completion to the caller registered with Send.
func (g *Gateway) HandleInbound(f *frame.Frame) Result {
	d, err := g.registry.Get(f.Source)
	if err != nil || d.PairingState != registry.Paired {
		return Ignored
	}

	switch f.Cmd {
	case frame.CmdChallenge:
		return g.handleChallenge(d, f)
	case frame.CmdStatusAnswer:
		return g.handleStatusAnswer(d, f)
	default:
		return Ignored
	}
}

// handleChallenge handles a CmdChallenge from a paired device: where
// HasPendingChallenge is not yet set, mark it set, store the
// challenge, and authenticate the command byte being executed, never
// CmdChallengeResponse's own byte.
func (g *Gateway) handleChallenge(d *registry.Device, f *frame.Frame) Result {
	if d.HasPendingChallenge {
		// A retransmit of the peripheral's own 0x3C crossed our 0x3D on
		// the air; resend the already-computed response rather than
		// recomputing against a lastCommandByte that may have moved on.
		g.sendResponse(d.Address, d.LastResponse)
		return Consumed
	}

	challenge, err := challengeFromPayload(f.Payload)
	if err != nil {
		log.Printf("command: %v", err)
		return Consumed
	}
	if err := g.registry.StoreChallenge(f.Source, challenge); err != nil {
		log.Printf("command: store challenge for %s: %v", f.Source, err)
		return Consumed
	}

	mac, err := crypto.MAC2W(challenge, d.SystemKey, []byte{d.LastCommandByte})
	if err != nil {
		log.Printf("command: mac2W for %s: %v", f.Source, err)
		return Consumed
	}
	if err := g.registry.StoreResponse(f.Source, mac); err != nil {
		log.Printf("command: store response for %s: %v", f.Source, err)
	}
	g.sendResponse(d.Address, mac)
	return Consumed
}

func (g *Gateway) sendResponse(addr frame.Address, mac [6]byte) {
	f, err := frame.New(g.controllerAddr, addr, frame.CmdChallengeResponse, mac[:])
	if err != nil {
		log.Printf("command: build 0x3D for %s: %v", addr, err)
		return
	}
	if err := g.gateway.Send(f, radio.SendOptions{ShortPreamble: true}); err != nil {
		log.Printf("command: send 0x3D for %s: %v", addr, err)
	}
}

// handleStatusAnswer handles a matching CmdStatusAnswer: clears the
// pending-challenge state (lastChallenge/hasPendingChallenge are
// cleared once the matching 0x3D has been emitted and the exchange
// concludes) and surfaces success to whoever called Send.
func (g *Gateway) handleStatusAnswer(d *registry.Device, f *frame.Frame) Result {
	if err := g.registry.ClearChallenge(f.Source); err != nil {
		log.Printf("command: clear challenge for %s: %v", f.Source, err)
	}
	if cb, ok := g.onResult[f.Source]; ok {
		delete(g.onResult, f.Source)
		cb(nil)
	}
	return Consumed
}

func challengeFromPayload(payload []byte) ([6]byte, error) {
	var c [6]byte
	if len(payload) < 6 {
		return c, fmt.Errorf("challenge payload too short: %d bytes", len(payload))
	}
	copy(c[:], payload[:6])
	return c, nil
}
