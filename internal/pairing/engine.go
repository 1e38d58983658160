// Package pairing implements the protocol core: a single-threaded,
// cooperative state machine that drives one peripheral at a time
// through discovery, authentication, and key exchange.
package pairing

import (
	"crypto/rand"
	"fmt"
	"log"
	"time"

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

// sender is the slice of radio.Gateway the engine depends on. It
// exists so tests can substitute a fake transceiver without standing
// up real ZeroMQ sockets.
type sender interface {
	Send(f *frame.Frame, opts radio.SendOptions) error
}

// AuditSink receives pairing lifecycle events for durable logging,
// the collaborator internal/audit implements. A nil sink (the
// default) makes every call a no-op, so tests never need to provide
// one.
type AuditSink interface {
	RecordTransition(address, sessionID, fromState, toState string)
	RecordCompletedPairing(address, name string, nodeType uint16, nodeSubtype, manufacturer uint8)
	RecordFailure(address, sessionID, reason string)
}

// Engine is the Pairing Engine. One Engine drives at most one
// session at a time; the Registry enforces the single-session
// invariant across addresses.
type Engine struct {
	registry       *registry.Registry
	gateway        sender
	controllerAddr frame.Address

	systemKey    [16]byte
	hasSystemKey bool
	autoPair     bool
	audit        AuditSink

	// deadline is the global pairing timeout, PAIRING_TIMEOUT_MS in
	// the configuration; it defaults to pairingDeadline and is overridable via
	// SetPairingDeadline.
	deadline time.Duration

	active  bool
	session *session
}

// New constructs an Engine bound to a registry and radio gateway.
// controllerAddr is the 3-byte identity this engine sends frames
// from.
func New(reg *registry.Registry, gw sender, controllerAddr frame.Address) *Engine {
	return &Engine{
		registry:       reg,
		gateway:        gw,
		controllerAddr: controllerAddr,
		deadline:       pairingDeadline,
	}
}

// SetPairingDeadline overrides the global pairing timeout
// (PAIRING_TIMEOUT_MS), normally pairingDeadline.
func (e *Engine) SetPairingDeadline(d time.Duration) {
	e.deadline = d
}

// SetSystemKey injects the 16-byte system key. StartPairing fails
// until this has been called.
func (e *Engine) SetSystemKey(key [16]byte) {
	e.systemKey = key
	e.hasSystemKey = true
}

// SetAuditSink registers the collaborator that receives pairing
// lifecycle events. Passing nil disables auditing.
func (e *Engine) SetAuditSink(sink AuditSink) {
	e.audit = sink
}

// EnableAutoPair arms the self-clearing auto-pair mode: the next
// CmdDiscoveryAnswer from an unknown peripheral triggers an implicit
// StartPairing.
func (e *Engine) EnableAutoPair() { e.autoPair = true }

// DisableAutoPair clears auto-pair mode without waiting for it to
// self-clear.
func (e *Engine) DisableAutoPair() { e.autoPair = false }

// IsActive reports whether a pairing session is in progress.
func (e *Engine) IsActive() bool { return e.active }

// ControllerAddress returns the 3-byte identity this engine sends
// frames from.
func (e *Engine) ControllerAddress() frame.Address { return e.controllerAddr }

// PairingDeadline returns the global pairing timeout currently in
// effect (PAIRING_TIMEOUT_MS, or its default).
func (e *Engine) PairingDeadline() time.Duration { return e.deadline }

// CurrentDevice returns the device record of the active session, or
// nil if no session is active.
func (e *Engine) CurrentDevice() *registry.Device {
	if !e.active {
		return nil
	}
	d, err := e.registry.Get(e.session.addr)
	if err != nil {
		return nil
	}
	return d
}

// StartPairing begins a session against addr.
func (e *Engine) StartPairing(addr frame.Address) error {
	if !e.hasSystemKey {
		return ErrNoSystemKey
	}
	if e.active && e.session.addr != addr {
		return ErrAlreadyActive
	}

	now := time.Now()
	if _, err := e.registry.StartPairing(addr, now); err != nil {
		return fmt.Errorf("pairing: %w", err)
	}

	e.active = true
	e.session = newSession(addr, now)
	log.Printf("pairing: session %s started for %s", e.session.id, addr)
	e.broadcastWake(now)
	return nil
}

// CancelPairing synchronously and idempotently resets the active
// session. Any in-flight outbound frame remains owned by the Radio
// Gateway, which may still transmit it; the engine will ignore any
// resulting late response because it is no longer active.
func (e *Engine) CancelPairing() {
	if !e.active {
		return
	}
	addr := e.session.addr
	e.active = false
	e.session = nil
	if err := e.registry.FailPairing(addr); err != nil {
		log.Printf("pairing: cancel: reset %s to UNPAIRED: %v", addr, err)
	}
	if d, err := e.registry.Get(addr); err == nil {
		d.PairingState = registry.Unpaired
	}
}

// HandleInbound dispatches a decoded frame to the active session, or
// to auto-pair detection if no session is active.
func (e *Engine) HandleInbound(f *frame.Frame) Result {
	if !e.active {
		if e.autoPair && f.Cmd == frame.CmdDiscoveryAnswer {
			if _, err := e.registry.Get(f.Source); err == nil {
				return Ignored
			}
			e.autoPair = false
			if err := e.StartPairing(f.Source); err != nil {
				log.Printf("pairing: auto-pair StartPairing(%s): %v", f.Source, err)
				return Ignored
			}
			return e.HandleInbound(f)
		}
		return Ignored
	}
	if f.Source != e.session.addr {
		return Ignored
	}
	e.dispatch(f, time.Now())
	return Consumed
}

// Tick drives timeouts, retries, and state-triggered outbound sends.
// Callers are expected to invoke this at >= 10 Hz.
func (e *Engine) Tick(now time.Time) {
	if !e.active {
		return
	}
	s := e.session

	if now.Sub(s.startedAt) > e.deadline {
		e.fail(ErrTimeout)
		return
	}

	d, err := e.registry.Get(s.addr)
	if err != nil {
		e.fail(fmt.Errorf("pairing: lost device record: %w", err))
		return
	}

	if d.PairingState == registry.Discovering {
		e.maybeRebroadcastWake(now)
	}
	if d.PairingState == registry.Broadcasting2A && s.pending == nil {
		e.tickBroadcasting2A(d, now)
	}

	if s.pending != nil {
		e.retryPending(now)
		return
	}

	if now.Sub(s.stateEnteredAt) > interStateWait {
		e.onInterStateTimeout(d, now)
	}
}

func (e *Engine) maybeRebroadcastWake(now time.Time) {
	s := e.session
	if !s.lastWakeAt.IsZero() && now.Sub(s.lastWakeAt) < discoveryInterval {
		return
	}
	e.broadcastWake(now)
}

func (e *Engine) broadcastWake(now time.Time) {
	e.session.lastWakeAt = now
	e.send(frame.Broadcast, frame.CmdDiscoveryWake, nil, radio.SendOptions{
		ShortPreamble: false,
		Delayed:       250 * time.Millisecond,
	}, nil)
}

// send attempts one transmission immediately; on ErrRadioBusy it
// installs a pendingSend so Tick retries without the caller blocking.
// onSuccess runs only once the Gateway confirms transmission.
func (e *Engine) send(target frame.Address, cmd byte, payload []byte, opts radio.SendOptions, onSuccess func()) {
	e.session.lastSentTarget = target
	e.session.lastSentCmd = cmd
	e.session.lastSentPayload = payload
	e.session.lastSentOpts = opts

	f, err := frame.New(e.controllerAddr, target, cmd, payload)
	if err != nil {
		log.Printf("pairing: build frame cmd=%#x: %v", cmd, err)
		e.fail(err)
		return
	}
	f.Ctrl2 = ctrl2For(cmd)
	if err := e.gateway.Send(f, opts); err != nil {
		e.session.pending = &pendingSend{
			cmd: cmd, payload: payload, opts: opts,
			attempts:  1,
			nextAt:    time.Now().Add(sendRetryInterval),
			onSuccess: onSuccess,
			target:    target,
		}
		return
	}
	if onSuccess != nil {
		onSuccess()
	}
}

func (e *Engine) retryPending(now time.Time) {
	p := e.session.pending
	if now.Before(p.nextAt) {
		return
	}
	f, err := frame.New(e.controllerAddr, p.target, p.cmd, p.payload)
	if err != nil {
		e.fail(err)
		return
	}
	f.Ctrl2 = ctrl2For(p.cmd)
	err = e.gateway.Send(f, p.opts)
	if err == nil {
		e.session.pending = nil
		if p.onSuccess != nil {
			p.onSuccess()
		}
		return
	}
	p.attempts++
	if p.attempts > maxSendAttempts {
		e.fail(ErrSendExhausted)
		return
	}
	p.nextAt = now.Add(sendRetryInterval)
}

func (e *Engine) fail(err error) {
	addr := e.session.addr
	sessionID := e.session.id.String()
	log.Printf("pairing: session %s (%s) failed: %v", sessionID, addr, err)
	e.active = false
	e.session = nil
	if ferr := e.registry.FailPairing(addr); ferr != nil {
		log.Printf("pairing: mark %s failed: %v", addr, ferr)
	}
	if e.audit != nil {
		e.audit.RecordFailure(addr.String(), sessionID, err.Error())
	}
}

// advance moves the session's device record to state and resets the
// inter-state wait clock. Transitions that follow an outbound frame
// call it from that send's onSuccess callback, never before the send
// is confirmed; the transitions driven by an inbound CmdPairingConfirm
// or by the inter-state timeout call it directly.
func (e *Engine) advance(state registry.State) {
	now := time.Now()
	d, err := e.registry.Get(e.session.addr)
	if err != nil {
		return
	}
	from := d.PairingState
	d.PairingState = state
	d.Touch(now)
	e.session.enterState(now)
	if e.audit != nil {
		e.audit.RecordTransition(d.AddressStr, e.session.id.String(), from.String(), state.String())
	}
}

// ctrl2For returns the ctrl2 bits the command catalog mandates for
// cmd; every other command uses the zero value.
func ctrl2For(cmd byte) frame.Ctrl2 {
	switch cmd {
	case frame.CmdDiscoveryWake:
		return frame.Ctrl2{LPM: true, Prio: true}
	case frame.CmdPriorityAddrReq:
		return frame.Ctrl2{Prio: true}
	case frame.CmdKeyTransfer:
		return frame.Ctrl2{KeyTransfer: true}
	default:
		return frame.Ctrl2{}
	}
}

func randomChallenge() [6]byte {
	var c [6]byte
	_, _ = rand.Read(c[:])
	return c
}
