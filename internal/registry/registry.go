// Package registry owns the set of known peripherals and their
// pairing/cryptographic state: the single authoritative writer of
// device records.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kfroeschl/iohomecontrol-ai/internal/frame"
)

var (
	// ErrNotFound is returned by Get/Remove when no record exists for
	// the given address.
	ErrNotFound = errors.New("registry: device not found")
	// ErrAlreadyPairing is returned by StartPairing when a different
	// device already has an active pairing session, enforcing the
	// single-in-flight-session invariant.
	ErrAlreadyPairing = errors.New("registry: another device is already pairing")
)

// Persister is the external collaborator responsible for durable
// storage of completed pairings. The registry calls Persist on
// CompletePairing and never reads the store back itself.
type Persister interface {
	Persist(d *Device) error
}

// noopPersister is used when the registry is constructed without a
// Persister, so CompletePairing never needs a nil check at the call
// site.
type noopPersister struct{}

func (noopPersister) Persist(*Device) error { return nil }

// Registry is the in-memory address -> Device map. All access is
// synchronized with a mutex even though the engine's own scheduling is
// single-threaded and cooperative, because the radio gateway's receive
// loop, the admin RPC server, and the daemon's tick loop run as
// separate goroutines (the daemon serializes its own calls under one
// lock); the mutex is cheap insurance at the boundary.
type Registry struct {
	mu        sync.Mutex
	devices   map[frame.Address]*Device
	persister Persister
}

// New constructs an empty registry. A nil persister is replaced with a
// no-op so CompletePairing is always safe to call.
func New(persister Persister) *Registry {
	if persister == nil {
		persister = noopPersister{}
	}
	return &Registry{
		devices:   make(map[frame.Address]*Device),
		persister: persister,
	}
}

// Get returns the record for addr, or ErrNotFound.
func (r *Registry) Get(addr frame.Address) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// Add creates (or returns the existing) record for addr.
func (r *Registry) Add(addr frame.Address) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[addr]; ok {
		return d
	}
	d := NewDevice(addr)
	r.devices[addr] = d
	return d
}

// Remove deletes the record for addr after zeroing its key material.
func (r *Registry) Remove(addr frame.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[addr]
	if !ok {
		return ErrNotFound
	}
	d.zeroKeys()
	delete(r.devices, addr)
	return nil
}

// ListAll returns every known device record.
func (r *Registry) ListAll() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}

// ListByState returns every device currently in the given state.
func (r *Registry) ListByState(state State) []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Device
	for _, d := range r.devices {
		if d.PairingState == state {
			out = append(out, d)
		}
	}
	return out
}

// FindInPairing returns the single device with a non-terminal pairing
// state, or nil. The single-session invariant guarantees at most one
// exists.
func (r *Registry) FindInPairing() *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.PairingState.IsPairing() {
			return d
		}
	}
	return nil
}

// StartPairing creates the record for addr if needed, enforces the
// single-session invariant, and transitions it to DISCOVERING.
func (r *Registry) StartPairing(addr frame.Address, now time.Time) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.devices {
		if d.PairingState.IsPairing() && d.Address != addr {
			return nil, ErrAlreadyPairing
		}
	}

	d, ok := r.devices[addr]
	if !ok {
		d = NewDevice(addr)
		r.devices[addr] = d
	}
	d.PairingState = Discovering
	d.PairingStartTime = now
	d.Touch(now)
	return d, nil
}

// CompletePairing transitions addr to PAIRED and persists the record
// before returning, satisfying the invariant that a transition into
// PAIRED is durable before the next outbound command targeting that
// device.
func (r *Registry) CompletePairing(addr frame.Address) error {
	r.mu.Lock()
	d, ok := r.devices[addr]
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if !d.HasSystemKey {
		return fmt.Errorf("registry: cannot complete pairing for %s without a system key", d.AddressStr)
	}
	d.PairingState = Paired
	if err := r.persister.Persist(d); err != nil {
		return fmt.Errorf("registry: persist %s: %w", d.AddressStr, err)
	}
	return nil
}

// FailPairing transitions addr to PAIRING_FAILED. The record is kept,
// not deleted.
func (r *Registry) FailPairing(addr frame.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[addr]
	if !ok {
		return ErrNotFound
	}
	d.PairingState = PairingFailed
	return nil
}

// StoreChallenge records a freshly received challenge against addr.
func (r *Registry) StoreChallenge(addr frame.Address, challenge [6]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[addr]
	if !ok {
		return ErrNotFound
	}
	d.LastChallenge = challenge
	d.HasPendingChallenge = true
	return nil
}

// ClearChallenge clears the pending-challenge state for addr, called
// once the matching CMD 0x3D has been emitted.
func (r *Registry) ClearChallenge(addr frame.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[addr]
	if !ok {
		return ErrNotFound
	}
	d.LastChallenge = [6]byte{}
	d.HasPendingChallenge = false
	return nil
}

// StoreResponse records the MAC most recently sent in answer to a
// challenge against addr, so a crossed-on-the-air retransmit of that
// challenge can be answered again without recomputing the MAC.
func (r *Registry) StoreResponse(addr frame.Address, mac [6]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[addr]
	if !ok {
		return ErrNotFound
	}
	d.LastResponse = mac
	return nil
}

// StoreSystemKey writes the pairing system key into addr's record.
func (r *Registry) StoreSystemKey(addr frame.Address, key [16]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[addr]
	if !ok {
		return ErrNotFound
	}
	d.SystemKey = key
	d.HasSystemKey = true
	return nil
}

// StoreStackKey records the raw encrypted key-transfer payload for
// audit purposes.
func (r *Registry) StoreStackKey(addr frame.Address, key [16]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[addr]
	if !ok {
		return ErrNotFound
	}
	d.StackKey = key
	d.HasStackKey = true
	return nil
}

// StoreLastCommand records the most recently emitted authenticated
// command, so a later mid-command challenge can compute its MAC over
// the right frame_data.
func (r *Registry) StoreLastCommand(addr frame.Address, cmdByte byte, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[addr]
	if !ok {
		return ErrNotFound
	}
	d.LastCommandByte = cmdByte
	d.LastCommand = append(d.LastCommand[:0], payload...)
	return nil
}

// UpdateFromDiscoveryAnswer decodes a CMD 0x29 payload into addr's
// capabilities.
func (r *Registry) UpdateFromDiscoveryAnswer(addr frame.Address, payload []byte) error {
	if len(payload) < 9 {
		return fmt.Errorf("registry: discovery answer too short: %d bytes", len(payload))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[addr]
	if !ok {
		return ErrNotFound
	}
	typeAndSub := uint16(payload[0])<<8 | uint16(payload[1])
	d.Capabilities.NodeType = (typeAndSub >> 6) & 0x3FF
	d.Capabilities.NodeSubtype = uint8(typeAndSub & 0x3F)
	d.Capabilities.Manufacturer = payload[5]
	d.Capabilities.MultiInfo = payload[6]
	d.Capabilities.ActuatorTurnaroundTime, d.Capabilities.SyncCtrlGrp, d.Capabilities.RFSupport,
		d.Capabilities.IOMembership, d.Capabilities.PowerSaveMode = decodeMultiInfo(payload[6])
	d.Capabilities.Timestamp = uint16(payload[7])<<8 | uint16(payload[8])
	return nil
}

// UpdateFromNameAnswer stores the device name parsed from CMD 0x51.
func (r *Registry) UpdateFromNameAnswer(addr frame.Address, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[addr]
	if !ok {
		return ErrNotFound
	}
	d.Capabilities.Name = name
	return nil
}

// UpdateFromGeneralInfo1 stores the raw 14-byte block from CMD 0x55.
func (r *Registry) UpdateFromGeneralInfo1(addr frame.Address, data []byte) error {
	if len(data) != 14 {
		return fmt.Errorf("registry: general info 1 must be 14 bytes, got %d", len(data))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[addr]
	if !ok {
		return ErrNotFound
	}
	copy(d.Capabilities.GeneralInfo1[:], data)
	d.Capabilities.HasGeneralInfo1 = true
	return nil
}

// UpdateFromGeneralInfo2 stores the raw 16-byte block from CMD 0x57.
func (r *Registry) UpdateFromGeneralInfo2(addr frame.Address, data []byte) error {
	if len(data) != 16 {
		return fmt.Errorf("registry: general info 2 must be 16 bytes, got %d", len(data))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[addr]
	if !ok {
		return ErrNotFound
	}
	copy(d.Capabilities.GeneralInfo2[:], data)
	d.Capabilities.HasGeneralInfo2 = true
	return nil
}

// SweepTimedOut transitions every device whose pairing has exceeded
// deadline into PAIRING_FAILED, called from the daemon's periodic
// tick. Matches the original Device2WManager::removeTimedOutDevices
// intent without its auto-deletion: failed records are kept.
func (r *Registry) SweepTimedOut(now time.Time, deadline time.Duration) []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	var timedOut []*Device
	for _, d := range r.devices {
		if d.HasPairingTimedOut(now, deadline) {
			d.PairingState = PairingFailed
			timedOut = append(timedOut, d)
		}
	}
	return timedOut
}

// Clear removes every record after zeroing its keys.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		d.zeroKeys()
	}
	r.devices = make(map[frame.Address]*Device)
}
