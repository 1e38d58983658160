package registry

import (
	"time"

	"github.com/kfroeschl/iohomecontrol-ai/internal/frame"
)

// Capabilities holds the decoded device-information fields gathered
// during the info-gathering phase of pairing.
type Capabilities struct {
	NodeType     uint16 // 10 bits, from CMD 0x29
	NodeSubtype  uint8  // 6 bits, from CMD 0x29
	Manufacturer uint8
	MultiInfo    uint8
	Timestamp    uint16

	ActuatorTurnaroundTime uint8
	SyncCtrlGrp            bool
	RFSupport              bool
	IOMembership           uint8
	PowerSaveMode          bool

	Name string

	GeneralInfo1    [14]byte
	HasGeneralInfo1 bool
	GeneralInfo2    [16]byte
	HasGeneralInfo2 bool
}

// decodeMultiInfo unpacks the multi-info byte from CMD 0x29 into its
// individual capability flags.
func decodeMultiInfo(b byte) (turnaround uint8, syncCtrlGrp, rfSupport bool, ioMembership uint8, powerSave bool) {
	turnaround = b & 0x03
	syncCtrlGrp = b&0x04 != 0
	rfSupport = b&0x08 != 0
	ioMembership = (b >> 4) & 0x03
	powerSave = b&0x40 != 0
	return
}

// Device is a single peripheral's pairing and cryptographic state.
type Device struct {
	Address    frame.Address
	AddressStr string

	PairingState State

	LastSeen        time.Time
	PairingStartTime time.Time

	SystemKey    [16]byte
	HasSystemKey bool
	SessionKey   [16]byte
	HasSessionKey bool
	StackKey     [16]byte
	HasStackKey  bool

	LastChallenge      [6]byte
	LastResponse       [6]byte
	HasPendingChallenge bool

	LastCommand    []byte // without the command byte itself
	LastCommandByte byte

	Capabilities Capabilities
	Description  string

	SequenceNumber uint16
}

// NewDevice constructs a device record in the UNPAIRED state.
func NewDevice(addr frame.Address) *Device {
	return &Device{
		Address:    addr,
		AddressStr: addr.String(),
	}
}

// Touch records the current time as the last-seen timestamp.
func (d *Device) Touch(now time.Time) {
	d.LastSeen = now
}

// HasPairingTimedOut reports whether a pairing in progress has exceeded
// the global pairing deadline.
func (d *Device) HasPairingTimedOut(now time.Time, deadline time.Duration) bool {
	if !d.PairingState.IsPairing() {
		return false
	}
	return now.Sub(d.PairingStartTime) > deadline
}

// zeroKeys wipes all cryptographic material from the record in place.
func (d *Device) zeroKeys() {
	for i := range d.SystemKey {
		d.SystemKey[i] = 0
	}
	for i := range d.SessionKey {
		d.SessionKey[i] = 0
	}
	for i := range d.StackKey {
		d.StackKey[i] = 0
	}
	for i := range d.LastChallenge {
		d.LastChallenge[i] = 0
	}
	for i := range d.LastResponse {
		d.LastResponse[i] = 0
	}
	d.HasSystemKey, d.HasSessionKey, d.HasStackKey, d.HasPendingChallenge = false, false, false, false
}
