// Package frame implements the link-layer framing used by the IOHC radio
// protocol: address types, the bit-packed control bytes, and the codec
// that turns a Frame into on-air bytes and back.
package frame

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// MaxPayloadLen is the largest payload a single frame may carry.
const MaxPayloadLen = 21

// headerLen is ctrl1 + ctrl2 + source(3) + target(3) + cmd, the fixed
// portion of every frame before the payload.
const headerLen = 9

var (
	// ErrBadCRC is returned by Decode when the trailing two bytes do not
	// match the computed CRC of the preceding bytes.
	ErrBadCRC = errors.New("frame: bad crc")
	// ErrTooShort is returned by Decode when the input is smaller than
	// the fixed header plus CRC.
	ErrTooShort = errors.New("frame: too short")
	// ErrPayloadTooLong is returned by Encode/Decode when the payload
	// exceeds MaxPayloadLen.
	ErrPayloadTooLong = errors.New("frame: payload too long")
)

// Address is a 3-byte peripheral or controller identifier.
type Address [3]byte

// Broadcast is the fixed broadcast address used for discovery.
var Broadcast = Address{0x00, 0x00, 0x3B}

// String renders the address as lowercase hex, matching the persisted
// device-record key format.
func (a Address) String() string {
	return fmt.Sprintf("%02x%02x%02x", a[0], a[1], a[2])
}

// IsBroadcast reports whether a equals the broadcast address.
func (a Address) IsBroadcast() bool {
	return a == Broadcast
}

// ParseAddress parses a 3-byte slice into an Address.
func ParseAddress(b []byte) (Address, error) {
	var a Address
	if len(b) != 3 {
		return a, fmt.Errorf("frame: address must be 3 bytes, got %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ParseAddressHex parses a 6-character hex string (the form operator
// tooling and the JSON persistence format both use) into an Address.
func ParseAddressHex(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("frame: bad address hex %q: %w", s, err)
	}
	return ParseAddress(b)
}

// Ctrl1 is the first control byte: {msgLen:5, protocol:1, startFrame:1, endFrame:1}.
type Ctrl1 struct {
	MsgLen     uint8 // 5 bits, payload bytes beyond the 8-byte header
	Protocol   bool
	StartFrame bool
	EndFrame   bool
}

func (c Ctrl1) encode() byte {
	b := c.MsgLen & 0x1F
	if c.Protocol {
		b |= 1 << 5
	}
	if c.StartFrame {
		b |= 1 << 6
	}
	if c.EndFrame {
		b |= 1 << 7
	}
	return b
}

func decodeCtrl1(b byte) Ctrl1 {
	return Ctrl1{
		MsgLen:     b & 0x1F,
		Protocol:   b&(1<<5) != 0,
		StartFrame: b&(1<<6) != 0,
		EndFrame:   b&(1<<7) != 0,
	}
}

// Ctrl2 is the second control byte carrying LPM, priority, and a
// third flag.
//
// KeyTransfer is bit 2, observed set (ctrl2 = 0x04) on the published
// "2W key pull" reference frame, a CmdKeyTransfer. Its real name and
// the firmware condition that sets it are not recoverable from the
// retrieved sources (the defining header was not part of the
// retrieval pack); this package sets it for every CmdKeyTransfer
// frame, the one fact the vector actually establishes.
type Ctrl2 struct {
	LPM         bool
	Prio        bool
	KeyTransfer bool
}

func (c Ctrl2) encode() byte {
	var b byte
	if c.LPM {
		b |= 1 << 0
	}
	if c.Prio {
		b |= 1 << 1
	}
	if c.KeyTransfer {
		b |= 1 << 2
	}
	return b
}

func decodeCtrl2(b byte) Ctrl2 {
	return Ctrl2{
		LPM:         b&(1<<0) != 0,
		Prio:        b&(1<<1) != 0,
		KeyTransfer: b&(1<<2) != 0,
	}
}

// Frame is a single on-air link-layer unit.
type Frame struct {
	Ctrl1   Ctrl1
	Ctrl2   Ctrl2
	Source  Address
	Target  Address
	Cmd     byte
	Payload []byte
}

// New builds a short frame (both StartFrame and EndFrame set, the
// convention observed for the 2W pairing exchange) with msgLen computed
// from the payload length.
//
// This msgLen convention is internally consistent (Decode recovers
// exactly what Encode produced) but is not verified bit-exact against
// the published on-air reference frames: the routine that packs the
// production ctrl1 byte is not among the retrieved sources, and at
// least one published vector's ctrl1 cannot be reproduced by any
// msgLen/start/end assignment this formula can reach. See
// TestReferenceVectorKeyTransferFrame.
func New(source, target Address, cmd byte, payload []byte) (*Frame, error) {
	if len(payload) > MaxPayloadLen {
		return nil, ErrPayloadTooLong
	}
	return &Frame{
		Ctrl1: Ctrl1{
			MsgLen:     uint8(len(payload) + 1), // +1 for cmd byte
			StartFrame: true,
			EndFrame:   true,
		},
		Source:  source,
		Target:  target,
		Cmd:     cmd,
		Payload: payload,
	}, nil
}

// Encode serializes f to on-air bytes, appending the trailing CRC.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxPayloadLen {
		return nil, ErrPayloadTooLong
	}
	buf := make([]byte, headerLen+len(f.Payload)+2)
	buf[0] = f.Ctrl1.encode()
	buf[1] = f.Ctrl2.encode()
	copy(buf[2:5], f.Source[:])
	copy(buf[5:8], f.Target[:])
	buf[8] = f.Cmd
	copy(buf[9:], f.Payload)

	crc := ComputeCRC(buf[:headerLen+len(f.Payload)])
	buf[len(buf)-2] = byte(crc)
	buf[len(buf)-1] = byte(crc >> 8)
	return buf, nil
}

// Decode parses on-air bytes into a Frame, verifying the trailing CRC.
func Decode(b []byte) (*Frame, error) {
	if len(b) < headerLen+2 {
		return nil, ErrTooShort
	}
	body := b[:len(b)-2]
	if len(body)-headerLen > MaxPayloadLen {
		return nil, ErrPayloadTooLong
	}

	gotCRC := uint16(b[len(b)-2]) | uint16(b[len(b)-1])<<8
	wantCRC := ComputeCRC(body)
	if gotCRC != wantCRC {
		return nil, ErrBadCRC
	}

	f := &Frame{
		Ctrl1: decodeCtrl1(b[0]),
		Ctrl2: decodeCtrl2(b[1]),
		Cmd:   b[8],
	}
	copy(f.Source[:], b[2:5])
	copy(f.Target[:], b[5:8])
	payloadLen := len(body) - headerLen
	if payloadLen > 0 {
		f.Payload = make([]byte, payloadLen)
		copy(f.Payload, b[headerLen:headerLen+payloadLen])
	}
	return f, nil
}

// FrameData returns cmd followed by payload, the byte sequence used as
// frame_data input to the crypto kernel's IV construction.
func (f *Frame) FrameData() []byte {
	out := make([]byte, 1+len(f.Payload))
	out[0] = f.Cmd
	copy(out[1:], f.Payload)
	return out
}
