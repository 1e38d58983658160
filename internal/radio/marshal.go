package radio

import "encoding/binary"

// marshalDownlink serializes a transmit command for the radio daemon.
// Layout: 4 bytes downlink id, 1 byte channel, 1 byte short-preamble
// flag, 2 bytes payload length, then the payload. Mirrors the
// minimal fixed-header style the chirpstack concentratord boundary
// uses for its own downlink frames, sized down to this protocol's
// needs.
func marshalDownlink(downlinkID uint32, ch Channel, shortPreamble bool, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], downlinkID)
	buf[4] = byte(ch)
	if shortPreamble {
		buf[5] = 1
	}
	binary.LittleEndian.PutUint16(buf[6:8], uint16(len(payload)))
	copy(buf[8:], payload)
	return buf
}

// ackIsOK reports whether a TX acknowledgement frame indicates
// success. An empty frame or a leading 0x00 status byte means OK; any
// other leading status byte is treated as a failure.
func ackIsOK(frame []byte) bool {
	return len(frame) == 0 || frame[0] == 0x00
}
