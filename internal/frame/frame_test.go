package frame

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	src := Address{0xBA, 0x11, 0xAD}
	dst := Address{0xAB, 0xCD, 0xEF}
	payloads := [][]byte{
		nil,
		{0x02},
		bytes.Repeat([]byte{0x55}, 21),
	}
	for _, p := range payloads {
		f, err := New(src, dst, 0x2E, p)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		enc, err := f.Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Source != f.Source || got.Target != f.Target || got.Cmd != f.Cmd {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, f)
		}
		if !bytes.Equal(got.Payload, f.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, f.Payload)
		}
	}
}

func TestPayloadTooLong(t *testing.T) {
	src := Address{0xBA, 0x11, 0xAD}
	dst := Address{0xAB, 0xCD, 0xEF}
	if _, err := New(src, dst, 0x2E, bytes.Repeat([]byte{0x00}, 22)); err != ErrPayloadTooLong {
		t.Fatalf("expected ErrPayloadTooLong, got %v", err)
	}
}

func TestDecodeBadCRC(t *testing.T) {
	src := Address{0xBA, 0x11, 0xAD}
	dst := Address{0xAB, 0xCD, 0xEF}
	f, _ := New(src, dst, 0x28, nil)
	enc, _ := f.Encode()
	enc[len(enc)-1] ^= 0xFF
	if _, err := Decode(enc); err != ErrBadCRC {
		t.Fatalf("expected ErrBadCRC, got %v", err)
	}
}

func TestDecodeTooShort(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x02}); err != ErrTooShort {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestAddressString(t *testing.T) {
	a := Address{0xAB, 0xCD, 0xEF}
	if got := a.String(); got != "abcdef" {
		t.Fatalf("String() = %q, want abcdef", got)
	}
	if !Broadcast.IsBroadcast() {
		t.Fatalf("Broadcast.IsBroadcast() = false")
	}
}

func TestFrameData(t *testing.T) {
	f := &Frame{Cmd: 0x32, Payload: []byte{0x01, 0x02, 0x03}}
	want := []byte{0x32, 0x01, 0x02, 0x03}
	if got := f.FrameData(); !bytes.Equal(got, want) {
		t.Fatalf("FrameData() = %x, want %x", got, want)
	}
}

// TestReferenceVectorKeyTransferFrame decodes the "2W key pull"
// on-air frame published as a bit-exact reference vector and checks
// what this codec can actually reproduce from it. It is not a full
// pass/fail bit-exact assertion: ctrl1 and the CRC depend on
// production constants this package's docs (and DESIGN.md) disclose
// as unrecoverable from the retrieved sources, so those two fields
// are reported rather than asserted equal.
func TestReferenceVectorKeyTransferFrame(t *testing.T) {
	vector := []byte{
		0x18, 0x04, 0xF0, 0x0F, 0x00, 0xFE, 0xEF, 0xEE, 0x32,
		0xEA, 0x42, 0x5A, 0x7A, 0x18, 0x28, 0x85, 0xD4, 0xEA, 0xEE,
		0xFD, 0x41, 0x6D, 0x62, 0x5E, 0x01,
		0x63, 0x79,
	}

	wantSource := Address{0xF0, 0x0F, 0x00}
	wantTarget := Address{0xFE, 0xEF, 0xEE}
	wantCmd := byte(0x32)
	wantPayload := vector[9:25]

	gotSource, err := ParseAddress(vector[2:5])
	if err != nil || gotSource != wantSource {
		t.Fatalf("source = %x, %v; want %x", gotSource, err, wantSource)
	}
	gotTarget, err := ParseAddress(vector[5:8])
	if err != nil || gotTarget != wantTarget {
		t.Fatalf("target = %x, %v; want %x", gotTarget, err, wantTarget)
	}
	if got := vector[8]; got != wantCmd {
		t.Fatalf("cmd = %#x, want %#x", got, wantCmd)
	}
	if !bytes.Equal(vector[9:25], wantPayload) {
		t.Fatalf("payload = %x, want %x", vector[9:25], wantPayload)
	}

	// ctrl1/ctrl2 as published: ctrl1=0x18, ctrl2=0x04. This package's
	// own encoder for the same source/target/cmd/payload does not
	// reproduce ctrl1 bit-exact (see New's doc comment); ctrl2's third
	// bit is now modeled as Ctrl2.KeyTransfer and does reproduce.
	gotCtrl2 := decodeCtrl2(vector[1])
	wantCtrl2 := Ctrl2{KeyTransfer: true}
	if gotCtrl2 != wantCtrl2 {
		t.Fatalf("ctrl2 = %+v, want %+v", gotCtrl2, wantCtrl2)
	}

	f, err := New(wantSource, wantTarget, wantCmd, wantPayload)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.Ctrl2 = wantCtrl2
	if got := f.Ctrl1.encode(); got != vector[0] {
		t.Logf("ctrl1 = %#x, vector has %#x: known gap, see DESIGN.md", got, vector[0])
	}

	// The CRC depends on the same unrecovered polynomial/init values
	// as every other vector; this codec's own CRC is internally
	// consistent but not claimed to match the published trailer.
	gotCRC := ComputeCRC(vector[:len(vector)-2])
	wantCRC := uint16(vector[len(vector)-2]) | uint16(vector[len(vector)-1])<<8
	if gotCRC != wantCRC {
		t.Logf("crc = %#04x, vector has %#04x: known gap, see DESIGN.md", gotCRC, wantCRC)
	}
}
