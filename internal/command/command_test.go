package command

import (
	"bytes"
	"testing"
	"time"

	"github.com/kfroeschl/iohomecontrol-ai/internal/crypto"
	"github.com/kfroeschl/iohomecontrol-ai/internal/frame"
	"github.com/kfroeschl/iohomecontrol-ai/internal/radio"
	"github.com/kfroeschl/iohomecontrol-ai/internal/registry"
)

type recordingSender struct {
	sent []*frame.Frame
}

func (r *recordingSender) Send(f *frame.Frame, _ radio.SendOptions) error {
	cp := *f
	cp.Payload = append([]byte{}, f.Payload...)
	r.sent = append(r.sent, &cp)
	return nil
}

func (r *recordingSender) last() *frame.Frame {
	if len(r.sent) == 0 {
		return nil
	}
	return r.sent[len(r.sent)-1]
}

func inbound(t *testing.T, source, target frame.Address, cmd byte, payload []byte) *frame.Frame {
	t.Helper()
	f, err := frame.New(source, target, cmd, payload)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

var (
	testController = frame.Address{0xBA, 0x11, 0xAD}
	testPeripheral = frame.Address{0x01, 0x02, 0x03}
	testSystemKey  = [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16}
)

// pairedTestGateway constructs a Gateway against a registry holding a
// single already-PAIRED device, the precondition for everything this
// package does.
func pairedTestGateway(t *testing.T) (*Gateway, *recordingSender, *registry.Registry) {
	t.Helper()
	reg := registry.New(nil)
	if _, err := reg.StartPairing(testPeripheral, time.Now()); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}
	if err := reg.StoreSystemKey(testPeripheral, testSystemKey); err != nil {
		t.Fatalf("StoreSystemKey: %v", err)
	}
	if err := reg.CompletePairing(testPeripheral); err != nil {
		t.Fatalf("CompletePairing: %v", err)
	}
	rs := &recordingSender{}
	g := New(reg, rs, testController)
	return g, rs, reg
}

func TestSendRejectsUnpairedDevice(t *testing.T) {
	reg := registry.New(nil)
	rs := &recordingSender{}
	g := New(reg, rs, testController)

	if err := g.PlugOn(testPeripheral, nil); err == nil {
		t.Fatalf("PlugOn against an unknown device must fail")
	}
	if len(rs.sent) != 0 {
		t.Fatalf("no frame should have been sent")
	}
}

// TestMidCommandChallenge exercises the case where a plug-ON command
// draws a mid-command challenge: the gateway must answer it with
// mac2W(challenge, systemKey, [commandByte]), the command byte, not
// 0x3D's own byte.
func TestMidCommandChallenge(t *testing.T) {
	g, rs, reg := pairedTestGateway(t)

	var gotErr error
	called := false
	if err := g.PlugOn(testPeripheral, func(err error) { called = true; gotErr = err }); err != nil {
		t.Fatalf("PlugOn: %v", err)
	}
	if got := rs.last(); got.Cmd != frame.CmdPlugControl || !bytes.Equal(got.Payload, plugOnPayload) {
		t.Fatalf("outbound cmd=%#x payload=%x, want CmdPlugControl/%x", got.Cmd, got.Payload, plugOnPayload)
	}

	c3 := [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	result := g.HandleInbound(inbound(t, testPeripheral, testController, frame.CmdChallenge, c3[:]))
	if result != Consumed {
		t.Fatalf("HandleInbound(0x3C) = %v, want Consumed", result)
	}

	wantMac, err := crypto.MAC2W(c3, testSystemKey, []byte{frame.CmdPlugControl})
	if err != nil {
		t.Fatalf("MAC2W: %v", err)
	}
	if got := rs.last(); got.Cmd != frame.CmdChallengeResponse || !bytes.Equal(got.Payload, wantMac[:]) {
		t.Fatalf("response to challenge: got cmd=%#x payload=%x, want CmdChallengeResponse/%x", got.Cmd, got.Payload, wantMac)
	}

	d, err := reg.Get(testPeripheral)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !d.HasPendingChallenge {
		t.Fatalf("HasPendingChallenge should be set while awaiting the status answer")
	}

	if result := g.HandleInbound(inbound(t, testPeripheral, testController, frame.CmdStatusAnswer, []byte{0x00})); result != Consumed {
		t.Fatalf("HandleInbound(0x04) = %v, want Consumed", result)
	}
	if !called {
		t.Fatalf("onResult callback was never invoked")
	}
	if gotErr != nil {
		t.Fatalf("onResult error = %v, want nil", gotErr)
	}
	if d.HasPendingChallenge {
		t.Fatalf("HasPendingChallenge should be cleared once the status answer arrives")
	}
}

// TestCrossedChallengeRetransmitIsIdempotent covers a peripheral
// re-sending 0x3C before it has seen our 0x3D: the gateway must
// resend the already-computed response rather than recompute it
// against whatever lastCommandByte happens to hold at that moment.
func TestCrossedChallengeRetransmitIsIdempotent(t *testing.T) {
	g, rs, _ := pairedTestGateway(t)

	if err := g.PlugOn(testPeripheral, nil); err != nil {
		t.Fatalf("PlugOn: %v", err)
	}
	c := [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	g.HandleInbound(inbound(t, testPeripheral, testController, frame.CmdChallenge, c[:]))
	firstResponse := rs.last().Payload

	g.HandleInbound(inbound(t, testPeripheral, testController, frame.CmdChallenge, c[:]))
	if got := rs.last(); got.Cmd != frame.CmdChallengeResponse || !bytes.Equal(got.Payload, firstResponse) {
		t.Fatalf("retransmitted challenge response = %x, want identical to first %x", got.Payload, firstResponse)
	}
}

func TestStatusQueryUsesLiteralPayloadTemplate(t *testing.T) {
	g, rs, _ := pairedTestGateway(t)
	if err := g.StatusQuery(testPeripheral, nil); err != nil {
		t.Fatalf("StatusQuery: %v", err)
	}
	if got := rs.last(); got.Cmd != frame.CmdStatusQuery || !bytes.Equal(got.Payload, statusPayload) {
		t.Fatalf("status query outbound = cmd %#x payload %x, want %#x/%x", got.Cmd, got.Payload, frame.CmdStatusQuery, statusPayload)
	}
}

func TestHandleInboundIgnoresUnpairedSource(t *testing.T) {
	reg := registry.New(nil)
	rs := &recordingSender{}
	g := New(reg, rs, testController)
	reg.Add(testPeripheral)

	result := g.HandleInbound(inbound(t, testPeripheral, testController, frame.CmdChallenge, make([]byte, 6)))
	if result != Ignored {
		t.Fatalf("HandleInbound against a non-PAIRED device = %v, want Ignored", result)
	}
}
