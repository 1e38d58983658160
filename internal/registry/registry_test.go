package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/kfroeschl/iohomecontrol-ai/internal/frame"
)

type fakePersister struct {
	saved []*Device
	err   error
}

func (f *fakePersister) Persist(d *Device) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, d)
	return nil
}

func addr(b byte) frame.Address { return frame.Address{0x01, 0x02, b} }

func TestStartPairingEnforcesSingleSession(t *testing.T) {
	r := New(nil)
	now := time.Now()

	if _, err := r.StartPairing(addr(0x01), now); err != nil {
		t.Fatalf("first StartPairing: %v", err)
	}
	if _, err := r.StartPairing(addr(0x02), now); !errors.Is(err, ErrAlreadyPairing) {
		t.Fatalf("second StartPairing: got %v, want ErrAlreadyPairing", err)
	}
	// Re-entering pairing for the same address is allowed.
	if _, err := r.StartPairing(addr(0x01), now); err != nil {
		t.Fatalf("re-StartPairing same address: %v", err)
	}
}

func TestCompletePairingRequiresSystemKey(t *testing.T) {
	r := New(nil)
	a := addr(0x10)
	r.Add(a)

	if err := r.CompletePairing(a); err == nil {
		t.Fatalf("CompletePairing should fail without a system key")
	}

	if err := r.StoreSystemKey(a, [16]byte{0x01}); err != nil {
		t.Fatalf("StoreSystemKey: %v", err)
	}
	if err := r.CompletePairing(a); err != nil {
		t.Fatalf("CompletePairing: %v", err)
	}
	d, err := r.Get(a)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.PairingState != Paired {
		t.Fatalf("state = %s, want PAIRED", d.PairingState)
	}
}

func TestCompletePairingPersists(t *testing.T) {
	p := &fakePersister{}
	r := New(p)
	a := addr(0x20)
	r.Add(a)
	r.StoreSystemKey(a, [16]byte{0x02})

	if err := r.CompletePairing(a); err != nil {
		t.Fatalf("CompletePairing: %v", err)
	}
	if len(p.saved) != 1 || p.saved[0].Address != a {
		t.Fatalf("persister did not receive the completed device")
	}
}

func TestCompletePairingPersistErrorPropagates(t *testing.T) {
	p := &fakePersister{err: errors.New("disk full")}
	r := New(p)
	a := addr(0x21)
	r.Add(a)
	r.StoreSystemKey(a, [16]byte{0x03})

	if err := r.CompletePairing(a); err == nil {
		t.Fatalf("CompletePairing should surface the persister error")
	}
}

func TestRemoveZeroesKeys(t *testing.T) {
	r := New(nil)
	a := addr(0x30)
	d := r.Add(a)
	r.StoreSystemKey(a, [16]byte{0xFF})

	if err := r.Remove(a); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if d.HasSystemKey {
		t.Fatalf("zeroKeys did not clear HasSystemKey")
	}
	if d.SystemKey != [16]byte{} {
		t.Fatalf("zeroKeys did not clear SystemKey bytes")
	}
	if _, err := r.Get(a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Remove: got %v, want ErrNotFound", err)
	}
}

func TestSweepTimedOut(t *testing.T) {
	r := New(nil)
	a := addr(0x40)
	now := time.Now()
	r.StartPairing(a, now.Add(-2*time.Hour))

	timedOut := r.SweepTimedOut(now, time.Hour)
	if len(timedOut) != 1 || timedOut[0].Address != a {
		t.Fatalf("SweepTimedOut = %v, want [%v]", timedOut, a)
	}
	d, _ := r.Get(a)
	if d.PairingState != PairingFailed {
		t.Fatalf("state = %s, want PAIRING_FAILED", d.PairingState)
	}
}

func TestUpdateFromDiscoveryAnswer(t *testing.T) {
	r := New(nil)
	a := addr(0x50)
	r.Add(a)

	// nodeType/nodeSubtype packed into 16 bits: nodeType<<6 | nodeSubtype.
	payload := []byte{0x12, 0x80, 0x00, 0x00, 0x00, 0x07, 0x1B, 0x02, 0x03}
	if err := r.UpdateFromDiscoveryAnswer(a, payload); err != nil {
		t.Fatalf("UpdateFromDiscoveryAnswer: %v", err)
	}
	d, _ := r.Get(a)
	if d.Capabilities.Manufacturer != 0x07 {
		t.Fatalf("Manufacturer = %x, want 0x07", d.Capabilities.Manufacturer)
	}
	if !d.Capabilities.RFSupport {
		t.Fatalf("RFSupport decoded false, want true for multiInfo 0x1B")
	}
	if d.Capabilities.Timestamp != 0x0203 {
		t.Fatalf("Timestamp = %x, want 0x0203", d.Capabilities.Timestamp)
	}
}

func TestListByStateAndFindInPairing(t *testing.T) {
	r := New(nil)
	a, b := addr(0x60), addr(0x61)
	r.Add(a)
	r.StartPairing(b, time.Now())

	if len(r.ListByState(Unpaired)) != 1 {
		t.Fatalf("expected exactly one UNPAIRED device")
	}
	found := r.FindInPairing()
	if found == nil || found.Address != b {
		t.Fatalf("FindInPairing = %v, want %v", found, b)
	}
}
