package jsonfile

import (
	"path/filepath"
	"testing"

	"github.com/kfroeschl/iohomecontrol-ai/internal/frame"
	"github.com/kfroeschl/iohomecontrol-ai/internal/registry"
)

func TestPersistAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := Open(filepath.Join(dir, "devices.json"))

	reg := registry.New(store)
	addr := frame.Address{0xBA, 0x11, 0xAD}
	reg.Add(addr)
	if err := reg.StoreSystemKey(addr, [16]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("StoreSystemKey: %v", err)
	}
	if err := reg.CompletePairing(addr); err != nil {
		t.Fatalf("CompletePairing: %v", err)
	}

	all, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rec, ok := all[addr.String()]
	if !ok {
		t.Fatalf("no record persisted for %s", addr.String())
	}
	if rec.PairingState != "PAIRED" {
		t.Fatalf("PairingState = %q, want PAIRED", rec.PairingState)
	}
	if len(rec.SystemKey) != 32 {
		t.Fatalf("SystemKey hex length = %d, want 32", len(rec.SystemKey))
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	store := Open(filepath.Join(dir, "nonexistent.json"))
	all, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty map, got %v", all)
	}
}

func TestParseAddressKeyRoundTrip(t *testing.T) {
	addr := frame.Address{0xBA, 0x11, 0xAD}
	got, err := ParseAddressKey(addr.String())
	if err != nil {
		t.Fatalf("ParseAddressKey: %v", err)
	}
	if got != addr {
		t.Fatalf("ParseAddressKey = %v, want %v", got, addr)
	}
}
