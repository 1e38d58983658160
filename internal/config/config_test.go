package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kfroeschl/iohomecontrol-ai/internal/frame"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "controllerd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	path := writeConfig(t, `
controller:
  address: "ba11ad"
  system_key: "000102030405060708090a0b0c0d0e0f"
  pairing_timeout_ms: 45000
radio:
  event_url: "tcp://127.0.0.1:5556"
  command_url: "tcp://127.0.0.1:5557"
  channel: "CHANNEL2"
registry:
  persist_path: "/var/lib/iohc/devices.json"
  audit_db_path: "/var/lib/iohc/audit.db"
admin:
  listen_url: "tcp://127.0.0.1:5560"
logging:
  level: "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	addr, err := cfg.ControllerAddress()
	if err != nil {
		t.Fatalf("ControllerAddress: %v", err)
	}
	if want := (frame.Address{0xBA, 0x11, 0xAD}); addr != want {
		t.Fatalf("ControllerAddress = %x, want %x", addr, want)
	}

	key, err := cfg.SystemKey()
	if err != nil {
		t.Fatalf("SystemKey: %v", err)
	}
	if key[0] != 0x00 || key[15] != 0x0f {
		t.Fatalf("SystemKey decoded incorrectly: %x", key)
	}

	if got, want := cfg.PairingTimeout(), 45*time.Second; got != want {
		t.Fatalf("PairingTimeout = %v, want %v", got, want)
	}

	if cfg.Radio.EventURL != "tcp://127.0.0.1:5556" {
		t.Fatalf("Radio.EventURL = %q", cfg.Radio.EventURL)
	}
	if cfg.Admin.ListenURL != "tcp://127.0.0.1:5560" {
		t.Fatalf("Admin.ListenURL = %q", cfg.Admin.ListenURL)
	}
}

func TestControllerAddressDefaultsWhenEmpty(t *testing.T) {
	path := writeConfig(t, "controller:\n  system_key: \"000102030405060708090a0b0c0d0e0f\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	addr, err := cfg.ControllerAddress()
	if err != nil {
		t.Fatalf("ControllerAddress: %v", err)
	}
	if addr != DefaultControllerAddress {
		t.Fatalf("ControllerAddress = %x, want default %x", addr, DefaultControllerAddress)
	}
}

func TestSystemKeyRejectsEmpty(t *testing.T) {
	path := writeConfig(t, "controller:\n  address: \"ba11ad\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.SystemKey(); err == nil {
		t.Fatal("SystemKey: want error for empty key, got nil")
	}
}

func TestSystemKeyRejectsWrongLength(t *testing.T) {
	path := writeConfig(t, "controller:\n  system_key: \"0001\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.SystemKey(); err == nil {
		t.Fatal("SystemKey: want error for short key, got nil")
	}
}

func TestPairingTimeoutDefaultsTo30Seconds(t *testing.T) {
	path := writeConfig(t, "controller:\n  address: \"ba11ad\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := cfg.PairingTimeout(), 30*time.Second; got != want {
		t.Fatalf("PairingTimeout = %v, want %v", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load: want error for missing file, got nil")
	}
}
