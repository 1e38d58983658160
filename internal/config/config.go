// Package config loads the YAML configuration for the iohc-controllerd
// daemon, following cmd/agsys-controller/main.go's nested-struct
// pattern: one top-level section per subsystem, loaded with
// gopkg.in/yaml.v3 and validated after parsing.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kfroeschl/iohomecontrol-ai/internal/frame"
)

// DefaultControllerAddress is the historical default controller
// identity, "BA 11 AD", used whenever the config file leaves
// controller.address empty.
var DefaultControllerAddress = frame.Address{0xBA, 0x11, 0xAD}

// Config is the root of the YAML configuration file.
type Config struct {
	Controller struct {
		Address          string `yaml:"address"`            // 3-byte hex, e.g. "ba11ad"
		SystemKey        string `yaml:"system_key"`         // 16-byte hex
		PairingTimeoutMS int    `yaml:"pairing_timeout_ms"`
	} `yaml:"controller"`

	Radio struct {
		EventURL   string `yaml:"event_url"`   // ZeroMQ SUB endpoint for inbound frames
		CommandURL string `yaml:"command_url"` // ZeroMQ REQ endpoint for outbound frames
		Channel    string `yaml:"channel"`     // named channel, e.g. "CHANNEL2"
	} `yaml:"radio"`

	Registry struct {
		PersistPath string `yaml:"persist_path"` // JSON persistence file
		AuditDBPath string `yaml:"audit_db_path"`
	} `yaml:"registry"`

	Admin struct {
		ListenURL string `yaml:"listen_url"` // ZeroMQ REP endpoint iohc-admin talks to
	} `yaml:"admin"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ControllerAddress parses the controller.address field, falling back
// to DefaultControllerAddress when it is empty.
func (c *Config) ControllerAddress() (frame.Address, error) {
	if c.Controller.Address == "" {
		return DefaultControllerAddress, nil
	}
	b, err := hex.DecodeString(c.Controller.Address)
	if err != nil {
		return frame.Address{}, fmt.Errorf("config: controller.address %q: %w", c.Controller.Address, err)
	}
	return frame.ParseAddress(b)
}

// SystemKey parses the controller.system_key field. It is an error for
// this to be empty: a system key is required before any pairing can
// start.
func (c *Config) SystemKey() ([16]byte, error) {
	var key [16]byte
	if c.Controller.SystemKey == "" {
		return key, fmt.Errorf("config: controller.system_key is required")
	}
	b, err := hex.DecodeString(c.Controller.SystemKey)
	if err != nil {
		return key, fmt.Errorf("config: controller.system_key: %w", err)
	}
	if len(b) != 16 {
		return key, fmt.Errorf("config: controller.system_key must be 16 bytes, got %d", len(b))
	}
	copy(key[:], b)
	return key, nil
}

// PairingTimeout returns the configured pairing deadline, defaulting
// to 30000 ms when unset.
func (c *Config) PairingTimeout() time.Duration {
	if c.Controller.PairingTimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Controller.PairingTimeoutMS) * time.Millisecond
}
