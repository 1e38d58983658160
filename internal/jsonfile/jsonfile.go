// Package jsonfile persists device records to a single JSON file
// keyed by lowercase-hex address: the registry's external persistence
// collaborator.
package jsonfile

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kfroeschl/iohomecontrol-ai/internal/frame"
	"github.com/kfroeschl/iohomecontrol-ai/internal/registry"
)

// record is the on-disk shape for one device. Key material is encoded
// as 32-char lowercase hex.
type record struct {
	PairingState string `json:"pairingState"`
	SystemKey    string `json:"systemKey,omitempty"`
	StackKey     string `json:"stackKey,omitempty"`
	NodeType     uint16 `json:"nodeType,omitempty"`
	NodeSubtype  uint8  `json:"nodeSubtype,omitempty"`
	Manufacturer uint8  `json:"manufacturer,omitempty"`
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Store is a registry.Persister backed by a single JSON file. It is
// safe for concurrent use; the registry is the only expected caller
// but the mutex costs nothing for the rare completePairing write.
type Store struct {
	mu   sync.Mutex
	path string
}

// Open returns a Store rooted at path. The file need not exist yet;
// it is created on the first Persist call.
func Open(path string) *Store {
	return &Store{path: path}
}

// Persist implements registry.Persister: it reads the current file
// (if any), upserts d's record, and rewrites the file atomically via
// a temp-file-then-rename.
func (s *Store) Persist(d *registry.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readLocked()
	if err != nil {
		return fmt.Errorf("jsonfile: read %s: %w", s.path, err)
	}

	all[d.AddressStr] = toRecord(d)

	return s.writeLocked(all)
}

// Load reads every persisted record and returns them keyed by
// lowercase-hex address. Neither the engine nor either command calls
// it; within this module only the package's tests read the file back.
func (s *Store) Load() (map[string]record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *Store) readLocked() (map[string]record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string]record), nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return make(map[string]record), nil
	}
	var all map[string]record
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (s *Store) writeLocked(all map[string]record) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".jsonfile-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

func toRecord(d *registry.Device) record {
	r := record{
		PairingState: d.PairingState.String(),
		NodeType:     d.Capabilities.NodeType,
		NodeSubtype:  d.Capabilities.NodeSubtype,
		Manufacturer: d.Capabilities.Manufacturer,
		Name:         d.Capabilities.Name,
		Description:  d.Description,
	}
	if d.HasSystemKey {
		r.SystemKey = hex.EncodeToString(d.SystemKey[:])
	}
	if d.HasStackKey {
		r.StackKey = hex.EncodeToString(d.StackKey[:])
	}
	return r
}

// ParseAddressKey recovers a frame.Address from the lowercase-hex key
// a record is stored under.
func ParseAddressKey(key string) (frame.Address, error) {
	b, err := hex.DecodeString(key)
	if err != nil {
		return frame.Address{}, fmt.Errorf("jsonfile: bad address key %q: %w", key, err)
	}
	return frame.ParseAddress(b)
}
