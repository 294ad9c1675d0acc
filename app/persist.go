// Package app wires the blackjack game.Manager into the Cartesi rollup
// protocol: action dispatch, player persistence and drand config relay.
package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
)

// AddressRecord is the file persisted at data/address/<encoded-address>.json,
// mapping a player's address back to their chosen name.
type AddressRecord struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// NameRecord is the file persisted at data/names/<encoded-name>.json, the
// reverse index from a player's name back to their address.
type NameRecord struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Store persists and hydrates player records under a root data directory.
type Store struct {
	DataDir string
}

// NewStore builds a Store rooted at dataDir ("./data" in production).
func NewStore(dataDir string) *Store {
	return &Store{DataDir: dataDir}
}

func (s *Store) addressPath(encodedAddress string) string {
	return filepath.Join(s.DataDir, "address", encodedAddress+".json")
}

func (s *Store) namePath(encodedName string) string {
	return filepath.Join(s.DataDir, "names", encodedName+".json")
}

// SavePlayer persists both the address->name and name->address records for a
// freshly registered player.
func (s *Store) SavePlayer(address, name string) error {
	encodedAddress := base58.Encode([]byte(address))
	encodedName := base58.Encode([]byte(name))

	if err := writeAtomicJSON(s.addressPath(encodedAddress), AddressRecord{Address: address, Name: name}); err != nil {
		return fmt.Errorf("persisting address record: %w", err)
	}
	if err := writeAtomicJSON(s.namePath(encodedName), NameRecord{Name: encodedName, Address: address}); err != nil {
		return fmt.Errorf("persisting name record: %w", err)
	}
	return nil
}

// LoadPlayerByAddress reads back the name registered for address's encoded
// form, or (zero value, false, nil) if nothing was ever persisted for it.
func (s *Store) LoadPlayerByAddress(encodedAddress string) (AddressRecord, bool, error) {
	raw, err := os.ReadFile(s.addressPath(encodedAddress))
	if os.IsNotExist(err) {
		return AddressRecord{}, false, nil
	}
	if err != nil {
		return AddressRecord{}, false, fmt.Errorf("reading address record: %w", err)
	}

	var rec AddressRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return AddressRecord{}, false, fmt.Errorf("parsing address record: %w", err)
	}
	return rec, true, nil
}

// writeAtomicJSON marshals v and writes it to path via a temp file plus
// rename, the same crash-safe persistence idiom config.SaveAtomic uses for
// the drand config.
func writeAtomicJSON(path string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".record-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup; no-op once renamed

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}
