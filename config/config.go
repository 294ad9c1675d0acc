// Package config holds the middleware's mutable AppConfig: the drand public
// key, beacon period/genesis, and safe-seconds margin, loadable from JSON
// and persisted atomically on update.
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/Calindra/cartesi-drand/crypto"
)

// AppConfig is the drand configuration the middleware verifies beacons
// against. It is the only state persisted to disk.
type AppConfig struct {
	DrandPublicKey   string `json:"drand_public_key"`
	DrandPeriod      uint64 `json:"drand_period"`
	DrandGenesisTime uint64 `json:"drand_genesis_time"`
	SafeSeconds      uint64 `json:"safe_seconds"`
}

// Validate aggregates every field error into a single multierror so a
// caller gets the complete picture of what is wrong in one response.
func (c AppConfig) Validate() error {
	var result *multierror.Error

	raw, err := hex.DecodeString(c.DrandPublicKey)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("drand_public_key: invalid hex: %w", err))
	} else if len(raw) != crypto.PublicKeySize {
		result = multierror.Append(result, fmt.Errorf("drand_public_key: must be %d bytes, got %d", crypto.PublicKeySize, len(raw)))
	}
	if c.DrandPeriod == 0 {
		result = multierror.Append(result, fmt.Errorf("drand_period: must be nonzero"))
	}
	if c.DrandGenesisTime == 0 {
		result = multierror.Append(result, fmt.Errorf("drand_genesis_time: must be nonzero"))
	}

	return result.ErrorOrNil()
}

// LoadFromFile reads an AppConfig from a JSON file. found is false (with a
// nil error) if the file does not exist.
func LoadFromFile(path string) (cfg *AppConfig, found bool, err error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}

	var c AppConfig
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &c, true, nil
}

// SaveAtomic writes cfg to path by writing a temp file in the same
// directory and renaming it over path, so a crash mid-write never leaves a
// truncated config behind.
func SaveAtomic(path string, cfg AppConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".drand-config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup; no-op once renamed

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("writing temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming config file into place: %w", err)
	}
	return nil
}
