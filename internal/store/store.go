// Package store persists the station settings and per-network passwords.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"

	"stationd/internal/wifi"
)

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverMemory = "memory"
)

// Store is a closable wifi.Store.
type Store interface {
	wifi.Store
	Close() error
}

// Lister is implemented by backends that keep SSIDs in the clear.
type Lister interface {
	SSIDs() ([]string, error)
}

// Open creates the backend named by driver. path is ignored by the memory
// backend.
func Open(log logr.Logger, driver, path string) (Store, error) {
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, DriverBolt:
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	if driver == DriverBolt {
		return OpenBolt(log, path)
	}
	return OpenSQLite(log, path)
}
