package groupstate

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "groupcast/pkg/logx"
)

// StoreConfig configures group-state persistence.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": in-process map (tests, embedded runs)
type StoreConfig struct {
	Driver      string        `json:"driver"`
	Path        string        `json:"path,omitempty"`
	BusyTimeout time.Duration `json:"-"`
}

// Store is the persistence contract the Coordinator requires: point reads and
// conditional (version compare-and-swap) writes of whole records.
type Store interface {
	// Get returns the current state and its version. ErrNotFound if absent.
	Get(ctx context.Context, groupID string) (*GroupState, uint64, error)
	// Create inserts a new record at version 1. ErrExists if present.
	Create(ctx context.Context, st *GroupState) error
	// Update writes st only if the stored version still equals version.
	// ErrConflict if another writer got there first.
	Update(ctx context.Context, st *GroupState, version uint64) error
	// List returns all records (read-only snapshot).
	List(ctx context.Context) ([]*GroupState, error)
	Close() error
}

// OpenStore initializes the configured store.
func OpenStore(cfg StoreConfig, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, errors.New("unknown groupstate store driver: " + cfg.Driver)
	}
}
