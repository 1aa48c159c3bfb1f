// Package directory provides the account, group, and content listings the
// scheduler consumes. It is a plain data-access layer: no posting rules live
// here.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "groupcast/pkg/logx"
)

// Config configures the directory backend.
type Config struct {
	Driver      string        `json:"driver"`
	Path        string        `json:"path,omitempty"`
	BusyTimeout time.Duration `json:"-"`
}

// Directory exposes the inventories the scheduler pulls per run.
type Directory interface {
	ListActiveAccounts(ctx context.Context) ([]Account, error)
	ListGroups(ctx context.Context) ([]Group, error)
	ListTemplates(ctx context.Context) ([]Template, error)
	ListMedia(ctx context.Context) ([]Media, error)

	// Upserts let an operator (or an import job) populate the inventories.
	UpsertAccount(ctx context.Context, a Account) error
	UpsertGroup(ctx context.Context, g Group) error
	UpsertTemplate(ctx context.Context, t Template) error
	UpsertMedia(ctx context.Context, m Media) error

	Close() error
}

// Open initializes the configured directory backend.
func Open(cfg Config, log logx.Logger) (Directory, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown directory driver: " + cfg.Driver)
	}
}
