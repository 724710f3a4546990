package ackstore

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "calalert/pkg/logx"
)

var ErrDisabled = errors.New("ackstore disabled")

// Config configures the acknowledgment store.
//
// Driver values:
//   - "file":   jsonl journal + snapshot, dependency-light
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the store is disabled and Open returns
// (nil, nil); the session then falls back to session-local dedup only.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the acknowledgment ledger consumed by the scheduling session.
//
// Record is append-only: recording an existing key is a no-op, never an
// overwrite, so concurrent consumers cannot clobber each other's entries.
type Store interface {
	Has(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, key string, fire time.Time) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown ackstore driver: " + driver)
	}
}
