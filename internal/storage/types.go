package storage

import (
	"errors"
	"time"

	"wovbot/internal/task/scheduler"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "memory" (also "", "none"): not durable
//   - "file": jsonl journal + snapshot next to Path
//   - "sqlite": SQLite database at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// JobStore persists job definitions. Deleting an id that is not stored is
// not an error.
type JobStore interface {
	scheduler.Store
	Close() error
}

const defaultBusyTimeout = 5 * time.Second
