package storage

import (
	"context"
	"time"
)

// Config configures storage.
//
// Driver values:
//   - "file": one JSON document per record under Path (a directory)
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the whole-document persistence API used by the roster core.
//
// Load fills v from the named record and reports whether the record existed;
// a record that was never saved reports (false, nil) and leaves v untouched.
// Save replaces the named record with the JSON encoding of v.
type Store interface {
	Load(ctx context.Context, record string, v any) (bool, error)
	Save(ctx context.Context, record string, v any) error
	Close() error
}
