// Package catalog indexes stored factories by SHA key so they can be listed
// and located without opening every blob.
package catalog

import (
	"context"
	"time"

	"github.com/kilianp07/dspfactory/core/module"
)

// Entry describes one stored factory artifact.
type Entry struct {
	SHAKey    string    `json:"sha_key"`
	Name      string    `json:"name"`
	Backend   string    `json:"backend"`
	Libraries []string  `json:"libraries"`
	Key       string    `json:"key"` // blob key
	Size      int64     `json:"size_bytes"`
	Binary    bool      `json:"binary"`
	Small     bool      `json:"small"`
	StoredAt  time.Time `json:"stored_at"`
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	libs := make([]string, len(e.Libraries))
	copy(libs, e.Libraries)
	e.Libraries = libs
	return e
}

// Query filters List results. Zero values mean no filter.
type Query struct {
	Name  string
	Limit int
}

// Catalog persists Entry records keyed by SHAKey.
type Catalog interface {
	// Upsert inserts e or replaces the entry with the same SHAKey.
	Upsert(ctx context.Context, e Entry) error
	// Get reports false when no entry exists.
	Get(ctx context.Context, sha string) (Entry, bool, error)
	// List returns entries newest first.
	List(ctx context.Context, q Query) ([]Entry, error)
	Delete(ctx context.Context, sha string) (bool, error)
	Close() error
}

var registry = module.NewRegistry[Catalog]()

// Register adds a catalog constructor identified by name.
func Register(name string, c module.Constructor[Catalog]) error {
	return registry.Register(name, c)
}

// New creates the catalog described by cfg. An empty type yields a memory
// catalog.
func New(cfg module.Config) (Catalog, error) {
	if cfg.Type == "" {
		return NewMemory(), nil
	}
	return registry.Create(cfg)
}

// Types lists the registered catalog types.
func Types() []string { return registry.Types() }

func init() {
	_ = Register("memory", func(map[string]any) (Catalog, error) { return NewMemory(), nil })
}
