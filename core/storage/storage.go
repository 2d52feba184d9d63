package storage

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"healthledger/core/block"
)

// ErrCorruptedStore is returned by Load when the persisted chain cannot be
// parsed. Nothing partially decoded is ever returned alongside it.
var ErrCorruptedStore = errors.New("corrupted store")

// CurrentVersion is written into every document.
const CurrentVersion = 1

// Document is the unit of persistence: the whole chain plus the difficulty it
// was sealed under.
type Document struct {
	Version    int           `json:"version,omitempty"`
	Difficulty int           `json:"difficulty"`
	Chain      []block.Block `json:"chain"`
}

// Persister durably stores chain documents.
type Persister interface {
	// Load returns nil and no error when no store exists yet.
	Load() (*Document, error)
	// Save replaces the stored chain atomically: after a crash the store holds
	// either the previous document or the new one.
	Save(doc Document) error
	Close() error
}

const (
	BackendFile    = "file"
	BackendLevelDB = "leveldb"
	BackendSQLite  = "sqlite"
)

// Backends lists the accepted backend names.
var Backends = []string{BackendFile, BackendLevelDB, BackendSQLite}

// Open returns the persister for backend rooted at path.
func Open(backend, path string) (Persister, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path is empty")
	}
	switch backend {
	case "", BackendFile:
		return NewFileStore(path)
	case BackendLevelDB:
		return NewLevelStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	}
	return nil, fmt.Errorf("unknown store backend %q (want one of %s)", backend, strings.Join(Backends, ", "))
}

// Quarantine moves a store out of the way so a fresh one can be created at
// path. It returns where the old store went.
func Quarantine(path string) (string, error) {
	dest := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", path, err)
	}
	// SQLite keeps side files next to the database.
	for _, suffix := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(path + suffix); err == nil {
			_ = os.Rename(path+suffix, dest+suffix)
		}
	}
	return dest, nil
}
