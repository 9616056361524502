package privval

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tendermint/kms/config"
	kmsos "github.com/tendermint/kms/libs/os"
	"github.com/tendermint/kms/types"
)

// Store persists one high-water-mark per chain.
type Store interface {
	// Get returns the stored HWM. found is false when the chain has never
	// been signed for. A malformed record is a *PersistenceError.
	Get(chainID string) (hwm types.Slot, found bool, err error)

	// CompareAndSwap replaces old with new. old is nil when no record is
	// expected. If the stored value differs from old, ErrStoreConflict is
	// returned and nothing is written.
	CompareAndSwap(chainID string, old *types.Slot, new types.Slot) error

	Close() error
}

// ChainLister is implemented by stores that can enumerate their records.
type ChainLister interface {
	Chains() ([]string, error)
}

// NewStore opens the backend selected by cfg.
func NewStore(cfg *config.DoubleSignConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return NewFileStore(cfg.StateDirPath())
	case config.BackendGoLevelDB, config.BackendMemDB:
		return OpenDBStore(cfg.Backend, cfg.StateDirPath())
	default:
		return nil, fmt.Errorf("unknown double-sign backend %q", cfg.Backend)
	}
}

func checkExpected(chainID string, cur types.Slot, found bool, old *types.Slot) error {
	switch {
	case old == nil && !found:
		return nil
	case old != nil && found && *old == cur:
		return nil
	}
	return fmt.Errorf("%w for %s: have %s, expected %s", ErrStoreConflict, chainID, describe(cur, found), describe(derefSlot(old)))
}

func describe(slot types.Slot, found bool) string {
	if !found {
		return "none"
	}
	return slot.String()
}

func derefSlot(s *types.Slot) (types.Slot, bool) {
	if s == nil {
		return types.Slot{}, false
	}
	return *s, true
}

//-----------------------------------------------------------------------------

const hwmFilePrefix = "hwm-"

// FileStore keeps each HWM in <dir>/hwm-<chain_id>. Writes go to a
// temporary file that is flushed and renamed over the record, so a crash
// or power loss leaves either the old or the new value.
type FileStore struct {
	dir string

	mtx sync.Mutex
}

var (
	_ Store       = (*FileStore)(nil)
	_ ChainLister = (*FileStore)(nil)
)

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := kmsos.EnsureDir(dir, 0700); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) path(chainID string) string {
	return filepath.Join(fs.dir, hwmFilePrefix+chainID)
}

func (fs *FileStore) Get(chainID string) (types.Slot, bool, error) {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	return fs.get(chainID)
}

func (fs *FileStore) get(chainID string) (types.Slot, bool, error) {
	if err := config.ValidateChainID(chainID); err != nil {
		return types.Slot{}, false, err
	}
	bz, err := os.ReadFile(fs.path(chainID))
	if os.IsNotExist(err) {
		return types.Slot{}, false, nil
	}
	if err != nil {
		return types.Slot{}, false, &PersistenceError{ChainID: chainID, Op: "read", Err: err}
	}
	slot, err := parseHWM(bz)
	if err != nil {
		return types.Slot{}, false, &PersistenceError{ChainID: chainID, Op: "parse", Err: err}
	}
	return slot, true, nil
}

func (fs *FileStore) CompareAndSwap(chainID string, old *types.Slot, new types.Slot) error {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()

	cur, found, err := fs.get(chainID)
	if err != nil {
		return err
	}
	if err := checkExpected(chainID, cur, found, old); err != nil {
		return err
	}
	if err := kmsos.WriteFileAtomic(fs.path(chainID), []byte(formatHWM(new)), 0600); err != nil {
		return &PersistenceError{ChainID: chainID, Op: "write", Err: err}
	}
	return nil
}

// Chains lists every chain with a record in the directory.
func (fs *FileStore) Chains() ([]string, error) {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}
	var chains []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, hwmFilePrefix) {
			continue
		}
		chainID := strings.TrimPrefix(name, hwmFilePrefix)
		if config.ValidateChainID(chainID) != nil {
			// foreign files
			continue
		}
		chains = append(chains, chainID)
	}
	return chains, nil
}

// Close is a no-op.
func (fs *FileStore) Close() error { return nil }
