package privval

import (
	"fmt"
	"sync"

	"github.com/google/orderedcode"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/kms/types"
)

const (
	// key prefixes
	prefixHWM = int64(1)
)

const dbName = "hwm"

// DBStore keeps all HWMs in one tm-db database. Values use the same text
// record as FileStore.
type DBStore struct {
	db dbm.DB

	mtx sync.Mutex
}

var (
	_ Store       = (*DBStore)(nil)
	_ ChainLister = (*DBStore)(nil)
)

// NewDBStore wraps an open database. The store owns db and closes it.
func NewDBStore(db dbm.DB) *DBStore {
	return &DBStore{db: db}
}

// OpenDBStore opens (or creates) the "hwm" database under dir.
func OpenDBStore(backend, dir string) (*DBStore, error) {
	db, err := dbm.NewDB(dbName, dbm.BackendType(backend), dir)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", backend, err)
	}
	return NewDBStore(db), nil
}

func hwmKey(chainID string) ([]byte, error) {
	return orderedcode.Append(nil, prefixHWM, chainID)
}

func (s *DBStore) Get(chainID string) (types.Slot, bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.get(chainID)
}

func (s *DBStore) get(chainID string) (types.Slot, bool, error) {
	key, err := hwmKey(chainID)
	if err != nil {
		return types.Slot{}, false, &PersistenceError{ChainID: chainID, Op: "read", Err: err}
	}
	bz, err := s.db.Get(key)
	if err != nil {
		return types.Slot{}, false, &PersistenceError{ChainID: chainID, Op: "read", Err: err}
	}
	if len(bz) == 0 {
		return types.Slot{}, false, nil
	}
	slot, err := parseHWM(bz)
	if err != nil {
		return types.Slot{}, false, &PersistenceError{ChainID: chainID, Op: "parse", Err: err}
	}
	return slot, true, nil
}

func (s *DBStore) CompareAndSwap(chainID string, old *types.Slot, new types.Slot) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	cur, found, err := s.get(chainID)
	if err != nil {
		return err
	}
	if err := checkExpected(chainID, cur, found, old); err != nil {
		return err
	}
	key, err := hwmKey(chainID)
	if err != nil {
		return &PersistenceError{ChainID: chainID, Op: "write", Err: err}
	}
	if err := s.db.SetSync(key, []byte(formatHWM(new))); err != nil {
		return &PersistenceError{ChainID: chainID, Op: "write", Err: err}
	}
	return nil
}

// Chains lists every chain with a stored HWM, in key order.
func (s *DBStore) Chains() ([]string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	start, err := orderedcode.Append(nil, prefixHWM)
	if err != nil {
		return nil, err
	}
	end, err := orderedcode.Append(nil, prefixHWM+1)
	if err != nil {
		return nil, err
	}
	iter, err := s.db.Iterator(start, end)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var chains []string
	for ; iter.Valid(); iter.Next() {
		var (
			prefix  int64
			chainID string
		)
		if _, err := orderedcode.Parse(string(iter.Key()), &prefix, &chainID); err != nil {
			return nil, fmt.Errorf("decoding key %X: %w", iter.Key(), err)
		}
		chains = append(chains, chainID)
	}
	return chains, iter.Error()
}

func (s *DBStore) Close() error {
	return s.db.Close()
}
