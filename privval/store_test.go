package privval

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/kms/config"
	"github.com/tendermint/kms/types"
)

func testStores() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"memdb": func(t *testing.T) Store {
			return NewDBStore(dbm.NewMemDB())
		},
		"goleveldb": func(t *testing.T) Store {
			s, err := OpenDBStore(config.BackendGoLevelDB, t.TempDir())
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoreCompareAndSwap(t *testing.T) {
	for name, newStore := range testStores() {
		newStore := newStore
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()

			_, found, err := s.Get("chain-a")
			require.NoError(t, err)
			require.False(t, found)

			first := voteSlot(1, 0, types.PrevoteType)
			second := voteSlot(1, 0, types.PrecommitType)

			require.NoError(t, s.CompareAndSwap("chain-a", nil, first))

			got, found, err := s.Get("chain-a")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, first, got)

			// a stale expectation is refused
			err = s.CompareAndSwap("chain-a", nil, second)
			require.ErrorIs(t, err, ErrStoreConflict)
			err = s.CompareAndSwap("chain-a", &second, second)
			require.ErrorIs(t, err, ErrStoreConflict)

			require.NoError(t, s.CompareAndSwap("chain-a", &first, second))
			got, _, err = s.Get("chain-a")
			require.NoError(t, err)
			assert.Equal(t, second, got)

			// chains are independent
			_, found, err = s.Get("chain-b")
			require.NoError(t, err)
			require.False(t, found)

			lister, ok := s.(ChainLister)
			require.True(t, ok)
			chains, err := lister.Chains()
			require.NoError(t, err)
			assert.Equal(t, []string{"chain-a"}, chains)
		})
	}
}

func TestFileStoreRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	slot := proposalSlot(12345, 1, 0)
	require.NoError(t, s.CompareAndSwap("cosmoshub-4", nil, slot))

	bz, err := os.ReadFile(filepath.Join(dir, "hwm-cosmoshub-4"))
	require.NoError(t, err)
	assert.Equal(t, "12345/1/0/32\n", string(bz))

	fi, err := os.Stat(filepath.Join(dir, "hwm-cosmoshub-4"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())
}

func TestFileStoreLeavesOnlyRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	first := proposalSlot(1, 0, -1)
	require.NoError(t, s.CompareAndSwap(testChainID, nil, first))
	require.NoError(t, s.CompareAndSwap(testChainID, &first, voteSlot(1, 0, types.PrecommitType)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hwm-"+testChainID, entries[0].Name())

	// a temporary left behind by a crash is not a chain
	require.NoError(t, os.WriteFile(filepath.Join(dir, "write-file-atomic-123"), []byte("2/0/-1/2\n"), 0600))
	chains, err := s.Chains()
	require.NoError(t, err)
	assert.Equal(t, []string{testChainID}, chains)
}

func TestFileStoreMalformedRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hwm-chain"), []byte("12/garbage\n"), 0600))

	_, _, err = s.Get("chain")
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, "chain", perr.ChainID)

	// nothing is written over a record that can't be read
	err = s.CompareAndSwap("chain", nil, voteSlot(13, 0, types.PrevoteType))
	require.True(t, errors.As(err, &perr))
	bz, err := os.ReadFile(filepath.Join(dir, "hwm-chain"))
	require.NoError(t, err)
	assert.Equal(t, "12/garbage\n", string(bz))
}

func TestFileStoreRejectsBadChainID(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = s.Get("../../etc/passwd")
	require.Error(t, err)
	require.Error(t, s.CompareAndSwap("a/b", nil, voteSlot(1, 0, types.PrevoteType)))
}

func TestDBStorePersists(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenDBStore(config.BackendGoLevelDB, dir)
	require.NoError(t, err)

	slot := voteSlot(7, 3, types.PrecommitType)
	require.NoError(t, s.CompareAndSwap("chain", nil, slot))
	require.NoError(t, s.Close())

	s, err = OpenDBStore(config.BackendGoLevelDB, dir)
	require.NoError(t, err)
	defer s.Close()

	got, found, err := s.Get("chain")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, slot, got)
}

func TestNewStore(t *testing.T) {
	cfg := config.TestDoubleSignConfig()
	cfg.RootDir = t.TempDir()

	for _, backend := range []string{config.BackendFile, config.BackendGoLevelDB, config.BackendMemDB} {
		cfg.Backend = backend
		s, err := NewStore(cfg)
		require.NoError(t, err, backend)
		require.NoError(t, s.Close())
	}

	cfg.Backend = "badger"
	_, err := NewStore(cfg)
	require.Error(t, err)
}
