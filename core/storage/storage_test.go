package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"

	"healthledger/core/block"
	"healthledger/core/logging"
	"healthledger/core/miner"
	"healthledger/core/types"
)

func sealedChain(t *testing.T, n int) []block.Block {
	t.Helper()
	m := miner.New(logging.Discard())
	g, err := types.NewGenesis("Healthcare Blockchain Genesis Block", "")
	require.NoError(t, err)
	gen, err := m.Seal(miner.Template{PreviousHash: block.ZeroHash, Transactions: []types.Transaction{g}}, 1)
	require.NoError(t, err)
	chain := []block.Block{gen}

	expires := time.Now().Add(24 * time.Hour)
	for i := 1; i <= n; i++ {
		rec, err := types.NewRecordHash("rec", "deadbeef", "pat", nil)
		require.NoError(t, err)
		consent, err := types.NewConsent(types.ConsentRequest{
			PatientID: "pat", ProviderID: "doc", RecordID: "rec", Status: types.ConsentGranted, ExpiresAt: &expires,
		}, nil)
		require.NoError(t, err)
		tail := chain[len(chain)-1]
		b, err := m.Seal(miner.Template{
			Index:        uint64(i),
			PreviousHash: tail.Hash,
			Transactions: []types.Transaction{rec, consent},
			NotBefore:    tail.Timestamp,
		}, 1)
		require.NoError(t, err)
		chain = append(chain, b)
	}
	return chain
}

func backendPath(t *testing.T, backend string) string {
	dir := t.TempDir()
	switch backend {
	case BackendLevelDB:
		return filepath.Join(dir, "chain.ldb")
	case BackendSQLite:
		return filepath.Join(dir, "chain.sqlite")
	}
	return filepath.Join(dir, "chain.json")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, backend := range Backends {
		t.Run(backend, func(t *testing.T) {
			path := backendPath(t, backend)
			p, err := Open(backend, path)
			require.NoError(t, err)

			doc, err := p.Load()
			require.NoError(t, err)
			assert.Nil(t, doc, "fresh store must load as absent")

			chain := sealedChain(t, 3)
			require.NoError(t, p.Save(Document{Difficulty: 1, Chain: chain}))
			require.NoError(t, p.Close())

			p, err = Open(backend, path)
			require.NoError(t, err)
			defer p.Close()
			got, err := p.Load()
			require.NoError(t, err)
			require.NotNil(t, got)

			assert.Equal(t, CurrentVersion, got.Version)
			assert.Equal(t, 1, got.Difficulty)
			require.Equal(t, chain, got.Chain)
			for i := range got.Chain {
				h, err := got.Chain[i].ComputeHash()
				require.NoError(t, err)
				assert.Equal(t, chain[i].Hash, h, "block %d must recompute after reload", i)
			}
		})
	}
}

func TestSaveShrinksStoredChain(t *testing.T) {
	for _, backend := range Backends {
		t.Run(backend, func(t *testing.T) {
			p, err := Open(backend, backendPath(t, backend))
			require.NoError(t, err)
			defer p.Close()

			chain := sealedChain(t, 3)
			require.NoError(t, p.Save(Document{Difficulty: 1, Chain: chain}))
			require.NoError(t, p.Save(Document{Difficulty: 1, Chain: chain[:2]}))

			got, err := p.Load()
			require.NoError(t, err)
			assert.Len(t, got.Chain, 2)
		})
	}
}

func TestFileStoreDetectsCorruption(t *testing.T) {
	cases := map[string][]byte{
		"empty":     {},
		"truncated": []byte(`{"difficulty":1,"chain":[{"index":0,"timestamp":`),
		"wrong":     []byte(`{"difficulty":1,"chain":{"index":0}}`),
		"garbage":   []byte("\x00\x01not json"),
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := backendPath(t, BackendFile)
			require.NoError(t, os.WriteFile(path, content, 0o644))
			p, err := NewFileStore(path)
			require.NoError(t, err)
			doc, err := p.Load()
			require.ErrorIs(t, err, ErrCorruptedStore)
			assert.Nil(t, doc)
		})
	}
}

func TestFileStoreTruncatedRealDocument(t *testing.T) {
	path := backendPath(t, BackendFile)
	p, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, p.Save(Document{Difficulty: 1, Chain: sealedChain(t, 2)}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o644))

	_, err = p.Load()
	require.ErrorIs(t, err, ErrCorruptedStore)
}

func TestFileStoreSaveLeavesNoTemporaries(t *testing.T) {
	path := backendPath(t, BackendFile)
	p, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, p.Save(Document{Difficulty: 1, Chain: sealedChain(t, 1)}))

	leftovers, err := filepath.Glob(path + tempPattern)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStoreRemovesStaleTemporaries(t *testing.T) {
	path := backendPath(t, BackendFile)
	stale := path + ".tmp-123"
	require.NoError(t, os.WriteFile(stale, []byte("half a document"), 0o644))

	_, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreFailedSaveKeepsPreviousDocument(t *testing.T) {
	path := backendPath(t, BackendFile)
	p, err := NewFileStore(path)
	require.NoError(t, err)
	chain := sealedChain(t, 1)
	require.NoError(t, p.Save(Document{Difficulty: 1, Chain: chain}))

	dir := filepath.Dir(path)
	require.NoError(t, os.Chmod(dir, 0o555))
	defer os.Chmod(dir, 0o755)
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	err = p.Save(Document{Difficulty: 1, Chain: sealedChain(t, 3)})
	require.Error(t, err)

	got, err := p.Load()
	require.NoError(t, err)
	assert.Len(t, got.Chain, len(chain))
}

func TestLevelStoreDetectsMissingBlock(t *testing.T) {
	path := backendPath(t, BackendLevelDB)
	p, err := NewLevelStore(path)
	require.NoError(t, err)
	require.NoError(t, p.Save(Document{Difficulty: 1, Chain: sealedChain(t, 2)}))
	require.NoError(t, p.db.Delete(blockKey(1), nil))

	_, err = p.Load()
	require.ErrorIs(t, err, ErrCorruptedStore)
	require.NoError(t, p.Close())
}

func TestLevelStoreDetectsGarbageBlock(t *testing.T) {
	path := backendPath(t, BackendLevelDB)
	p, err := NewLevelStore(path)
	require.NoError(t, err)
	require.NoError(t, p.Save(Document{Difficulty: 1, Chain: sealedChain(t, 1)}))
	require.NoError(t, p.Close())

	db, err := leveldb.OpenFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, db.Put(blockKey(0), []byte(`{"index":"zero"`), nil))
	require.NoError(t, db.Close())

	p, err = NewLevelStore(path)
	require.NoError(t, err)
	defer p.Close()
	_, err = p.Load()
	require.ErrorIs(t, err, ErrCorruptedStore)
}

func TestSQLiteStoreDetectsGarbageBlock(t *testing.T) {
	path := backendPath(t, BackendSQLite)
	p, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, p.Save(Document{Difficulty: 1, Chain: sealedChain(t, 1)}))
	require.NoError(t, p.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE blocks SET body = 'not json' WHERE idx = 1`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	p, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer p.Close()
	_, err = p.Load()
	require.ErrorIs(t, err, ErrCorruptedStore)
}

func TestSQLiteStoreDetectsMissingRow(t *testing.T) {
	path := backendPath(t, BackendSQLite)
	p, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Save(Document{Difficulty: 1, Chain: sealedChain(t, 2)}))
	_, err = p.db.Exec(`DELETE FROM blocks WHERE idx = 1`)
	require.NoError(t, err)

	_, err = p.Load()
	require.ErrorIs(t, err, ErrCorruptedStore)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open("s3", filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	_, err = Open(BackendFile, " ")
	require.Error(t, err)
}

func TestQuarantine(t *testing.T) {
	path := backendPath(t, BackendFile)
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	dest, err := Quarantine(path)
	require.NoError(t, err)
	assert.Contains(t, dest, ".corrupt-")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dest)
	assert.NoError(t, err)
}
