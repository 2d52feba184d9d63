package chain

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthledger/core/block"
	"healthledger/core/logging"
	"healthledger/core/miner"
	"healthledger/core/storage"
	"healthledger/core/types"
	"healthledger/core/validation"
)

// memPersister keeps the last saved document and can be told to fail.
type memPersister struct {
	mu      sync.Mutex
	doc     *storage.Document
	saves   int
	failErr error
	loadErr error
}

func (p *memPersister) Load() (*storage.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	if p.doc == nil {
		return nil, nil
	}
	cp := *p.doc
	cp.Chain = append([]block.Block(nil), p.doc.Chain...)
	return &cp, nil
}

func (p *memPersister) Save(doc storage.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return p.failErr
	}
	doc.Chain = append([]block.Block(nil), doc.Chain...)
	p.doc = &doc
	p.saves++
	return nil
}

func (p *memPersister) Close() error { return nil }

func (p *memPersister) storedLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return 0
	}
	return len(p.doc.Chain)
}

func newStore(t *testing.T, p storage.Persister, difficulty int) *Store {
	t.Helper()
	s := New(p, miner.New(logging.Discard()), Options{
		Difficulty: difficulty,
		Genesis: func() (types.Transaction, error) {
			return types.NewGenesis("Healthcare Blockchain Genesis Block", "test")
		},
		Logger: logging.Discard(),
	})
	require.NoError(t, s.Init())
	return s
}

func recordTx(t *testing.T, record string) types.Transaction {
	t.Helper()
	tx, err := types.NewRecordHash(record, "deadbeef", "pat-1", nil)
	require.NoError(t, err)
	return tx
}

func TestInitCreatesGenesis(t *testing.T) {
	p := &memPersister{}
	s := newStore(t, p, 2)

	assert.Equal(t, 1, s.Length())
	assert.Equal(t, 1, p.storedLength())
	g, ok := s.GetBlock(0)
	require.True(t, ok)
	assert.Equal(t, block.ZeroHash, g.PreviousHash)
	assert.True(t, block.MeetsDifficulty(g.Hash, 2))
	require.Len(t, g.Transactions, 1)
	assert.Equal(t, types.TxGenesis, g.Transactions[0].Type)
	assert.True(t, validation.ValidateChain(s.Snapshot(), s.Difficulty()).IsValid)
}

func TestInitLoadsExistingChainAtStoredDifficulty(t *testing.T) {
	p := &memPersister{}
	s := newStore(t, p, 2)
	_, err := s.Commit([]types.Transaction{recordTx(t, "rec-1")})
	require.NoError(t, err)

	reopened := newStore(t, p, 1)
	assert.Equal(t, 2, reopened.Length())
	assert.Equal(t, 2, reopened.Difficulty())
	assert.Equal(t, 2, p.saves, "loading must not rewrite the store")
}

func TestInitNeverLowersConfiguredDifficulty(t *testing.T) {
	p := &memPersister{}
	s := newStore(t, p, 2)
	_, err := s.Commit([]types.Transaction{recordTx(t, "rec-1")})
	require.NoError(t, err)

	p.mu.Lock()
	p.doc.Difficulty = 0
	p.mu.Unlock()

	reopened := newStore(t, p, 2)
	assert.Equal(t, 2, reopened.Difficulty())
	assert.True(t, validation.ValidateChain(reopened.Snapshot(), reopened.Difficulty()).IsValid)
}

func TestInitSurfacesLoadErrors(t *testing.T) {
	p := &memPersister{loadErr: fmt.Errorf("%w: truncated", storage.ErrCorruptedStore)}
	s := New(p, miner.New(logging.Discard()), Options{Difficulty: 1, Logger: logging.Discard()})
	err := s.Init()
	require.ErrorIs(t, err, storage.ErrCorruptedStore)
	assert.Equal(t, 0, s.Length())
}

func TestCommitAppendsLinkedBlock(t *testing.T) {
	p := &memPersister{}
	s := newStore(t, p, 2)
	tx := recordTx(t, "rec-1")

	b, err := s.Commit([]types.Transaction{tx})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b.Index)
	genesis, _ := s.GetBlock(0)
	assert.Equal(t, genesis.Hash, b.PreviousHash)
	assert.GreaterOrEqual(t, b.Timestamp, genesis.Timestamp)
	assert.Equal(t, 2, p.storedLength())

	rec, ok := s.FindTransaction(tx.ID)
	require.True(t, ok)
	assert.Equal(t, uint64(1), rec.BlockIndex)
	assert.Equal(t, b.Hash, rec.BlockHash)
}

func TestCommitRejectsEmptyBatch(t *testing.T) {
	s := newStore(t, &memPersister{}, 1)
	_, err := s.Commit(nil)
	require.ErrorIs(t, err, ErrEmptyCommit)
	assert.Equal(t, 1, s.Length())
}

func TestCommitRejectsDuplicateIDs(t *testing.T) {
	s := newStore(t, &memPersister{}, 1)
	tx := recordTx(t, "rec-1")

	_, err := s.Commit([]types.Transaction{tx, tx})
	require.ErrorIs(t, err, types.ErrInvalidTransaction)

	_, err = s.Commit([]types.Transaction{tx})
	require.NoError(t, err)
	_, err = s.Commit([]types.Transaction{tx})
	require.ErrorIs(t, err, types.ErrInvalidTransaction)
	assert.Equal(t, 2, s.Length())
}

func TestCommitRejectsMalformedAndGenesisTransactions(t *testing.T) {
	s := newStore(t, &memPersister{}, 1)
	bad := recordTx(t, "rec-1")
	bad.Asset = types.ConsentAsset{}
	_, err := s.Commit([]types.Transaction{bad})
	require.ErrorIs(t, err, types.ErrInvalidTransaction)

	g, err := types.NewGenesis("again", "")
	require.NoError(t, err)
	_, err = s.Commit([]types.Transaction{g})
	require.ErrorIs(t, err, types.ErrInvalidTransaction)
}

func TestCommitRollsBackOnPersistenceFailure(t *testing.T) {
	p := &memPersister{}
	s := newStore(t, p, 1)
	before, _ := s.Latest()

	p.failErr = errors.New("disk full")
	tx := recordTx(t, "rec-1")
	_, err := s.Commit([]types.Transaction{tx})
	require.ErrorIs(t, err, ErrPersistence)

	assert.Equal(t, 1, s.Length(), "in-memory chain must not run ahead of the store")
	after, _ := s.Latest()
	assert.Equal(t, before.Hash, after.Hash)
	_, found := s.FindTransaction(tx.ID)
	assert.False(t, found)

	p.failErr = nil
	b, err := s.Commit([]types.Transaction{tx})
	require.NoError(t, err, "a failed commit is safe to retry")
	assert.Equal(t, uint64(1), b.Index)
}

func TestCommitSurfacesMiningExhausted(t *testing.T) {
	p := &memPersister{}
	m := miner.New(logging.Discard())
	s := New(p, m, Options{Difficulty: 1, Logger: logging.Discard()})
	require.NoError(t, s.Init())

	s.difficulty = 64
	m.MaxNonce = 2
	_, err := s.Commit([]types.Transaction{recordTx(t, "rec-1")})
	require.ErrorIs(t, err, miner.ErrMiningExhausted)
	assert.Equal(t, 1, s.Length())
}

func TestConcurrentCommitsKeepLinkage(t *testing.T) {
	p := &memPersister{}
	s := newStore(t, p, 1)

	txs := make([]types.Transaction, 16)
	for i := range txs {
		txs[i] = recordTx(t, fmt.Sprintf("rec-%d", i))
	}
	var wg sync.WaitGroup
	for _, tx := range txs {
		wg.Add(1)
		go func(tx types.Transaction) {
			defer wg.Done()
			_, err := s.Commit([]types.Transaction{tx})
			assert.NoError(t, err)
		}(tx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := validation.ValidateChain(s.Snapshot(), s.Difficulty())
			assert.True(t, res.IsValid, res.Reason)
		}()
	}
	wg.Wait()

	assert.Equal(t, 17, s.Length())
	res := validation.ValidateChain(s.Snapshot(), s.Difficulty())
	assert.True(t, res.IsValid, res.Reason)
	assert.Equal(t, 17, p.storedLength())
}

func TestQueries(t *testing.T) {
	s := newStore(t, &memPersister{}, 1)
	var ids []string
	for i := 0; i < 3; i++ {
		tx := recordTx(t, fmt.Sprintf("rec-%d", i))
		ids = append(ids, tx.ID)
		_, err := s.Commit([]types.Transaction{tx})
		require.NoError(t, err)
	}
	consent, err := types.NewConsent(types.ConsentRequest{
		PatientID: "pat-1", ProviderID: "doc-1", RecordID: "rec-0", Status: types.ConsentGranted,
	}, nil)
	require.NoError(t, err)
	_, err = s.Commit([]types.Transaction{consent})
	require.NoError(t, err)

	blocks := s.GetBlocks(2)
	require.Len(t, blocks, 2)
	assert.Equal(t, uint64(4), blocks[0].Index)
	assert.Equal(t, uint64(3), blocks[1].Index)
	assert.Len(t, s.GetBlocks(0), 5)
	assert.Len(t, s.GetBlocks(100), 5)

	_, ok := s.GetBlock(5)
	assert.False(t, ok)

	recs := s.FindTransactions(types.TxMedicalRecordHash, 2)
	require.Len(t, recs, 2)
	assert.Equal(t, ids[2], recs[0].Transaction.ID)
	assert.Equal(t, ids[1], recs[1].Transaction.ID)

	all := s.FindTransactions("", 0)
	assert.Len(t, all, 5)
	assert.Equal(t, consent.ID, all[0].Transaction.ID)
	assert.Equal(t, types.TxGenesis, all[4].Transaction.Type)

	forRecord := s.TransactionsForRecord("rec-0")
	require.Len(t, forRecord, 2)
	assert.Equal(t, consent.ID, forRecord[0].Transaction.ID)
	assert.Len(t, s.TransactionsForProvider("doc-1", 0), 1)
	assert.Len(t, s.TransactionsForPatient("pat-1", 0), 4)
	assert.Len(t, s.TransactionsForPatient("pat-1", 2), 2)

	_, ok = s.FindTransaction("missing")
	assert.False(t, ok)
}

func TestReturnedBlocksAreCopies(t *testing.T) {
	s := newStore(t, &memPersister{}, 1)
	b, _ := s.GetBlock(0)
	b.Transactions[0] = recordTx(t, "forged")

	again, _ := s.GetBlock(0)
	assert.Equal(t, types.TxGenesis, again.Transactions[0].Type)
}
