package chain

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"healthledger/core/block"
	"healthledger/core/logging"
	"healthledger/core/miner"
	"healthledger/core/state"
	"healthledger/core/storage"
	"healthledger/core/types"
)

var (
	// ErrPersistence wraps a failed save. The block was not appended and the
	// commit is safe to retry.
	ErrPersistence = errors.New("persistence failure")
	// ErrEmptyCommit rejects a commit with no transactions; only genesis may
	// be sealed without caller transactions.
	ErrEmptyCommit = errors.New("commit requires at least one transaction")
)

// GenesisFunc builds the marker transaction sealed into block 0.
type GenesisFunc func() (types.Transaction, error)

type Options struct {
	// Difficulty seals a new chain and is the floor every loaded block is
	// checked against. A loaded chain persisted at a higher difficulty keeps
	// its own.
	Difficulty int
	Genesis    GenesisFunc
	Logger     *slog.Logger
}

// Store owns the chain. Readers share mu; commits additionally hold
// commitMu from choosing index and previous_hash until the new block is
// durable and published, so no two seals ever target the same index.
type Store struct {
	mu         sync.RWMutex
	blocks     []block.Block
	idx        *state.ChainIndexes
	difficulty int
	created    bool

	commitMu  sync.Mutex
	persister storage.Persister
	miner     *miner.Miner
	opts      Options
	log       *slog.Logger
}

func New(p storage.Persister, m *miner.Miner, opts Options) *Store {
	if opts.Genesis == nil {
		opts.Genesis = func() (types.Transaction, error) {
			return types.NewGenesis("genesis", "")
		}
	}
	return &Store{
		idx:        state.NewChainIndexes(),
		difficulty: opts.Difficulty,
		persister:  p,
		miner:      m,
		opts:       opts,
		log:        logging.Component(opts.Logger, "chain"),
	}
}

// Init loads the persisted chain, or seals and persists a genesis block when
// none exists. Load errors (including storage.ErrCorruptedStore) are
// returned as is for the caller to decide on.
func (s *Store) Init() error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	doc, err := s.persister.Load()
	if err != nil {
		return fmt.Errorf("load chain: %w", err)
	}
	if doc != nil && len(doc.Chain) > 0 {
		// The stored value is part of the file and can be edited with it, so
		// it may raise the target but never lower it.
		difficulty := max(s.opts.Difficulty, doc.Difficulty)
		switch {
		case doc.Difficulty < s.opts.Difficulty:
			s.log.Warn("stored difficulty below configured, checking blocks at configured",
				"configured", s.opts.Difficulty, "stored", doc.Difficulty)
		case doc.Difficulty > s.opts.Difficulty:
			s.log.Warn("configured difficulty below stored, keeping stored",
				"configured", s.opts.Difficulty, "stored", doc.Difficulty)
		}
		s.mu.Lock()
		s.blocks = doc.Chain
		s.idx = state.Rebuild(doc.Chain)
		s.difficulty = difficulty
		s.mu.Unlock()
		s.log.Info("chain loaded", "length", len(doc.Chain), "difficulty", difficulty,
			"tip", doc.Chain[len(doc.Chain)-1].Hash)
		return nil
	}

	gtx, err := s.opts.Genesis()
	if err != nil {
		return fmt.Errorf("build genesis transaction: %w", err)
	}
	genesis, err := s.miner.Seal(miner.Template{
		Index:        0,
		PreviousHash: block.ZeroHash,
		Transactions: []types.Transaction{gtx},
	}, s.difficulty)
	if err != nil {
		return fmt.Errorf("seal genesis: %w", err)
	}
	chain := []block.Block{genesis}
	if err := s.persister.Save(storage.Document{Difficulty: s.difficulty, Chain: chain}); err != nil {
		return fmt.Errorf("%w: save genesis: %v", ErrPersistence, err)
	}
	s.mu.Lock()
	s.blocks = chain
	s.idx = state.Rebuild(chain)
	s.created = true
	s.mu.Unlock()
	s.log.Info("genesis block created", "hash", genesis.Hash, "nonce", genesis.Nonce, "difficulty", s.difficulty)
	return nil
}

// Commit seals txs into the next block and persists the whole chain before
// publishing it. If the save fails nothing is appended.
func (s *Store) Commit(txs []types.Transaction) (block.Block, error) {
	if len(txs) == 0 {
		return block.Block{}, ErrEmptyCommit
	}
	batch := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return block.Block{}, err
		}
		if tx.Type == types.TxGenesis {
			return block.Block{}, fmt.Errorf("%w: %s: genesis transactions only belong in block 0", types.ErrInvalidTransaction, tx.ID)
		}
		if _, dup := batch[tx.ID]; dup {
			return block.Block{}, fmt.Errorf("%w: duplicate id %s in batch", types.ErrInvalidTransaction, tx.ID)
		}
		batch[tx.ID] = struct{}{}
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.RLock()
	if len(s.blocks) == 0 {
		s.mu.RUnlock()
		return block.Block{}, errors.New("chain not initialised")
	}
	for _, tx := range txs {
		if s.idx.HasTx(tx.ID) {
			s.mu.RUnlock()
			return block.Block{}, fmt.Errorf("%w: id %s already on chain", types.ErrInvalidTransaction, tx.ID)
		}
	}
	tail := s.blocks[len(s.blocks)-1]
	n := len(s.blocks)
	difficulty := s.difficulty
	// Full slice expression forces append to copy: readers keep the old array.
	next := s.blocks[:n:n]
	s.mu.RUnlock()

	sealed, err := s.miner.Seal(miner.Template{
		Index:        uint64(n),
		PreviousHash: tail.Hash,
		Transactions: append([]types.Transaction(nil), txs...),
		NotBefore:    tail.Timestamp,
	}, difficulty)
	if err != nil {
		return block.Block{}, err
	}

	next = append(next, sealed)
	if err := s.persister.Save(storage.Document{Difficulty: difficulty, Chain: next}); err != nil {
		s.log.Error("persist failed, block discarded", "index", sealed.Index, "error", err)
		return block.Block{}, fmt.Errorf("%w: block %d: %v", ErrPersistence, sealed.Index, err)
	}

	s.mu.Lock()
	s.blocks = next
	s.idx.IndexBlock(uint64(len(next)-1), &next[len(next)-1])
	s.mu.Unlock()

	s.log.Info("block committed", "index", sealed.Index, "hash", sealed.Hash, "nonce", sealed.Nonce, "txs", len(txs))
	return sealed.Clone(), nil
}

// Difficulty is the proof-of-work target of the loaded chain.
func (s *Store) Difficulty() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.difficulty
}

// Created reports whether Init sealed a new genesis block rather than
// loading a persisted chain.
func (s *Store) Created() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.created
}

// Length is the number of blocks, genesis included.
func (s *Store) Length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

// Latest returns the tail block.
func (s *Store) Latest() (block.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blocks) == 0 {
		return block.Block{}, false
	}
	return s.blocks[len(s.blocks)-1].Clone(), true
}

// Snapshot returns the blocks as of now. Published blocks are never
// modified, so the result is stable; callers must not modify it.
func (s *Store) Snapshot() []block.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks[:len(s.blocks):len(s.blocks)]
}
