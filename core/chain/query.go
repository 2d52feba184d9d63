package chain

import (
	"healthledger/core/block"
	"healthledger/core/state"
	"healthledger/core/types"
)

// TxRecord is a confirmed transaction with the block that holds it.
type TxRecord struct {
	Transaction    types.Transaction `json:"transaction"`
	BlockIndex     uint64            `json:"block_index"`
	BlockHash      string            `json:"block_hash"`
	BlockTimestamp float64           `json:"block_timestamp"`
}

// GetBlock returns the block at index.
func (s *Store) GetBlock(index uint64) (block.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index >= uint64(len(s.blocks)) {
		return block.Block{}, false
	}
	return s.blocks[index].Clone(), true
}

// GetBlocks returns the most recent limit blocks, newest first. A limit of
// zero or less returns every block.
func (s *Store) GetBlocks(limit int) []block.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.blocks)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]block.Block, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.blocks[i].Clone())
	}
	return out
}

// FindTransaction looks a confirmed transaction up by id.
func (s *Store) FindTransaction(txID string) (TxRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.idx.ByTxID[txID]
	if !ok {
		return TxRecord{}, false
	}
	return s.record(loc), true
}

// FindTransactions returns confirmed transactions of txType (any type when
// empty), newest first, at most limit of them (all when limit <= 0).
func (s *Store) FindTransactions(txType types.TxType, limit int) []TxRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if txType != "" {
		return s.newestFirst(s.idx.ByType[txType], limit)
	}
	var out []TxRecord
	for i := len(s.blocks) - 1; i >= 0; i-- {
		b := &s.blocks[i]
		for j := len(b.Transactions) - 1; j >= 0; j-- {
			if limit > 0 && len(out) >= limit {
				return out
			}
			out = append(out, s.record(state.Location{Block: uint64(i), Tx: j}))
		}
	}
	return out
}

// TransactionsForRecord returns every transaction naming recordID, newest first.
func (s *Store) TransactionsForRecord(recordID string) []TxRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newestFirst(s.idx.ByRecordID[recordID], 0)
}

// TransactionsForProvider returns up to limit consents naming providerID,
// newest first. limit <= 0 returns all of them.
func (s *Store) TransactionsForProvider(providerID string, limit int) []TxRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newestFirst(s.idx.ByProviderID[providerID], limit)
}

// TransactionsForPatient returns up to limit transactions naming patientID,
// newest first. limit <= 0 returns all of them.
func (s *Store) TransactionsForPatient(patientID string, limit int) []TxRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newestFirst(s.idx.ByPatientID[patientID], limit)
}

func (s *Store) newestFirst(locs []state.Location, limit int) []TxRecord {
	n := len(locs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]TxRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.record(locs[i]))
	}
	return out
}

// record must be called with mu held.
func (s *Store) record(loc state.Location) TxRecord {
	b := &s.blocks[loc.Block]
	return TxRecord{
		Transaction:    b.Transactions[loc.Tx],
		BlockIndex:     b.Index,
		BlockHash:      b.Hash,
		BlockTimestamp: b.Timestamp,
	}
}
