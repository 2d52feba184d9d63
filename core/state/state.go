package state

import (
	"healthledger/core/block"
	"healthledger/core/types"
)

// Location points at a transaction inside the chain.
type Location struct {
	Block uint64 // block position in the chain
	Tx    int    // position inside the block
}

// ChainIndexes maps lookup keys to transaction locations. Slices are kept in
// chain order, oldest first. It is not safe for concurrent use; the chain
// store guards it with its own lock.
type ChainIndexes struct {
	ByTxID       map[string]Location
	ByRecordID   map[string][]Location
	ByPatientID  map[string][]Location
	ByProviderID map[string][]Location
	ByType       map[types.TxType][]Location
}

// NewChainIndexes returns empty indexes.
func NewChainIndexes() *ChainIndexes {
	return &ChainIndexes{
		ByTxID:       make(map[string]Location),
		ByRecordID:   make(map[string][]Location),
		ByPatientID:  make(map[string][]Location),
		ByProviderID: make(map[string][]Location),
		ByType:       make(map[types.TxType][]Location),
	}
}

// Rebuild indexes every block of a freshly loaded chain.
func Rebuild(blocks []block.Block) *ChainIndexes {
	idx := NewChainIndexes()
	for i := range blocks {
		idx.IndexBlock(uint64(i), &blocks[i])
	}
	return idx
}

// IndexBlock adds every transaction of blk, which sits at position pos of the
// chain. Positions rather than stored indexes are recorded so a damaged chain
// still indexes safely. A transaction id seen earlier keeps its first location.
func (idx *ChainIndexes) IndexBlock(pos uint64, blk *block.Block) {
	for i, tx := range blk.Transactions {
		loc := Location{Block: pos, Tx: i}
		if _, dup := idx.ByTxID[tx.ID]; !dup {
			idx.ByTxID[tx.ID] = loc
		}
		idx.ByType[tx.Type] = append(idx.ByType[tx.Type], loc)

		recordID, patientID, providerID := subjects(tx)
		if recordID != "" {
			idx.ByRecordID[recordID] = append(idx.ByRecordID[recordID], loc)
		}
		if patientID != "" {
			idx.ByPatientID[patientID] = append(idx.ByPatientID[patientID], loc)
		}
		if providerID != "" {
			idx.ByProviderID[providerID] = append(idx.ByProviderID[providerID], loc)
		}
	}
}

// HasTx reports whether txID is already on chain.
func (idx *ChainIndexes) HasTx(txID string) bool {
	_, ok := idx.ByTxID[txID]
	return ok
}

func subjects(tx types.Transaction) (recordID, patientID, providerID string) {
	switch a := tx.Asset.(type) {
	case types.RecordHashAsset:
		return a.RecordID, a.PatientID, ""
	case types.ConsentAsset:
		return a.RecordID, a.PatientID, a.ProviderID
	case types.TamperingAsset:
		return a.RecordID, a.PatientID, ""
	}
	return "", "", ""
}
