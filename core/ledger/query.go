package ledger

import (
	"fmt"

	"healthledger/core/audit"
	"healthledger/core/block"
	"healthledger/core/chain"
	"healthledger/core/integrity"
	"healthledger/core/notify"
	"healthledger/core/types"
	"healthledger/core/validation"
)

// Transaction statuses reported by GetTransaction.
const (
	TxPending   = "pending"
	TxConfirmed = "confirmed"
)

// ChainInfo summarises the ledger.
type ChainInfo struct {
	Length            int     `json:"length"`
	PendingCount      int     `json:"pending_count"`
	Difficulty        int     `json:"difficulty"`
	IsValid           bool    `json:"is_valid"`
	LatestHash        string  `json:"latest_hash"`
	FirstInvalidIndex *uint64 `json:"first_invalid_index,omitempty"`
}

// TxView is a transaction either waiting in the pool or mined into a block.
type TxView struct {
	Status         string            `json:"status"`
	Transaction    types.Transaction `json:"transaction"`
	BlockIndex     *uint64           `json:"block_index,omitempty"`
	BlockHash      string            `json:"block_hash,omitempty"`
	BlockTimestamp float64           `json:"block_timestamp,omitempty"`
}

// ConsentView is the latest consent between a provider and a record.
type ConsentView struct {
	Active  bool               `json:"active"`
	Consent types.ConsentAsset `json:"consent"`
	Record  chain.TxRecord     `json:"record"`
}

// VerifyIntegrity checks expectedHash against what txID recorded for
// recordID. A mismatch commits a tampering alert before returning.
func (l *Ledger) VerifyIntegrity(recordID, expectedHash, txID string) (integrity.Result, error) {
	res, err := l.gate.Verify(recordID, expectedHash, txID)
	if res.Status == "" {
		return res, err
	}
	ev := audit.AuditEvent{
		EventType: audit.EventIntegrityVerified,
		EntityID:  res.RecordID,
		Result:    string(res.Status),
		Metadata:  map[string]string{"tx_id": res.TxID},
	}
	if res.Status == integrity.HashMismatch {
		ev.EventType = audit.EventTamperingDetected
		ev.Reason = res.TamperingType
		ev.Metadata["expected_hash"] = res.ExpectedHash
		ev.Metadata["recorded_hash"] = res.RecordedHash
		if res.AlertTxID != "" {
			ev.Metadata["alert_tx_id"] = res.AlertTxID
		}
		if err != nil {
			ev.Metadata["alert_error"] = err.Error()
		}
	}
	l.audit.LogEvent(ev)
	return res, err
}

// FindTransaction looks up a mined transaction.
func (l *Ledger) FindTransaction(txID string) (chain.TxRecord, bool) {
	return l.store.FindTransaction(txID)
}

// ChainInfo reports the chain's size and tip, validating it afresh.
func (l *Ledger) ChainInfo() ChainInfo {
	res := l.ValidateChain()
	info := ChainInfo{
		Length:            l.store.Length(),
		PendingCount:      l.pool.Len(),
		Difficulty:        l.store.Difficulty(),
		IsValid:           res.IsValid,
		FirstInvalidIndex: res.FirstInvalidIndex,
	}
	if tip, ok := l.store.Latest(); ok {
		info.LatestHash = tip.Hash
	}
	return info
}

// Length is the number of blocks, genesis included.
func (l *Ledger) Length() int {
	return l.store.Length()
}

// GetBlocks returns the most recent limit blocks, newest first; all of them
// when limit <= 0.
func (l *Ledger) GetBlocks(limit int) []block.Block {
	return l.store.GetBlocks(limit)
}

func (l *Ledger) GetBlock(index uint64) (block.Block, bool) {
	return l.store.GetBlock(index)
}

// GetTransactions returns mined transactions of txType, any type when
// empty, newest first.
func (l *Ledger) GetTransactions(txType types.TxType, limit int) []chain.TxRecord {
	return l.store.FindTransactions(txType, limit)
}

// GetTransaction finds txID on the chain or, failing that, in the pool.
func (l *Ledger) GetTransaction(txID string) (TxView, bool) {
	if rec, ok := l.store.FindTransaction(txID); ok {
		idx := rec.BlockIndex
		return TxView{
			Status:         TxConfirmed,
			Transaction:    rec.Transaction,
			BlockIndex:     &idx,
			BlockHash:      rec.BlockHash,
			BlockTimestamp: rec.BlockTimestamp,
		}, true
	}
	if tx, ok := l.pool.GetTx(txID); ok {
		return TxView{Status: TxPending, Transaction: tx}, true
	}
	return TxView{}, false
}

// PendingTransactions lists the pool in FIFO order.
func (l *Ledger) PendingTransactions() []types.Transaction {
	return l.pool.GetAllTxs()
}

// TamperingEvents returns recorded tampering alerts, newest first.
func (l *Ledger) TamperingEvents(limit int) []chain.TxRecord {
	return l.store.FindTransactions(types.TxTamperingDetection, limit)
}

// PatientHistory returns record hashes, consents and alerts naming patientID,
// newest first.
func (l *Ledger) PatientHistory(patientID string, limit int) []chain.TxRecord {
	return l.store.TransactionsForPatient(patientID, limit)
}

// ProviderConsents returns every consent grant or revocation naming
// providerID, newest first.
func (l *Ledger) ProviderConsents(providerID string, limit int) []chain.TxRecord {
	return l.store.TransactionsForProvider(providerID, limit)
}

// ActiveConsent returns the latest consent naming providerID and recordID
// and whether it grants access now.
func (l *Ledger) ActiveConsent(providerID, recordID string) (ConsentView, bool) {
	for _, rec := range l.store.TransactionsForRecord(recordID) {
		c, ok := rec.Transaction.Consent()
		if !ok || c.ProviderID != providerID {
			continue
		}
		return ConsentView{Active: c.EffectiveAt(l.now()), Consent: c, Record: rec}, true
	}
	return ConsentView{}, false
}

// Validation returns the last chain validation result without re-walking.
func (l *Ledger) Validation() validation.Result {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	return l.lastResult
}

// ValidateChain walks the whole chain and updates the admin status flag.
// Operators are notified when the chain turns invalid or the first invalid
// block changes; an invalid chain keeps serving reads and writes.
func (l *Ledger) ValidateChain() validation.Result {
	res := validation.ValidateChain(l.store.Snapshot(), l.store.Difficulty())

	l.statusMu.Lock()
	prev := l.lastResult
	first := l.validatedAt.IsZero()
	l.lastResult = res
	l.validatedAt = l.now().UTC()
	l.statusMu.Unlock()

	if res.IsValid {
		if !first && !prev.IsValid {
			l.log.Info("chain valid again", "length", res.CheckedBlocks)
		}
		return res
	}

	changed := first || prev.IsValid || !sameIndex(prev.FirstInvalidIndex, res.FirstInvalidIndex)
	if !changed {
		return res
	}
	at := *res.FirstInvalidIndex
	l.log.Error("chain validation failed", "first_invalid_index", at, "reason", res.Reason)
	l.audit.LogEvent(audit.AuditEvent{
		EventType: audit.EventChainValidated,
		EntityID:  fmt.Sprint(at),
		Result:    "invalid",
		Reason:    res.Reason,
	})
	l.notifier.Notify(notify.Admin(notify.EventChainInvalid, "", "",
		fmt.Sprintf("block %d: %s", at, res.Reason)))
	return res
}

func sameIndex(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
