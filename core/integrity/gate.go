// Package integrity implements the check that record-handling code runs
// before releasing decrypted content: does the hash it recomputed from the
// stored record still match what the ledger recorded for it?
//
// A mismatch is written back to the ledger as a tampering_detection
// transaction, so a failed verification mutates the chain.
package integrity

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"healthledger/core/block"
	"healthledger/core/chain"
	"healthledger/core/logging"
	"healthledger/core/notify"
	"healthledger/core/types"
	"healthledger/core/validation"
)

// Status is the outcome of a verification. None of them is an error.
type Status string

const (
	Verified            Status = "verified"
	HashMismatch        Status = "hash_mismatch"
	TransactionNotFound Status = "transaction_not_found"
)

// ErrInvalidRequest rejects a verification with missing arguments.
var ErrInvalidRequest = errors.New("invalid integrity request")

// Result describes one verification.
type Result struct {
	Status       Status `json:"status"`
	RecordID     string `json:"record_id"`
	TxID         string `json:"tx_id"`
	ExpectedHash string `json:"expected_hash"`
	RecordedHash string `json:"recorded_hash,omitempty"`
	// TamperingType is set on HashMismatch: hash_mismatch, tx_id_mismatch
	// when tx_id exists but does not fingerprint record_id, or block_invalid
	// when the block holding tx_id fails chain validation.
	TamperingType string  `json:"tampering_type,omitempty"`
	AlertTxID     string  `json:"alert_tx_id,omitempty"`
	AlertBlock    *uint64 `json:"alert_block,omitempty"`
}

// Ledger is what the gate needs from the ledger service.
type Ledger interface {
	FindTransaction(txID string) (chain.TxRecord, bool)
	// RecordAlert queues tx and commits it.
	RecordAlert(tx types.Transaction) (block.Block, error)
	// Validation is the most recent chain validation result.
	Validation() validation.Result
}

type Gate struct {
	ledger     Ledger
	notifier   notify.Notifier
	detectedBy string
	log        *slog.Logger
}

// NewGate wires a gate. detectedBy is stored on alerts it raises.
func NewGate(l Ledger, n notify.Notifier, detectedBy string, logger *slog.Logger) *Gate {
	if n == nil {
		n = notify.Fanout{}
	}
	return &Gate{ledger: l, notifier: n, detectedBy: detectedBy, log: logging.Component(logger, "integrity")}
}

// Verify compares expectedHash against the hash recorded for recordID by the
// transaction txID. On mismatch it commits a tampering_detection alert before
// returning HashMismatch; an error alongside HashMismatch means that alert
// could not be recorded.
func (g *Gate) Verify(recordID, expectedHash, txID string) (Result, error) {
	recordID = strings.TrimSpace(recordID)
	expectedHash = strings.TrimSpace(expectedHash)
	txID = strings.TrimSpace(txID)
	if recordID == "" || expectedHash == "" || txID == "" {
		return Result{}, fmt.Errorf("%w: record_id, expected_hash and tx_id are required", ErrInvalidRequest)
	}
	res := Result{RecordID: recordID, TxID: txID, ExpectedHash: expectedHash}

	rec, ok := g.ledger.FindTransaction(txID)
	if !ok {
		res.Status = TransactionNotFound
		g.log.Warn("verification against unknown transaction", "record_id", recordID, "tx_id", txID)
		g.notifier.Notify(notify.Admin(notify.EventTamperingDetected, txID, recordID, "transaction not found on chain"))
		return res, nil
	}

	asset, isRecord := rec.Transaction.RecordHash()
	if isRecord {
		res.RecordedHash = asset.Hash
	}
	switch {
	case untrusted(g.ledger.Validation(), rec.BlockIndex):
		res.TamperingType = types.TamperingBlockInvalid
	case !isRecord || asset.RecordID != recordID:
		res.TamperingType = types.TamperingTxIDMismatch
	case !strings.EqualFold(asset.Hash, expectedHash):
		res.TamperingType = types.TamperingHashMismatch
	default:
		res.Status = Verified
		g.log.Debug("record verified", "record_id", recordID, "tx_id", txID, "block", rec.BlockIndex)
		return res, nil
	}
	res.Status = HashMismatch
	g.log.Warn("tampering detected",
		"record_id", recordID,
		"tx_id", txID,
		"type", res.TamperingType,
		"expected", expectedHash,
		"recorded", res.RecordedHash)

	alert, err := types.NewTampering(types.TamperingAsset{
		RecordID:      recordID,
		PatientID:     asset.PatientID,
		TamperingType: res.TamperingType,
		ExpectedHash:  expectedHash,
		ActualHash:    res.RecordedHash,
		OriginalTxID:  txID,
		DetectedBy:    g.detectedBy,
	}, nil)
	if err != nil {
		return res, fmt.Errorf("build tampering alert: %w", err)
	}
	res.AlertTxID = alert.ID

	g.notifier.Notify(notify.Admin(notify.EventTamperingDetected, txID, recordID,
		fmt.Sprintf("%s: expected %s, recorded %s", res.TamperingType, expectedHash, res.RecordedHash)))

	b, err := g.ledger.RecordAlert(alert)
	if err != nil {
		g.log.Error("tampering alert not recorded", "record_id", recordID, "alert_tx_id", alert.ID, "error", err)
		g.notifier.Notify(notify.Admin(notify.EventAlertNotRecorded, alert.ID, recordID, err.Error()))
		return res, fmt.Errorf("record tampering alert: %w", err)
	}
	idx := b.Index
	res.AlertBlock = &idx
	return res, nil
}

// untrusted reports whether the block at index sits at or after the first
// block that failed validation.
func untrusted(v validation.Result, index uint64) bool {
	return !v.IsValid && v.FirstInvalidIndex != nil && *v.FirstInvalidIndex <= index
}
