package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"healthledger/core/audit"
	"healthledger/core/block"
	"healthledger/core/chain"
	"healthledger/core/miner"
	"healthledger/core/types"
)

// SubmitOption annotates a submitted transaction.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	patientID string
	meta      map[string]string
}

// WithPatient stores the patient a record hash belongs to.
func WithPatient(id string) SubmitOption {
	return func(o *submitOptions) { o.patientID = id }
}

// WithActor records who submitted the transaction.
func WithActor(id string) SubmitOption {
	return WithMetadata(types.MetaActor, id)
}

// WithMetadata adds a free-form annotation. Keys the ledger writes itself
// cannot be overridden.
func WithMetadata(key, value string) SubmitOption {
	return func(o *submitOptions) {
		if o.meta == nil {
			o.meta = make(map[string]string)
		}
		o.meta[key] = value
	}
}

func collect(opts []SubmitOption) submitOptions {
	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Enqueue queues tx without committing it. Malformed transactions, genesis
// transactions and ids already known to the ledger are rejected with
// types.ErrInvalidTransaction; a full pool with mempool.ErrPoolFull.
func (l *Ledger) Enqueue(tx types.Transaction) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.Type == types.TxGenesis {
		return fmt.Errorf("%w: genesis transactions cannot be submitted", types.ErrInvalidTransaction)
	}
	if _, ok := l.pool.GetTx(tx.ID); ok {
		return fmt.Errorf("%w: id %s already pending", types.ErrInvalidTransaction, tx.ID)
	}
	if _, ok := l.store.FindTransaction(tx.ID); ok {
		return fmt.Errorf("%w: id %s already on chain", types.ErrInvalidTransaction, tx.ID)
	}
	return l.pool.Enqueue(tx)
}

// Commit mines everything pending into one block. It returns nil and no
// error when there is nothing to mine. On a persistence failure or an
// exhausted nonce space the batch goes back to the head of the pool.
func (l *Ledger) Commit() (*block.Block, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.commitLocked()
}

func (l *Ledger) commitLocked() (*block.Block, error) {
	txs := l.pool.Drain()
	if len(txs) == 0 {
		return nil, nil
	}
	b, err := l.store.Commit(txs)
	if err != nil {
		requeued := errors.Is(err, chain.ErrPersistence) || errors.Is(err, miner.ErrMiningExhausted)
		if requeued {
			l.pool.Requeue(txs)
		}
		l.log.Error("commit failed", "txs", len(txs), "requeued", requeued, "error", err)
		l.audit.LogEvent(audit.AuditEvent{
			EventType: audit.EventCommitFailed,
			EntityID:  txs[0].ID,
			Result:    "failure",
			Reason:    err.Error(),
			Metadata:  map[string]string{"txs": fmt.Sprint(len(txs)), "requeued": fmt.Sprint(requeued)},
		})
		return nil, err
	}

	ids := make([]string, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.ID
	}
	l.audit.LogEvent(audit.AuditEvent{
		EventType: audit.EventBlockCommitted,
		EntityID:  b.Hash,
		Result:    "success",
		Metadata: map[string]string{
			"index": fmt.Sprint(b.Index),
			"nonce": fmt.Sprint(b.Nonce),
			"txs":   strings.Join(ids, ","),
		},
	})
	return &b, nil
}

// submit queues tx and commits it in its own critical section, so the
// returned block holds tx.
func (l *Ledger) submit(tx types.Transaction) (*block.Block, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.Enqueue(tx); err != nil {
		return nil, err
	}
	return l.commitLocked()
}

// SubmitRecordHash commits a medical_record_hash transaction for recordID
// and returns its id, to be stored next to the encrypted record. When the
// commit fails after queuing, the id is returned with the error and the
// transaction stays pending.
func (l *Ledger) SubmitRecordHash(recordID, contentHash string, opts ...SubmitOption) (string, error) {
	o := collect(opts)
	tx, err := types.NewRecordHash(strings.TrimSpace(recordID), strings.TrimSpace(contentHash), o.patientID, o.meta)
	if err != nil {
		return "", err
	}
	return l.submitID(tx)
}

// SubmitConsent commits a consent grant or revocation.
func (l *Ledger) SubmitConsent(patientID, providerID, recordID, status string, expiresAt *time.Time, opts ...SubmitOption) (string, error) {
	o := collect(opts)
	tx, err := types.NewConsent(types.ConsentRequest{
		PatientID:  strings.TrimSpace(patientID),
		ProviderID: strings.TrimSpace(providerID),
		RecordID:   strings.TrimSpace(recordID),
		Status:     strings.ToLower(strings.TrimSpace(status)),
		ExpiresAt:  expiresAt,
	}, o.meta)
	if err != nil {
		return "", err
	}
	return l.submitID(tx)
}

func (l *Ledger) submitID(tx types.Transaction) (string, error) {
	if _, err := l.submit(tx); err != nil {
		if _, pending := l.pool.GetTx(tx.ID); pending {
			return tx.ID, err
		}
		return "", err
	}
	return tx.ID, nil
}

// RecordAlert commits a tampering alert raised by the integrity gate.
func (l *Ledger) RecordAlert(tx types.Transaction) (block.Block, error) {
	b, err := l.submit(tx)
	if err != nil {
		return block.Block{}, err
	}
	if b == nil {
		return block.Block{}, fmt.Errorf("alert %s was not mined", tx.ID)
	}
	return *b, nil
}
