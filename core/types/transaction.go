package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"healthledger/types/ids"
)

// TxType names the kind of event a transaction records.
type TxType string

const (
	TxGenesis            TxType = "genesis"
	TxMedicalRecordHash  TxType = "medical_record_hash"
	TxConsent            TxType = "consent"
	TxTamperingDetection TxType = "tampering_detection"
)

// Known reports whether t is one of the transaction types this build creates.
func (t TxType) Known() bool {
	switch t {
	case TxGenesis, TxMedicalRecordHash, TxConsent, TxTamperingDetection:
		return true
	}
	return false
}

// ParseTxType accepts a known type name.
func ParseTxType(s string) (TxType, error) {
	t := TxType(s)
	if !t.Known() {
		return "", fmt.Errorf("%w: unknown transaction type %q", ErrInvalidTransaction, s)
	}
	return t, nil
}

// ErrInvalidTransaction marks a malformed transaction, rejected before it
// reaches the pending pool.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Transaction is an immutable ledger entry. Once created it is never altered;
// it ends up embedded in exactly one block.
type Transaction struct {
	ID        string            `json:"id"`
	Type      TxType            `json:"type"`
	Asset     Asset             `json:"asset"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewTransaction builds a transaction with a fresh id. The asset must be the
// variant that belongs to txType.
func NewTransaction(txType TxType, asset Asset, metadata map[string]string) (Transaction, error) {
	if asset == nil {
		return Transaction{}, fmt.Errorf("%w: %s transaction has no asset", ErrInvalidTransaction, txType)
	}
	if asset.Kind() != txType {
		return Transaction{}, fmt.Errorf("%w: asset of kind %s does not match type %s", ErrInvalidTransaction, asset.Kind(), txType)
	}
	if err := asset.Validate(); err != nil {
		return Transaction{}, err
	}
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	tx := Transaction{
		Type:      txType,
		Asset:     asset,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	content, err := tx.contentBytes()
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	tx.ID = ids.Derive(content).String()
	return tx, nil
}

// Validate checks a transaction that was built elsewhere (decoded or
// hand-assembled) before it is queued.
func (tx Transaction) Validate() error {
	if tx.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTransaction)
	}
	if tx.Asset == nil {
		return fmt.Errorf("%w: %s has no asset", ErrInvalidTransaction, tx.ID)
	}
	if tx.Asset.Kind() != tx.Type {
		return fmt.Errorf("%w: %s asset kind %s does not match type %s", ErrInvalidTransaction, tx.ID, tx.Asset.Kind(), tx.Type)
	}
	if err := tx.Asset.Validate(); err != nil {
		return fmt.Errorf("%s: %w", tx.ID, err)
	}
	if tx.CreatedAt.IsZero() {
		return fmt.Errorf("%w: %s has no created_at", ErrInvalidTransaction, tx.ID)
	}
	return nil
}

// contentBytes is everything but the id; the id is derived from it.
func (tx Transaction) contentBytes() ([]byte, error) {
	return json.Marshal(struct {
		Type      TxType            `json:"type"`
		Asset     Asset             `json:"asset"`
		Metadata  map[string]string `json:"metadata"`
		CreatedAt time.Time         `json:"created_at"`
	}{tx.Type, tx.Asset, tx.Metadata, tx.CreatedAt})
}

type txWire struct {
	ID        string            `json:"id"`
	Type      TxType            `json:"type"`
	Asset     json.RawMessage   `json:"asset"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// MarshalJSON writes metadata as an object even when nil so the encoding
// stays stable across a decode.
func (tx Transaction) MarshalJSON() ([]byte, error) {
	asset, err := json.Marshal(tx.Asset)
	if err != nil {
		return nil, err
	}
	meta := tx.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	return json.Marshal(txWire{
		ID:        tx.ID,
		Type:      tx.Type,
		Asset:     asset,
		Metadata:  meta,
		CreatedAt: tx.CreatedAt,
	})
}

// UnmarshalJSON decodes the asset into the variant named by type. Types this
// build does not know are kept verbatim as UnknownAsset.
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var w txWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	asset, err := decodeAsset(w.Type, w.Asset)
	if err != nil {
		return fmt.Errorf("transaction %s: %w", w.ID, err)
	}
	*tx = Transaction{
		ID:        w.ID,
		Type:      w.Type,
		Asset:     asset,
		Metadata:  w.Metadata,
		CreatedAt: w.CreatedAt,
	}
	return nil
}

func decodeAsset(t TxType, raw json.RawMessage) (Asset, error) {
	switch t {
	case TxGenesis:
		var a GenesisAsset
		err := unmarshalAsset(raw, &a)
		return a, err
	case TxMedicalRecordHash:
		var a RecordHashAsset
		err := unmarshalAsset(raw, &a)
		return a, err
	case TxConsent:
		var a ConsentAsset
		err := unmarshalAsset(raw, &a)
		return a, err
	case TxTamperingDetection:
		var a TamperingAsset
		err := unmarshalAsset(raw, &a)
		return a, err
	default:
		kept := make(json.RawMessage, len(raw))
		copy(kept, raw)
		return UnknownAsset{Type: t, Raw: kept}, nil
	}
}

func unmarshalAsset(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errors.New("asset missing")
	}
	return json.Unmarshal(raw, dst)
}

// RecordHash returns the asset when tx is a medical_record_hash transaction.
func (tx Transaction) RecordHash() (RecordHashAsset, bool) {
	a, ok := tx.Asset.(RecordHashAsset)
	return a, ok
}

// Consent returns the asset when tx is a consent transaction.
func (tx Transaction) Consent() (ConsentAsset, bool) {
	a, ok := tx.Asset.(ConsentAsset)
	return a, ok
}

// Tampering returns the asset when tx is a tampering_detection transaction.
func (tx Transaction) Tampering() (TamperingAsset, bool) {
	a, ok := tx.Asset.(TamperingAsset)
	return a, ok
}
