package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Asset is the typed payload of a transaction. Each TxType has exactly one
// asset shape; UnknownAsset carries payloads of types this build does not know.
type Asset interface {
	Kind() TxType
	Validate() error
}

// GenesisAsset is the synthetic marker stored in block 0.
type GenesisAsset struct {
	Message string `json:"message"`
	ChainID string `json:"chain_id,omitempty"`
}

func (GenesisAsset) Kind() TxType { return TxGenesis }

func (a GenesisAsset) Validate() error {
	if strings.TrimSpace(a.Message) == "" {
		return fmt.Errorf("%w: genesis message is required", ErrInvalidTransaction)
	}
	return nil
}

// RecordHashAsset fingerprints the content of one medical record.
type RecordHashAsset struct {
	RecordID  string `json:"record_id"`
	Hash      string `json:"hash"`
	PatientID string `json:"patient_id,omitempty"`
}

func (RecordHashAsset) Kind() TxType { return TxMedicalRecordHash }

func (a RecordHashAsset) Validate() error {
	if err := requireFields("medical_record_hash", "record_id", a.RecordID, "hash", a.Hash); err != nil {
		return err
	}
	return nil
}

// Consent statuses.
const (
	ConsentGranted = "granted"
	ConsentRevoked = "revoked"
)

// DefaultConsentType is used when the caller does not name one.
const DefaultConsentType = "read"

// ConsentAsset records a grant or revocation of access to a record.
type ConsentAsset struct {
	ConsentID   string     `json:"consent_id"`
	PatientID   string     `json:"patient_id"`
	ProviderID  string     `json:"provider_id"`
	RecordID    string     `json:"record_id"`
	ConsentType string     `json:"consent_type"`
	Status      string     `json:"status"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (ConsentAsset) Kind() TxType { return TxConsent }

func (a ConsentAsset) Validate() error {
	if err := requireFields("consent",
		"consent_id", a.ConsentID,
		"patient_id", a.PatientID,
		"provider_id", a.ProviderID,
		"record_id", a.RecordID,
		"consent_type", a.ConsentType,
	); err != nil {
		return err
	}
	switch a.Status {
	case ConsentGranted, ConsentRevoked:
	default:
		return fmt.Errorf("%w: consent status %q must be %q or %q", ErrInvalidTransaction, a.Status, ConsentGranted, ConsentRevoked)
	}
	return nil
}

// EffectiveAt reports whether the consent grants access at t.
func (a ConsentAsset) EffectiveAt(t time.Time) bool {
	if a.Status != ConsentGranted {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(t)
}

// Tampering classifications.
const (
	TamperingHashMismatch = "hash_mismatch"
	TamperingTxIDMismatch = "tx_id_mismatch"
	// TamperingBlockInvalid marks a recorded hash held by a block that no
	// longer passes chain validation.
	TamperingBlockInvalid = "block_invalid"
)

// SeverityHigh is the only severity the integrity gate emits today.
const SeverityHigh = "high"

// TamperingAsset is the alert committed when a record fails verification.
// ExpectedHash is what the caller recomputed from stored content; ActualHash is
// what the ledger recorded for the record.
type TamperingAsset struct {
	RecordID      string    `json:"record_id"`
	PatientID     string    `json:"patient_id,omitempty"`
	TamperingType string    `json:"tampering_type"`
	ExpectedHash  string    `json:"expected_hash"`
	ActualHash    string    `json:"actual_hash"`
	OriginalTxID  string    `json:"original_tx_id"`
	DetectedBy    string    `json:"detected_by,omitempty"`
	Severity      string    `json:"severity"`
	DetectedAt    time.Time `json:"detected_at"`
}

func (TamperingAsset) Kind() TxType { return TxTamperingDetection }

func (a TamperingAsset) Validate() error {
	if err := requireFields("tampering_detection",
		"record_id", a.RecordID,
		"expected_hash", a.ExpectedHash,
		"original_tx_id", a.OriginalTxID,
		"severity", a.Severity,
	); err != nil {
		return err
	}
	switch a.TamperingType {
	case TamperingHashMismatch, TamperingTxIDMismatch, TamperingBlockInvalid:
	default:
		return fmt.Errorf("%w: unknown tampering_type %q", ErrInvalidTransaction, a.TamperingType)
	}
	if a.DetectedAt.IsZero() {
		return fmt.Errorf("%w: tampering_detection requires detected_at", ErrInvalidTransaction)
	}
	return nil
}

// UnknownAsset keeps the raw payload of a transaction type written by a newer
// version so that old readers can load, hash and serve it unchanged.
type UnknownAsset struct {
	Type TxType
	Raw  json.RawMessage
}

func (a UnknownAsset) Kind() TxType { return a.Type }

// Validate always fails: unknown assets are loaded, never created.
func (a UnknownAsset) Validate() error {
	return fmt.Errorf("%w: unsupported transaction type %q", ErrInvalidTransaction, a.Type)
}

func (a UnknownAsset) MarshalJSON() ([]byte, error) {
	if len(a.Raw) == 0 {
		return []byte("null"), nil
	}
	return a.Raw, nil
}

// requireFields takes name/value pairs and reports the first blank value.
func requireFields(kind string, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s requires %s", ErrInvalidTransaction, kind, pairs[i])
		}
	}
	return nil
}
