package types

import (
	"time"

	"github.com/google/uuid"
)

// Metadata keys written by the constructors below.
const (
	MetaOperation     = "operation"
	MetaRecordType    = "record_type"
	MetaConsentAction = "consent_action"
	MetaActor         = "actor"
)

// Operation values stored under MetaOperation.
const (
	OperationCreate   = "CREATE"
	OperationTransfer = "TRANSFER"
	OperationAlert    = "ALERT"
	OperationGenesis  = "GENESIS"
)

// NewRecordHash builds a medical_record_hash transaction.
func NewRecordHash(recordID, contentHash, patientID string, extra map[string]string) (Transaction, error) {
	meta := merge(map[string]string{
		MetaOperation:  OperationCreate,
		MetaRecordType: "medical_record",
	}, extra)
	return NewTransaction(TxMedicalRecordHash, RecordHashAsset{
		RecordID:  recordID,
		Hash:      contentHash,
		PatientID: patientID,
	}, meta)
}

// ConsentRequest carries the fields of a consent transaction. ConsentID and
// ConsentType are filled in when left empty.
type ConsentRequest struct {
	ConsentID   string
	PatientID   string
	ProviderID  string
	RecordID    string
	ConsentType string
	Status      string
	ExpiresAt   *time.Time
}

// NewConsent builds a consent transaction. Grants are recorded as CREATE and
// revocations as TRANSFER operations.
func NewConsent(req ConsentRequest, extra map[string]string) (Transaction, error) {
	if req.ConsentID == "" {
		req.ConsentID = uuid.NewString()
	}
	if req.ConsentType == "" {
		req.ConsentType = DefaultConsentType
	}
	if req.ExpiresAt != nil {
		exp := req.ExpiresAt.UTC()
		req.ExpiresAt = &exp
	}
	op := OperationTransfer
	if req.Status == ConsentGranted {
		op = OperationCreate
	}
	meta := merge(map[string]string{
		MetaOperation:     op,
		MetaConsentAction: req.Status,
	}, extra)
	return NewTransaction(TxConsent, ConsentAsset{
		ConsentID:   req.ConsentID,
		PatientID:   req.PatientID,
		ProviderID:  req.ProviderID,
		RecordID:    req.RecordID,
		ConsentType: req.ConsentType,
		Status:      req.Status,
		ExpiresAt:   req.ExpiresAt,
	}, meta)
}

// NewTampering builds a tampering_detection alert.
func NewTampering(asset TamperingAsset, extra map[string]string) (Transaction, error) {
	if asset.Severity == "" {
		asset.Severity = SeverityHigh
	}
	if asset.DetectedAt.IsZero() {
		asset.DetectedAt = time.Now().UTC()
	}
	meta := merge(map[string]string{MetaOperation: OperationAlert}, extra)
	return NewTransaction(TxTamperingDetection, asset, meta)
}

// NewGenesis builds the marker transaction for block 0.
func NewGenesis(message, chainID string) (Transaction, error) {
	return NewTransaction(TxGenesis, GenesisAsset{Message: message, ChainID: chainID},
		map[string]string{MetaOperation: OperationGenesis})
}

func merge(base, extra map[string]string) map[string]string {
	for k, v := range extra {
		if _, reserved := base[k]; reserved {
			continue
		}
		base[k] = v
	}
	return base
}
