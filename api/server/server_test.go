package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthledger/core/block"
	"healthledger/core/chain"
	"healthledger/core/config"
	"healthledger/core/ledger"
	"healthledger/core/logging"
	"healthledger/core/types"
	"healthledger/core/validation"
)

func openLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	cfg := config.Default()
	cfg.StorePath = filepath.Join(t.TempDir(), "chain.json")
	cfg.Difficulty = 1
	l, err := ledger.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func do(t *testing.T, h http.Handler, method, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestStatusHealthy(t *testing.T) {
	l := openLedger(t)
	_, err := l.SubmitRecordHash("rec-1", "deadbeef")
	require.NoError(t, err)
	h := NewServer(l, ":0", t.TempDir(), logging.Discard()).Handler()

	var resp StatusResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/status", &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.True(t, resp.ChainValid)
	assert.Equal(t, 2, resp.ChainLength)
	assert.Equal(t, 1, resp.Difficulty)
	assert.Len(t, resp.LatestHash, 64)
	assert.Nil(t, resp.FirstInvalidIndex)
	assert.Equal(t, Version, resp.Version)
	assert.Equal(t, 2, resp.Metrics.ChainLength)

	var live LivenessResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/liveness", &live))
	assert.True(t, live.Alive)
	var ready ReadinessResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/readiness", &ready))
	assert.True(t, ready.Ready)

	var health NodeHealthResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/nodehealth", &health))
	assert.Equal(t, StatusHealthy, health.Status)
	assert.NotEmpty(t, health.Metrics.LastBlockTime)
}

func TestChainRoutes(t *testing.T) {
	l := openLedger(t)
	txID, err := l.SubmitRecordHash("rec-1", "deadbeef")
	require.NoError(t, err)
	h := NewServer(l, ":0", "", logging.Discard()).Handler()

	var blocks []block.Block
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/blocks?limit=1", &blocks))
	require.Len(t, blocks, 1)
	assert.Equal(t, uint64(1), blocks[0].Index)

	var b block.Block
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/blocks/0", &b))
	assert.Equal(t, block.ZeroHash, b.PreviousHash)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/blocks/9", nil))
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/blocks/x", nil))
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/blocks?limit=-1", nil))

	var view ledger.TxView
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/transactions/"+txID, &view))
	assert.Equal(t, ledger.TxConfirmed, view.Status)
	assert.Equal(t, types.TxMedicalRecordHash, view.Transaction.Type)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/transactions/nope", nil))

	var pending []types.Transaction
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/mempool", &pending))
	assert.Empty(t, pending)

	var res validation.Result
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/chain/validate", &res))
	assert.True(t, res.IsValid)
	assert.Equal(t, 2, res.CheckedBlocks)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/chain/validate", nil))
}

func TestPatientAndProviderRoutes(t *testing.T) {
	l := openLedger(t)
	_, err := l.SubmitRecordHash("rec-1", "deadbeef", ledger.WithPatient("pat-1"))
	require.NoError(t, err)
	consentID, err := l.SubmitConsent("pat-1", "doc-1", "rec-1", types.ConsentGranted, nil)
	require.NoError(t, err)
	h := NewServer(l, ":0", "", logging.Discard()).Handler()

	var history []chain.TxRecord
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/patients/pat-1/transactions", &history))
	require.Len(t, history, 2)
	assert.Equal(t, consentID, history[0].Transaction.ID)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/patients/pat-1/transactions?limit=1", &history))
	assert.Len(t, history, 1)

	var consents []chain.TxRecord
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/providers/doc-1/consents", &consents))
	require.Len(t, consents, 1)
	assert.Equal(t, types.TxConsent, consents[0].Transaction.Type)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/providers/doc-1/consents?limit=x", nil))
}

// tamperedLedger reports an invalid chain.
type tamperedLedger struct {
	*ledger.Ledger
}

func (tamperedLedger) invalid() validation.Result {
	at := uint64(1)
	return validation.Result{IsValid: false, FirstInvalidIndex: &at, Reason: "hash mismatch", CheckedBlocks: 2}
}

func (t tamperedLedger) ValidateChain() validation.Result { return t.invalid() }

func (t tamperedLedger) Status() ledger.Status {
	st := t.Ledger.Status()
	st.Validation = t.invalid()
	return st
}

func (t tamperedLedger) ChainInfo() ledger.ChainInfo {
	info := t.Ledger.ChainInfo()
	res := t.invalid()
	info.IsValid = false
	info.FirstInvalidIndex = res.FirstInvalidIndex
	return info
}

func TestStatusTampered(t *testing.T) {
	h := NewServer(tamperedLedger{openLedger(t)}, ":0", "", logging.Discard()).Handler()

	var resp StatusResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/status", &resp))
	assert.Equal(t, StatusTampered, resp.Status)
	assert.False(t, resp.ChainValid)
	require.NotNil(t, resp.FirstInvalidIndex)
	assert.Equal(t, uint64(1), *resp.FirstInvalidIndex)
	assert.Equal(t, "hash mismatch", resp.Reason)

	var ready ReadinessResponse
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/health/readiness", &ready))
	assert.False(t, ready.Ready)
	var live LivenessResponse
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/liveness", &live))
	assert.True(t, live.Alive, "a tampered chain is still serving")
}

func TestClosedLedgerIsNotAlive(t *testing.T) {
	l := openLedger(t)
	require.NoError(t, l.Close())
	h := NewServer(l, ":0", "", logging.Discard()).Handler()

	var live LivenessResponse
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/health/liveness", &live))
	assert.False(t, live.Alive)
	var health NodeHealthResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/nodehealth", &health))
	assert.Equal(t, StatusClosed, health.Status)
}
