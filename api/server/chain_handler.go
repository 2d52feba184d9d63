package server

import (
	"net/http"
	"strconv"
)

const defaultBlockLimit = 20

// queryLimit reads ?limit, falling back to def. It writes a 400 and
// returns false when the value is not a non-negative integer.
func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// handleListBlocks returns the most recent blocks, newest first.
// ?limit=0 returns the whole chain.
func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, defaultBlockLimit)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.GetBlocks(limit))
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "block index must be a non-negative integer")
		return
	}
	b, ok := s.ledger.GetBlock(index)
	if !ok {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleInspectTx looks a transaction up on the chain, then in the pool.
func (s *Server) handleInspectTx(w http.ResponseWriter, r *http.Request) {
	view, ok := s.ledger.GetTransaction(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMempool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.PendingTransactions())
}

func (s *Server) handlePatientHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, 0)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.PatientHistory(r.PathValue("id"), limit))
}

func (s *Server) handleProviderConsents(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, 0)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.ProviderConsents(r.PathValue("id"), limit))
}
