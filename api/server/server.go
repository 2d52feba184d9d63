// Package server is the operator-facing status surface of a ledger node.
// It reports the chain's health and lets an operator re-run validation; it
// does not accept records.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"healthledger/core/block"
	"healthledger/core/chain"
	"healthledger/core/ledger"
	"healthledger/core/logging"
	"healthledger/core/types"
	"healthledger/core/validation"
)

// Ledger is the part of *ledger.Ledger the server reads.
type Ledger interface {
	ChainInfo() ledger.ChainInfo
	Length() int
	Status() ledger.Status
	ValidateChain() validation.Result
	GetBlocks(limit int) []block.Block
	GetBlock(index uint64) (block.Block, bool)
	GetTransaction(txID string) (ledger.TxView, bool)
	PendingTransactions() []types.Transaction
	PatientHistory(patientID string, limit int) []chain.TxRecord
	ProviderConsents(providerID string, limit int) []chain.TxRecord
}

type Server struct {
	ledger     Ledger
	ListenAddr string
	// DataDir is the volume whose free space /nodehealth reports.
	DataDir string

	log     *slog.Logger
	started time.Time
	http    *http.Server
}

func NewServer(l Ledger, listenAddr, dataDir string, logger *slog.Logger) *Server {
	s := &Server{
		ledger:     l,
		ListenAddr: listenAddr,
		DataDir:    dataDir,
		log:        logging.Component(logger, "api"),
		started:    time.Now(),
	}
	s.http = &http.Server{
		Addr:              listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routes without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.HandleStatus)
	mux.HandleFunc("GET /health/liveness", s.HandleLiveness)
	mux.HandleFunc("GET /health/readiness", s.HandleReadiness)
	mux.HandleFunc("GET /nodehealth", s.HandleNodeHealth)
	mux.HandleFunc("POST /chain/validate", s.HandleValidate)
	mux.HandleFunc("GET /blocks", s.handleListBlocks)
	mux.HandleFunc("GET /blocks/{index}", s.handleGetBlock)
	mux.HandleFunc("GET /transactions/{id}", s.handleInspectTx)
	mux.HandleFunc("GET /mempool", s.handleMempool)
	mux.HandleFunc("GET /patients/{id}/transactions", s.handlePatientHistory)
	mux.HandleFunc("GET /providers/{id}/consents", s.handleProviderConsents)
	return s.logRequests(mux)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("status server listening", "addr", s.ListenAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "took", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
