// health_handler.go - HTTP handler for /nodehealth, /health/liveness, /health/readiness
package server

import (
	"net/http"
)

// HandleLiveness responds to /health/liveness
func (s *Server) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	alive := s.NodeLiveness()
	code := http.StatusOK
	if !alive {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, LivenessResponse{Alive: alive})
}

// HandleReadiness responds to /health/readiness
func (s *Server) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ready := s.NodeReadiness()
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, ReadinessResponse{Ready: ready})
}

// HandleNodeHealth responds to /nodehealth (summary health)
func (s *Server) HandleNodeHealth(w http.ResponseWriter, r *http.Request) {
	st := s.ledger.Status()
	writeJSON(w, http.StatusOK, NodeHealthResponse{
		Status:  nodeState(st.Open, st.Validation.IsValid),
		Metrics: s.GetNodeMetrics(),
	})
}

// NodeLiveness reports whether the ledger is open and has a genesis block.
func (s *Server) NodeLiveness() bool {
	return s.ledger.Status().Open && len(s.ledger.GetBlocks(1)) == 1
}

// NodeReadiness additionally requires the last validation to have passed.
func (s *Server) NodeReadiness() bool {
	return s.NodeLiveness() && s.ledger.Status().Validation.IsValid
}
