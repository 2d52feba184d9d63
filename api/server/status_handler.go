// status_handler.go - HTTP handlers for /status and /chain/validate
package server

import (
	"net/http"
)

// HandleStatus responds to /status with the chain's health. A tampered chain
// is still served with 200: the flag is for operators, not load balancers.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	info := s.ledger.ChainInfo()
	st := s.ledger.Status()

	resp := StatusResponse{
		Status:            nodeState(st.Open, info.IsValid),
		ChainLength:       info.Length,
		PendingCount:      info.PendingCount,
		Difficulty:        info.Difficulty,
		ChainValid:        info.IsValid,
		LatestHash:        info.LatestHash,
		FirstInvalidIndex: info.FirstInvalidIndex,
		Reason:            st.Validation.Reason,
		Version:           NodeVersion(),
		APIVersion:        APIVersion(),
		Metrics:           s.GetNodeMetrics(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleValidate re-runs full chain validation.
func (s *Server) HandleValidate(w http.ResponseWriter, r *http.Request) {
	res := s.ledger.ValidateChain()
	if !res.IsValid {
		s.log.Warn("operator validation found an invalid chain", "first_invalid_index", *res.FirstInvalidIndex, "reason", res.Reason)
	}
	writeJSON(w, http.StatusOK, res)
}

func nodeState(open, valid bool) string {
	switch {
	case !open:
		return StatusClosed
	case !valid:
		return StatusTampered
	}
	return StatusHealthy
}
