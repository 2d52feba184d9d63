// status_response.go - JSON response structs for status/health endpoints
package server

// Node states reported in StatusResponse.Status.
const (
	StatusHealthy  = "healthy"
	StatusTampered = "tampered"
	StatusClosed   = "closed"
)

// StatusResponse represents the JSON structure for /status endpoint
type StatusResponse struct {
	Status            string      `json:"status"`
	ChainLength       int         `json:"chain_length"`
	PendingCount      int         `json:"pending_count"`
	Difficulty        int         `json:"difficulty"`
	ChainValid        bool        `json:"chain_valid"`
	LatestHash        string      `json:"latest_hash"`
	FirstInvalidIndex *uint64     `json:"first_invalid_index,omitempty"`
	Reason            string      `json:"reason,omitempty"`
	Version           string      `json:"version"`
	APIVersion        string      `json:"api_version"`
	Metrics           NodeMetrics `json:"metrics"`
}

// LivenessResponse for /health/liveness
type LivenessResponse struct {
	Alive bool `json:"alive"`
}

// ReadinessResponse for /health/readiness
type ReadinessResponse struct {
	Ready bool `json:"ready"`
}

// NodeHealthResponse is the response type for the /nodehealth endpoint
type NodeHealthResponse struct {
	Status  string      `json:"status"`
	Metrics NodeMetrics `json:"metrics"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
