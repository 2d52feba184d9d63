// version.go - Node & API version info for a ledger node
package server

// Version is stamped at build time with
// -ldflags "-X healthledger/api/server.Version=v1.2.3".
var Version = "v0.1.0-dev"

// NodeVersion returns the current node software version.
func NodeVersion() string {
	return Version
}

// APIVersion returns the current API version.
func APIVersion() string {
	return "v1"
}
