package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DefaultMessage is carried by the genesis marker when no config overrides it.
const DefaultMessage = "Healthcare Blockchain Genesis Block"

// GenesisConfig describes block 0 of a new chain.
type GenesisConfig struct {
	ChainID string `json:"chainId"`
	Message string `json:"message"`
}

// Default returns the built-in genesis description.
func Default() GenesisConfig {
	return GenesisConfig{ChainID: "healthledger", Message: DefaultMessage}
}

// LoadGenesisConfig loads the genesis config from a JSON file. Missing fields
// fall back to Default.
func LoadGenesisConfig(path string) (GenesisConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read genesis config: %w", err)
	}
	var loaded GenesisConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return cfg, fmt.Errorf("could not parse genesis config: %w", err)
	}
	if strings.TrimSpace(loaded.ChainID) != "" {
		cfg.ChainID = loaded.ChainID
	}
	if strings.TrimSpace(loaded.Message) != "" {
		cfg.Message = loaded.Message
	}
	return cfg, nil
}
