package genesis

import (
	"healthledger/core/chain"
	"healthledger/core/types"
)

// Transaction builds the synthetic marker sealed into block 0.
func Transaction(cfg GenesisConfig) (types.Transaction, error) {
	return types.NewGenesis(cfg.Message, cfg.ChainID)
}

// Func adapts cfg for chain.Options.
func Func(cfg GenesisConfig) chain.GenesisFunc {
	return func() (types.Transaction, error) {
		return Transaction(cfg)
	}
}
