package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"healthledger/core/block"
	"healthledger/core/chain"
	"healthledger/core/types"
)

func short(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16] + "…"
}

func blockTime(b block.Block) string {
	return b.Time().UTC().Format(time.RFC3339)
}

// keyValues renders label/value pairs as a two-column table.
func keyValues(pairs ...string) (string, error) {
	data := pterm.TableData{}
	for i := 0; i+1 < len(pairs); i += 2 {
		data = append(data, []string{pterm.Bold.Sprint(pairs[i]), pairs[i+1]})
	}
	return pterm.DefaultTable.WithData(data).Srender()
}

func blocksTable(blocks []block.Block) (string, error) {
	data := pterm.TableData{{"Index", "Hash", "Previous", "Nonce", "Txs", "Sealed"}}
	for _, b := range blocks {
		data = append(data, []string{
			strconv.FormatUint(b.Index, 10),
			short(b.Hash),
			short(b.PreviousHash),
			strconv.FormatUint(b.Nonce, 10),
			strconv.Itoa(len(b.Transactions)),
			blockTime(b),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

func txTable(recs []chain.TxRecord) (string, error) {
	data := pterm.TableData{{"Block", "ID", "Type", "Subject", "Created"}}
	for _, r := range recs {
		data = append(data, []string{
			strconv.FormatUint(r.BlockIndex, 10),
			short(r.Transaction.ID),
			string(r.Transaction.Type),
			subject(r.Transaction),
			r.Transaction.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

// subject names what a transaction is about.
func subject(tx types.Transaction) string {
	switch a := tx.Asset.(type) {
	case types.RecordHashAsset:
		return "record " + a.RecordID
	case types.ConsentAsset:
		return fmt.Sprintf("%s %s → %s", a.Status, a.RecordID, a.ProviderID)
	case types.TamperingAsset:
		return fmt.Sprintf("%s on %s", a.TamperingType, a.RecordID)
	case types.GenesisAsset:
		return a.Message
	}
	return ""
}

func assetJSON(tx types.Transaction) string {
	raw, err := json.MarshalIndent(tx.Asset, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(raw)
}

func validity(ok bool) string {
	if ok {
		return pterm.LightGreen("valid")
	}
	return pterm.LightRed("INVALID")
}
