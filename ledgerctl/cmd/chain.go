package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"healthledger/core/block"
	"healthledger/core/chain"
	"healthledger/core/ledger"
	"healthledger/core/types"
	"healthledger/core/validation"
	"healthledger/ledgerctl/api"
)

// errChainInvalid makes validate exit non-zero for scripts.
var errChainInvalid = errors.New("chain failed validation")

func newInfoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show chain length, pending count, difficulty and validity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withLedger(func(l *ledger.Ledger) error {
				info := l.ChainInfo()
				return g.render(cmd.OutOrStdout(), info, func() (string, error) {
					return keyValues(
						"Length", strconv.Itoa(info.Length),
						"Pending", strconv.Itoa(info.PendingCount),
						"Difficulty", strconv.Itoa(info.Difficulty),
						"Chain", validity(info.IsValid),
						"Latest hash", info.LatestHash,
					)
				})
			})
		},
	}
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Recompute every block and check linkage and proof of work",
		Long: `validate walks the local store by default. With --addr it asks a running
node to re-validate its chain instead, which avoids opening a store the node
is writing to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				res, err := api.NewClient(addr).Validate(cmd.Context())
				if err != nil {
					return err
				}
				return g.reportValidation(cmd.OutOrStdout(), res)
			}
			return g.withLedger(func(l *ledger.Ledger) error {
				return g.reportValidation(cmd.OutOrStdout(), l.ValidateChain())
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "validate on a running node instead of the local store")
	return cmd
}

func (g *globalFlags) reportValidation(w io.Writer, res validation.Result) error {
	err := g.render(w, res, func() (string, error) {
		if res.IsValid {
			return fmt.Sprintf("chain %s (%d blocks checked)", validity(true), res.CheckedBlocks), nil
		}
		return fmt.Sprintf("chain %s at block %d: %s", validity(false), *res.FirstInvalidIndex, res.Reason), nil
	})
	if err != nil {
		return err
	}
	if !res.IsValid {
		return errChainInvalid
	}
	return nil
}

func newBlocksCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "List the most recent blocks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withLedger(func(l *ledger.Ledger) error {
				blocks := l.GetBlocks(limit)
				return g.render(cmd.OutOrStdout(), blocks, func() (string, error) {
					return blocksTable(blocks)
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of blocks (0 for all)")
	return cmd
}

func newBlockCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "block <index>",
		Short: "Show one block and its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("block index: %w", err)
			}
			return g.withLedger(func(l *ledger.Ledger) error {
				b, ok := l.GetBlock(index)
				if !ok {
					return fmt.Errorf("block %d not found (chain length %d)", index, l.Length())
				}
				return g.render(cmd.OutOrStdout(), b, func() (string, error) {
					head, err := keyValues(
						"Index", strconv.FormatUint(b.Index, 10),
						"Hash", b.Hash,
						"Previous", b.PreviousHash,
						"Nonce", strconv.FormatUint(b.Nonce, 10),
						"Sealed", blockTime(b),
					)
					if err != nil {
						return "", err
					}
					txs, err := txTable(blockRecords(b))
					return head + "\n" + txs, err
				})
			})
		},
	}
}

func blockRecords(b block.Block) []chain.TxRecord {
	out := make([]chain.TxRecord, len(b.Transactions))
	for i, tx := range b.Transactions {
		out[i] = chain.TxRecord{Transaction: tx, BlockIndex: b.Index, BlockHash: b.Hash, BlockTimestamp: b.Timestamp}
	}
	return out
}

func newTxCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tx <id>",
		Short: "Show a transaction, mined or pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withLedger(func(l *ledger.Ledger) error {
				view, ok := l.GetTransaction(args[0])
				if !ok {
					return fmt.Errorf("transaction %s not found", args[0])
				}
				return g.render(cmd.OutOrStdout(), view, func() (string, error) {
					where := "-"
					if view.BlockIndex != nil {
						where = strconv.FormatUint(*view.BlockIndex, 10)
					}
					return keyValues(
						"ID", view.Transaction.ID,
						"Type", string(view.Transaction.Type),
						"Status", view.Status,
						"Block", where,
						"Subject", subject(view.Transaction),
						"Asset", assetJSON(view.Transaction),
					)
				})
			})
		},
	}
}

func newTxsCmd(g *globalFlags) *cobra.Command {
	var (
		limit  int
		txType string
	)
	cmd := &cobra.Command{
		Use:   "txs",
		Short: "List mined transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var t types.TxType
			if txType != "" {
				parsed, err := types.ParseTxType(txType)
				if err != nil {
					return err
				}
				t = parsed
			}
			return g.withLedger(func(l *ledger.Ledger) error {
				recs := l.GetTransactions(t, limit)
				return g.render(cmd.OutOrStdout(), recs, func() (string, error) {
					return txTable(recs)
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of transactions (0 for all)")
	cmd.Flags().StringVarP(&txType, "type", "t", "", "filter by type: medical_record_hash|consent|tampering_detection|genesis")
	return cmd
}

func newTamperingCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "tampering",
		Short: "List recorded tampering alerts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withLedger(func(l *ledger.Ledger) error {
				recs := l.TamperingEvents(limit)
				return g.render(cmd.OutOrStdout(), recs, func() (string, error) {
					if len(recs) == 0 {
						return "no tampering recorded", nil
					}
					return txTable(recs)
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of alerts (0 for all)")
	return cmd
}

func newPatientCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "patient <patient-id>",
		Short: "List record hashes, consents and alerts for a patient, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withLedger(func(l *ledger.Ledger) error {
				recs := l.PatientHistory(args[0], limit)
				return g.render(cmd.OutOrStdout(), recs, func() (string, error) {
					if len(recs) == 0 {
						return fmt.Sprintf("nothing recorded for patient %s", args[0]), nil
					}
					return txTable(recs)
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of transactions (0 for all)")
	return cmd
}

func newProviderCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "provider <provider-id>",
		Short: "List consent grants and revocations naming a provider, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withLedger(func(l *ledger.Ledger) error {
				recs := l.ProviderConsents(args[0], limit)
				return g.render(cmd.OutOrStdout(), recs, func() (string, error) {
					if len(recs) == 0 {
						return fmt.Sprintf("no consents recorded for provider %s", args[0]), nil
					}
					return txTable(recs)
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of consents (0 for all)")
	return cmd
}

func newConsentCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "consent <provider-id> <record-id>",
		Short: "Show the latest consent between a provider and a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withLedger(func(l *ledger.Ledger) error {
				view, ok := l.ActiveConsent(args[0], args[1])
				if !ok {
					return fmt.Errorf("no consent recorded for provider %s on record %s", args[0], args[1])
				}
				return g.render(cmd.OutOrStdout(), view, func() (string, error) {
					expires := "never"
					if view.Consent.ExpiresAt != nil {
						expires = view.Consent.ExpiresAt.Format(time.RFC3339)
					}
					return keyValues(
						"Active", strconv.FormatBool(view.Active),
						"Status", view.Consent.Status,
						"Type", view.Consent.ConsentType,
						"Patient", view.Consent.PatientID,
						"Expires", expires,
						"Tx", view.Record.Transaction.ID,
						"Block", strconv.FormatUint(view.Record.BlockIndex, 10),
					)
				})
			})
		},
	}
}
