package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"healthledger/core/integrity"
	"healthledger/core/ledger"
)

type submitResult struct {
	TxID  string  `json:"tx_id"`
	Block *uint64 `json:"block,omitempty"`
}

func submitted(l *ledger.Ledger, txID string) submitResult {
	res := submitResult{TxID: txID}
	if view, ok := l.GetTransaction(txID); ok {
		res.Block = view.BlockIndex
	}
	return res
}

func (r submitResult) text() (string, error) {
	if r.Block == nil {
		return fmt.Sprintf("queued %s (pending)", r.TxID), nil
	}
	return fmt.Sprintf("committed %s in block %d", r.TxID, *r.Block), nil
}

func newSubmitRecordCmd(g *globalFlags) *cobra.Command {
	var patient, actor string
	cmd := &cobra.Command{
		Use:   "submit-record <record-id> <content-hash>",
		Short: "Record the content hash of a medical record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withLedger(func(l *ledger.Ledger) error {
				opts := []ledger.SubmitOption{ledger.WithPatient(patient)}
				if actor != "" {
					opts = append(opts, ledger.WithActor(actor))
				}
				txID, err := l.SubmitRecordHash(args[0], args[1], opts...)
				if err != nil {
					return err
				}
				res := submitted(l, txID)
				return g.render(cmd.OutOrStdout(), res, res.text)
			})
		},
	}
	cmd.Flags().StringVar(&patient, "patient", "", "patient the record belongs to")
	cmd.Flags().StringVar(&actor, "actor", "", "who is submitting")
	return cmd
}

func newSubmitConsentCmd(g *globalFlags) *cobra.Command {
	var expires, actor string
	cmd := &cobra.Command{
		Use:   "submit-consent <patient-id> <provider-id> <record-id> <granted|revoked>",
		Short: "Record a consent grant or revocation",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expiresAt *time.Time
			if expires != "" {
				t, err := time.Parse(time.RFC3339, expires)
				if err != nil {
					return fmt.Errorf("--expires: %w", err)
				}
				expiresAt = &t
			}
			return g.withLedger(func(l *ledger.Ledger) error {
				var opts []ledger.SubmitOption
				if actor != "" {
					opts = append(opts, ledger.WithActor(actor))
				}
				txID, err := l.SubmitConsent(args[0], args[1], args[2], args[3], expiresAt, opts...)
				if err != nil {
					return err
				}
				res := submitted(l, txID)
				return g.render(cmd.OutOrStdout(), res, res.text)
			})
		},
	}
	cmd.Flags().StringVar(&expires, "expires", "", "expiry time, RFC 3339")
	cmd.Flags().StringVar(&actor, "actor", "", "who is submitting")
	return cmd
}

func newVerifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <record-id> <expected-hash> <tx-id>",
		Short: "Check a recomputed record hash against the ledger",
		Long: `verify compares the hash recomputed from a stored record with the hash the
ledger recorded for it. A mismatch is itself committed as a tampering alert.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withLedger(func(l *ledger.Ledger) error {
				res, verr := l.VerifyIntegrity(args[0], args[1], args[2])
				if res.Status == "" {
					return verr
				}
				err := g.render(cmd.OutOrStdout(), res, func() (string, error) {
					pairs := []string{
						"Status", string(res.Status),
						"Record", res.RecordID,
						"Tx", res.TxID,
						"Expected", res.ExpectedHash,
						"Recorded", res.RecordedHash,
					}
					if res.Status == integrity.HashMismatch {
						pairs = append(pairs, "Tampering", res.TamperingType, "Alert tx", res.AlertTxID)
						if res.AlertBlock != nil {
							pairs = append(pairs, "Alert block", strconv.FormatUint(*res.AlertBlock, 10))
						}
					}
					return keyValues(pairs...)
				})
				if err != nil {
					return err
				}
				return verr
			})
		},
	}
}
