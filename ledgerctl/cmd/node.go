package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"healthledger/ledgerctl/api"
)

func newStatusCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running node's status",
		Example: `  ledgerctl status
  ledgerctl status --addr http://ledger:8090 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := api.NewClient(addr).GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			return g.render(cmd.OutOrStdout(), status, func() (string, error) {
				pairs := []string{
					"Status", status.Status,
					"Version", status.Version,
					"Length", strconv.Itoa(status.ChainLength),
					"Pending", strconv.Itoa(status.PendingCount),
					"Difficulty", strconv.Itoa(status.Difficulty),
					"Chain", validity(status.ChainValid),
					"Latest hash", status.LatestHash,
				}
				if status.FirstInvalidIndex != nil {
					pairs = append(pairs,
						"First invalid", strconv.FormatUint(*status.FirstInvalidIndex, 10),
						"Reason", status.Reason)
				}
				return keyValues(pairs...)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", api.DefaultBaseURL, "node status server URL")
	return cmd
}

func newHealthCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running node's health summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := api.NewClient(addr)
			health, err := c.GetHealth(cmd.Context())
			if err != nil {
				return err
			}
			alive, err := c.GetLiveness(cmd.Context())
			if err != nil {
				return err
			}
			ready, err := c.GetReadiness(cmd.Context())
			if err != nil {
				return err
			}
			out := struct {
				Health any  `json:"health"`
				Alive  bool `json:"alive"`
				Ready  bool `json:"ready"`
			}{health, alive, ready}
			return g.render(cmd.OutOrStdout(), out, func() (string, error) {
				m := health.Metrics
				return keyValues(
					"Node health", health.Status,
					"Liveness", strconv.FormatBool(alive),
					"Readiness", strconv.FormatBool(ready),
					"Uptime", fmt.Sprintf("%ds", m.UptimeSeconds),
					"Chain length", strconv.Itoa(m.ChainLength),
					"Pending", strconv.Itoa(m.PendingCount),
					"CPU load", fmt.Sprintf("%.2f%%", m.CPULoadPercent),
					"Memory", fmt.Sprintf("%.2f MB (system %.1f%%)", m.MemoryMB, m.SystemMemoryPercent),
					"Disk free", fmt.Sprintf("%.2f MB", m.DiskFreeMB),
					"Last block", m.LastBlockTime,
				)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", api.DefaultBaseURL, "node status server URL")
	return cmd
}
