package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"healthledger/core/config"
	"healthledger/core/ledger"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
)

type globalFlags struct {
	configPath string
	store      string
	backend    string
	format     string
	verbose    bool
}

// NewRootCmd builds the ledgerctl command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate a healthledger chain",
		Long: `ledgerctl opens a ledger store in-process, runs one operation and closes it.
Stop the node first when writing: a store has a single writer.

status and health query a running node's status server instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch g.format {
			case formatText, formatJSON:
				return nil
			}
			return fmt.Errorf("--format must be %q or %q", formatText, formatJSON)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&g.store, "store", "", "store path (overrides config)")
	pf.StringVar(&g.backend, "backend", "", "store backend: file|leveldb|sqlite (overrides config)")
	pf.StringVarP(&g.format, "format", "o", formatText, "output format: text|json")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log ledger activity to stderr")

	root.AddCommand(
		newInfoCmd(g),
		newValidateCmd(g),
		newBlocksCmd(g),
		newBlockCmd(g),
		newTxCmd(g),
		newTxsCmd(g),
		newTamperingCmd(g),
		newConsentCmd(g),
		newPatientCmd(g),
		newProviderCmd(g),
		newSubmitRecordCmd(g),
		newSubmitConsentCmd(g),
		newVerifyCmd(g),
		newStatusCmd(g),
		newHealthCmd(g),
	)
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		pterm.Error.WithWriter(os.Stderr).Println(err)
		os.Exit(1)
	}
}

func (g *globalFlags) config() (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	if g.store != "" {
		cfg.StorePath = g.store
	}
	if g.backend != "" {
		cfg.Backend = g.backend
	}
	return cfg, cfg.Validate()
}

func (g *globalFlags) logger() *slog.Logger {
	level := pterm.LogLevelError
	if g.verbose {
		level = pterm.LogLevelDebug
	}
	return slog.New(pterm.NewSlogHandler(pterm.DefaultLogger.WithWriter(os.Stderr).WithLevel(level)))
}

// withLedger opens the configured ledger for the duration of fn.
func (g *globalFlags) withLedger(fn func(*ledger.Ledger) error) (err error) {
	cfg, err := g.config()
	if err != nil {
		return err
	}
	l, err := ledger.Open(cfg, ledger.WithLogger(g.logger()))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := l.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(l)
}

// render writes v as indented JSON, or the text form produced by text.
func (g *globalFlags) render(w io.Writer, v any, text func() (string, error)) error {
	if g.format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	out, err := text()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}
