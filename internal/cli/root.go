// Package cli wires cobra subcommands to the core's public entry points
// (config, di, reconcile, llm/queue), translating results to the exit
// codes in spec.md §7: 0 success, 1 partial failure, 2 configuration or
// connectivity blocked the run.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LeJamon/ledgerbridge/internal/config"
	"github.com/LeJamon/ledgerbridge/internal/di"
	"github.com/LeJamon/ledgerbridge/internal/logging"
)

// exitBlocked marks a run that never got past config loading or client
// wiring — translated to process exit code 2 in Execute.
type exitBlocked struct{ err error }

func (e *exitBlocked) Error() string { return e.err.Error() }
func (e *exitBlocked) Unwrap() error { return e.err }

// exitPartial marks a run that completed but left at least one item
// failed — translated to process exit code 1.
type exitPartial struct{ err error }

func (e *exitPartial) Error() string { return e.err.Error() }
func (e *exitPartial) Unwrap() error { return e.err }

var (
	configFile string
	debug      bool
	verbose    bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "ledgerbridge",
	Short: "ledgerbridge - scanned documents to reconciled ledger transactions",
	Long: `ledgerbridge turns scanned receipts and invoices in a document
management system into reviewed, deduplicated transactions in a
downstream bookkeeping ledger: it syncs the ledger's existing
transactions into a local cache, scores candidate matches against
ready extractions, proposes or auto-links the winners, and leaves an
append-only audit trail behind every decision.`,
	Version:      "0.1.0-dev",
	SilenceUsage: true,
}

// Execute runs the root command and maps its error back to a process exit
// code: 0 on success, 1 on partial failure, 2 when configuration or
// connectivity blocked the run entirely.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		switch err.(type) {
		case *exitBlocked:
			os.Exit(2)
		default:
			os.Exit(1)
		}
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
}

// loadProvider loads configuration from --conf and builds a wired
// dependency container, returning an *exitBlocked error (exit code 2) on
// any failure. Only configuration problems surface here: di's builders
// construct the store and the DMS/ledger clients lazily on first use, so
// those failures surface when a command first asks the provider for them.
func loadProvider() (*di.Provider, logging.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, &exitBlocked{fmt.Errorf("load config: %w", err)}
	}

	log := logging.NewConsole(debug)
	if quiet {
		log = logging.NoOp()
	}

	container := di.New()
	provider := di.NewProvider(container, cfg, log)
	if err := provider.RegisterAll(); err != nil {
		return nil, nil, &exitBlocked{fmt.Errorf("wire services: %w", err)}
	}
	return provider, log, nil
}
