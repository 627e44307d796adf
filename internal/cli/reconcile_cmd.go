package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LeJamon/ledgerbridge/internal/reconcile"
)

var (
	reconcileFullSync bool
	reconcileDryRun   bool
	reconcileSkipSync bool
	reconcileOwnerID  int64
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one sync -> match -> propose -> auto-link cycle",
	Long: `reconcile drives the full state machine for the given owner (or the
default owner if --owner is zero): it syncs the ledger's transactions into
the local cache, scores ready extractions against cached candidates,
creates proposals, and auto-links the unambiguous high-scoring winners.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileFullSync, "full-sync", false, "rebuild the cache from scratch instead of an incremental sync")
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "score and report without persisting proposals or writing ledger links")
	reconcileCmd.Flags().BoolVar(&reconcileSkipSync, "skip-sync", false, "use the cache as-is and skip the sync phase")
	reconcileCmd.Flags().Int64Var(&reconcileOwnerID, "owner", 0, "owner user id to run for (0 = default/global)")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	provider, log, err := loadProvider()
	if err != nil {
		return err
	}

	orchestrator, err := provider.Reconciler()
	if err != nil {
		return &exitBlocked{err}
	}

	var owner *int64
	if reconcileOwnerID != 0 {
		owner = &reconcileOwnerID
	}

	result, err := orchestrator.Run(cmd.Context(), reconcile.RunOptions{
		OwnerUserID: owner,
		FullSync:    reconcileFullSync,
		DryRun:      reconcileDryRun,
		SkipSync:    reconcileSkipSync,
	})
	if err != nil {
		return &exitBlocked{fmt.Errorf("reconcile: %w", err)}
	}

	log.Info("reconcile run finished",
		"state", string(result.State),
		"documents_scanned", result.DocumentsScanned,
		"proposals_created", result.ProposalsCreated,
		"linked", result.Linked,
		"ambiguous", result.Ambiguous,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	if !quiet {
		fmt.Printf("state=%s scanned=%d proposals=%d linked=%d ambiguous=%d skipped=%d\n",
			result.State, result.DocumentsScanned, result.ProposalsCreated, result.Linked, result.Ambiguous, result.Skipped)
		for _, e := range result.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}

	if result.State == reconcile.StateFailed {
		return &exitBlocked{fmt.Errorf("run ended in FAILED state")}
	}
	if len(result.Errors) > 0 {
		return &exitPartial{fmt.Errorf("%d item(s) failed during the run", len(result.Errors))}
	}
	return nil
}
