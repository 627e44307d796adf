package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

var extractionsCmd = &cobra.Command{
	Use:   "extractions",
	Short: "Inspect and decide on extractions awaiting human review",
}

var extractionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List extractions whose review state requires a human look",
	RunE:  runExtractionsList,
}

var (
	decideExtractionID int64
	decideOutcome      string
)

var extractionsDecideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Record a human decision (accept/reject/skip) against an extraction",
	RunE:  runExtractionsDecide,
}

func init() {
	extractionsDecideCmd.Flags().Int64Var(&decideExtractionID, "id", 0, "extraction id")
	extractionsDecideCmd.Flags().StringVar(&decideOutcome, "decision", "", "one of accept, reject, skip")
	_ = extractionsDecideCmd.MarkFlagRequired("id")
	_ = extractionsDecideCmd.MarkFlagRequired("decision")

	extractionsCmd.AddCommand(extractionsListCmd, extractionsDecideCmd)
	rootCmd.AddCommand(extractionsCmd)
}

func runExtractionsList(cmd *cobra.Command, args []string) error {
	provider, _, err := loadProvider()
	if err != nil {
		return err
	}
	w, err := provider.ReviewWorkflow()
	if err != nil {
		return &exitBlocked{err}
	}

	pending, err := w.PendingReviews(cmd.Context())
	if err != nil {
		return &exitBlocked{fmt.Errorf("list pending reviews: %w", err)}
	}
	if quiet {
		return nil
	}
	if len(pending) == 0 {
		fmt.Println("no extractions awaiting review")
		return nil
	}
	for _, ex := range pending {
		fmt.Printf("extraction=%d document=%d confidence=%.3f state=%s\n",
			ex.ID, ex.DocumentID, ex.OverallConfidence, ex.ReviewState)
	}
	return nil
}

func runExtractionsDecide(cmd *cobra.Command, args []string) error {
	provider, _, err := loadProvider()
	if err != nil {
		return err
	}
	w, err := provider.ReviewWorkflow()
	if err != nil {
		return &exitBlocked{err}
	}

	var decision canonical.ReviewDecision
	switch decideOutcome {
	case "accept":
		decision = canonical.DecisionAccepted
	case "reject":
		decision = canonical.DecisionRejected
	case "skip":
		decision = canonical.DecisionSkipped
	default:
		return &exitBlocked{fmt.Errorf("unknown --decision %q: want accept, reject, or skip", decideOutcome)}
	}

	if err := w.RecordDecision(cmd.Context(), decideExtractionID, decision, nil); err != nil {
		return &exitPartial{fmt.Errorf("record decision: %w", err)}
	}
	if !quiet {
		fmt.Printf("recorded %s for extraction=%d\n", decideOutcome, decideExtractionID)
	}
	return nil
}
