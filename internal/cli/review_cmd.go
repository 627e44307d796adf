package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect and act on pending match proposals",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all PENDING match proposals awaiting a decision",
	RunE:  runReviewList,
}

var (
	approveFireflyID  int64
	approveDocumentID int64
	approveOwnerID    int64
)

var reviewApproveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Manually link a document to a ledger transaction",
	Long: `approve records a manual link between --firefly-id and --document-id,
writing the linkage markers to the ledger, marking the cache row MATCHED,
and appending an audit interpretation run with decision source USER.`,
	RunE: runReviewApprove,
}

var rejectProposalID int64

var reviewRejectCmd = &cobra.Command{
	Use:   "reject",
	Short: "Reject a PENDING match proposal",
	RunE:  runReviewReject,
}

var rerunDocumentID int64

var reviewRerunCmd = &cobra.Command{
	Use:   "rerun",
	Short: "Purge pending proposals for a document and re-run matching",
	Long: `rerun purges every PENDING proposal for --document-id, un-matches the
affected cache row, and proposes again from scratch — the recovery path for
a rejected or stale interpretation.`,
	RunE: runReviewRerun,
}

func init() {
	reviewApproveCmd.Flags().Int64Var(&approveFireflyID, "firefly-id", 0, "ledger transaction id to link")
	reviewApproveCmd.Flags().Int64Var(&approveDocumentID, "document-id", 0, "document id to link")
	reviewApproveCmd.Flags().Int64Var(&approveOwnerID, "owner", 0, "owner user id recording the decision (0 = default)")
	_ = reviewApproveCmd.MarkFlagRequired("firefly-id")
	_ = reviewApproveCmd.MarkFlagRequired("document-id")

	reviewRejectCmd.Flags().Int64Var(&rejectProposalID, "proposal-id", 0, "proposal id to reject")
	_ = reviewRejectCmd.MarkFlagRequired("proposal-id")

	reviewRerunCmd.Flags().Int64Var(&rerunDocumentID, "document-id", 0, "document id to re-run matching for")
	_ = reviewRerunCmd.MarkFlagRequired("document-id")

	reviewCmd.AddCommand(reviewListCmd, reviewApproveCmd, reviewRejectCmd, reviewRerunCmd)
	rootCmd.AddCommand(reviewCmd)
}

func runReviewList(cmd *cobra.Command, args []string) error {
	provider, _, err := loadProvider()
	if err != nil {
		return err
	}
	s, err := provider.Store()
	if err != nil {
		return &exitBlocked{err}
	}

	pending, err := s.Proposals().ListPending(cmd.Context())
	if err != nil {
		return &exitBlocked{fmt.Errorf("list pending proposals: %w", err)}
	}

	if quiet {
		return nil
	}
	if len(pending) == 0 {
		fmt.Println("no pending proposals")
		return nil
	}
	for _, p := range pending {
		fmt.Printf("proposal=%d document=%d firefly=%d score=%.3f reasons=%v\n",
			p.ID, p.DocumentID, p.FireflyID, p.MatchScore, p.MatchReasons)
	}
	return nil
}

func runReviewApprove(cmd *cobra.Command, args []string) error {
	provider, _, err := loadProvider()
	if err != nil {
		return err
	}
	orchestrator, err := provider.Reconciler()
	if err != nil {
		return &exitBlocked{err}
	}

	var owner *int64
	if approveOwnerID != 0 {
		owner = &approveOwnerID
	}

	if err := orchestrator.ManualLink(cmd.Context(), approveFireflyID, approveDocumentID, owner); err != nil {
		return &exitPartial{fmt.Errorf("manual link: %w", err)}
	}
	if !quiet {
		fmt.Printf("linked document=%d to firefly=%d\n", approveDocumentID, approveFireflyID)
	}
	return nil
}

func runReviewReject(cmd *cobra.Command, args []string) error {
	provider, _, err := loadProvider()
	if err != nil {
		return err
	}
	orchestrator, err := provider.Reconciler()
	if err != nil {
		return &exitBlocked{err}
	}
	if err := orchestrator.Reject(cmd.Context(), rejectProposalID); err != nil {
		return &exitPartial{fmt.Errorf("reject proposal: %w", err)}
	}
	if !quiet {
		fmt.Printf("rejected proposal=%d\n", rejectProposalID)
	}
	return nil
}

func runReviewRerun(cmd *cobra.Command, args []string) error {
	provider, _, err := loadProvider()
	if err != nil {
		return err
	}
	orchestrator, err := provider.Reconciler()
	if err != nil {
		return &exitBlocked{err}
	}
	if err := orchestrator.RerunInterpretation(cmd.Context(), rerunDocumentID); err != nil {
		return &exitPartial{fmt.Errorf("rerun interpretation: %w", err)}
	}
	if !quiet {
		fmt.Printf("re-ran interpretation for document=%d\n", rerunDocumentID)
	}
	return nil
}
