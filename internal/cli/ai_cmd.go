package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var aiCmd = &cobra.Command{
	Use:   "ai",
	Short: "Operate the LLM suggestion job queue",
}

var aiWorkBatch int

var aiWorkCmd = &cobra.Command{
	Use:   "work",
	Short: "Process up to --batch pending AI jobs and exit",
	Long: `work pulls up to --batch PENDING jobs, fetches fresh document content
for each, and calls the suggestion service — mirroring a single pass of
the queue worker loop rather than running it as a daemon.`,
	RunE: runAIWork,
}

var aiStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report AI job queue depth by status",
	RunE:  runAIStats,
}

func init() {
	aiWorkCmd.Flags().IntVar(&aiWorkBatch, "batch", 10, "maximum number of jobs to process in this pass")
	aiCmd.AddCommand(aiWorkCmd, aiStatsCmd)
	rootCmd.AddCommand(aiCmd)
}

func runAIWork(cmd *cobra.Command, args []string) error {
	provider, log, err := loadProvider()
	if err != nil {
		return err
	}
	q, err := provider.Queue()
	if err != nil {
		return &exitBlocked{err}
	}

	jobs, err := q.GetNext(cmd.Context(), aiWorkBatch)
	if err != nil {
		return &exitBlocked{fmt.Errorf("fetch pending jobs: %w", err)}
	}

	failures := 0
	for _, job := range jobs {
		if err := q.ProcessOne(cmd.Context(), job); err != nil {
			log.Warn("ai job failed", "job_id", job.ID, "document_id", job.DocumentID, "error", err.Error())
			failures++
			continue
		}
		if !quiet {
			fmt.Printf("processed job=%d document=%d\n", job.ID, job.DocumentID)
		}
	}

	if failures > 0 {
		return &exitPartial{fmt.Errorf("%d of %d job(s) failed", failures, len(jobs))}
	}
	return nil
}

func runAIStats(cmd *cobra.Command, args []string) error {
	provider, _, err := loadProvider()
	if err != nil {
		return err
	}
	q, err := provider.Queue()
	if err != nil {
		return &exitBlocked{err}
	}

	stats, err := q.Stats(cmd.Context())
	if err != nil {
		return &exitBlocked{fmt.Errorf("queue stats: %w", err)}
	}

	if !quiet {
		fmt.Printf("pending=%d processing=%d completed=%d failed=%d cancelled=%d\n",
			stats.Pending, stats.Processing, stats.Completed, stats.Failed, stats.Cancelled)
	}
	return nil
}
