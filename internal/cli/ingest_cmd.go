package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
	"github.com/LeJamon/ledgerbridge/internal/dmsclient"
	"github.com/LeJamon/ledgerbridge/internal/extractor"
	"github.com/LeJamon/ledgerbridge/internal/llm/queue"
	"github.com/LeJamon/ledgerbridge/internal/review"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

var (
	ingestTagID int64
	ingestLimit int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull new documents and run them through the extractor and scorer",
	Long: `ingest lists documents from the document management system (optionally
filtered by --tag), downloads each one, routes it through the extraction
strategy chain, classifies the result's review state with the confidence
scorer, and persists a canonical extraction row — the step that feeds
reconcile's match/propose phase.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Int64Var(&ingestTagID, "tag", 0, "restrict to documents carrying this tag id (0 = no filter)")
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 50, "maximum number of documents to process in this pass")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	provider, log, err := loadProvider()
	if err != nil {
		return err
	}

	dms, err := provider.DMSClient()
	if err != nil {
		return &exitBlocked{err}
	}
	router, err := provider.Extractor()
	if err != nil {
		return &exitBlocked{err}
	}
	scorer, err := provider.Scorer()
	if err != nil {
		return &exitBlocked{err}
	}
	workflow, err := provider.ReviewWorkflow()
	if err != nil {
		return &exitBlocked{err}
	}
	s, err := provider.Store()
	if err != nil {
		return &exitBlocked{err}
	}

	var aiQueue *queue.Queue
	if provider.GetConfig().LLM.Enabled {
		aiQueue, err = provider.Queue()
		if err != nil {
			return &exitBlocked{err}
		}
	}

	filter := dmsclient.Filter{PageSize: ingestLimit}
	if ingestTagID != 0 {
		filter.TagIDs = []int64{ingestTagID}
	}

	ctx := cmd.Context()
	cursor, err := dms.ListDocuments(ctx, filter)
	if err != nil {
		return &exitBlocked{fmt.Errorf("list documents: %w", err)}
	}

	processed, failed := 0, 0
	for processed+failed < ingestLimit {
		docs, done, err := cursor.Next(ctx)
		if err != nil {
			return &exitBlocked{fmt.Errorf("list documents: %w", err)}
		}
		for _, doc := range docs {
			if processed+failed >= ingestLimit {
				break
			}
			if err := ingestOne(ctx, dms, router, scorer, workflow, s, aiQueue, doc); err != nil {
				log.Warn("ingest failed for document", "document_id", doc.ID, "error", err.Error())
				failed++
				continue
			}
			processed++
			if !quiet {
				fmt.Printf("ingested document=%d\n", doc.ID)
			}
		}
		if done {
			break
		}
	}

	if failed > 0 {
		return &exitPartial{fmt.Errorf("%d of %d document(s) failed to ingest", failed, processed+failed)}
	}
	return nil
}

func ingestOne(ctx context.Context, dms dmsclient.Client, router *extractor.Router, scorer *review.Scorer, workflow *review.Workflow, s store.Store, aiQueue *queue.Queue, doc dmsclient.Document) error {
	fileBytes, _, err := dms.Download(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	record, err := router.Route(ctx, extractor.Input{Document: doc, FileBytes: fileBytes})
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if record == nil {
		return fmt.Errorf("no extraction strategy produced a record")
	}
	record.DocumentID = doc.ID

	if _, err := workflow.ApplyVendorMapping(ctx, record); err != nil {
		return fmt.Errorf("apply vendor mapping: %w", err)
	}

	reviewState := scorer.Classify(record)
	if issues := scorer.Validate(record); len(issues) > 0 && reviewState == canonical.ReviewStateAuto {
		reviewState = canonical.ReviewStateReview
	}

	record.Proposal.ExternalID = canonical.DeriveExternalID(
		doc.ID,
		record.Proposal.Amount,
		record.Proposal.Date,
		record.Proposal.SourceAccount,
		record.Proposal.DestinationAccount,
	)

	extractionJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal canonical record: %w", err)
	}

	if err := s.Documents().Upsert(ctx, &canonical.Document{
		DocumentID:    doc.ID,
		SourceHash:    record.SourceHash,
		Title:         doc.Title,
		DocumentType:  doc.DocumentType,
		Correspondent: doc.Correspondent,
		Tags:          doc.Tags,
		FirstSeen:     time.Now().UTC(),
		LastSeen:      time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	extractionID, err := s.Extractions().Save(ctx, &canonical.Extraction{
		DocumentID:        doc.ID,
		ExternalID:        record.Proposal.ExternalID,
		ExtractionJSON:    string(extractionJSON),
		OverallConfidence: record.OverallConfidence,
		ReviewState:       reviewState,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}

	if aiQueue != nil && reviewState == canonical.ReviewStateReview {
		externalID := record.Proposal.ExternalID
		if _, _, err := aiQueue.Schedule(ctx, doc.ID, &extractionID, &externalID, "ingest"); err != nil {
			return fmt.Errorf("schedule ai job: %w", err)
		}
	}
	return nil
}
