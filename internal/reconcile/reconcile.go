// Package reconcile drives the reconciliation orchestrator (spec.md §4.5):
// a single state machine over sync, match/propose, and auto-link phases,
// plus the standalone link/reject/manual-transaction operations the review
// surface calls outside a full run. Grounded on
// original_source/src/paperless_firefly/reconciliation/orchestrator.py.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/cachesync"
	"github.com/LeJamon/ledgerbridge/internal/canonical"
	"github.com/LeJamon/ledgerbridge/internal/ledgerclient"
	"github.com/LeJamon/ledgerbridge/internal/logging"
	"github.com/LeJamon/ledgerbridge/internal/matching"
	"github.com/LeJamon/ledgerbridge/internal/payload"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

// RunState is a phase of the reconciliation state machine.
type RunState string

const (
	StateSyncing     RunState = "SYNCING"
	StateMatching    RunState = "MATCHING"
	StateProposing   RunState = "PROPOSING"
	StateAutoLinking RunState = "AUTO_LINKING"
	StateCompleted   RunState = "COMPLETED"
	StateFailed      RunState = "FAILED"
)

// Config tunes the orchestrator's policy knobs.
type Config struct {
	AutoMatchThreshold float64 // default 0.90
	MaxMatchResults    int     // default 5, passed through to the matching engine
	BankFirstMode      bool    // default true: never auto-create a ledger transaction from a run
}

// DefaultConfig returns the documented default policy.
func DefaultConfig() Config {
	return Config{AutoMatchThreshold: 0.90, MaxMatchResults: 5, BankFirstMode: true}
}

// RunOptions controls one reconciliation run.
type RunOptions struct {
	OwnerUserID *int64
	FullSync    bool // rebuild the cache from scratch
	DryRun      bool // no persistence or ledger writes
	SkipSync    bool // use the cache as-is, skip the sync phase
}

// RunResult summarizes what one run did, or attempted under dry_run.
type RunResult struct {
	State            RunState
	SyncResult       *cachesync.SyncResult
	DocumentsScanned int
	Skipped          int
	ProposalsCreated int
	Linked           int
	Ambiguous        int
	Errors           []string
}

// Orchestrator runs the sync → match/propose → auto-link state machine and
// exposes the standalone operations the review surface drives directly.
type Orchestrator struct {
	store   store.Store
	ledger  ledgerclient.Client
	sync    *cachesync.Synchroniser
	matcher *matching.Engine
	builder *payload.Builder
	cfg     Config
	log     logging.Logger

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// New builds an Orchestrator wiring together the cache synchroniser (C8),
// matching engine (C9), and wire-payload builder (C7) over a shared store
// and ledger client.
func New(s store.Store, ledger ledgerclient.Client, builder *payload.Builder, cfg Config, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NoOp()
	}
	if cfg.MaxMatchResults == 0 {
		cfg.MaxMatchResults = DefaultConfig().MaxMatchResults
	}
	if cfg.AutoMatchThreshold == 0 {
		cfg.AutoMatchThreshold = DefaultConfig().AutoMatchThreshold
	}
	return &Orchestrator{
		store:   s,
		ledger:  ledger,
		sync:    cachesync.New(ledger, s, log),
		matcher: matching.New(s, matching.DefaultConfig()),
		builder: builder,
		cfg:     cfg,
		log:     log.With("reconcile"),
		locks:   make(map[int64]*sync.Mutex),
	}
}

func (o *Orchestrator) ownerKey(ownerUserID *int64) int64 {
	if ownerUserID == nil {
		return 0
	}
	return *ownerUserID
}

// tryLock attempts to acquire the named owner's run lock without blocking,
// returning ErrRunInProgress if it's already held.
func (o *Orchestrator) tryLock(owner int64) (func(), error) {
	o.locksMu.Lock()
	lock, ok := o.locks[owner]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[owner] = lock
	}
	o.locksMu.Unlock()

	if !lock.TryLock() {
		return nil, apperrors.ErrRunInProgress
	}
	return lock.Unlock, nil
}

// Run executes the full SYNCING → MATCHING → PROPOSING → AUTO_LINKING →
// COMPLETED|FAILED state machine. A concurrent call for the same owner
// fast-fails with apperrors.ErrRunInProgress.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	unlock, err := o.tryLock(o.ownerKey(opts.OwnerUserID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &RunResult{State: StateSyncing}

	if !opts.SkipSync {
		syncResult, err := o.sync.Sync(ctx, cachesync.SyncOptions{FullSync: opts.FullSync})
		if err != nil {
			result.State = StateFailed
			return result, fmt.Errorf("reconcile: sync phase: %w", err)
		}
		result.SyncResult = syncResult
	}

	result.State = StateMatching
	extractions, err := o.store.Extractions().ListReadyForMatch(ctx)
	if err != nil {
		result.State = StateFailed
		return result, fmt.Errorf("reconcile: list ready extractions: %w", err)
	}
	result.DocumentsScanned = len(extractions)

	result.State = StateProposing
	for _, ex := range extractions {
		if err := o.proposeForExtraction(ctx, ex, opts.DryRun, result); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	result.State = StateAutoLinking
	if err := o.autoLinkPending(ctx, opts.DryRun, result); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	if len(result.Errors) > 0 {
		result.State = StateFailed
		return result, fmt.Errorf("reconcile: run completed with %d error(s)", len(result.Errors))
	}
	result.State = StateCompleted
	return result, nil
}

func (o *Orchestrator) proposeForExtraction(ctx context.Context, ex *canonical.Extraction, dryRun bool, result *RunResult) error {
	// Idempotency rule 1: already linked.
	if linked, ok, err := o.store.Cache().FindLinkedForDocument(ctx, ex.DocumentID); err != nil {
		return fmt.Errorf("check linkage for document %d: %w", ex.DocumentID, err)
	} else if ok {
		_ = linked
		result.Skipped++
		return nil
	}

	// Idempotency rule 2: a PENDING proposal already exists.
	pending, err := o.store.Proposals().ListPendingForDocument(ctx, ex.DocumentID)
	if err != nil {
		return fmt.Errorf("check pending proposals for document %d: %w", ex.DocumentID, err)
	}
	if len(pending) > 0 {
		result.Skipped++
		return nil
	}

	record, err := decodeRecord(ex.ExtractionJSON)
	if err != nil {
		return fmt.Errorf("decode extraction %d: %w", ex.ID, err)
	}

	matches, err := o.matcher.FindMatches(ctx, record, o.cfg.MaxMatchResults)
	if err != nil {
		return fmt.Errorf("find matches for document %d: %w", ex.DocumentID, err)
	}

	// Bank-first mode: a document with no match never results in an
	// auto-created ledger transaction here; it just produces no proposal.
	for _, m := range matches {
		// Idempotency rule 3: never duplicate a (firefly_id, document_id) proposal.
		if _, exists, err := o.store.Proposals().FindActive(ctx, m.FireflyID, ex.DocumentID); err != nil {
			return fmt.Errorf("check active proposal (firefly=%d, doc=%d): %w", m.FireflyID, ex.DocumentID, err)
		} else if exists {
			continue
		}

		if dryRun {
			result.ProposalsCreated++
			continue
		}
		_, err := o.store.Proposals().Create(ctx, &store.MatchProposal{
			FireflyID:    m.FireflyID,
			DocumentID:   ex.DocumentID,
			MatchScore:   m.Score,
			MatchReasons: m.Reasons,
			Status:       store.ProposalPending,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("create proposal (firefly=%d, doc=%d): %w", m.FireflyID, ex.DocumentID, err)
		}
		result.ProposalsCreated++
	}
	return nil
}

// autoLinkPending groups every PENDING proposal by firefly_id and promotes
// a group to LINKED exactly when it has a single member whose score clears
// the auto-match threshold; groups with two or more qualifying members are
// ambiguous and left for user intervention.
func (o *Orchestrator) autoLinkPending(ctx context.Context, dryRun bool, result *RunResult) error {
	pending, err := o.store.Proposals().ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending proposals: %w", err)
	}

	byFirefly := make(map[int64][]*store.MatchProposal)
	for _, p := range pending {
		byFirefly[p.FireflyID] = append(byFirefly[p.FireflyID], p)
	}

	for fireflyID, group := range byFirefly {
		var qualifying []*store.MatchProposal
		for _, p := range group {
			if p.MatchScore >= o.cfg.AutoMatchThreshold {
				qualifying = append(qualifying, p)
			}
		}
		if len(qualifying) != 1 {
			if len(qualifying) > 1 {
				result.Ambiguous++
			}
			continue
		}

		winner := qualifying[0]
		if dryRun {
			result.Linked++
			continue
		}
		if err := o.ExecuteLink(ctx, fireflyID, winner.DocumentID, winner.MatchScore, winner.MatchReasons, &winner.ID, store.DecisionSourceAuto, nil); err != nil {
			o.log.Warn("auto-link failed", "firefly_id", fireflyID, "document_id", winner.DocumentID, "error", err.Error())
			continue
		}
		result.Linked++
	}
	return nil
}

// ExecuteLink builds the linkage markers, writes them to the ledger
// transaction, and on success updates the cache row to MATCHED, marks the
// originating proposal ACCEPTED (if any), and always appends an audit run
// recording the outcome.
func (o *Orchestrator) ExecuteLink(ctx context.Context, fireflyID, documentID int64, score float64, reasons []string, proposalID *int64, source store.DecisionSource, ownerUserID *int64) error {
	markers := ledgerclient.LinkageMarkers{
		ExternalID:        firstMatchMarker(documentID),
		InternalReference: canonical.InternalReference(documentID),
		Notes:             canonical.NotesMarker(documentID),
	}

	writeErr := o.ledger.UpdateLinkage(ctx, fireflyID, markers)

	finalState := store.FinalLinked
	if writeErr != nil {
		finalState = store.FinalLinkageWriteFailed
	}

	if writeErr == nil {
		if err := o.store.Cache().UpdateMatchStatus(ctx, fireflyID, store.MatchMatched, &documentID, &score); err != nil {
			finalState = store.FinalLinkError
			writeErr = fmt.Errorf("update cache match status: %w", err)
		} else if proposalID != nil {
			if err := o.store.Proposals().UpdateStatus(ctx, *proposalID, store.ProposalAccepted); err != nil {
				finalState = store.FinalLinkError
				writeErr = fmt.Errorf("update proposal status: %w", err)
			}
		}
	}

	externalID := markers.ExternalID
	run := &store.InterpretationRun{
		DocumentID:           documentID,
		FireflyID:            &fireflyID,
		ExternalID:           &externalID,
		RunTimestamp:         time.Now().UTC(),
		RulesApplied:         reasons,
		FinalState:           finalState,
		DecisionSource:       source,
		AutoApplied:          source == store.DecisionSourceAuto,
		FireflyWriteAction:   "update_linkage",
		FireflyTargetID:      &fireflyID,
		LinkageMarkerWritten: markers.Notes,
		OwnerUserID:          ownerUserID,
	}
	if _, auditErr := o.store.Runs().Create(ctx, run); auditErr != nil {
		o.log.Error("failed to record audit run", "document_id", documentID, "error", auditErr.Error())
	}

	return writeErr
}

func firstMatchMarker(documentID int64) string {
	// A link written outside the extraction's own proposal flow (manual
	// link, auto-link from a proposal scored against a record whose
	// external_id was never itself written to the ledger) still needs a
	// deterministic external_id-shaped marker; the v2 format's hash
	// component is irrelevant here since ExtractLinkedDocID only reads the
	// ":pl:<doc_id>" suffix back out.
	return fmt.Sprintf("0000000000000000:pl:%d", documentID)
}

// ManualLink bypasses proposal creation but still runs through ExecuteLink
// and audit logging, for a user explicitly pairing a document with a
// ledger transaction the matching engine didn't propose (or scored too low
// to auto-link).
func (o *Orchestrator) ManualLink(ctx context.Context, fireflyID, documentID int64, ownerUserID *int64) error {
	return o.ExecuteLink(ctx, fireflyID, documentID, 1.0, []string{"manual"}, nil, store.DecisionSourceUser, ownerUserID)
}

// Reject marks a pending proposal REJECTED and records an audit run.
func (o *Orchestrator) Reject(ctx context.Context, proposalID int64) error {
	proposals, err := o.store.Proposals().ListPending(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list pending proposals: %w", err)
	}
	var target *store.MatchProposal
	for _, p := range proposals {
		if p.ID == proposalID {
			target = p
			break
		}
	}
	if target == nil {
		return apperrors.ErrNotFound
	}

	if err := o.store.Proposals().UpdateStatus(ctx, proposalID, store.ProposalRejected); err != nil {
		return fmt.Errorf("reconcile: reject proposal %d: %w", proposalID, err)
	}

	externalID := firstMatchMarker(target.DocumentID)
	run := &store.InterpretationRun{
		DocumentID:     target.DocumentID,
		FireflyID:      &target.FireflyID,
		ExternalID:     &externalID,
		RunTimestamp:   time.Now().UTC(),
		RulesApplied:   target.MatchReasons,
		FinalState:     store.FinalRejected,
		DecisionSource: store.DecisionSourceUser,
	}
	if _, err := o.store.Runs().Create(ctx, run); err != nil {
		o.log.Error("failed to record reject audit run", "proposal_id", proposalID, "error", err.Error())
	}
	return nil
}

// RerunInterpretation purges a document's PENDING proposals, un-matches any
// cache row previously matched to it, then re-runs the match/propose phase
// for that single document.
func (o *Orchestrator) RerunInterpretation(ctx context.Context, documentID int64) error {
	if err := o.store.Proposals().PurgePendingForDocument(ctx, documentID); err != nil {
		return fmt.Errorf("reconcile: purge pending proposals: %w", err)
	}

	if linked, ok, err := o.store.Cache().FindLinkedForDocument(ctx, documentID); err != nil {
		return fmt.Errorf("reconcile: find linked cache row: %w", err)
	} else if ok {
		if err := o.store.Cache().UpdateMatchStatus(ctx, linked.FireflyID, store.MatchUnmatched, nil, nil); err != nil {
			return fmt.Errorf("reconcile: unmatch cache row %d: %w", linked.FireflyID, err)
		}
	}

	ex, err := o.store.Extractions().GetByDocumentID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("reconcile: get extraction for document %d: %w", documentID, err)
	}

	result := &RunResult{}
	return o.proposeForExtraction(ctx, ex, false, result)
}

// CreateManualTransaction bypasses the bank-first guard: it builds the
// wire payload via C7, submits it to the ledger, and records an audit run
// with final_state MANUAL_CREATED.
func (o *Orchestrator) CreateManualTransaction(ctx context.Context, record *canonical.CanonicalRecord, reviewState canonical.ReviewState, ownerUserID *int64) (int64, error) {
	wp, err := o.builder.Build(record, reviewState)
	if err != nil {
		return 0, fmt.Errorf("reconcile: build wire payload: %w", err)
	}
	if issues := wp.Validate(); len(issues) > 0 {
		return 0, fmt.Errorf("reconcile: wire payload failed validation: %+v", issues)
	}

	body := toLedgerBody(wp)
	fireflyID, created, err := o.ledger.CreateTransaction(ctx, body, true)
	if err != nil {
		return 0, fmt.Errorf("reconcile: create ledger transaction: %w", err)
	}

	externalID := wp.Splits[0].ExternalID
	run := &store.InterpretationRun{
		DocumentID:         record.DocumentID,
		FireflyID:          &fireflyID,
		ExternalID:         &externalID,
		RunTimestamp:       time.Now().UTC(),
		FinalState:         store.FinalManualCreated,
		DecisionSource:     store.DecisionSourceUser,
		FireflyWriteAction: "create_transaction",
		FireflyTargetID:    &fireflyID,
		OwnerUserID:        ownerUserID,
	}
	if _, auditErr := o.store.Runs().Create(ctx, run); auditErr != nil {
		o.log.Error("failed to record manual-creation audit run", "document_id", record.DocumentID, "error", auditErr.Error())
	}

	_ = created
	return fireflyID, nil
}

func toLedgerBody(wp *payload.WirePayload) map[string]any {
	splits := make([]map[string]any, 0, len(wp.Splits))
	for _, s := range wp.Splits {
		split := map[string]any{
			"type":             string(s.Type),
			"date":             s.Date,
			"amount":           s.Amount.String(),
			"description":      s.Description,
			"source_name":      s.SourceName,
			"destination_name": s.DestinationName,
			"currency_code":    s.CurrencyCode,
			"category_name":    s.CategoryName,
			"tags":             s.Tags,
			"order":            s.Order,
		}
		if s.Notes != "" {
			split["notes"] = s.Notes
		}
		if s.InternalReference != "" {
			split["internal_reference"] = s.InternalReference
		}
		if s.ExternalID != "" {
			split["external_id"] = s.ExternalID
		}
		if s.ExternalURL != "" {
			split["external_url"] = s.ExternalURL
		}
		if s.InvoiceDate != "" {
			split["invoice_date"] = s.InvoiceDate
		}
		if s.DueDate != "" {
			split["due_date"] = s.DueDate
		}
		if s.PaymentDate != "" {
			split["payment_date"] = s.PaymentDate
		}
		splits = append(splits, split)
	}
	body := map[string]any{
		"transactions":             splits,
		"error_if_duplicate_hash":  wp.ErrorIfDuplicateHash,
		"apply_rules":              wp.ApplyRules,
		"fire_webhooks":            wp.FireWebhooks,
	}
	if wp.GroupTitle != "" {
		body["group_title"] = wp.GroupTitle
	}
	return body
}

func decodeRecord(extractionJSON string) (*canonical.CanonicalRecord, error) {
	var record canonical.CanonicalRecord
	if err := json.Unmarshal([]byte(extractionJSON), &record); err != nil {
		return nil, err
	}
	return &record, nil
}
