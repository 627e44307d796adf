package store

import (
	"context"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

// DocumentRepository upserts and looks up Document rows.
type DocumentRepository interface {
	Upsert(ctx context.Context, doc *canonical.Document) error
	GetByID(ctx context.Context, documentID int64) (*canonical.Document, error)
}

// ExtractionRepository manages Extraction rows.
type ExtractionRepository interface {
	Save(ctx context.Context, ex *canonical.Extraction) (int64, error)
	GetByID(ctx context.Context, id int64) (*canonical.Extraction, error)
	GetByExternalID(ctx context.Context, externalID string) (*canonical.Extraction, error)
	GetByDocumentID(ctx context.Context, documentID int64) (*canonical.Extraction, error)
	ListPendingReview(ctx context.Context) ([]*canonical.Extraction, error)
	// ListReadyForMatch returns extractions the reconciliation orchestrator
	// may act on: either auto-accepted (review_state AUTO, no human
	// decision needed) or explicitly accepted/edited by a reviewer.
	ListReadyForMatch(ctx context.Context) ([]*canonical.Extraction, error)
	UpdateReviewDecision(ctx context.Context, id int64, decision canonical.ReviewDecision, rewritten *canonical.Extraction) error
	ResetForReview(ctx context.Context, id int64) error
	SetLLMOptOut(ctx context.Context, id int64, optOut bool) error
}

// ImportRepository manages Import rows.
type ImportRepository interface {
	Create(ctx context.Context, imp *Import) (int64, error)
	MarkImported(ctx context.Context, externalID string, fireflyID int64) error
	MarkFailed(ctx context.Context, externalID string, errMessage string) error
	MarkSkipped(ctx context.Context, externalID string, reason string) error
	ResetForRetry(ctx context.Context, externalID string) error
	ExistsByExternalID(ctx context.Context, externalID string) (*Import, bool, error)
}

// CacheRepository manages the ledger-mirror cache.
type CacheRepository interface {
	Upsert(ctx context.Context, entry *CacheEntry) error
	ListUnmatched(ctx context.Context) ([]*CacheEntry, error)
	GetByFireflyID(ctx context.Context, fireflyID int64) (*CacheEntry, error)
	UpdateMatchStatus(ctx context.Context, fireflyID int64, status MatchStatus, documentID *int64, confidence *float64) error
	SoftDeleteMissing(ctx context.Context, seenFireflyIDs []int64, syncedAt time.Time) (int, error)
	ClearAll(ctx context.Context) error
	// FindLinkedForDocument implements idempotency rule 1 (spec §4.5): a
	// document is already linked if some live cache row is MATCHED to it,
	// or carries an external_id/internal_reference/notes marker pointing
	// at it.
	FindLinkedForDocument(ctx context.Context, documentID int64) (*CacheEntry, bool, error)
}

// ProposalRepository manages MatchProposal rows.
type ProposalRepository interface {
	Create(ctx context.Context, p *MatchProposal) (int64, error)
	ListPending(ctx context.Context) ([]*MatchProposal, error)
	ListPendingForDocument(ctx context.Context, documentID int64) ([]*MatchProposal, error)
	UpdateStatus(ctx context.Context, id int64, status ProposalStatus) error
	PurgePendingForDocument(ctx context.Context, documentID int64) error
	FindActive(ctx context.Context, fireflyID, documentID int64) (*MatchProposal, bool, error)
}

// RunRepository manages append-only InterpretationRun rows.
type RunRepository interface {
	Create(ctx context.Context, run *InterpretationRun) (int64, error)
	ListForDocument(ctx context.Context, documentID int64) ([]*InterpretationRun, error)
	LatestForDocument(ctx context.Context, documentID int64) (*InterpretationRun, error)
}

// LLMCacheRepository manages cached LLM responses.
type LLMCacheRepository interface {
	Get(ctx context.Context, cacheKey string, now time.Time) (*LLMCacheEntry, bool, error)
	Set(ctx context.Context, entry *LLMCacheEntry) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// LLMFeedbackRepository manages feedback recorded against runs.
type LLMFeedbackRepository interface {
	Record(ctx context.Context, fb *LLMFeedback) (int64, error)
	Stats(ctx context.Context) (FeedbackStats, error)
}

// AIJobRepository manages the AI job queue.
type AIJobRepository interface {
	Schedule(ctx context.Context, job *AIJob) (int64, bool, error) // bool = created (false if one already active)
	GetNext(ctx context.Context, limit int, now time.Time) ([]*AIJob, error)
	Start(ctx context.Context, id int64, now time.Time) error
	Complete(ctx context.Context, id int64, suggestionsJSON string, now time.Time) error
	Fail(ctx context.Context, id int64, errMessage string, now time.Time) error
	Cancel(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*AIJob, error)
	ActiveForDocument(ctx context.Context, documentID int64) (*AIJob, bool, error)
	Stats(ctx context.Context) (AIJobStats, error)
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
}

// VendorMappingRepository manages the vendor-mapping learning cache.
type VendorMappingRepository interface {
	Upsert(ctx context.Context, m *VendorMapping) error
	Lookup(ctx context.Context, pattern string) (*VendorMapping, bool, error)
}

// TransactionContext groups every repository under one SQL transaction, the
// same shape as the teacher's relationaldb.TransactionContext: begin,
// yield, commit on normal exit, rollback on any raised error.
type TransactionContext interface {
	Documents() DocumentRepository
	Extractions() ExtractionRepository
	Imports() ImportRepository
	Cache() CacheRepository
	Proposals() ProposalRepository
	Runs() RunRepository
	LLMCache() LLMCacheRepository
	LLMFeedback() LLMFeedbackRepository
	AIJobs() AIJobRepository
	VendorMappings() VendorMappingRepository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the top-level state-store handle. Read-only callers may use the
// non-transactional repository accessors directly; every mutating call
// path must go through WithTransaction.
type Store interface {
	Documents() DocumentRepository
	Extractions() ExtractionRepository
	Imports() ImportRepository
	Cache() CacheRepository
	Proposals() ProposalRepository
	Runs() RunRepository
	LLMCache() LLMCacheRepository
	LLMFeedback() LLMFeedbackRepository
	AIJobs() AIJobRepository
	VendorMappings() VendorMappingRepository

	// WithTransaction begins a transaction, invokes fn with a
	// TransactionContext, commits on nil error and rolls back otherwise.
	// No cross-transaction state leaks between calls.
	WithTransaction(ctx context.Context, fn func(TransactionContext) error) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
