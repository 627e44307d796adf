// Package store defines the state-store contract (spec.md §3, §4.2): a
// single transactional record of documents, extractions, imports, the
// ledger-mirror cache, match proposals, audit runs, the LLM cache/feedback,
// and the AI job queue. Concrete backends (sqlite, postgres) implement
// Store; callers depend only on this package's interfaces, generalized
// from the teacher's internal/storage/relationaldb layering.
package store

import (
	"time"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

// ImportStatus is the status of an attempt to push an extraction to the
// ledger.
type ImportStatus string

const (
	ImportPending   ImportStatus = "PENDING"
	ImportImported  ImportStatus = "IMPORTED"
	ImportFailed    ImportStatus = "FAILED"
	ImportSkipped   ImportStatus = "SKIPPED"
	ImportDuplicate ImportStatus = "DUPLICATE"
)

// Import tracks one attempt to push an extraction to the ledger.
type Import struct {
	ID           int64
	ExternalID   string
	DocumentID   int64
	FireflyID    *int64
	Status       ImportStatus
	ErrorMessage string
	WirePayload  string
	CreatedAt    time.Time
	ImportedAt   *time.Time
}

// MatchStatus is the reconciliation status of a cached ledger transaction.
type MatchStatus string

const (
	MatchUnmatched MatchStatus = "UNMATCHED"
	MatchMatched   MatchStatus = "MATCHED"
	MatchRejected  MatchStatus = "REJECTED"
)

// CacheEntry mirrors one ledger transaction (spec.md §3, "Ledger cache
// entry").
type CacheEntry struct {
	FireflyID          int64
	Type               canonical.TransactionType
	Date               string
	Amount             canonical.Money
	Description        string
	SourceName         string
	DestinationName    string
	Notes              string
	Category           string
	Tags               []string
	ExternalID         string
	InternalReference  string
	SyncedAt           time.Time
	MatchStatus        MatchStatus
	MatchedDocumentID  *int64
	MatchConfidence    *float64
	DeletedAt          *time.Time
}

// ProposalStatus is the lifecycle status of a MatchProposal.
type ProposalStatus string

const (
	ProposalPending     ProposalStatus = "PENDING"
	ProposalAccepted    ProposalStatus = "ACCEPTED"
	ProposalRejected    ProposalStatus = "REJECTED"
	ProposalAutoMatched ProposalStatus = "AUTO_MATCHED"
)

// MatchProposal is a scored candidate (document, ledger-transaction) link
// awaiting a decision.
type MatchProposal struct {
	ID           int64
	FireflyID    int64
	DocumentID   int64
	MatchScore   float64
	MatchReasons []string
	Status       ProposalStatus
	CreatedAt    time.Time
	ReviewedAt   *time.Time
}

// DecisionSource records who/what made a reconciliation decision.
type DecisionSource string

const (
	DecisionSourceRules DecisionSource = "RULES"
	DecisionSourceLLM   DecisionSource = "LLM"
	DecisionSourceUser  DecisionSource = "USER"
	DecisionSourceAuto  DecisionSource = "AUTO"
)

// FinalState is the terminal outcome recorded on an interpretation run.
type FinalState string

const (
	FinalProposalCreated     FinalState = "PROPOSAL_CREATED"
	FinalLinked              FinalState = "LINKED"
	FinalRejected            FinalState = "REJECTED"
	FinalLinkageWriteFailed  FinalState = "LINKAGE_WRITE_FAILED"
	FinalManualCreated       FinalState = "MANUAL_CREATED"
	FinalLinkError           FinalState = "LINK_ERROR"
)

// InterpretationRun is the append-only audit record of one decision on one
// (document, ledger-transaction) pair.
type InterpretationRun struct {
	ID                   int64
	DocumentID           int64
	FireflyID            *int64
	ExternalID           *string
	RunTimestamp         time.Time
	DurationMS           int64
	PipelineVersion      string
	AlgorithmVersion     string
	InputsSummary        string
	RulesApplied         []string
	LLMResult            string
	FinalState           FinalState
	DecisionSource       DecisionSource
	AutoApplied          bool
	FireflyWriteAction   string
	FireflyTargetID      *int64
	LinkageMarkerWritten string
	OwnerUserID          *int64
}

// LLMCacheEntry caches a prior LLM response keyed by a SHA-256 digest over
// (prompt kind, prompt version, taxonomy version, inputs).
type LLMCacheEntry struct {
	CacheKey       string
	ModelName      string
	PromptVersion  string
	TaxonomyVersion string
	ResponseText   string
	HitCount       int64
	ExpiresAt      time.Time
}

// FeedbackKind is whether an LLM suggestion was judged correct or wrong.
type FeedbackKind string

const (
	FeedbackCorrect FeedbackKind = "CORRECT"
	FeedbackWrong   FeedbackKind = "WRONG"
)

// LLMFeedback binds an interpretation run to an outcome.
type LLMFeedback struct {
	ID                 int64
	InterpretationRunID int64
	SuggestedCategory  string
	ActualCategory     string
	Kind               FeedbackKind
	Notes              string
	CreatedAt          time.Time
}

// AIJobStatus is the lifecycle status of an AI job.
type AIJobStatus string

const (
	AIJobPending    AIJobStatus = "PENDING"
	AIJobProcessing AIJobStatus = "PROCESSING"
	AIJobCompleted  AIJobStatus = "COMPLETED"
	AIJobFailed     AIJobStatus = "FAILED"
	AIJobCancelled  AIJobStatus = "CANCELLED"
)

// AIJob is one queued unit of LLM work for a document.
type AIJob struct {
	ID               int64
	DocumentID       int64
	ExtractionID     *int64
	ExternalID       *string
	Priority         int
	Status           AIJobStatus
	RetryCount       int
	MaxRetries       int
	ScheduledFor     *time.Time
	CreatedBy        string
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ErrorMessage     string
	SuggestionsJSON  string
}

// VendorMapping is the learning cache mapping a vendor pattern to a
// suggested destination account/category/tags.
type VendorMapping struct {
	ID                 int64
	Pattern            string
	DestinationAccount string
	Category           string
	Tags               []string
	UseCount           int64
	UpdatedAt          time.Time
}

// AIJobStats summarizes the queue for operational visibility.
type AIJobStats struct {
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
	Cancelled  int64
}

// FeedbackStats summarizes recorded LLM feedback.
type FeedbackStats struct {
	TotalCount   int64
	CorrectCount int64
	WrongCount   int64
}

func (s FeedbackStats) Accuracy() float64 {
	if s.TotalCount == 0 {
		return 0
	}
	return float64(s.CorrectCount) / float64(s.TotalCount)
}
