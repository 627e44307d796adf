package canonical

import "time"

// TransactionType discriminates the three kinds of ledger transaction the
// pipeline can produce. It is a closed set; every switch over it must be
// exhaustive.
type TransactionType string

const (
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionDeposit    TransactionType = "deposit"
	TransactionTransfer   TransactionType = "transfer"
)

// ReviewState is the disposition assigned by the confidence scorer (C6).
type ReviewState string

const (
	ReviewStateAuto   ReviewState = "AUTO"
	ReviewStateReview ReviewState = "REVIEW"
	ReviewStateManual ReviewState = "MANUAL"
)

// ReviewDecision is the human decision recorded against an extraction.
type ReviewDecision string

const (
	DecisionAccepted ReviewDecision = "ACCEPTED"
	DecisionEdited   ReviewDecision = "EDITED"
	DecisionRejected ReviewDecision = "REJECTED"
	DecisionSkipped  ReviewDecision = "SKIPPED"
)

// Document mirrors the DMS document record (spec.md §3, Document).
type Document struct {
	DocumentID    int64
	SourceHash    string
	Title         string
	DocumentType  string
	Correspondent string
	Tags          []string
	FirstSeen     time.Time
	LastSeen      time.Time
}

// FieldConfidence carries a per-field confidence score in [0,1].
type FieldConfidence struct {
	Field      string
	Confidence float64
}

// Provenance records where a canonical record came from.
type Provenance struct {
	SourceSystem        string
	ParserVersion        string
	ParsedAt             time.Time
	ExtractionStrategy   string
}

// LineItem is one row of an itemized receipt or invoice.
type LineItem struct {
	Description string
	Quantity    float64
	UnitPrice   Money
	Total       Money
	HasTotal    bool
	TaxRate     float64
	Position    int
	Category    string
}

// Classification is the optional categorization block.
type Classification struct {
	Category      string
	Correspondent string
	Confidence    float64
}

// Proposal is the transaction the extractor proposes to submit to the
// ledger. It is embedded in the canonical record, distinct from the
// (document, ledger-transaction) MatchProposal of C9/C10.
type Proposal struct {
	TransactionType    TransactionType
	Date               string // YYYY-MM-DD
	Amount             Money
	Currency           string
	Description        string
	SourceAccount      string
	DestinationAccount string
	Category           string
	Tags               []string
	Notes              string
	ExternalID         string
	InvoiceNumber      string
	DueDate            string
	TaxTotal           Money
	HasTaxTotal        bool
}

// CanonicalRecord is the single schema for everything the pipeline knows
// about one document's financial content (spec.md §3).
type CanonicalRecord struct {
	DocumentID int64
	SourceHash string
	DocumentURL string
	RawText    string

	Proposal Proposal

	FieldConfidences   []FieldConfidence
	OverallConfidence  float64
	Provenance         Provenance

	Classification *Classification
	LineItems      []LineItem
	StructuredPayload map[string]any
}

// FieldConfidenceOf looks up a named field's confidence, returning 0 if absent.
func (r *CanonicalRecord) FieldConfidenceOf(field string) float64 {
	for _, fc := range r.FieldConfidences {
		if fc.Field == field {
			return fc.Confidence
		}
	}
	return 0
}

// Extraction mirrors the persisted Extraction row (spec.md §3).
type Extraction struct {
	ID                int64
	DocumentID        int64
	ExternalID        string
	ExtractionJSON    string
	OverallConfidence float64
	ReviewState       ReviewState
	CreatedAt         time.Time
	ReviewedAt        *time.Time
	ReviewDecision    *ReviewDecision
	LLMOptOut         bool
}
