// Package payload maps a canonical.CanonicalRecord to the ledger's wire
// shape: one or more TransactionSplitStore-equivalent splits grouped under a
// single TransactionStore-equivalent payload. Grounded on
// original_source/src/paperless_firefly/schemas/firefly_payload.py, which
// the original called "THE single builder" for this mapping; per the
// package's redesign note, every build now routes through the split-aware
// path instead of choosing between two separate builders.
package payload

import (
	"fmt"
	"strings"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

// maxSplitDifferenceCents is the largest sum-vs-total discrepancy the builder
// will silently absorb into the last split before failing loudly.
const maxSplitDifferenceCents = 100

// BuilderConfig supplies the account-mapping defaults and base URL the
// builder needs that aren't present on the canonical record itself.
type BuilderConfig struct {
	DefaultSourceAccount string // e.g. "Checking Account"
	DMSBaseURL           string // browser-facing base URL for the source document link
}

// Split is one ledger transaction split (Firefly's TransactionSplitStore).
type Split struct {
	Type               canonical.TransactionType
	Date               string
	Amount             canonical.Money
	Description        string
	SourceName         string
	DestinationName    string
	CurrencyCode       string
	CategoryName       string
	Tags               []string
	Notes              string
	InternalReference  string
	ExternalID         string
	ExternalURL        string
	InvoiceDate        string
	DueDate            string
	PaymentDate        string
	Order              int
}

// WirePayload is the full ledger submission (Firefly's TransactionStore).
type WirePayload struct {
	Splits               []Split
	GroupTitle           string
	ErrorIfDuplicateHash bool
	ApplyRules           bool
	FireWebhooks         bool
}

// Builder constructs WirePayloads from canonical records.
type Builder struct {
	cfg BuilderConfig
}

// NewBuilder builds a Builder with the given account-mapping defaults.
func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.DefaultSourceAccount == "" {
		cfg.DefaultSourceAccount = "Checking Account"
	}
	return &Builder{cfg: cfg}
}

// Build always routes through the split-aware path: a record with fewer
// than two line items degrades to a single split built from the proposal
// directly, while two or more line items produce one split per item with
// rounding reconciliation against the proposal total. reviewState is
// whatever the scorer already classified this record as; it only affects
// the provenance note, never whether the build succeeds.
func (b *Builder) Build(record *canonical.CanonicalRecord, reviewState canonical.ReviewState) (*WirePayload, error) {
	p := record.Proposal

	if p.Date == "" {
		return nil, fmt.Errorf("payload: proposal.date is required")
	}
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("payload: proposal.amount must be positive")
	}
	if p.Description == "" {
		return nil, fmt.Errorf("payload: proposal.description is required")
	}
	if p.ExternalID == "" {
		return nil, fmt.Errorf("payload: proposal.external_id is required")
	}

	source, destination := b.mapAccounts(record)

	if len(record.LineItems) >= 2 {
		return b.buildSplitPayload(record, source, destination, reviewState)
	}
	return b.buildSinglePayload(record, source, destination, reviewState)
}

func (b *Builder) mapAccounts(record *canonical.CanonicalRecord) (source, destination string) {
	p := record.Proposal
	correspondent := ""
	if record.Classification != nil {
		correspondent = record.Classification.Correspondent
	}

	switch p.TransactionType {
	case canonical.TransactionDeposit:
		source = firstNonEmpty(p.SourceAccount, correspondent, "Unknown Source")
		destination = firstNonEmpty(p.DestinationAccount, b.cfg.DefaultSourceAccount)
	case canonical.TransactionTransfer:
		source = firstNonEmpty(p.SourceAccount, b.cfg.DefaultSourceAccount)
		destination = firstNonEmpty(p.DestinationAccount, "Unknown Account")
	default: // withdrawal
		source = firstNonEmpty(p.SourceAccount, b.cfg.DefaultSourceAccount)
		destination = firstNonEmpty(p.DestinationAccount, correspondent, "Unknown Merchant")
	}
	return source, destination
}

func (b *Builder) buildSinglePayload(record *canonical.CanonicalRecord, source, destination string, reviewState canonical.ReviewState) (*WirePayload, error) {
	p := record.Proposal

	notes := buildNotes(record, 0, reviewState)
	tags := append(append([]string(nil), p.Tags...), "paperless")

	split := Split{
		Type:               p.TransactionType,
		Date:               p.Date,
		Amount:             p.Amount,
		Description:        p.Description,
		SourceName:         source,
		DestinationName:    destination,
		CurrencyCode:       p.Currency,
		CategoryName:       p.Category,
		Tags:               tags,
		Notes:              notes,
		InternalReference:  canonical.InternalReference(record.DocumentID),
		ExternalID:         p.ExternalID,
		ExternalURL:        b.documentURL(record.DocumentID),
		InvoiceDate:        p.Date,
		DueDate:            p.DueDate,
		PaymentDate:        p.Date,
	}

	return &WirePayload{
		Splits:       []Split{split},
		ApplyRules:   true,
		FireWebhooks: true,
	}, nil
}

func (b *Builder) buildSplitPayload(record *canonical.CanonicalRecord, source, destination string, reviewState canonical.ReviewState) (*WirePayload, error) {
	p := record.Proposal
	notes := buildNotes(record, len(record.LineItems), reviewState)
	tags := append(append([]string(nil), p.Tags...), "paperless", "split-transaction")

	var splits []Split
	splitSum := canonical.ZeroMoney

	for idx, item := range record.LineItems {
		amount := item.Total
		if !item.HasTotal {
			amount = item.UnitPrice
		}
		if !amount.IsPositive() {
			continue
		}
		splitSum = splitSum.Add(amount)

		description := item.Description
		if description == "" {
			description = fmt.Sprintf("Item %d", idx+1)
		}
		category := item.Category
		if category == "" {
			category = p.Category
		}

		split := Split{
			Type:            p.TransactionType,
			Date:            p.Date,
			Amount:          amount,
			Description:     description,
			SourceName:      source,
			DestinationName: destination,
			CurrencyCode:    p.Currency,
			CategoryName:    category,
			Tags:            tags,
			Order:           idx,
		}
		if len(splits) == 0 {
			split.Notes = notes
			split.InternalReference = canonical.InternalReference(record.DocumentID)
			split.ExternalID = p.ExternalID
			split.ExternalURL = b.documentURL(record.DocumentID)
			split.InvoiceDate = p.Date
			split.DueDate = p.DueDate
			split.PaymentDate = p.Date
		}
		splits = append(splits, split)
	}

	if len(splits) == 0 {
		return nil, fmt.Errorf("payload: no valid line items to build splits from")
	}

	difference := p.Amount.Sub(splitSum)
	if !difference.IsZero() {
		if difference.Abs().Cents() <= maxSplitDifferenceCents {
			last := &splits[len(splits)-1]
			last.Amount = last.Amount.Add(difference)
		} else {
			return nil, fmt.Errorf(
				"payload: split sum (%s) differs from proposal total (%s) by %s; review line item amounts",
				splitSum.String(), p.Amount.String(), difference.String())
		}
	}

	return &WirePayload{
		Splits:       splits,
		GroupTitle:   firstNonEmpty(p.Description, fmt.Sprintf("Transaction from document %d", record.DocumentID)),
		ApplyRules:   true,
		FireWebhooks: true,
	}, nil
}

// buildNotes assembles the mandatory provenance note: doc id, source hash
// prefix, confidence, review state, split count (if multi-split), parser
// version, and free-form proposal notes, each separated by "; ".
func buildNotes(record *canonical.CanonicalRecord, splitCount int, reviewState canonical.ReviewState) string {
	parts := []string{
		canonical.NotesMarker(record.DocumentID),
	}
	if record.SourceHash != "" {
		parts = append(parts, fmt.Sprintf("source_hash=%s", truncateHash(record.SourceHash)))
	}
	parts = append(parts,
		fmt.Sprintf("confidence=%.2f", record.OverallConfidence),
		fmt.Sprintf("review_state=%s", reviewState),
	)
	if splitCount >= 2 {
		parts = append(parts, fmt.Sprintf("splits=%d", splitCount))
	}
	if record.Provenance.ParserVersion != "" {
		parts = append(parts, fmt.Sprintf("parser=%s", record.Provenance.ParserVersion))
	}
	if record.Proposal.Notes != "" {
		parts = append(parts, record.Proposal.Notes)
	}
	return strings.Join(parts, "; ")
}

func truncateHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16]
}

func (b *Builder) documentURL(documentID int64) string {
	if b.cfg.DMSBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/documents/%d/", strings.TrimRight(b.cfg.DMSBaseURL, "/"), documentID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Validate re-checks required fields and amount positivity on every split.
// It never rejects on a split-sum mismatch against the proposal total
// (Build already reconciled or rejected that); this is a second,
// independent pass meant to catch a payload assembled or edited outside
// Build, not to repeat Build's own arithmetic.
func (wp *WirePayload) Validate() []ValidationIssue {
	var issues []ValidationIssue
	for i, s := range wp.Splits {
		if s.Date == "" {
			issues = append(issues, ValidationIssue{Index: i, Field: "date", Message: "date is required"})
		}
		if !s.Amount.IsPositive() {
			issues = append(issues, ValidationIssue{Index: i, Field: "amount", Message: "amount must be positive"})
		}
		if s.Description == "" {
			issues = append(issues, ValidationIssue{Index: i, Field: "description", Message: "description is required"})
		}
		if s.SourceName == "" {
			issues = append(issues, ValidationIssue{Index: i, Field: "source_name", Message: "source_name is required"})
		}
		if s.DestinationName == "" {
			issues = append(issues, ValidationIssue{Index: i, Field: "destination_name", Message: "destination_name is required"})
		}
		if i == 0 {
			if s.ExternalID == "" {
				issues = append(issues, ValidationIssue{Index: i, Field: "external_id", Message: "external_id is required on the first split"})
			}
			if s.Notes == "" {
				issues = append(issues, ValidationIssue{Index: i, Field: "notes", Message: "notes is required on the first split"})
			}
		}
	}
	return issues
}

// ValidationIssue is one problem Validate found on a specific split.
type ValidationIssue struct {
	Index   int
	Field   string
	Message string
}
