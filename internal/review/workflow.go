package review

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

// Workflow is the review surface's backing service: list what needs a human
// look, load one extraction's canonical record, and record what the human
// decided. Grounded on
// original_source/src/paperless_firefly/review/workflow.py's ReviewWorkflow.
type Workflow struct {
	store  store.Store
	scorer *Scorer
}

// NewWorkflow builds a Workflow over a state store and scorer.
func NewWorkflow(s store.Store, scorer *Scorer) *Workflow {
	if scorer == nil {
		scorer = NewScorer(DefaultThresholds())
	}
	return &Workflow{store: s, scorer: scorer}
}

// PendingReviews lists every extraction currently awaiting a decision.
func (w *Workflow) PendingReviews(ctx context.Context) ([]*canonical.Extraction, error) {
	return w.store.Extractions().ListPendingReview(ctx)
}

// Get loads one extraction row and decodes its canonical record.
func (w *Workflow) Get(ctx context.Context, extractionID int64) (*canonical.Extraction, *canonical.CanonicalRecord, error) {
	ex, err := w.store.Extractions().GetByID(ctx, extractionID)
	if err != nil {
		return nil, nil, fmt.Errorf("review: get extraction %d: %w", extractionID, err)
	}
	record, err := decodeRecord(ex.ExtractionJSON)
	if err != nil {
		return nil, nil, fmt.Errorf("review: decode extraction %d: %w", extractionID, err)
	}
	return ex, record, nil
}

// RecordDecision persists the reviewer's decision. When rewritten is
// non-nil (the reviewer edited the proposal), the stored extraction JSON is
// replaced with the rewritten record's encoding. Accepting or editing a
// proposal also teaches the vendor-mapping cache the destination
// account/category the human confirmed, so the same vendor defaults next
// time without another human look.
func (w *Workflow) RecordDecision(ctx context.Context, extractionID int64, decision canonical.ReviewDecision, rewritten *canonical.CanonicalRecord) error {
	var ex *canonical.Extraction
	record := rewritten
	if rewritten != nil {
		encoded, err := json.Marshal(rewritten)
		if err != nil {
			return fmt.Errorf("review: encode rewritten record: %w", err)
		}
		ex = &canonical.Extraction{ExtractionJSON: string(encoded)}
	}

	if err := w.store.Extractions().UpdateReviewDecision(ctx, extractionID, decision, ex); err != nil {
		return err
	}

	if decision == canonical.DecisionAccepted || decision == canonical.DecisionEdited {
		if record == nil {
			if _, loaded, err := w.Get(ctx, extractionID); err == nil {
				record = loaded
			}
		}
		if record != nil {
			if err := w.LearnVendorMapping(ctx, record); err != nil {
				return fmt.Errorf("review: learn vendor mapping: %w", err)
			}
		}
	}
	return nil
}

// vendorPattern derives the vendor-mapping cache key from a record's
// classified correspondent, mirroring the original's bare vendor_pattern
// (a trimmed correspondent name, no case folding — save_vendor_mapping and
// get_vendor_mapping both key on the literal string).
func vendorPattern(record *canonical.CanonicalRecord) string {
	if record.Classification == nil {
		return ""
	}
	return strings.TrimSpace(record.Classification.Correspondent)
}

// ApplyVendorMapping consults the vendor-mapping learning cache for
// record's correspondent and, when a mapping exists, fills any empty
// destination account, category, or tags on the proposal. It is meant to
// run before a caller falls back to classification-derived defaults
// (internal/payload.Builder.mapAccounts's correspondent fallback): a
// remembered vendor mapping takes priority over that bare fallback.
// Reports whether it applied anything.
func (w *Workflow) ApplyVendorMapping(ctx context.Context, record *canonical.CanonicalRecord) (bool, error) {
	pattern := vendorPattern(record)
	if pattern == "" {
		return false, nil
	}
	p := &record.Proposal
	if p.DestinationAccount != "" && p.Category != "" && len(p.Tags) > 0 {
		return false, nil
	}

	mapping, ok, err := w.store.VendorMappings().Lookup(ctx, pattern)
	if err != nil {
		return false, fmt.Errorf("review: lookup vendor mapping: %w", err)
	}
	if !ok {
		return false, nil
	}

	applied := false
	if p.DestinationAccount == "" && mapping.DestinationAccount != "" {
		p.DestinationAccount = mapping.DestinationAccount
		applied = true
	}
	if p.Category == "" && mapping.Category != "" {
		p.Category = mapping.Category
		applied = true
	}
	if len(p.Tags) == 0 && len(mapping.Tags) > 0 {
		p.Tags = mapping.Tags
		applied = true
	}
	return applied, nil
}

// LearnVendorMapping upserts record's current destination account/category
// into the vendor-mapping cache under its correspondent pattern, bumping
// the mapping's use count on repeat confirmation (sqlite_store.py's
// save_vendor_mapping: INSERT .. ON CONFLICT DO UPDATE use_count = use_count + 1).
// A record with no classified correspondent, or nothing worth remembering,
// is a no-op.
func (w *Workflow) LearnVendorMapping(ctx context.Context, record *canonical.CanonicalRecord) error {
	pattern := vendorPattern(record)
	if pattern == "" {
		return nil
	}
	p := record.Proposal
	if p.DestinationAccount == "" && p.Category == "" {
		return nil
	}
	return w.store.VendorMappings().Upsert(ctx, &store.VendorMapping{
		Pattern:            pattern,
		DestinationAccount: p.DestinationAccount,
		Category:           p.Category,
		Tags:               p.Tags,
	})
}

// EditField applies a single field edit to a canonical record's proposal,
// mirroring ReviewWorkflow.apply_edit. Editing amount or date regenerates
// the external id since it's derived from them.
func (w *Workflow) EditField(record *canonical.CanonicalRecord, field, value string) error {
	p := &record.Proposal

	switch field {
	case "amount":
		money, err := canonical.ParseMoney(strings.ReplaceAll(value, ",", "."))
		if err != nil {
			return fmt.Errorf("review: invalid amount %q: %w", value, err)
		}
		p.Amount = money
	case "date":
		p.Date = value
	case "description":
		p.Description = value
	case "vendor", "destination_account":
		p.DestinationAccount = value
	case "source_account":
		p.SourceAccount = value
	case "category":
		p.Category = value
	case "currency":
		p.Currency = strings.ToUpper(value)
	case "invoice_number":
		p.InvoiceNumber = value
	default:
		return fmt.Errorf("review: unknown field %q", field)
	}

	if field == "amount" || field == "date" {
		p.ExternalID = canonical.DeriveExternalID(record.DocumentID, p.Amount, p.Date, p.SourceAccount, p.DestinationAccount)
	}
	return nil
}

// CategorySplit is the minimal shape WeightedCategory needs from a wire
// payload split: its amount and assigned category.
type CategorySplit struct {
	Amount   canonical.Money
	Category string
}

// WeightedCategory returns the category with the largest summed split
// amount, breaking ties by first occurrence; it returns "" if no split
// carries a category. Mirrors compute_weighted_category, the stated
// single source of truth for populating a default category dropdown.
func WeightedCategory(splits []CategorySplit) string {
	type totals struct {
		sum   int64
		order int
	}
	byCategory := make(map[string]*totals)
	order := 0

	for _, s := range splits {
		if s.Category == "" || !s.Amount.IsPositive() {
			continue
		}
		t, ok := byCategory[s.Category]
		if !ok {
			t = &totals{order: order}
			byCategory[s.Category] = t
			order++
		}
		t.sum += s.Amount.Cents()
	}
	if len(byCategory) == 0 {
		return ""
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		ti, tj := byCategory[categories[i]], byCategory[categories[j]]
		if ti.sum != tj.sum {
			return ti.sum > tj.sum
		}
		return ti.order < tj.order
	})
	return categories[0]
}

// SplitCategories returns the unique, sorted set of categories referenced
// across a split list.
func SplitCategories(splits []CategorySplit) []string {
	set := make(map[string]struct{})
	for _, s := range splits {
		if s.Category != "" {
			set[s.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func decodeRecord(extractionJSON string) (*canonical.CanonicalRecord, error) {
	var record canonical.CanonicalRecord
	if err := json.Unmarshal([]byte(extractionJSON), &record); err != nil {
		return nil, err
	}
	return &record, nil
}
