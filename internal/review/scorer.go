// Package review implements the confidence scorer and review workflow that
// sit between extraction and the wire-payload builder: classifying an
// extraction's review state, flagging validation issues, and recording the
// human decisions and edits the review surface collects. Grounded on
// original_source/src/paperless_firefly/confidence/scorer.py and
// review/workflow.py.
package review

import (
	"fmt"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

// Thresholds configures the review-state classifier. Defaults mirror the
// original implementation's ConfidenceThresholds.
type Thresholds struct {
	AutoThreshold   float64
	ReviewThreshold float64

	MinAmountConfidence float64
	MinDateConfidence   float64
	MinVendorConfidence float64
}

// DefaultThresholds returns the original implementation's tuned values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoThreshold:       0.85,
		ReviewThreshold:     0.60,
		MinAmountConfidence: 0.7,
		MinDateConfidence:   0.6,
		MinVendorConfidence: 0.4,
	}
}

// strategyBaseConfidence ranks extraction strategies by inherent
// reliability: structured XML is near-certain, OCR heuristics is a coin
// flip, and a bare fallback carries almost none.
var strategyBaseConfidence = map[string]float64{
	"structured_xml":     0.95,
	"structured_xml/cii": 0.95,
	"structured_xml/ubl": 0.95,
	"pdf_embedded_xml":   0.95,
	"text_layer":         0.75,
	"ocr_heuristic":      0.50,
	"fallback":           0.20,
	"none":               0.10,
}

// Scorer classifies extractions into a ReviewState and flags problems a
// reviewer should see before accepting a proposal.
type Scorer struct {
	thresholds Thresholds
}

// NewScorer builds a Scorer; a zero Thresholds falls back to DefaultThresholds.
func NewScorer(thresholds Thresholds) *Scorer {
	if thresholds.AutoThreshold == 0 && thresholds.ReviewThreshold == 0 {
		thresholds = DefaultThresholds()
	}
	return &Scorer{thresholds: thresholds}
}

// Classify computes the review state from a record's field confidences and
// overall score: AUTO requires overall >= auto_threshold AND the amount and
// date confidences individually clear their minimums; REVIEW requires only
// overall >= review_threshold; everything else is MANUAL.
func (s *Scorer) Classify(record *canonical.CanonicalRecord) canonical.ReviewState {
	amount := record.FieldConfidenceOf("amount")
	date := record.FieldConfidenceOf("date")

	criticalOK := amount >= s.thresholds.MinAmountConfidence && date >= s.thresholds.MinDateConfidence

	switch {
	case record.OverallConfidence >= s.thresholds.AutoThreshold && criticalOK:
		return canonical.ReviewStateAuto
	case record.OverallConfidence >= s.thresholds.ReviewThreshold:
		return canonical.ReviewStateReview
	default:
		return canonical.ReviewStateManual
	}
}

// AdjustForStrategy rescales every field confidence in place by the ratio
// of the named strategy's base reliability to the OCR baseline (0.50),
// capping each at 1.0. Strategies this scorer doesn't recognize are treated
// as no more reliable than 0.30.
func (s *Scorer) AdjustForStrategy(record *canonical.CanonicalRecord, strategy string) {
	base, ok := strategyBaseConfidence[strategy]
	if !ok {
		base = 0.30
	}
	multiplier := base / 0.50

	record.OverallConfidence = minF(1.0, record.OverallConfidence*multiplier)
	for i := range record.FieldConfidences {
		record.FieldConfidences[i].Confidence = minF(1.0, record.FieldConfidences[i].Confidence*multiplier)
	}
}

// ValidationIssue is one human-readable problem the reviewer should see.
type ValidationIssue struct {
	Field   string
	Message string
}

// Validate flags structural and sanity problems with a proposal, mirroring
// ConfidenceScorer.validate_extraction. It does not mutate the record.
func (s *Scorer) Validate(record *canonical.CanonicalRecord) []ValidationIssue {
	var issues []ValidationIssue
	p := record.Proposal

	if !p.Amount.IsPositive() {
		issues = append(issues, ValidationIssue{"amount", "amount is missing or invalid"})
	}
	if p.Date == "" {
		issues = append(issues, ValidationIssue{"date", "date is missing"})
	} else if !isValidISODate(p.Date) {
		issues = append(issues, ValidationIssue{"date", fmt.Sprintf("date format invalid: %s", p.Date)})
	}
	if p.Description == "" {
		issues = append(issues, ValidationIssue{"description", "description is missing"})
	}
	if p.ExternalID == "" {
		issues = append(issues, ValidationIssue{"external_id", "external_id is missing"})
	}
	if p.Amount.Cents() > 10_000_000_00 {
		issues = append(issues, ValidationIssue{"amount", fmt.Sprintf("amount unusually large: %s", p.Amount.String())})
	}
	if p.Currency == "" {
		issues = append(issues, ValidationIssue{"currency", "currency is missing"})
	}
	if record.OverallConfidence > 0.9 && record.FieldConfidenceOf("amount") < 0.5 {
		issues = append(issues, ValidationIssue{"confidence", "overall confidence inconsistent with amount confidence"})
	}
	return issues
}

func isValidISODate(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	year, err := atoiRange(s[0:4], 1900, 2100)
	if err != nil {
		return false
	}
	month, err := atoiRange(s[5:7], 1, 12)
	if err != nil {
		return false
	}
	day, err := atoiRange(s[8:10], 1, 31)
	if err != nil {
		return false
	}
	_ = year
	_ = month
	_ = day
	return true
}

func atoiRange(s string, min, max int) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a digit: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%d out of range [%d,%d]", n, min, max)
	}
	return n, nil
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
