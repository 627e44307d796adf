package review

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

func recordWith(overall, amount, date float64) *canonical.CanonicalRecord {
	return &canonical.CanonicalRecord{
		OverallConfidence: overall,
		FieldConfidences: []canonical.FieldConfidence{
			{Field: "amount", Confidence: amount},
			{Field: "date", Confidence: date},
		},
		Proposal: canonical.Proposal{
			Amount:      canonical.NewMoneyFromCents(1000),
			Date:        "2024-01-01",
			Description: "Test",
			Currency:    "EUR",
			ExternalID:  "abc:pl:1",
		},
	}
}

func TestClassifyAuto(t *testing.T) {
	s := NewScorer(DefaultThresholds())
	record := recordWith(0.9, 0.8, 0.7)
	require.Equal(t, canonical.ReviewStateAuto, s.Classify(record))
}

func TestClassifyReviewWhenCriticalFieldsLow(t *testing.T) {
	s := NewScorer(DefaultThresholds())
	record := recordWith(0.9, 0.5, 0.7) // overall high but amount confidence too low for AUTO
	require.Equal(t, canonical.ReviewStateReview, s.Classify(record))
}

func TestClassifyManual(t *testing.T) {
	s := NewScorer(DefaultThresholds())
	record := recordWith(0.3, 0.2, 0.2)
	require.Equal(t, canonical.ReviewStateManual, s.Classify(record))
}

func TestAdjustForStrategyScalesConfidences(t *testing.T) {
	s := NewScorer(DefaultThresholds())
	record := recordWith(0.5, 0.5, 0.5)
	s.AdjustForStrategy(record, "structured_xml")
	require.InDelta(t, 0.95, record.OverallConfidence, 1e-9)
}

func TestValidateFlagsMissingFields(t *testing.T) {
	s := NewScorer(DefaultThresholds())
	record := &canonical.CanonicalRecord{Proposal: canonical.Proposal{}}
	issues := s.Validate(record)
	require.NotEmpty(t, issues)

	fields := make(map[string]bool)
	for _, issue := range issues {
		fields[issue.Field] = true
	}
	require.True(t, fields["amount"])
	require.True(t, fields["date"])
	require.True(t, fields["description"])
	require.True(t, fields["external_id"])
	require.True(t, fields["currency"])
}

func TestValidatePassesCleanRecord(t *testing.T) {
	s := NewScorer(DefaultThresholds())
	record := recordWith(0.8, 0.8, 0.8)
	issues := s.Validate(record)
	require.Empty(t, issues)
}

func TestValidateFlagsInconsistentConfidence(t *testing.T) {
	s := NewScorer(DefaultThresholds())
	record := recordWith(0.95, 0.3, 0.9)
	issues := s.Validate(record)

	found := false
	for _, issue := range issues {
		if issue.Field == "confidence" {
			found = true
		}
	}
	require.True(t, found)
}
