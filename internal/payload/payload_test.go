package payload

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

func baseRecord() *canonical.CanonicalRecord {
	return &canonical.CanonicalRecord{
		DocumentID:        7,
		SourceHash:        "abcdef0123456789abcdef0123456789",
		OverallConfidence: 0.91,
		Proposal: canonical.Proposal{
			TransactionType: canonical.TransactionWithdrawal,
			Date:            "2024-03-01",
			Amount:          canonical.MustParseMoney("42.00"),
			Currency:        "EUR",
			Description:     "REWE grocery run",
			ExternalID:      "abc123:pl:7",
		},
		Classification: &canonical.Classification{Correspondent: "REWE"},
	}
}

func TestBuildSingleSplitWhenFewerThanTwoLineItems(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	record := baseRecord()

	wp, err := b.Build(record, canonical.ReviewStateAuto)
	require.NoError(t, err)
	require.Len(t, wp.Splits, 1)

	split := wp.Splits[0]
	require.Equal(t, "42.00", split.Amount.String())
	require.Equal(t, "Checking Account", split.SourceName)
	require.Equal(t, "REWE", split.DestinationName)
	require.Equal(t, "PAPERLESS:7", split.InternalReference)
	require.Equal(t, "abc123:pl:7", split.ExternalID)
	require.Contains(t, split.Notes, "Paperless doc_id=7")
	require.Contains(t, split.Notes, "source_hash=abcdef0123456789")
	require.Contains(t, split.Notes, "confidence=0.91")
	require.Contains(t, split.Notes, "review_state=AUTO")
	require.NotContains(t, split.Notes, "splits=")
	require.Contains(t, split.Tags, "paperless")
}

func TestBuildSplitPayloadExactlyDivisible(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	record := baseRecord()
	record.Proposal.Amount = canonical.MustParseMoney("30.00")
	record.LineItems = []canonical.LineItem{
		{Description: "Bread", Total: canonical.MustParseMoney("10.00"), HasTotal: true},
		{Description: "Milk", Total: canonical.MustParseMoney("20.00"), HasTotal: true},
	}

	wp, err := b.Build(record, canonical.ReviewStateReview)
	require.NoError(t, err)
	require.Len(t, wp.Splits, 2)
	require.Equal(t, "10.00", wp.Splits[0].Amount.String())
	require.Equal(t, "20.00", wp.Splits[1].Amount.String())

	// Linkage markers only on split 0.
	require.NotEmpty(t, wp.Splits[0].ExternalID)
	require.Empty(t, wp.Splits[1].ExternalID)
	require.Empty(t, wp.Splits[1].Notes)

	require.Contains(t, wp.Splits[0].Notes, "splits=2")
	require.Equal(t, "REWE grocery run", wp.GroupTitle)
}

func TestBuildSplitPayloadAbsorbsSmallRoundingDifference(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	record := baseRecord()
	record.Proposal.Amount = canonical.MustParseMoney("30.01")
	record.LineItems = []canonical.LineItem{
		{Description: "Bread", Total: canonical.MustParseMoney("10.00"), HasTotal: true},
		{Description: "Milk", Total: canonical.MustParseMoney("20.00"), HasTotal: true},
	}

	wp, err := b.Build(record, canonical.ReviewStateReview)
	require.NoError(t, err)
	require.Len(t, wp.Splits, 2)
	// The 0.01 difference is absorbed into the last split.
	require.Equal(t, "10.00", wp.Splits[0].Amount.String())
	require.Equal(t, "20.01", wp.Splits[1].Amount.String())
}

func TestBuildSplitPayloadFailsWhenDifferenceTooLarge(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	record := baseRecord()
	record.Proposal.Amount = canonical.MustParseMoney("50.00")
	record.LineItems = []canonical.LineItem{
		{Description: "Bread", Total: canonical.MustParseMoney("10.00"), HasTotal: true},
		{Description: "Milk", Total: canonical.MustParseMoney("20.00"), HasTotal: true},
	}

	_, err := b.Build(record, canonical.ReviewStateReview)
	require.Error(t, err)
}

func TestBuildSplitPayloadSkipsNonPositiveLineItems(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	record := baseRecord()
	record.Proposal.Amount = canonical.MustParseMoney("10.00")
	record.LineItems = []canonical.LineItem{
		{Description: "Refund", Total: canonical.MustParseMoney("-5.00"), HasTotal: true},
		{Description: "Bread", Total: canonical.MustParseMoney("10.00"), HasTotal: true},
	}

	wp, err := b.Build(record, canonical.ReviewStateReview)
	require.NoError(t, err)
	require.Len(t, wp.Splits, 1)
	require.Equal(t, "10.00", wp.Splits[0].Amount.String())
}

func TestBuildSplitPayloadFailsWhenNoValidLineItemsRemain(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	record := baseRecord()
	record.LineItems = []canonical.LineItem{
		{Description: "Refund", Total: canonical.MustParseMoney("-5.00"), HasTotal: true},
		{Description: "Adjustment", Total: canonical.ZeroMoney, HasTotal: true},
	}

	_, err := b.Build(record, canonical.ReviewStateReview)
	require.Error(t, err)
}

func TestBuildUsesUnitPriceWhenNoTotal(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	record := baseRecord()
	record.Proposal.Amount = canonical.MustParseMoney("15.00")
	record.LineItems = []canonical.LineItem{
		{Description: "Bread", UnitPrice: canonical.MustParseMoney("5.00")},
		{Description: "Milk", UnitPrice: canonical.MustParseMoney("10.00")},
	}

	wp, err := b.Build(record, canonical.ReviewStateReview)
	require.NoError(t, err)
	require.Equal(t, "5.00", wp.Splits[0].Amount.String())
	require.Equal(t, "10.00", wp.Splits[1].Amount.String())
}

func TestBuildRejectsMissingRequiredFields(t *testing.T) {
	b := NewBuilder(BuilderConfig{})

	missingDate := baseRecord()
	missingDate.Proposal.Date = ""
	_, err := b.Build(missingDate, canonical.ReviewStateAuto)
	require.Error(t, err)

	missingAmount := baseRecord()
	missingAmount.Proposal.Amount = canonical.ZeroMoney
	_, err = b.Build(missingAmount, canonical.ReviewStateAuto)
	require.Error(t, err)

	missingExternalID := baseRecord()
	missingExternalID.Proposal.ExternalID = ""
	_, err = b.Build(missingExternalID, canonical.ReviewStateAuto)
	require.Error(t, err)
}

func TestMapAccountsDepositFallsBackToCorrespondentAsSource(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	record := baseRecord()
	record.Proposal.TransactionType = canonical.TransactionDeposit

	wp, err := b.Build(record, canonical.ReviewStateAuto)
	require.NoError(t, err)
	require.Equal(t, "REWE", wp.Splits[0].SourceName)
	require.Equal(t, "Checking Account", wp.Splits[0].DestinationName)
}

func TestMapAccountsWithdrawalFallsBackToUnknownMerchant(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	record := baseRecord()
	record.Classification = nil

	wp, err := b.Build(record, canonical.ReviewStateAuto)
	require.NoError(t, err)
	require.Equal(t, "Unknown Merchant", wp.Splits[0].DestinationName)
}

func TestValidatePassesCleanPayload(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	wp, err := b.Build(baseRecord(), canonical.ReviewStateAuto)
	require.NoError(t, err)
	require.Empty(t, wp.Validate())
}

func TestValidateFlagsMissingRequiredSplitZeroFields(t *testing.T) {
	wp := &WirePayload{Splits: []Split{{Date: "2024-01-01", Amount: canonical.MustParseMoney("5.00"), Description: "x", SourceName: "a", DestinationName: "b"}}}
	issues := wp.Validate()
	fields := make(map[string]bool)
	for _, i := range issues {
		fields[i.Field] = true
	}
	require.True(t, fields["external_id"])
	require.True(t, fields["notes"])
}

func TestValidateFlagsNonPositiveAmount(t *testing.T) {
	wp := &WirePayload{Splits: []Split{{Date: "2024-01-01", Amount: canonical.ZeroMoney, Description: "x", SourceName: "a", DestinationName: "b", ExternalID: "e", Notes: "n"}}}
	issues := wp.Validate()
	found := false
	for _, i := range issues {
		if i.Field == "amount" {
			found = true
		}
	}
	require.True(t, found)
}

func TestDocumentURLUsesConfiguredBase(t *testing.T) {
	b := NewBuilder(BuilderConfig{DMSBaseURL: "https://dms.example.com/"})
	record := baseRecord()

	wp, err := b.Build(record, canonical.ReviewStateAuto)
	require.NoError(t, err)
	require.Equal(t, "https://dms.example.com/documents/7/", wp.Splits[0].ExternalURL)
}
