package review

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

func TestWeightedCategoryPicksLargestSplit(t *testing.T) {
	splits := []CategorySplit{
		{Amount: canonical.NewMoneyFromCents(5000), Category: "Groceries"},
		{Amount: canonical.NewMoneyFromCents(12000), Category: "Electronics"},
		{Amount: canonical.NewMoneyFromCents(3000), Category: "Groceries"},
	}
	require.Equal(t, "Electronics", WeightedCategory(splits))
}

func TestWeightedCategoryTiesPreferFirstOccurrence(t *testing.T) {
	splits := []CategorySplit{
		{Amount: canonical.NewMoneyFromCents(5000), Category: "Groceries"},
		{Amount: canonical.NewMoneyFromCents(5000), Category: "Electronics"},
	}
	require.Equal(t, "Groceries", WeightedCategory(splits))
}

func TestWeightedCategoryEmptyWhenNoCategories(t *testing.T) {
	require.Equal(t, "", WeightedCategory(nil))
	require.Equal(t, "", WeightedCategory([]CategorySplit{{Amount: canonical.NewMoneyFromCents(100)}}))
}

func TestSplitCategoriesUniqueSorted(t *testing.T) {
	splits := []CategorySplit{
		{Category: "Groceries"}, {Category: "Electronics"}, {Category: "Groceries"},
	}
	require.Equal(t, []string{"Electronics", "Groceries"}, SplitCategories(splits))
}

func TestEditFieldAmountRegeneratesExternalID(t *testing.T) {
	w := NewWorkflow(nil, nil)
	record := &canonical.CanonicalRecord{
		DocumentID: 42,
		Proposal: canonical.Proposal{
			Amount:             canonical.NewMoneyFromCents(1000),
			Date:               "2024-01-01",
			SourceAccount:      "Checking",
			DestinationAccount: "Vendor",
			ExternalID:         "old",
		},
	}
	original := record.Proposal.ExternalID

	require.NoError(t, w.EditField(record, "amount", "25,00"))
	require.Equal(t, int64(2500), record.Proposal.Amount.Cents())
	require.NotEqual(t, original, record.Proposal.ExternalID)
}

func TestEditFieldDescriptionDoesNotTouchExternalID(t *testing.T) {
	w := NewWorkflow(nil, nil)
	record := &canonical.CanonicalRecord{Proposal: canonical.Proposal{ExternalID: "keep-me"}}
	require.NoError(t, w.EditField(record, "description", "New description"))
	require.Equal(t, "New description", record.Proposal.Description)
	require.Equal(t, "keep-me", record.Proposal.ExternalID)
}

func TestEditFieldUnknownFieldErrors(t *testing.T) {
	w := NewWorkflow(nil, nil)
	record := &canonical.CanonicalRecord{}
	require.Error(t, w.EditField(record, "not_a_field", "x"))
}
