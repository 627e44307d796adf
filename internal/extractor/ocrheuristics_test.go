package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/dmsclient"
)

func TestOCRHeuristicsExtractsGermanReceipt(t *testing.T) {
	content := "REWE Markt GmbH\nFiliale 123\nDatum: 18.11.2024\n\nGesamt: EUR 42,50\nRechnungsnr: RE-2024-00981\n"
	in := Input{Document: dmsclient.Document{ID: 7, Content: content, Title: "Receipt"}}

	s := NewOCRHeuristics()
	require.True(t, s.CanExtract(in))

	record, err := s.Extract(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "2024-11-18", record.Proposal.Date)
	require.Equal(t, int64(4250), record.Proposal.Amount.Cents())
	require.Equal(t, "EUR", record.Proposal.Currency)
	require.Equal(t, "RE-2024-00981", record.Proposal.InvoiceNumber)
	require.Equal(t, "REWE Markt GmbH", record.Proposal.DestinationAccount)
}

func TestOCRHeuristicsHandlesEnglishAmount(t *testing.T) {
	content := "Acme Inc\nDate: 2024-03-05\nTotal: USD 1,234.56\n"
	in := Input{Document: dmsclient.Document{ID: 8, Content: content}}

	record, err := NewOCRHeuristics().Extract(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, int64(123456), record.Proposal.Amount.Cents())
	require.Equal(t, "USD", record.Proposal.Currency)
	require.Equal(t, "2024-03-05", record.Proposal.Date)
}

func TestOCRHeuristicsCanExtractRequiresContent(t *testing.T) {
	s := NewOCRHeuristics()
	require.False(t, s.CanExtract(Input{Document: dmsclient.Document{Content: "   "}}))
	require.True(t, s.CanExtract(Input{Document: dmsclient.Document{Content: "something"}}))
}

func TestFallbackAlwaysExtracts(t *testing.T) {
	s := NewFallback()
	in := Input{Document: dmsclient.Document{ID: 9, Title: "Unknown scan"}}
	require.True(t, s.CanExtract(in))

	record, err := s.Extract(context.Background(), in)
	require.NoError(t, err)
	require.True(t, record.Proposal.Amount.IsZero())
	require.Equal(t, "fallback", record.Provenance.ExtractionStrategy)
}
