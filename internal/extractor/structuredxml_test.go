package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/dmsclient"
)

const sampleCII = `<?xml version="1.0" encoding="UTF-8"?>
<rsm:CrossIndustryInvoice xmlns:rsm="urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
  xmlns:ram="urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100"
  xmlns:udt="urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100">
  <rsm:ExchangedDocument>
    <ram:ID>INV-2024-0042</ram:ID>
    <ram:IssueDateTime>
      <udt:DateTimeString>20241118</udt:DateTimeString>
    </ram:IssueDateTime>
  </rsm:ExchangedDocument>
  <rsm:SupplyChainTradeTransaction>
    <ram:ApplicableHeaderTradeAgreement>
      <ram:SellerTradeParty>
        <ram:Name>Muster GmbH</ram:Name>
      </ram:SellerTradeParty>
    </ram:ApplicableHeaderTradeAgreement>
    <ram:ApplicableHeaderTradeSettlement>
      <ram:InvoiceCurrencyCode>EUR</ram:InvoiceCurrencyCode>
      <ram:SpecifiedTradeSettlementHeaderMonetarySummation>
        <ram:GrandTotalAmount>119.00</ram:GrandTotalAmount>
        <ram:TaxTotalAmount>19.00</ram:TaxTotalAmount>
      </ram:SpecifiedTradeSettlementHeaderMonetarySummation>
    </ram:ApplicableHeaderTradeSettlement>
  </rsm:SupplyChainTradeTransaction>
</rsm:CrossIndustryInvoice>`

const sampleUBL = `<?xml version="1.0" encoding="UTF-8"?>
<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2">
  <ID>UBL-99</ID>
  <IssueDate>2024-01-15</IssueDate>
  <DocumentCurrencyCode>EUR</DocumentCurrencyCode>
  <AccountingSupplierParty>
    <Party>
      <PartyName><Name>Supplier OHG</Name></PartyName>
    </Party>
  </AccountingSupplierParty>
  <LegalMonetaryTotal>
    <PayableAmount>250.00</PayableAmount>
  </LegalMonetaryTotal>
</Invoice>`

func TestStructuredXMLParsesCII(t *testing.T) {
	s := NewStructuredXML()
	in := Input{Document: dmsclient.Document{ID: 1, Content: sampleCII}}
	require.True(t, s.CanExtract(in))

	record, err := s.Extract(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, int64(11900), record.Proposal.Amount.Cents())
	require.Equal(t, "2024-11-18", record.Proposal.Date)
	require.Equal(t, "Muster GmbH", record.Proposal.DestinationAccount)
	require.Equal(t, "EUR", record.Proposal.Currency)
	require.True(t, record.Proposal.HasTaxTotal)
	require.Equal(t, int64(1900), record.Proposal.TaxTotal.Cents())
}

func TestStructuredXMLParsesUBL(t *testing.T) {
	s := NewStructuredXML()
	in := Input{Document: dmsclient.Document{ID: 2, Content: sampleUBL}}
	require.True(t, s.CanExtract(in))

	record, err := s.Extract(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, int64(25000), record.Proposal.Amount.Cents())
	require.Equal(t, "2024-01-15", record.Proposal.Date)
	require.Equal(t, "Supplier OHG", record.Proposal.DestinationAccount)
}

func TestStructuredXMLCanExtractRejectsPlainText(t *testing.T) {
	s := NewStructuredXML()
	require.False(t, s.CanExtract(Input{Document: dmsclient.Document{Content: "just a regular receipt"}}))
}
