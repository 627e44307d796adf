package extractor

import (
	"strings"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
	"github.com/LeJamon/ledgerbridge/internal/dmsclient"
)

// parserVersion is stamped into every record's Provenance.
const parserVersion = "1.0.0"

// defaultSourceAccount is used for withdrawals when nothing more specific is
// known; reconciliation and the review workflow may override it per owner.
const defaultSourceAccount = "Checking Account"

// raw is the strategy-internal scratch pad mirroring the Python
// ExtractionResult: every field a strategy might fill in, plus its
// per-field confidence. assemble() turns one of these into the canonical
// record the rest of the pipeline consumes.
type raw struct {
	strategy string

	amount           canonical.Money
	hasAmount        bool
	amountConfidence float64

	date           string
	dateConfidence float64

	currency           string
	currencyConfidence float64

	vendor           string
	vendorConfidence float64

	invoiceNumber           string
	invoiceNumberConfidence float64

	description           string
	descriptionConfidence float64

	lineItems             []canonical.LineItem
	lineItemsConfidence   float64

	totalNet    canonical.Money
	hasTotalNet bool
	taxAmount   canonical.Money
	hasTax      bool
	taxRate     float64
	hasTaxRate  bool
}

// withdrawalKeywords/depositKeywords ground _determine_transaction_type.
var withdrawalKeywords = []string{"receipt", "invoice", "rechnung", "beleg", "quittung"}
var depositKeywords = []string{"credit", "gutschrift", "refund", "rückerstattung"}

func determineTransactionType(doc dmsclient.Document, r raw) canonical.TransactionType {
	docType := strings.ToLower(doc.DocumentType)
	if containsAny(docType, withdrawalKeywords) {
		return canonical.TransactionWithdrawal
	}
	if containsAny(docType, depositKeywords) {
		return canonical.TransactionDeposit
	}
	for _, t := range doc.Tags {
		lower := strings.ToLower(t)
		if strings.Contains(lower, "income") || strings.Contains(lower, "einnahme") {
			return canonical.TransactionDeposit
		}
	}
	return canonical.TransactionWithdrawal
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// overallConfidence implements _compute_overall_confidence: amount 40%,
// date 30%, vendor 20%, and the average of currency/description/invoice
// number confidences weighted at 10%, clamped to [0,1].
func overallConfidence(r raw) float64 {
	other := (r.currencyConfidence + r.descriptionConfidence + r.invoiceNumberConfidence) / 3.0
	v := r.amountConfidence*0.4 + r.dateConfidence*0.3 + r.vendorConfidence*0.2 + other*0.1
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// assemble builds the canonical record shared by every strategy, following
// the assembly logic of ExtractorRouter.extract(): transaction type,
// provenance, notes, external id, and field confidences all come from this
// one place so strategies only need to fill in a raw.
func assemble(doc dmsclient.Document, sourceHash, baseURL string, r raw) *canonical.CanonicalRecord {
	amount := r.amount
	if !r.hasAmount {
		amount = canonical.ZeroMoney
	}
	date := r.date
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	currency := r.currency
	if currency == "" {
		currency = "EUR"
	}

	txType := determineTransactionType(doc, r)

	vendor := r.vendor
	if vendor == "" {
		vendor = doc.Correspondent
	}

	description := r.description
	if description == "" {
		description = doc.Title
	}
	if description == "" {
		description = "Document"
	}

	notes := "Extracted from document " + itoa(doc.ID)
	if r.invoiceNumber != "" {
		notes += "; Invoice: " + r.invoiceNumber
	}

	externalID := canonical.DeriveExternalID(doc.ID, amount, date, defaultSourceAccount, vendor)

	var sourceAccount string
	if txType == canonical.TransactionWithdrawal {
		sourceAccount = defaultSourceAccount
	}

	proposal := canonical.Proposal{
		TransactionType:    txType,
		Date:               date,
		Amount:             amount,
		Currency:           currency,
		Description:        description,
		SourceAccount:      sourceAccount,
		DestinationAccount: vendor,
		Tags:               append([]string(nil), doc.Tags...),
		Notes:              notes,
		ExternalID:         externalID,
		InvoiceNumber:      r.invoiceNumber,
	}
	if r.hasTax {
		proposal.TaxTotal = r.taxAmount
		proposal.HasTaxTotal = true
	}

	record := &canonical.CanonicalRecord{
		DocumentID:  doc.ID,
		SourceHash:  sourceHash,
		DocumentURL: strings.TrimRight(baseURL, "/") + "/documents/" + itoa(doc.ID) + "/",
		RawText:     doc.Content,
		Proposal:    proposal,
		FieldConfidences: []canonical.FieldConfidence{
			{Field: "amount", Confidence: r.amountConfidence},
			{Field: "date", Confidence: r.dateConfidence},
			{Field: "currency", Confidence: r.currencyConfidence},
			{Field: "vendor", Confidence: r.vendorConfidence},
			{Field: "description", Confidence: r.descriptionConfidence},
			{Field: "invoice_number", Confidence: r.invoiceNumberConfidence},
			{Field: "line_items", Confidence: r.lineItemsConfidence},
		},
		OverallConfidence: overallConfidence(r),
		Provenance: canonical.Provenance{
			SourceSystem:       "paperless",
			ParserVersion:      parserVersion,
			ParsedAt:           time.Now().UTC(),
			ExtractionStrategy: r.strategy,
		},
		Classification: &canonical.Classification{
			Correspondent: doc.Correspondent,
		},
		LineItems: r.lineItems,
	}
	return record
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
