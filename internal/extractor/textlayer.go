package extractor

import (
	"bytes"
	"context"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

// textLayerStrategy runs when the original file is a genuine PDF (as
// opposed to a scanned image Paperless had to OCR): pdfcpu confirms the
// file parses as a PDF with at least one page (whether those pages carry
// text is not inspected), and the same pattern matching the OCR strategy
// uses is then applied to Paperless's indexed content, with higher
// confidences than the OCR strategy gives.
type textLayerStrategy struct{}

// NewTextLayer builds the PDF-text-layer strategy.
func NewTextLayer() Strategy { return textLayerStrategy{} }

func (textLayerStrategy) Name() string  { return "text_layer" }
func (textLayerStrategy) Priority() int { return 50 }

func (textLayerStrategy) CanExtract(in Input) bool {
	if !isPDF(in.FileBytes) {
		return false
	}
	return hasTextLayer(in.FileBytes)
}

func hasTextLayer(fileBytes []byte) bool {
	pages, err := api.PageCount(bytes.NewReader(fileBytes), nil)
	if err != nil {
		return false
	}
	return pages > 0
}

func isPDF(fileBytes []byte) bool {
	return len(fileBytes) >= 5 && string(fileBytes[:5]) == "%PDF-"
}

func (textLayerStrategy) Extract(_ context.Context, in Input) (*canonical.CanonicalRecord, error) {
	doc := in.Document

	r := raw{strategy: "text_layer"}
	if date, conf, ok := extractDate(doc.Content); ok {
		r.date = date
		r.dateConfidence = minF(conf+0.1, 0.95)
	}
	if currency, conf, ok := extractCurrency(doc.Content); ok {
		r.currency = currency
		r.currencyConfidence = conf
	}
	if amount, conf, detectedCurrency, ok := extractAmount(doc.Content, r.currency); ok {
		r.amount = amount
		r.hasAmount = true
		r.amountConfidence = minF(conf+0.15, 0.95)
		if r.currency == "" && detectedCurrency != "" {
			r.currency = detectedCurrency
			r.currencyConfidence = 0.75
		}
	}
	if r.currency == "" {
		r.currency = "EUR"
		r.currencyConfidence = 0.5
	}
	if number, conf, ok := extractInvoiceNumber(doc.Content); ok {
		r.invoiceNumber = number
		r.invoiceNumberConfidence = minF(conf+0.1, 0.95)
	}
	if vendor, conf, ok := extractVendor(doc.Content); ok {
		r.vendor = vendor
		r.vendorConfidence = conf
	}

	r.description = generateDescription(r)
	r.descriptionConfidence = 0.4
	if r.vendor != "" {
		r.descriptionConfidence = r.vendorConfidence
	}

	return assemble(doc, "", docBaseURL(doc), r), nil
}
