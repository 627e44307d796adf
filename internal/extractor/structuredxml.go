package extractor

import (
	"context"
	"encoding/xml"
	"strings"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

// structuredXMLStrategy parses e-invoice XML (ZUGFeRD/Factur-X Cross
// Industry Invoice, UBL 2.1, XRechnung) directly out of the document's OCR
// content when Paperless indexed the raw XML rather than a PDF. Grounded on
// original_source/src/paperless_firefly/extractors/einvoice_extractor.py's
// _parse_cii/_parse_ubl methods; the PDF-embedded case is handled by
// NewPDFEmbeddedXML instead, per the package's split of "content already is
// XML" from "XML is an attachment inside a PDF".
type structuredXMLStrategy struct{}

// NewStructuredXML builds the highest-priority strategy.
func NewStructuredXML() Strategy { return structuredXMLStrategy{} }

func (structuredXMLStrategy) Name() string  { return "structured_xml" }
func (structuredXMLStrategy) Priority() int { return 100 }

var xmlIndicators = []string{
	"crossindustryinvoice", "urn:un:unece:uncefact", "ubl:invoice",
	"creditnote", "<invoice", "factur-x", "zugferd", "xrechnung",
}

func (structuredXMLStrategy) CanExtract(in Input) bool {
	return contentHas(in.Document.Content, xmlIndicators...)
}

func (structuredXMLStrategy) Extract(_ context.Context, in Input) (*canonical.CanonicalRecord, error) {
	doc := in.Document
	content := strings.TrimSpace(doc.Content)

	r, ok := parseInvoiceXML(content)
	if !ok {
		r = raw{strategy: "structured_xml"}
	}
	return assemble(doc, "", docBaseURL(doc), r), nil
}

// cii mirrors the slice of Cross Industry Invoice fields the extractor
// reads; ram/udt prefixed elements per the ZUGFeRD/Factur-X schema.
type ciiDocument struct {
	XMLName xml.Name `xml:"CrossIndustryInvoice"`
	Header  struct {
		ID        string `xml:"ID"`
		IssueDate struct {
			DateTimeString string `xml:"DateTimeString"`
		} `xml:"IssueDateTime"`
	} `xml:"ExchangedDocument"`
	Transaction struct {
		Trade struct {
			Seller struct {
				Name string `xml:"Name"`
			} `xml:"SellerTradeParty"`
		} `xml:"ApplicableHeaderTradeAgreement"`
		Settlement struct {
			Currency string `xml:"InvoiceCurrencyCode"`
			Summary  struct {
				GrandTotal string `xml:"GrandTotalAmount"`
				TaxTotal   string `xml:"TaxTotalAmount"`
			} `xml:"SpecifiedTradeSettlementHeaderMonetarySummation"`
		} `xml:"ApplicableHeaderTradeSettlement"`
	} `xml:"SupplyChainTradeTransaction"`
}

type ublDocument struct {
	XMLName   xml.Name `xml:"Invoice"`
	ID        string   `xml:"ID"`
	IssueDate string   `xml:"IssueDate"`
	Currency  string   `xml:"DocumentCurrencyCode"`
	Supplier  struct {
		Party struct {
			Name string `xml:"PartyName>Name"`
		} `xml:"Party"`
	} `xml:"AccountingSupplierParty"`
	LegalTotal struct {
		PayableAmount string `xml:"PayableAmount"`
	} `xml:"LegalMonetaryTotal"`
}

// parseInvoiceXML tries the CII schema first, then UBL, returning ok=false
// if neither parses into anything useful.
func parseInvoiceXML(content string) (raw, bool) {
	var cii ciiDocument
	if err := xml.Unmarshal([]byte(content), &cii); err == nil && cii.Transaction.Settlement.Summary.GrandTotal != "" {
		return ciiToRaw(cii), true
	}

	var ubl ublDocument
	if err := xml.Unmarshal([]byte(content), &ubl); err == nil && (ubl.LegalTotal.PayableAmount != "" || ubl.ID != "") {
		return ublToRaw(ubl), true
	}
	return raw{}, false
}

func ciiToRaw(d ciiDocument) raw {
	r := raw{strategy: "structured_xml/cii"}
	if d.Header.ID != "" {
		r.invoiceNumber = d.Header.ID
		r.invoiceNumberConfidence = 0.95
	}
	if date, ok := parseStructuredDate(d.Header.IssueDate.DateTimeString); ok {
		r.date = date
		r.dateConfidence = 0.95
	}
	if name := strings.TrimSpace(d.Transaction.Trade.Seller.Name); name != "" {
		r.vendor = name
		r.vendorConfidence = 0.95
	}
	if cur := strings.ToUpper(strings.TrimSpace(d.Transaction.Settlement.Currency)); cur != "" {
		r.currency = cur
		r.currencyConfidence = 0.98
	}
	if total := d.Transaction.Settlement.Summary.GrandTotal; total != "" {
		if m, err := canonical.ParseMoney(total); err == nil {
			r.amount = m
			r.hasAmount = true
			r.amountConfidence = 0.98
		}
	}
	if tax := d.Transaction.Settlement.Summary.TaxTotal; tax != "" {
		if m, err := canonical.ParseMoney(tax); err == nil {
			r.taxAmount = m
			r.hasTax = true
		}
	}
	r.description = vendorOrInvoiceDescription(r)
	r.descriptionConfidence = 0.8
	return r
}

func ublToRaw(d ublDocument) raw {
	r := raw{strategy: "structured_xml/ubl"}
	if d.ID != "" {
		r.invoiceNumber = d.ID
		r.invoiceNumberConfidence = 0.9
	}
	if date, ok := parseStructuredDate(d.IssueDate); ok {
		r.date = date
		r.dateConfidence = 0.9
	}
	if name := strings.TrimSpace(d.Supplier.Party.Name); name != "" {
		r.vendor = name
		r.vendorConfidence = 0.9
	}
	if cur := strings.ToUpper(strings.TrimSpace(d.Currency)); cur != "" {
		r.currency = cur
		r.currencyConfidence = 0.95
	}
	if total := d.LegalTotal.PayableAmount; total != "" {
		if m, err := canonical.ParseMoney(total); err == nil {
			r.amount = m
			r.hasAmount = true
			r.amountConfidence = 0.95
		}
	}
	r.description = vendorOrInvoiceDescription(r)
	r.descriptionConfidence = 0.75
	return r
}

func vendorOrInvoiceDescription(r raw) string {
	if r.vendor != "" {
		return r.vendor
	}
	if r.invoiceNumber != "" {
		return "Invoice " + r.invoiceNumber
	}
	return ""
}

// structuredDateFormats mirrors _safe_date's format list: XML-native
// YYYYMMDD first, then the usual human-readable variants.
var structuredDateFormats = []string{"20060102", "2006-01-02", "02.01.2006", "02/01/2006"}

func parseStructuredDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	for _, layout := range structuredDateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
