package extractor

import (
	"bytes"
	"context"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

// pdfEmbeddedXMLStrategy covers the common real-world case the content-only
// structuredXMLStrategy misses: a ZUGFeRD/Factur-X invoice where the XML
// lives as a named attachment inside the PDF rather than as Paperless's
// indexed text. Per the package's open question about PDF handling, this
// reads the attachment through pdfcpu's object model instead of
// byte-scanning for stream/endstream markers the way
// original_source/.../einvoice_extractor.py's _extract_xml_from_pdf does.
type pdfEmbeddedXMLStrategy struct{}

// NewPDFEmbeddedXML builds the attachment-aware e-invoice strategy.
func NewPDFEmbeddedXML() Strategy { return pdfEmbeddedXMLStrategy{} }

func (pdfEmbeddedXMLStrategy) Name() string  { return "pdf_embedded_xml" }
func (pdfEmbeddedXMLStrategy) Priority() int { return 90 }

// zugferdFilenames are the conventional attachment names ZUGFeRD/Factur-X
// producers use for the embedded invoice XML.
var zugferdFilenames = []string{
	"zugferd-invoice.xml", "factur-x.xml", "xrechnung.xml", "zugferd-invoice-extended.xml",
}

func (pdfEmbeddedXMLStrategy) CanExtract(in Input) bool {
	if !isPDF(in.FileBytes) {
		return false
	}
	xmlBytes, ok := findZugferdAttachment(in.FileBytes)
	return ok && len(xmlBytes) > 0
}

func (pdfEmbeddedXMLStrategy) Extract(_ context.Context, in Input) (*canonical.CanonicalRecord, error) {
	doc := in.Document

	xmlBytes, ok := findZugferdAttachment(in.FileBytes)
	if !ok {
		return assemble(doc, "", docBaseURL(doc), raw{strategy: "pdf_embedded_xml"}), nil
	}

	r, parsed := parseInvoiceXML(strings.TrimSpace(string(xmlBytes)))
	if !parsed {
		r = raw{strategy: "pdf_embedded_xml"}
	} else {
		r.strategy = "pdf_embedded_xml/" + strings.TrimPrefix(r.strategy, "structured_xml/")
	}
	return assemble(doc, "", docBaseURL(doc), r), nil
}

// findZugferdAttachment lists the PDF's embedded files via pdfcpu and
// returns the bytes of the first one matching a known ZUGFeRD/Factur-X
// filename.
func findZugferdAttachment(fileBytes []byte) ([]byte, bool) {
	attachments, err := api.Attachments(bytes.NewReader(fileBytes), nil)
	if err != nil {
		return nil, false
	}
	for _, a := range attachments {
		name := strings.ToLower(a.FileName)
		matched := false
		for _, candidate := range zugferdFilenames {
			if name == candidate {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if a.Reader == nil {
			continue
		}
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(a.Reader); err != nil {
			continue
		}
		return buf.Bytes(), true
	}
	return nil, false
}
