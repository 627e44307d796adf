package extractor

import (
	"context"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
	"github.com/LeJamon/ledgerbridge/internal/dmsclient"
)

// fallbackStrategy always succeeds, producing a zero-amount record destined
// for manual review. It is the bottom of the priority chain (priority 1):
// every document gets at least one canonical record, even one with no
// extractable content at all.
type fallbackStrategy struct{}

// NewFallback builds the last-resort strategy.
func NewFallback() Strategy { return fallbackStrategy{} }

func (fallbackStrategy) Name() string     { return "fallback" }
func (fallbackStrategy) Priority() int    { return 1 }
func (fallbackStrategy) CanExtract(Input) bool { return true }

func (fallbackStrategy) Extract(_ context.Context, in Input) (*canonical.CanonicalRecord, error) {
	doc := in.Document
	r := raw{
		strategy:              "fallback",
		amount:                canonical.ZeroMoney,
		amountConfidence:      0,
		dateConfidence:        0,
		currencyConfidence:    0,
		vendorConfidence:      0,
		descriptionConfidence: 0.3,
		description:           doc.Title,
	}
	return assemble(doc, "", docBaseURL(doc), r), nil
}

func docBaseURL(doc dmsclient.Document) string {
	// DownloadURL is "<base>/api/documents/<id>/download/"; strip the
	// api-path suffix to recover the base the human-facing URL is built on.
	const suffix = "/api/documents/"
	if idx := indexOf(doc.DownloadURL, suffix); idx >= 0 {
		return doc.DownloadURL[:idx]
	}
	return ""
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
