// Package extractor turns a downloaded document into a canonical.CanonicalRecord
// by running a priority-ordered chain of strategies, stopping at the first one
// confident enough about the amount to trust. Grounded on
// original_source/src/paperless_firefly/extractors/{base,router}.py: the
// router there sorts by -priority and returns the first result whose
// amount_confidence exceeds 0.3, falling through to weaker strategies only
// when stronger ones can't make sense of the document.
package extractor

import (
	"context"
	"sort"
	"strings"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
	"github.com/LeJamon/ledgerbridge/internal/dmsclient"
	"github.com/LeJamon/ledgerbridge/internal/logging"
)

// stopConfidence is the amount-confidence threshold above which the router
// accepts a strategy's result instead of trying the next one.
const stopConfidence = 0.3

// Input bundles everything a strategy needs: the DMS metadata/OCR text plus
// the raw downloaded bytes (only structured-XML strategies look at the
// latter; OCR and fallback strategies only need Document.Content).
type Input struct {
	Document  dmsclient.Document
	FileBytes []byte
}

// Strategy is one way of turning a document into a canonical record.
type Strategy interface {
	Name() string
	Priority() int
	CanExtract(in Input) bool
	Extract(ctx context.Context, in Input) (*canonical.CanonicalRecord, error)
}

// Router holds the registered strategies sorted by descending priority and
// runs them in order until one succeeds convincingly.
type Router struct {
	strategies []Strategy
	log        logging.Logger
}

// NewRouter builds a Router over the given strategies, sorted highest
// priority first. Ties keep their relative input order (stable sort).
func NewRouter(log logging.Logger, strategies ...Strategy) *Router {
	if log == nil {
		log = logging.NoOp()
	}
	sorted := append([]Strategy(nil), strategies...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Router{strategies: sorted, log: log.With("extractor")}
}

// DefaultStrategies returns the four built-in strategies plus the
// PDF-embedded-XML variant, in the arrangement described by spec.md's
// extractor section.
func DefaultStrategies() []Strategy {
	return []Strategy{
		NewStructuredXML(),
		NewPDFEmbeddedXML(),
		NewTextLayer(),
		NewOCRHeuristics(),
		NewFallback(),
	}
}

// Route tries each strategy in priority order, returning the first result
// whose proposal amount confidence clears stopConfidence. If none clears the
// threshold, it returns the best (highest amount-confidence) result seen,
// since some result beats none for a document that must still go to manual
// review. Strategies whose CanExtract returns false are skipped entirely;
// a strategy that errors is logged and skipped rather than aborting the run.
func (r *Router) Route(ctx context.Context, in Input) (*canonical.CanonicalRecord, error) {
	var best *canonical.CanonicalRecord
	var bestConfidence float64

	for _, s := range r.strategies {
		if !s.CanExtract(in) {
			continue
		}
		record, err := s.Extract(ctx, in)
		if err != nil {
			r.log.Warn("strategy failed", "strategy", s.Name(), "document_id", in.Document.ID, "error", err)
			continue
		}
		if record == nil {
			continue
		}
		confidence := record.FieldConfidenceOf("amount")
		if best == nil || confidence > bestConfidence {
			best = record
			bestConfidence = confidence
		}
		if confidence > stopConfidence {
			return record, nil
		}
	}
	return best, nil
}

func contentHas(content string, markers ...string) bool {
	lower := strings.ToLower(content)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
