// Package matching scores candidate links between a canonical extraction
// and a cached ledger transaction along four independent signals, combining
// them into a single ranked result set for the reconciliation orchestrator
// (C10) to act on. Grounded on
// original_source/src/paperless_firefly/matching/engine.py.
package matching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

// Weights are the fixed per-signal contributions to the total score; they
// sum to 1.0.
const (
	weightAmount      = 0.40
	weightDate        = 0.25
	weightDescription = 0.20
	weightVendor      = 0.15

	exactMatchFloor  = 0.99
	outputFloor      = 0.20
	defaultMaxResult = 5
)

// Config tunes the date-tolerance window; every other threshold in this
// package is fixed by spec.
type Config struct {
	DateToleranceDays int // default 7
}

// DefaultConfig returns the documented default tolerance.
func DefaultConfig() Config {
	return Config{DateToleranceDays: 7}
}

// SignalScores is the per-signal breakdown backing a MatchResult, exposed
// so the review UI can show why a candidate scored the way it did.
type SignalScores struct {
	Amount      float64
	Date        float64
	Description float64
	Vendor      float64
}

// MatchResult is one scored (document, ledger-transaction) candidate.
type MatchResult struct {
	FireflyID    int64
	Score        float64
	IsExactMatch bool
	Signals      SignalScores
	Reasons      []string
}

// Engine scores and ranks candidates from the cache against an extraction.
type Engine struct {
	store store.Store
	cfg   Config
}

// New builds an Engine over a state store's cache repository.
func New(s store.Store, cfg Config) *Engine {
	if cfg.DateToleranceDays == 0 {
		cfg.DateToleranceDays = DefaultConfig().DateToleranceDays
	}
	return &Engine{store: s, cfg: cfg}
}

// FindMatches scores every unmatched cache row against record's proposal,
// discards anything below the output floor, and returns up to maxResults
// sorted by descending score. maxResults <= 0 uses the documented default
// of 5.
func (e *Engine) FindMatches(ctx context.Context, record *canonical.CanonicalRecord, maxResults int) ([]MatchResult, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResult
	}

	candidates, err := e.store.Cache().ListUnmatched(ctx)
	if err != nil {
		return nil, fmt.Errorf("matching: list unmatched cache rows: %w", err)
	}

	var results []MatchResult
	for _, c := range candidates {
		result := e.ScoreSingle(record, c)
		if result.Score < outputFloor {
			continue
		}
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// ScoreSingle scores one candidate against record's proposal; it is the
// score-single-candidate preview entry point used by the review UI, and
// the per-candidate scorer FindMatches loops over.
func (e *Engine) ScoreSingle(record *canonical.CanonicalRecord, candidate *store.CacheEntry) MatchResult {
	p := record.Proposal

	signals := SignalScores{
		Amount:      scoreAmount(p.Amount, candidate.Amount),
		Date:        scoreDate(p.Date, candidate.Date, e.cfg.DateToleranceDays),
		Description: scoreDescription(p.Description, candidate.Description),
		Vendor:      scoreVendor(vendorOf(record), candidate.DestinationName, candidate.SourceName),
	}

	total := weightAmount*signals.Amount + weightDate*signals.Date +
		weightDescription*signals.Description + weightVendor*signals.Vendor

	var reasons []string
	if signals.Amount >= 0.95 {
		reasons = append(reasons, "amount_match")
	}
	if signals.Date >= 0.8 {
		reasons = append(reasons, "date_close")
	}
	if signals.Description >= 0.8 {
		reasons = append(reasons, "description_match")
	}
	if signals.Vendor >= 0.6 {
		reasons = append(reasons, "vendor_match")
	}

	exact := isExactMatch(p, candidate)
	if exact {
		total = math.Max(total, exactMatchFloor)
		reasons = append(reasons, "EXACT_MATCH")
	}

	return MatchResult{
		FireflyID:    candidate.FireflyID,
		Score:        total,
		IsExactMatch: exact,
		Signals:      signals,
		Reasons:      reasons,
	}
}

func vendorOf(record *canonical.CanonicalRecord) string {
	if record.Proposal.DestinationAccount != "" {
		return record.Proposal.DestinationAccount
	}
	if record.Classification != nil {
		return record.Classification.Correspondent
	}
	return ""
}

// scoreAmount implements spec §4.4's amount-signal rules.
func scoreAmount(proposed, ledger canonical.Money) float64 {
	if proposed.IsZero() && ledger.IsZero() {
		return 0
	}
	if proposed.Equal(ledger) {
		return 1.0
	}
	if ledger.IsZero() {
		return 0
	}
	relDiff := proposed.RelativeDiff(ledger)
	switch {
	case relDiff <= 0.01:
		return 0.95
	case relDiff <= 0.05:
		return 0.70
	case relDiff <= 0.10:
		return 0.40
	case relDiff <= 0.20:
		return 0.20
	default:
		return 0
	}
}

const dateLayout = "2006-01-02"

// scoreDate implements spec §4.4's date-signal rules: exact day match,
// linear decay within the tolerance window (clamped to >= 0.3), a lower
// band out to 2x the tolerance, a trickle out to 30 days, then zero.
func scoreDate(proposed, ledger string, toleranceDays int) float64 {
	if proposed == "" || ledger == "" {
		return 0
	}
	pt, err1 := time.Parse(dateLayout, proposed)
	lt, err2 := time.Parse(dateLayout, ledger)
	if err1 != nil || err2 != nil {
		return 0
	}

	days := math.Abs(pt.Sub(lt).Hours() / 24)
	switch {
	case days == 0:
		return 1.0
	case days <= float64(toleranceDays):
		decay := 1.0 - (days / float64(toleranceDays))
		return math.Max(decay, 0.3)
	case days <= float64(2*toleranceDays):
		return 0.2
	case days <= 30:
		return 0.1
	default:
		return 0
	}
}

// scoreDescription implements spec §4.4's description-signal rules.
func scoreDescription(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.8
	}
	j := jaccard(na, nb)
	if j > 0.3 {
		return j
	}
	return 0
}

// scoreVendor implements spec §4.4's vendor-signal rules. The ledger side
// prefers destination_name, falling back to source_name when destination
// is empty (e.g. a deposit where the payer populates source instead).
func scoreVendor(proposedVendor, destinationName, sourceName string) float64 {
	ledgerVendor := destinationName
	if ledgerVendor == "" {
		ledgerVendor = sourceName
	}
	na, nb := normalize(proposedVendor), normalize(ledgerVendor)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.85
	}
	if firstToken(na) == firstToken(nb) {
		return 0.6
	}
	return 0
}

// isExactMatch implements spec §4.4's short-circuit: exact amount, same
// calendar day, and an account match between the extracted vendor/source
// and the ledger's source/destination (by normalised equality or
// substring containment).
func isExactMatch(p canonical.Proposal, candidate *store.CacheEntry) bool {
	if !p.Amount.Equal(candidate.Amount) {
		return false
	}
	if p.Date == "" || candidate.Date == "" || p.Date != candidate.Date {
		return false
	}

	vendor := normalize(vendorCandidates(p))
	source := normalize(p.SourceAccount)
	ledgerDest := normalize(candidate.DestinationName)
	ledgerSource := normalize(candidate.SourceName)

	accountMatch := accountsAlign(vendor, ledgerDest) || accountsAlign(vendor, ledgerSource) ||
		accountsAlign(source, ledgerDest) || accountsAlign(source, ledgerSource)
	return accountMatch
}

func vendorCandidates(p canonical.Proposal) string {
	return p.DestinationAccount
}

func accountsAlign(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// jaccard computes the Jaccard similarity between the whitespace-split
// word sets of a and b, both already normalised.
func jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}
