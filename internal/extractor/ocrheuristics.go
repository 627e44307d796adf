package extractor

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

// ocrHeuristicsStrategy pattern-matches raw OCR text for dates, amounts,
// currencies, invoice numbers and a likely vendor line. Grounded on
// original_source/src/paperless_firefly/extractors/ocr_extractor.py; it is
// the lowest-confidence strategy but the one that can attempt extraction on
// essentially any document with OCR content.
type ocrHeuristicsStrategy struct{}

// NewOCRHeuristics builds the pattern-matching OCR strategy.
func NewOCRHeuristics() Strategy { return ocrHeuristicsStrategy{} }

func (ocrHeuristicsStrategy) Name() string  { return "ocr_heuristic" }
func (ocrHeuristicsStrategy) Priority() int { return 10 }

func (ocrHeuristicsStrategy) CanExtract(in Input) bool {
	return strings.TrimSpace(in.Document.Content) != ""
}

type datePattern struct {
	re      *regexp.Regexp
	format  string // Go reference-time layout; empty for german_month
	kind    string
}

var datePatterns = []datePattern{
	{regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`), "2006-01-02", "iso"},
	{regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`), "02.01.2006", "german_dot"},
	{regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{2})\b`), "02.01.06", "german_dot_short"},
	{regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`), "02/01/2006", "slash"},
	{regexp.MustCompile(`(?i)\b(\d{1,2})\.\s*(Januar|Februar|März|April|Mai|Juni|Juli|August|September|Oktober|November|Dezember)\s*(\d{4})\b`), "", "german_month"},
}

var germanMonths = map[string]int{
	"januar": 1, "februar": 2, "märz": 3, "april": 4, "mai": 5, "juni": 6,
	"juli": 7, "august": 8, "september": 9, "oktober": 10, "november": 11, "dezember": 12,
}

type amountPattern struct {
	re     *regexp.Regexp
	format string // "german" or "english"
	kind   string
}

var amountPatterns = []amountPattern{
	{regexp.MustCompile(`(?:EUR|€)\s*(\d{1,3}(?:\.\d{3})*,\d{2})\b`), "german", "eur_prefix"},
	{regexp.MustCompile(`\b(\d{1,3}(?:\.\d{3})*,\d{2})\s*(?:EUR|€)`), "german", "eur_suffix"},
	{regexp.MustCompile(`(?:EUR|€)\s*(\d+,\d{2})\b`), "german", "eur_prefix_simple"},
	{regexp.MustCompile(`\b(\d+,\d{2})\s*(?:EUR|€)`), "german", "eur_suffix_simple"},
	{regexp.MustCompile(`(?:USD|\$)\s*(\d{1,3}(?:,\d{3})*\.\d{2})\b`), "english", "usd_prefix"},
	{regexp.MustCompile(`\b(\d{1,3}(?:,\d{3})*\.\d{2})\s*(?:USD|\$)`), "english", "usd_suffix"},
	{regexp.MustCompile(`\b(\d{1,3}(?:\.\d{3})*,\d{2})\b`), "german", "generic_german"},
	{regexp.MustCompile(`\b(\d+,\d{2})\b`), "german", "generic_german_simple"},
	{regexp.MustCompile(`\b(\d{1,3}(?:,\d{3})*\.\d{2})\b`), "english", "generic_english"},
}

var currencyPatterns = []struct {
	re       *regexp.Regexp
	currency string
}{
	{regexp.MustCompile(`\bEUR\b`), "EUR"},
	{regexp.MustCompile(`€`), "EUR"},
	{regexp.MustCompile(`\bUSD\b`), "USD"},
	{regexp.MustCompile(`\$`), "USD"},
	{regexp.MustCompile(`\bGBP\b`), "GBP"},
	{regexp.MustCompile(`£`), "GBP"},
	{regexp.MustCompile(`\bCHF\b`), "CHF"},
}

var invoicePatterns = []struct {
	re         *regexp.Regexp
	confidence float64
}{
	{regexp.MustCompile(`(?i)\b(?:RE|R|INV|INVOICE|Rechnung|Rechnungsnr\.?|Rechnungsnummer|Beleg-?Nr\.?)[:\s#-]*([A-Z0-9]+-?\d{4,}(?:-\d+)?)\b`), 0.9},
	{regexp.MustCompile(`(?i)\b(?:Belegnummer|Beleg-Nr\.?|Nr\.?)[:\s#]*([A-Z0-9/-]{5,20})\b`), 0.7},
}

var totalKeywords = []struct {
	re    *regexp.Regexp
	boost float64
}{
	{regexp.MustCompile(`(?i)(?:Gesamt|Total|Summe|Endbetrag|Gesamtbetrag|Gesamtsumme|Brutto|TOTAL|SUMME)`), 1.0},
	{regexp.MustCompile(`(?i)(?:zu\s+zahlen|Zahlbetrag|Rechnungsbetrag)`), 0.9},
	{regexp.MustCompile(`(?i)(?:inkl\.\s*MwSt|inkl\.\s*USt|incl\.\s*VAT)`), 0.8},
}

var companySuffixes = []string{"GmbH", "AG", "KG", "e.K.", "OHG", "Ltd", "Inc", "GesmbH"}
var addressLineRe = regexp.MustCompile(`^[\d\s,./\-]+$`)

func (ocrHeuristicsStrategy) Extract(_ context.Context, in Input) (*canonical.CanonicalRecord, error) {
	doc := in.Document
	content := strings.TrimSpace(doc.Content)

	r := raw{strategy: "ocr_heuristic"}

	if date, conf, ok := extractDate(content); ok {
		r.date = date
		r.dateConfidence = conf
	}
	if currency, conf, ok := extractCurrency(content); ok {
		r.currency = currency
		r.currencyConfidence = conf
	}
	if amount, conf, detectedCurrency, ok := extractAmount(content, r.currency); ok {
		r.amount = amount
		r.hasAmount = true
		r.amountConfidence = conf
		if r.currency == "" && detectedCurrency != "" {
			r.currency = detectedCurrency
			r.currencyConfidence = 0.7
		}
	}
	if r.currency == "" {
		r.currency = "EUR"
		r.currencyConfidence = 0.5
	}
	if number, conf, ok := extractInvoiceNumber(content); ok {
		r.invoiceNumber = number
		r.invoiceNumberConfidence = conf
	}
	if vendor, conf, ok := extractVendor(content); ok {
		r.vendor = vendor
		r.vendorConfidence = conf
	}

	r.description = generateDescription(r)
	r.descriptionConfidence = 0.3
	if r.vendor != "" {
		r.descriptionConfidence = r.vendorConfidence
	}
	if r.date != "" && r.dateConfidence < r.descriptionConfidence {
		r.descriptionConfidence = r.dateConfidence
	}

	return assemble(doc, "", docBaseURL(doc), r), nil
}

type dateCandidate struct {
	date       string
	confidence float64
	position   int
}

func extractDate(content string) (string, float64, bool) {
	var candidates []dateCandidate
	lower := strings.ToLower(content)

	for _, p := range datePatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(content, -1) {
			match := content[loc[0]:loc[1]]
			parsed, ok := parseDateMatch(p, match, loc, content)
			if !ok {
				continue
			}
			confidence := 0.6
			start := loc[0] - 50
			if start < 0 {
				start = 0
			}
			context := lower[start:loc[0]]
			if strings.Contains(context, "datum") || strings.Contains(context, "date") ||
				strings.Contains(context, "rechnungsdatum") || strings.Contains(context, "belegdatum") {
				confidence = minF(confidence+0.2, 0.85)
			}
			if p.kind == "iso" {
				confidence = minF(confidence+0.1, 0.9)
			}
			candidates = append(candidates, dateCandidate{date: parsed, confidence: confidence, position: loc[0]})
		}
	}
	if len(candidates) == 0 {
		return "", 0, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].confidence != candidates[j].confidence {
			return candidates[i].confidence > candidates[j].confidence
		}
		return candidates[i].position < candidates[j].position
	})
	return candidates[0].date, candidates[0].confidence, true
}

func parseDateMatch(p datePattern, match string, loc []int, content string) (string, bool) {
	if p.kind == "german_month" {
		groups := p.re.FindStringSubmatch(match)
		if len(groups) != 4 {
			return "", false
		}
		day, err := strconv.Atoi(groups[1])
		if err != nil {
			return "", false
		}
		month, ok := germanMonths[strings.ToLower(groups[2])]
		if !ok {
			return "", false
		}
		year, err := strconv.Atoi(groups[3])
		if err != nil {
			return "", false
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
	}
	t, err := time.Parse(p.format, match)
	if err != nil {
		return "", false
	}
	if p.kind == "german_dot_short" && t.Year() > time.Now().Year()+10 {
		t = t.AddDate(-100, 0, 0)
	}
	return t.Format("2006-01-02"), true
}

func extractCurrency(content string) (string, float64, bool) {
	for _, p := range currencyPatterns {
		if p.re.MatchString(content) {
			return p.currency, 0.8, true
		}
	}
	return "", 0, false
}

type amountCandidate struct {
	amount     canonical.Money
	confidence float64
	position   int
	format     string
	currency   string
}

func extractAmount(content string, currency string) (canonical.Money, float64, string, bool) {
	expectedFormat := ""
	if currency == "EUR" || currency == "CHF" {
		expectedFormat = "german"
	}

	var candidates []amountCandidate
	lower := strings.ToLower(content)

	for _, p := range amountPatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(content, -1) {
			var amountStr string
			if loc[2] >= 0 {
				amountStr = content[loc[2]:loc[3]]
			} else {
				amountStr = content[loc[0]:loc[1]]
			}

			var money canonical.Money
			var err error
			if p.format == "german" {
				money, err = parseGermanAmount(amountStr)
			} else {
				money, err = parseEnglishAmount(amountStr)
			}
			if err != nil {
				continue
			}
			if !money.IsPositive() || money.Cents() > 100_000_000 {
				continue
			}

			confidence := 0.4
			ctxStart := loc[0] - 100
			if ctxStart < 0 {
				ctxStart = 0
			}
			ctxEnd := loc[1] + 50
			if ctxEnd > len(content) {
				ctxEnd = len(content)
			}
			context := lower[ctxStart:ctxEnd]
			for _, kw := range totalKeywords {
				if kw.re.MatchString(context) {
					confidence = minF(confidence+kw.boost*0.3, 0.85)
					break
				}
			}
			if expectedFormat != "" && p.format == expectedFormat {
				confidence = minF(confidence+0.1, 0.9)
			}
			if strings.Contains(p.kind, "prefix") || strings.Contains(p.kind, "suffix") {
				confidence = minF(confidence+0.1, 0.9)
			}

			detectedCurrency := ""
			if strings.Contains(strings.ToLower(p.kind), "eur") {
				detectedCurrency = "EUR"
			} else if strings.Contains(strings.ToLower(p.kind), "usd") {
				detectedCurrency = "USD"
			}

			candidates = append(candidates, amountCandidate{
				amount: money, confidence: confidence, position: loc[0],
				format: p.format, currency: detectedCurrency,
			})
		}
	}
	if len(candidates) == 0 {
		return canonical.ZeroMoney, 0, "", false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].confidence != candidates[j].confidence {
			return candidates[i].confidence > candidates[j].confidence
		}
		return candidates[i].amount.Cmp(candidates[j].amount) > 0
	})
	best := candidates[0]
	return best.amount, best.confidence, best.currency, true
}

func parseGermanAmount(s string) (canonical.Money, error) {
	cleaned := strings.ReplaceAll(s, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	return canonical.ParseMoney(cleaned)
}

func parseEnglishAmount(s string) (canonical.Money, error) {
	cleaned := strings.ReplaceAll(s, ",", "")
	return canonical.ParseMoney(cleaned)
}

func extractInvoiceNumber(content string) (string, float64, bool) {
	for _, p := range invoicePatterns {
		m := p.re.FindStringSubmatch(content)
		if len(m) >= 2 {
			return m[1], p.confidence * 0.8, true
		}
	}
	return "", 0, false
}

func extractVendor(content string) (string, float64, bool) {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return "", 0, false
	}

	limit := 5
	if limit > len(lines) {
		limit = len(lines)
	}
	for i, line := range lines[:limit] {
		if len(line) < 3 {
			continue
		}
		if addressLineRe.MatchString(line) {
			continue
		}
		hasSuffix := false
		for _, suffix := range companySuffixes {
			if strings.Contains(line, suffix) {
				hasSuffix = true
				break
			}
		}
		if i == 0 && len(line) > 5 {
			conf := 0.5
			if hasSuffix {
				conf = 0.6
			}
			return truncate(line, 100), conf, true
		}
		if hasSuffix {
			return truncate(line, 100), 0.7, true
		}
	}
	return truncate(lines[0], 100), 0.3, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func generateDescription(r raw) string {
	var parts []string
	if r.vendor != "" {
		parts = append(parts, r.vendor)
	}
	if r.date != "" {
		parts = append(parts, r.date)
	}
	if len(parts) == 0 {
		return "Unknown transaction"
	}
	return strings.Join(parts, " - ")
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
