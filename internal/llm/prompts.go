package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// PromptVersion changes whenever a prompt template's wording changes in a
// way that should invalidate previously cached responses.
const PromptVersion = "v1"

// Kind discriminates the suggestion prompts the service can issue.
type Kind string

const (
	KindCategory Kind = "category"
	KindSplit    Kind = "split"
	KindReview   Kind = "review"
)

// taxonomyVersion hashes the sorted category list so a cached response is
// invalidated the moment the category taxonomy changes underneath it.
func taxonomyVersion(categories []string) string {
	sorted := append([]string(nil), categories...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return hex.EncodeToString(sum[:])[:12]
}

func categoryPrompt(categories []string, vendor, description, amount string) string {
	return "Classify this transaction into one of the following categories: " +
		strings.Join(categories, ", ") +
		".\nVendor: " + vendor + "\nDescription: " + description + "\nAmount: " + amount +
		"\nRespond with JSON: {\"category\": string, \"confidence\": number 0-1, \"reason\": string}"
}

func splitPrompt(lineItems, amount string) string {
	return "Given these line items, decide whether this transaction should be split into multiple " +
		"ledger entries by category.\nLine items: " + lineItems + "\nTotal amount: " + amount +
		"\nRespond with JSON: {\"should_split\": bool, \"splits\": [{\"category\": string, \"amount\": number, \"description\": string}], " +
		"\"confidence\": number 0-1, \"reason\": string}"
}

func reviewPrompt(categories []string, raw string) string {
	return "Review this extracted transaction and suggest corrections for any uncertain field.\n" +
		"Available categories: " + strings.Join(categories, ", ") + "\nExtraction: " + raw +
		"\nRespond with JSON: {\"suggestions\": {field: {\"value\": string, \"confidence\": number, \"reason\": string}}, " +
		"\"overall_confidence\": number, \"analysis_notes\": string}"
}
