// Package llm wraps a local or remote Ollama endpoint to suggest
// categories, itemized splits, and whole-record review corrections, with a
// calibration gate before any suggestion is auto-applied. Grounded on
// original_source/src/paperless_firefly/spark_ai/service.py, re-expressed
// with a bounded resty client and golang.org/x/sync/semaphore in place of
// the original's thread semaphore. A hashicorp/golang-lru cache is
// allocated for taxonomy data, but no lookup reads or writes it.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/semaphore"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/httpclient"
	"github.com/LeJamon/ledgerbridge/internal/logging"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

// Config configures the LLM service. Zero-value Config is disabled.
type Config struct {
	Enabled         bool
	OllamaURL       string
	AuthToken       string // set for remote Ollama endpoints
	ModelFast       string
	ModelFallback   string
	MaxConcurrent   int64
	CalibrationN    int64   // number of suggestions before auto-apply unlocks
	GreenThreshold  float64 // confidence needed to auto-apply post-calibration
	RequestTimeout  time.Duration
	CacheTTL        time.Duration
}

// DefaultConfig matches spec.md's documented defaults: LLM off until
// explicitly configured, a 50-suggestion calibration window, and a 0.90
// auto-apply threshold (the 51st suggestion becomes auto-apply eligible;
// the 50th is not).
func DefaultConfig() Config {
	return Config{
		ModelFast:      "llama3.1:8b",
		ModelFallback:  "llama3.1:70b",
		MaxConcurrent:  2,
		CalibrationN:   50,
		GreenThreshold: 0.90,
		RequestTimeout: 30 * time.Second,
		CacheTTL:       30 * 24 * time.Hour,
	}
}

// CategorySuggestion is the result of a category classification prompt.
type CategorySuggestion struct {
	Category   string
	Confidence float64
	Reason     string
	Model      string
	FromCache  bool
}

// SplitCandidate is one proposed split within a SplitSuggestion.
type SplitCandidate struct {
	Category    string
	Amount      float64
	Description string
}

// SplitSuggestion is the result of an itemized-split prompt.
type SplitSuggestion struct {
	ShouldSplit bool
	Splits      []SplitCandidate
	Confidence  float64
	Reason      string
	Model       string
	FromCache   bool
}

// FieldSuggestion is one field's suggested correction within a review.
type FieldSuggestion struct {
	Value      string
	Confidence float64
	Reason     string
}

// ReviewSuggestion is the result of a whole-record review prompt.
type ReviewSuggestion struct {
	Suggestions       map[string]FieldSuggestion
	OverallConfidence float64
	AnalysisNotes     string
	Model             string
	FromCache         bool
}

// Service is the LLM-assisted suggestion surface consulted by the review
// workflow (C6) once its own confidence scoring leaves a field uncertain.
type Service struct {
	cfg   Config
	store store.Store
	log   logging.Logger
	http  *resty.Client
	sem   *semaphore.Weighted

	categoriesMu sync.RWMutex
	categories   []string
	taxonomyVer  string

	taxonomyCache *lru.Cache[string, string]

	activeMu sync.Mutex
	active   int64
}

// New builds a Service. A disabled (cfg.Enabled == false) service answers
// every Suggest call with apperrors.ErrLLMDisabled without making any
// network call, matching the original's is_enabled short-circuit.
func New(cfg Config, s store.Store, log logging.Logger) *Service {
	if log == nil {
		log = logging.NoOp()
	}
	taxCache, _ := lru.New[string, string](8)
	var httpClient *resty.Client
	if cfg.Enabled {
		httpClient = httpclient.New(httpclient.Options{BaseURL: cfg.OllamaURL, Timeout: cfg.RequestTimeout, Logger: log})
		if cfg.AuthToken != "" {
			httpClient.SetHeader("Authorization", "Bearer "+cfg.AuthToken)
		}
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		cfg:           cfg,
		store:         s,
		log:           log.With("llm"),
		http:          httpClient,
		sem:           semaphore.NewWeighted(maxConcurrent),
		taxonomyCache: taxCache,
	}
}

// IsEnabled reports whether the service will attempt any suggestion.
func (s *Service) IsEnabled() bool { return s.cfg.Enabled }

// IsRemote reports whether the configured Ollama endpoint is non-loopback.
func (s *Service) IsRemote() bool {
	return s.cfg.Enabled && !strings.Contains(s.cfg.OllamaURL, "localhost") && !strings.Contains(s.cfg.OllamaURL, "127.0.0.1")
}

// ActiveRequests returns the number of in-flight LLM calls.
func (s *Service) ActiveRequests() int64 {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return s.active
}

// SetCategories refreshes the known category taxonomy, invalidating the
// cached taxonomy version (and therefore every cache key derived from it).
func (s *Service) SetCategories(categories []string) {
	s.categoriesMu.Lock()
	defer s.categoriesMu.Unlock()
	s.categories = append([]string(nil), categories...)
	s.taxonomyVer = taxonomyVersion(s.categories)
}

func (s *Service) snapshotCategories() ([]string, string) {
	s.categoriesMu.RLock()
	defer s.categoriesMu.RUnlock()
	return s.categories, s.taxonomyVer
}

// IsCalibrating reports whether fewer than cfg.CalibrationN suggestions
// have been recorded so far; during calibration, suggestions are surfaced
// but never auto-applied.
func (s *Service) IsCalibrating(ctx context.Context) bool {
	if s.cfg.CalibrationN <= 0 {
		return false
	}
	stats, err := s.store.LLMFeedback().Stats(ctx)
	if err != nil {
		return true
	}
	return stats.TotalCount < s.cfg.CalibrationN
}

// ShouldAutoApply gates auto-application of a suggestion: the service must
// be enabled, calibration must be complete, and confidence must clear the
// green threshold.
func (s *Service) ShouldAutoApply(ctx context.Context, confidence float64) bool {
	if !s.cfg.Enabled {
		return false
	}
	if s.IsCalibrating(ctx) {
		return false
	}
	return confidence >= s.cfg.GreenThreshold
}

// CheckOptOut reports whether a document's extraction opted out of LLM
// suggestions, per the llm_opt_out column.
func (s *Service) CheckOptOut(ctx context.Context, documentID int64) (bool, error) {
	ex, err := s.store.Extractions().GetByDocumentID(ctx, documentID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return ex.LLMOptOut, nil
}

func (s *Service) buildCacheKey(prefix string, parts ...string) string {
	_, taxVer := s.snapshotCategories()
	components := append([]string{prefix, PromptVersion, taxVer}, parts...)
	nonEmpty := make([]string, 0, len(components))
	for _, c := range components {
		if c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(nonEmpty, "|")))
	return hex.EncodeToString(sum[:])
}

// SuggestCategory asks the LLM (or the cache) which category best fits a
// transaction, short-circuiting on the opt-out and disabled gates first.
func (s *Service) SuggestCategory(ctx context.Context, documentID int64, vendor, description, amount string) (*CategorySuggestion, error) {
	if !s.cfg.Enabled {
		return nil, apperrors.ErrLLMDisabled
	}
	if optedOut, err := s.CheckOptOut(ctx, documentID); err != nil {
		return nil, err
	} else if optedOut {
		return nil, apperrors.ErrLLMOptedOut
	}

	cacheKey := s.buildCacheKey(string(KindCategory), vendor, description, amount)
	if cached, ok, err := s.store.LLMCache().Get(ctx, cacheKey, time.Now().UTC()); err == nil && ok {
		var out CategorySuggestion
		if jsonErr := json.Unmarshal([]byte(cached.ResponseText), &out); jsonErr == nil {
			out.FromCache = true
			return &out, nil
		}
	}

	categories, _ := s.snapshotCategories()
	prompt := categoryPrompt(categories, vendor, description, amount)

	raw, model, err := s.callWithFallback(ctx, prompt)
	if err != nil {
		return nil, err
	}

	parsed, err := parseJSONResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("llm: parse category response: %w", err)
	}

	out := CategorySuggestion{
		Category:   stringField(parsed, "category"),
		Confidence: floatField(parsed, "confidence"),
		Reason:     stringField(parsed, "reason"),
		Model:      model,
	}
	s.cacheResponse(ctx, cacheKey, out)
	return &out, nil
}

// SuggestSplits asks the LLM whether a transaction's line items warrant
// splitting into multiple ledger entries.
func (s *Service) SuggestSplits(ctx context.Context, documentID int64, lineItemsJSON, amount string) (*SplitSuggestion, error) {
	if !s.cfg.Enabled {
		return nil, apperrors.ErrLLMDisabled
	}
	if optedOut, err := s.CheckOptOut(ctx, documentID); err != nil {
		return nil, err
	} else if optedOut {
		return nil, apperrors.ErrLLMOptedOut
	}

	cacheKey := s.buildCacheKey(string(KindSplit), lineItemsJSON, amount)
	if cached, ok, err := s.store.LLMCache().Get(ctx, cacheKey, time.Now().UTC()); err == nil && ok {
		var out SplitSuggestion
		if jsonErr := json.Unmarshal([]byte(cached.ResponseText), &out); jsonErr == nil {
			out.FromCache = true
			return &out, nil
		}
	}

	prompt := splitPrompt(lineItemsJSON, amount)
	raw, model, err := s.callWithFallback(ctx, prompt)
	if err != nil {
		return nil, err
	}

	parsed, err := parseJSONResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("llm: parse split response: %w", err)
	}

	out := SplitSuggestion{
		ShouldSplit: boolField(parsed, "should_split"),
		Confidence:  floatField(parsed, "confidence"),
		Reason:      stringField(parsed, "reason"),
		Model:       model,
	}
	if rawSplits, ok := parsed["splits"].([]any); ok {
		for _, rs := range rawSplits {
			m, ok := rs.(map[string]any)
			if !ok {
				continue
			}
			out.Splits = append(out.Splits, SplitCandidate{
				Category:    stringField(m, "category"),
				Amount:      floatField(m, "amount"),
				Description: stringField(m, "description"),
			})
		}
	}
	s.cacheResponse(ctx, cacheKey, out)
	return &out, nil
}

// SuggestReview asks the LLM to review a whole extraction for uncertain
// fields, used by the review workflow when confidence scoring alone lands
// a record in REVIEW.
func (s *Service) SuggestReview(ctx context.Context, documentID int64, extractionJSON string) (*ReviewSuggestion, error) {
	if !s.cfg.Enabled {
		return nil, apperrors.ErrLLMDisabled
	}
	if optedOut, err := s.CheckOptOut(ctx, documentID); err != nil {
		return nil, err
	} else if optedOut {
		return nil, apperrors.ErrLLMOptedOut
	}

	contentHash := sha256.Sum256([]byte(extractionJSON))
	cacheKey := fmt.Sprintf("review:%s", hex.EncodeToString(contentHash[:]))

	if cached, ok, err := s.store.LLMCache().Get(ctx, cacheKey, time.Now().UTC()); err == nil && ok {
		var out ReviewSuggestion
		if jsonErr := json.Unmarshal([]byte(cached.ResponseText), &out); jsonErr == nil {
			out.FromCache = true
			return &out, nil
		}
	}

	categories, _ := s.snapshotCategories()
	prompt := reviewPrompt(categories, extractionJSON)
	raw, model, err := s.callWithFallback(ctx, prompt)
	if err != nil {
		return nil, err
	}

	parsed, err := parseJSONResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("llm: parse review response: %w", err)
	}

	out := ReviewSuggestion{
		Suggestions:       map[string]FieldSuggestion{},
		OverallConfidence: floatField(parsed, "overall_confidence"),
		AnalysisNotes:     stringField(parsed, "analysis_notes"),
		Model:             model,
	}
	if raw, ok := parsed["suggestions"].(map[string]any); ok {
		for field, v := range raw {
			m, ok := v.(map[string]any)
			if !ok {
				continue
			}
			out.Suggestions[field] = FieldSuggestion{
				Value:      stringField(m, "value"),
				Confidence: floatField(m, "confidence"),
				Reason:     stringField(m, "reason"),
			}
		}
	}
	s.cacheResponse(ctx, cacheKey, out)
	return &out, nil
}

func (s *Service) cacheResponse(ctx context.Context, cacheKey string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = s.store.LLMCache().Set(ctx, &store.LLMCacheEntry{
		CacheKey:      cacheKey,
		ResponseText:  string(data),
		PromptVersion: PromptVersion,
		ExpiresAt:     time.Now().UTC().Add(s.cfg.CacheTTL),
	})
}

// callWithFallback tries ModelFast first, then ModelFallback once on any
// transport or parse-shaped failure, under the concurrency semaphore.
func (s *Service) callWithFallback(ctx context.Context, prompt string) (string, string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", "", fmt.Errorf("llm: acquire concurrency slot: %w", err)
	}
	defer s.sem.Release(1)

	s.activeMu.Lock()
	s.active++
	s.activeMu.Unlock()
	defer func() {
		s.activeMu.Lock()
		s.active--
		s.activeMu.Unlock()
	}()

	raw, err := s.callOllama(ctx, s.cfg.ModelFast, prompt)
	if err == nil {
		if _, err = parseJSONResponse(raw); err == nil {
			return raw, s.cfg.ModelFast, nil
		}
	}
	s.log.Warn("fast model failed, retrying with fallback", "model", s.cfg.ModelFast, "error", err.Error())

	raw, err = s.callOllama(ctx, s.cfg.ModelFallback, prompt)
	if err != nil {
		return "", "", fmt.Errorf("llm: both models failed: %w", err)
	}
	return raw, s.cfg.ModelFallback, nil
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// callOllama never logs the prompt or response content (privacy
// constraint carried from the original): only the model name and outcome.
func (s *Service) callOllama(ctx context.Context, model, prompt string) (string, error) {
	var result ollamaGenerateResponse
	resp, err := httpclient.Do(ctx, 1, func() (*resty.Response, error) {
		return s.http.R().SetContext(ctx).
			SetBody(ollamaGenerateRequest{Model: model, Prompt: prompt, Stream: false}).
			SetResult(&result).
			Post("/api/generate")
	})
	if err != nil {
		return "", apperrors.Wrap(err, "llm.callOllama")
	}
	if resp.IsError() {
		return "", &apperrors.RemoteAPIError{Status: resp.StatusCode(), Message: resp.Status()}
	}
	return result.Response, nil
}

var (
	jsonArrayPattern    = regexp.MustCompile(`(?s)\[.*\]`)
	jsonObjectPattern   = regexp.MustCompile(`(?s)\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
	controlCharsPattern = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyPattern   = regexp.MustCompile(`(\{|,)\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
)

// parseJSONResponse implements the lenient recovery ladder: fence-strip,
// direct parse, array/object extraction, then a cleanup pass for control
// characters, trailing commas, and unquoted keys before a final retry.
func parseJSONResponse(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("llm: empty response")
	}

	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var direct map[string]any
	if err := json.Unmarshal([]byte(content), &direct); err == nil {
		return direct, nil
	}

	if strings.Contains(content, "[") {
		if m := jsonArrayPattern.FindString(content); m != "" {
			var arr []any
			if err := json.Unmarshal([]byte(m), &arr); err == nil && len(arr) > 0 {
				return map[string]any{
					"should_split": true,
					"splits":       arr,
					"confidence":   0.5,
					"reason":       "extracted from malformed response",
				}, nil
			}
		}
	}

	if m := jsonObjectPattern.FindString(content); m != "" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(m), &obj); err == nil {
			return obj, nil
		}
	}

	cleaned := controlCharsPattern.ReplaceAllString(content, "")
	cleaned = trailingCommaPattern.ReplaceAllString(cleaned, "$1")
	cleaned = unquotedKeyPattern.ReplaceAllString(cleaned, `$1"$2":`)

	var recovered map[string]any
	if err := json.Unmarshal([]byte(cleaned), &recovered); err == nil {
		return recovered, nil
	}
	return nil, fmt.Errorf("llm: could not parse response as JSON")
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func boolField(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}
