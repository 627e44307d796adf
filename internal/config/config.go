// Package config loads and validates the core's configuration, the same
// viper-plus-struct shape the teacher uses for its own config package:
// defaults first, then a file, then explicit environment overrides.
package config

import "time"

// Config is the complete configuration record (spec.md §6's enumerated
// options, one struct field per option).
type Config struct {
	DMS            DMSConfig            `mapstructure:"dms"`
	Ledger         LedgerConfig         `mapstructure:"ledger"`
	StateDBPath    string               `mapstructure:"state_db_path"`
	Confidence     ConfidenceConfig     `mapstructure:"confidence"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	LLM            LLMConfig            `mapstructure:"llm"`
}

// DMSConfig configures the document-management-system client.
type DMSConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Token     string `mapstructure:"token"`
	FilterTag string `mapstructure:"filter_tag"`
}

// LedgerConfig configures the ledger (Firefly III-like) client.
type LedgerConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	Token                string `mapstructure:"token"`
	DefaultSourceAccount string `mapstructure:"default_source_account"`
}

// ConfidenceConfig configures C6's review-disposition thresholds.
type ConfidenceConfig struct {
	AutoThreshold       float64 `mapstructure:"auto_threshold"`
	ReviewThreshold     float64 `mapstructure:"review_threshold"`
	MinAmountConfidence float64 `mapstructure:"min_amount_confidence"`
	MinDateConfidence   float64 `mapstructure:"min_date_confidence"`
	MinVendorConfidence float64 `mapstructure:"min_vendor_confidence"`
}

// ReconciliationConfig configures C10's orchestrator policy.
type ReconciliationConfig struct {
	AutoMatchThreshold              float64 `mapstructure:"auto_match_threshold"`
	DateToleranceDays               int     `mapstructure:"date_tolerance_days"`
	BankFirstMode                   bool    `mapstructure:"bank_first_mode"`
	RequireManualConfirmationForNew bool    `mapstructure:"require_manual_confirmation_for_new"`
}

// LLMConfig configures C11's suggestion service.
type LLMConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	OllamaURL        string  `mapstructure:"ollama_url"`
	ModelFast        string  `mapstructure:"model_fast"`
	ModelFallback    string  `mapstructure:"model_fallback"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxConcurrent    int64   `mapstructure:"max_concurrent"`
	MaxRetries       int     `mapstructure:"max_retries"`
	GreenThreshold   float64 `mapstructure:"green_threshold"`
	CalibrationCount int64   `mapstructure:"calibration_count"`
	AuthHeader       string  `mapstructure:"auth_header"`
}

// Timeout returns LLM.TimeoutSeconds as a time.Duration.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
