package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// setDefaults applies the default values named in spec.md §6.
func setDefaults(v *viper.Viper) {
	v.SetDefault("ledger.default_source_account", "Checking Account")
	v.SetDefault("state_db_path", "ledgerbridge.db")

	v.SetDefault("confidence.auto_threshold", 0.85)
	v.SetDefault("confidence.review_threshold", 0.60)
	v.SetDefault("confidence.min_amount_confidence", 0.70)
	v.SetDefault("confidence.min_date_confidence", 0.60)
	v.SetDefault("confidence.min_vendor_confidence", 0.40)

	v.SetDefault("reconciliation.auto_match_threshold", 0.90)
	v.SetDefault("reconciliation.date_tolerance_days", 7)
	v.SetDefault("reconciliation.bank_first_mode", true)
	v.SetDefault("reconciliation.require_manual_confirmation_for_new", true)

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.max_concurrent", 2)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.green_threshold", 0.90)
	v.SetDefault("llm.calibration_count", 50)
	v.SetDefault("llm.timeout_seconds", 30)
}

// envBindings lists every config key that is overridable by an environment
// variable, one explicit name per key rather than a blanket prefix — the
// same convention the original Python config used. Most names are the
// uppercased key; the dms.* and ledger.* keys bind PAPERLESS_* and
// FIREFLY_* names instead.
var envBindings = map[string]string{
	"dms.base_url":    "PAPERLESS_URL",
	"dms.token":       "PAPERLESS_TOKEN",
	"dms.filter_tag":  "PAPERLESS_FILTER_TAG",
	"ledger.base_url": "FIREFLY_URL",
	"ledger.token":    "FIREFLY_TOKEN",
	"ledger.default_source_account": "FIREFLY_DEFAULT_SOURCE_ACCOUNT",
	"state_db_path":   "STATE_DB_PATH",

	"confidence.auto_threshold":         "CONFIDENCE_AUTO_THRESHOLD",
	"confidence.review_threshold":       "CONFIDENCE_REVIEW_THRESHOLD",
	"confidence.min_amount_confidence":  "CONFIDENCE_MIN_AMOUNT_CONFIDENCE",
	"confidence.min_date_confidence":    "CONFIDENCE_MIN_DATE_CONFIDENCE",
	"confidence.min_vendor_confidence":  "CONFIDENCE_MIN_VENDOR_CONFIDENCE",

	"reconciliation.auto_match_threshold":              "RECONCILIATION_AUTO_MATCH_THRESHOLD",
	"reconciliation.date_tolerance_days":                "RECONCILIATION_DATE_TOLERANCE_DAYS",
	"reconciliation.bank_first_mode":                    "RECONCILIATION_BANK_FIRST_MODE",
	"reconciliation.require_manual_confirmation_for_new": "RECONCILIATION_REQUIRE_MANUAL_CONFIRMATION_FOR_NEW",

	"llm.enabled":           "LLM_ENABLED",
	"llm.ollama_url":        "LLM_OLLAMA_URL",
	"llm.model_fast":        "LLM_MODEL_FAST",
	"llm.model_fallback":    "LLM_MODEL_FALLBACK",
	"llm.timeout_seconds":   "LLM_TIMEOUT_SECONDS",
	"llm.max_concurrent":    "LLM_MAX_CONCURRENT",
	"llm.max_retries":       "LLM_MAX_RETRIES",
	"llm.green_threshold":   "LLM_GREEN_THRESHOLD",
	"llm.calibration_count": "LLM_CALIBRATION_COUNT",
	"llm.auth_header":       "LLM_AUTH_HEADER",
}

// Load reads configuration from (in priority order) built-in defaults, an
// optional file at path, and the explicit environment bindings above, then
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
