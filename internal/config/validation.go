package config

import "github.com/LeJamon/ledgerbridge/internal/apperrors"

// Validate checks that every required field is present and every
// threshold/ratio falls in a sane range, failing fast before the core
// wires up any client or store against bad configuration.
func (c *Config) Validate() error {
	if c.DMS.BaseURL == "" {
		return apperrors.NewValidationError("dms.base_url", "required")
	}
	if c.Ledger.BaseURL == "" {
		return apperrors.NewValidationError("ledger.base_url", "required")
	}
	if c.StateDBPath == "" {
		return apperrors.NewValidationError("state_db_path", "required")
	}

	for _, f := range []struct {
		name  string
		value float64
	}{
		{"confidence.auto_threshold", c.Confidence.AutoThreshold},
		{"confidence.review_threshold", c.Confidence.ReviewThreshold},
		{"confidence.min_amount_confidence", c.Confidence.MinAmountConfidence},
		{"confidence.min_date_confidence", c.Confidence.MinDateConfidence},
		{"confidence.min_vendor_confidence", c.Confidence.MinVendorConfidence},
		{"reconciliation.auto_match_threshold", c.Reconciliation.AutoMatchThreshold},
		{"llm.green_threshold", c.LLM.GreenThreshold},
	} {
		if f.value < 0 || f.value > 1 {
			return apperrors.NewValidationError(f.name, "must be between 0 and 1")
		}
	}

	if c.Confidence.AutoThreshold < c.Confidence.ReviewThreshold {
		return apperrors.NewValidationError("confidence.auto_threshold", "must be >= confidence.review_threshold")
	}
	if c.Reconciliation.DateToleranceDays < 0 {
		return apperrors.NewValidationError("reconciliation.date_tolerance_days", "must be non-negative")
	}

	if c.LLM.Enabled {
		if c.LLM.OllamaURL == "" {
			return apperrors.NewValidationError("llm.ollama_url", "required when llm.enabled is true")
		}
		if c.LLM.ModelFast == "" {
			return apperrors.NewValidationError("llm.model_fast", "required when llm.enabled is true")
		}
		if c.LLM.MaxConcurrent <= 0 {
			return apperrors.NewValidationError("llm.max_concurrent", "must be positive when llm.enabled is true")
		}
	}

	return nil
}
