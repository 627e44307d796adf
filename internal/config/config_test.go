package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
dms:
  base_url: https://paperless.example.com
ledger:
  base_url: https://firefly.example.com
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 0.85, cfg.Confidence.AutoThreshold)
	require.Equal(t, 0.90, cfg.Reconciliation.AutoMatchThreshold)
	require.Equal(t, 7, cfg.Reconciliation.DateToleranceDays)
	require.True(t, cfg.Reconciliation.BankFirstMode)
	require.Equal(t, "Checking Account", cfg.Ledger.DefaultSourceAccount)
	require.False(t, cfg.LLM.Enabled)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfigFile(t, `
dms:
  base_url: https://paperless.example.com
  token: abc123
ledger:
  base_url: https://firefly.example.com
  token: xyz789
  default_source_account: "My Checking"
reconciliation:
  auto_match_threshold: 0.95
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "abc123", cfg.DMS.Token)
	require.Equal(t, "My Checking", cfg.Ledger.DefaultSourceAccount)
	require.Equal(t, 0.95, cfg.Reconciliation.AutoMatchThreshold)
}

func TestLoadFailsWithoutRequiredFields(t *testing.T) {
	path := writeConfigFile(t, `state_db_path: test.db`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := Config{
		DMS:         DMSConfig{BaseURL: "https://x"},
		Ledger:      LedgerConfig{BaseURL: "https://y"},
		StateDBPath: "db.sqlite",
		Confidence:  ConfidenceConfig{AutoThreshold: 1.5, ReviewThreshold: 0.5},
	}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsAutoBelowReviewThreshold(t *testing.T) {
	cfg := Config{
		DMS:         DMSConfig{BaseURL: "https://x"},
		Ledger:      LedgerConfig{BaseURL: "https://y"},
		StateDBPath: "db.sqlite",
		Confidence:  ConfidenceConfig{AutoThreshold: 0.5, ReviewThreshold: 0.8},
	}
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresOllamaURLWhenLLMEnabled(t *testing.T) {
	cfg := Config{
		DMS:         DMSConfig{BaseURL: "https://x"},
		Ledger:      LedgerConfig{BaseURL: "https://y"},
		StateDBPath: "db.sqlite",
		Confidence:  ConfidenceConfig{AutoThreshold: 0.85, ReviewThreshold: 0.6},
		LLM:         LLMConfig{Enabled: true},
	}
	require.Error(t, cfg.Validate())
}
