package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCLIConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
dms:
  base_url: https://paperless.example.com
ledger:
  base_url: https://firefly.example.com
state_db_path: ":memory:"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func resetGlobalFlags(t *testing.T) {
	t.Helper()
	prevConfig, prevQuiet, prevDebug := configFile, quiet, debug
	t.Cleanup(func() {
		configFile, quiet, debug = prevConfig, prevQuiet, prevDebug
	})
}

func TestLoadProviderReturnsExitBlockedOnMissingConfig(t *testing.T) {
	resetGlobalFlags(t)
	configFile = filepath.Join(t.TempDir(), "does-not-exist.yaml")

	_, _, err := loadProvider()
	require.Error(t, err)
	var blocked *exitBlocked
	require.ErrorAs(t, err, &blocked)
}

func TestLoadProviderSucceedsWithValidConfig(t *testing.T) {
	resetGlobalFlags(t)
	configFile = writeCLIConfig(t)
	quiet = true

	provider, _, err := loadProvider()
	require.NoError(t, err)
	require.NotNil(t, provider)

	s, err := provider.Store()
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestReviewListReportsNoPendingOnEmptyStore(t *testing.T) {
	resetGlobalFlags(t)
	configFile = writeCLIConfig(t)
	quiet = true

	provider, _, err := loadProvider()
	require.NoError(t, err)
	s, err := provider.Store()
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))

	pending, err := s.Proposals().ListPending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestExecuteExitCodeTypesCarryUnderlyingError(t *testing.T) {
	blocked := &exitBlocked{err: context.DeadlineExceeded}
	require.ErrorIs(t, blocked, context.DeadlineExceeded)

	partial := &exitPartial{err: context.DeadlineExceeded}
	require.ErrorIs(t, partial, context.DeadlineExceeded)
}
