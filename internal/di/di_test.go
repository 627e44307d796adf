package di

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/config"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DMS:         config.DMSConfig{BaseURL: "https://paperless.example.com"},
		Ledger:      config.LedgerConfig{BaseURL: "https://firefly.example.com", DefaultSourceAccount: "Checking Account"},
		StateDBPath: ":memory:",
		Confidence:  config.ConfidenceConfig{AutoThreshold: 0.85, ReviewThreshold: 0.60},
		Reconciliation: config.ReconciliationConfig{
			AutoMatchThreshold: 0.90,
			DateToleranceDays:  7,
			BankFirstMode:      true,
		},
	}
}

func TestRegisterAllWiresStoreAndDomainServices(t *testing.T) {
	c := New()
	p := NewProvider(c, testConfig(t), nil)
	require.NoError(t, p.RegisterAll())

	require.True(t, c.Has(ServiceStore))
	require.True(t, c.Has(ServiceDMS))
	require.True(t, c.Has(ServiceLedger))
	require.True(t, c.Has(ServiceReconcile))
	require.True(t, c.Has(ServiceQueue))

	s, err := p.Store()
	require.NoError(t, err)
	require.Implements(t, (*store.Store)(nil), s)

	orchestrator, err := p.Reconciler()
	require.NoError(t, err)
	require.NotNil(t, orchestrator)

	q, err := p.Queue()
	require.NoError(t, err)
	require.NotNil(t, q)
}

func TestGetMissingServiceReturnsError(t *testing.T) {
	c := New()
	_, err := c.Get("nope")
	require.Error(t, err)
}

func TestContainerRegisterOverridesBuilder(t *testing.T) {
	c := New()
	c.RegisterBuilder("thing", func(c *Container) (interface{}, error) {
		return "built", nil
	})
	c.Register("thing", "explicit")

	v, err := c.Get("thing")
	require.NoError(t, err)
	require.Equal(t, "explicit", v)
}
