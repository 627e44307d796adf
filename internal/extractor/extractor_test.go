package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
	"github.com/LeJamon/ledgerbridge/internal/dmsclient"
)

type stubStrategy struct {
	name       string
	priority   int
	canExtract bool
	confidence float64
	err        error
}

func (s stubStrategy) Name() string            { return s.name }
func (s stubStrategy) Priority() int           { return s.priority }
func (s stubStrategy) CanExtract(Input) bool   { return s.canExtract }
func (s stubStrategy) Extract(context.Context, Input) (*canonical.CanonicalRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &canonical.CanonicalRecord{
		FieldConfidences:  []canonical.FieldConfidence{{Field: "amount", Confidence: s.confidence}},
		Provenance:        canonical.Provenance{ExtractionStrategy: s.name},
	}, nil
}

func TestRouterStopsAtFirstConfidentStrategy(t *testing.T) {
	r := NewRouter(nil,
		stubStrategy{name: "strong", priority: 100, canExtract: true, confidence: 0.9},
		stubStrategy{name: "weak", priority: 10, canExtract: true, confidence: 0.1},
	)
	record, err := r.Route(context.Background(), Input{})
	require.NoError(t, err)
	require.Equal(t, "strong", record.Provenance.ExtractionStrategy)
}

func TestRouterFallsThroughWhenNotConfident(t *testing.T) {
	r := NewRouter(nil,
		stubStrategy{name: "unsure", priority: 100, canExtract: true, confidence: 0.2},
		stubStrategy{name: "fallback", priority: 1, canExtract: true, confidence: 0.05},
	)
	record, err := r.Route(context.Background(), Input{})
	require.NoError(t, err)
	// Neither clears the threshold; the best of the two (highest confidence) wins.
	require.Equal(t, "unsure", record.Provenance.ExtractionStrategy)
}

func TestRouterSkipsStrategiesThatCannotExtract(t *testing.T) {
	r := NewRouter(nil,
		stubStrategy{name: "unusable", priority: 100, canExtract: false, confidence: 0.9},
		stubStrategy{name: "usable", priority: 10, canExtract: true, confidence: 0.5},
	)
	record, err := r.Route(context.Background(), Input{})
	require.NoError(t, err)
	require.Equal(t, "usable", record.Provenance.ExtractionStrategy)
}

func TestRouterSkipsErroringStrategies(t *testing.T) {
	r := NewRouter(nil,
		stubStrategy{name: "broken", priority: 100, canExtract: true, err: errors.New("boom")},
		stubStrategy{name: "ok", priority: 10, canExtract: true, confidence: 0.5},
	)
	record, err := r.Route(context.Background(), Input{})
	require.NoError(t, err)
	require.Equal(t, "ok", record.Provenance.ExtractionStrategy)
}

func TestDefaultStrategiesSortedByPriority(t *testing.T) {
	strategies := DefaultStrategies()
	r := NewRouter(nil, strategies...)
	for i := 1; i < len(r.strategies); i++ {
		require.GreaterOrEqual(t, r.strategies[i-1].Priority(), r.strategies[i].Priority())
	}
	_, err := r.Route(context.Background(), Input{Document: dmsclient.Document{Content: ""}})
	require.NoError(t, err)
}
