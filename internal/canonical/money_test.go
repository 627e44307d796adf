package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	cases := map[string]string{
		"11.48":  "11.48",
		"10":     "10.00",
		"10.005": "10.01", // round-half-up at the boundary
		"-3.50":  "-3.50",
		"0.00":   "0.00",
	}
	for input, want := range cases {
		m, err := ParseMoney(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, m.String(), input)
	}
}

func TestMoney_RelativeDiff(t *testing.T) {
	a := MustParseMoney("100.00")
	b := MustParseMoney("101.00")
	assert.InDelta(t, 1.0/101.0, a.RelativeDiff(b), 1e-9)
}

func TestMoney_Arithmetic(t *testing.T) {
	a := MustParseMoney("3.33")
	sum := a.Add(a).Add(a)
	assert.Equal(t, "9.99", sum.String())

	diff := MustParseMoney("10.00").Sub(sum)
	assert.Equal(t, "0.01", diff.String())
}

func TestMoney_JSONRoundTrip(t *testing.T) {
	m := MustParseMoney("42.07")
	data, err := m.MarshalJSON()
	require.NoError(t, err)

	var out Money
	require.NoError(t, out.UnmarshalJSON(data))
	assert.True(t, m.Equal(out))
}
