package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("123.45600000")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromFloat(123.456)))

	_, err = ParseAmount("")
	assert.Error(t, err)

	_, err = ParseAmount("not-a-number")
	assert.Error(t, err)
}

func TestQuantizeDownIdempotentAndBounded(t *testing.T) {
	quantum := MustParse("0.001")
	x := MustParse("1.23456789")

	q1 := QuantizeDown(x, quantum)
	q2 := QuantizeDown(q1, quantum)

	assert.True(t, q1.Equal(q2), "quantise(quantise(x)) must equal quantise(x)")
	assert.True(t, q1.LessThanOrEqual(x), "quantise(x) must be <= x")
	assert.True(t, q1.Equal(MustParse("1.234")))
}

func TestQuantizeDownZeroQuantumIsNoop(t *testing.T) {
	x := MustParse("1.23456789")
	assert.True(t, QuantizeDown(x, decimal.Zero).Equal(x))
}

func TestEqualWithinEpsilon(t *testing.T) {
	a := MustParse("1.00000000")
	b := MustParse("1.00000001")
	c := MustParse("1.0001")

	assert.True(t, EqualWithinEpsilon(a, b))
	assert.False(t, EqualWithinEpsilon(a, c))
}

func TestPercentChange(t *testing.T) {
	buy := MustParse("100")
	sell := MustParse("104")

	gross := PercentChange(buy, sell)
	assert.True(t, gross.Equal(MustParse("4")), "got %s", gross)
}
