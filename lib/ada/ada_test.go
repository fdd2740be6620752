package ada

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversions(t *testing.T) {
	tt := []struct {
		lovelace int64
		ada      float64
	}{
		{0, 0},
		{1, 0.000001},
		{1_000_000, 1},
		{2_500_000, 2.5},
		{-3_000_000, -3},
	}

	for _, tc := range tt {
		assert.InDelta(t, tc.ada, BigToAda(big.NewInt(tc.lovelace)), 1e-12)
	}

	assert.Equal(t, float64(0), BigToAda(nil))
}

func TestToLovelaceFloors(t *testing.T) {
	assert.Equal(t, int64(1_000_000), ToLovelace(1))
	assert.Equal(t, int64(1_500_000), ToLovelace(1.5))
	assert.Equal(t, int64(1), ToLovelace(0.0000019))
	assert.Equal(t, int64(-2), ToLovelace(-0.0000011))
}

func TestBounds(t *testing.T) {
	tt := []struct {
		ada   float64
		valid bool
	}{
		{0, false},
		{-1, false},
		{0.000001, true},
		{MaxAda, true},
		{MaxAda + 1, false},
		{1e13, false},
		{math.Inf(1), false},
		{math.NaN(), false},
	}

	for _, tc := range tt {
		assert.Equal(t, tc.valid, ValidAmount(tc.ada), "%v", tc.ada)
	}

	// the largest valid amount does not overflow
	assert.Positive(t, ToLovelace(MaxAda))
	assert.LessOrEqual(t, ToLovelace(MaxAda), int64(math.MaxInt64))
	assert.Equal(t, int64(math.MaxInt64), ToLovelace(1e13))
}
