// Package ada converts between ADA and lovelace, the smallest unit of Cardano's currency.
package ada

import (
	"math"
	"math/big"
)

// LovelacePerAda is the number of lovelace in one ADA.
const LovelacePerAda = 1_000_000

// Lovelace is the unit name used by the indexer for the native currency.
const Lovelace = "lovelace"

// BigToAda converts a possibly nil big lovelace amount to ADA.
func BigToAda(lovelace *big.Int) float64 {
	if lovelace == nil {
		return 0
	}

	f, _ := new(big.Float).Quo(new(big.Float).SetInt(lovelace), big.NewFloat(LovelacePerAda)).Float64()

	return f
}

// MaxAda is the largest amount whose lovelace value fits in an int64.
const MaxAda = math.MaxInt64 / LovelacePerAda

// ValidAmount reports whether ada is a positive amount of at most MaxAda.
func ValidAmount(ada float64) bool {
	return ada > 0 && ada <= MaxAda
}

// ToLovelace converts ADA to lovelace rounding down. Amounts above MaxAda saturate to math.MaxInt64.
func ToLovelace(ada float64) int64 {
	if ada > MaxAda {
		return math.MaxInt64
	}

	return int64(math.Floor(ada * LovelacePerAda))
}
