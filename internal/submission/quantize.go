// ABOUTME: Exact decimal to scaled-integer conversion for submitted readings
// ABOUTME: round(v*100) half away from zero, bounded to the 32-bit field

package submission

import (
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the fixed-point factor applied to every reading.
const Scale = 100

var maxScaled = decimal.NewFromInt(math.MaxUint32)

const (
	maxMagnitude = 9  // 10^9 and up exceed maxScaled/Scale
	minMagnitude = -2 // below 10^-3 the reading rounds to 0
)

// Quantize parses raw and returns round(raw*100) as the 32-bit value the
// registry stores. Parsing is exact, so "36.605" rounds to 3661.
func Quantize(raw string) (uint32, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, &InvalidValueError{Input: raw, Reason: "value is empty"}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &InvalidValueError{Input: raw, Reason: "not a number"}
	}
	if d.Sign() < 0 {
		return 0, &InvalidValueError{Input: raw, Reason: "value must not be negative"}
	}
	if d.Sign() == 0 {
		return 0, nil
	}

	// The value lies in [10^(mag-1), 10^mag). Decide out-of-range
	// magnitudes before rescaling, which costs O(|exponent|).
	mag := int64(d.Exponent()) + int64(d.NumDigits())
	switch {
	case mag > maxMagnitude:
		return 0, &InvalidValueError{Input: raw, Reason: "value too large"}
	case mag < minMagnitude:
		return 0, nil
	}

	scaled := d.Shift(2).Round(0)
	if scaled.GreaterThan(maxScaled) {
		return 0, &InvalidValueError{Input: raw, Reason: "value too large"}
	}
	return uint32(scaled.IntPart()), nil
}

// Unscale converts a stored scaled integer back to its decimal reading.
func Unscale(scaled uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(scaled), -2)
}
