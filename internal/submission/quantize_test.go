// ABOUTME: Tests for reading quantization
// ABOUTME: Covers rounding, bounds, rejection and idempotence

package submission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantize(t *testing.T) {
	tests := []struct {
		raw  string
		want uint32
	}{
		{"36.6", 3660},
		{"40", 4000},
		{"0", 0},
		{"-0", 0},
		{"0.004", 0},
		{"0.005", 1},
		{"0.0049", 0},
		{"0.0000001", 0},
		{"1e-999999999", 0},
		{"0e999999999", 0},
		{"36.605", 3661},
		{"36.6049999", 3660},
		{"98.6", 9860},
		{" 12.5 ", 1250},
		{"1e2", 10000},
		{"42949672.95", 4294967295},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Quantize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuantize_Invalid(t *testing.T) {
	tests := []struct {
		raw    string
		reason string
	}{
		{"", "empty"},
		{"   ", "empty"},
		{"abc", "not a number"},
		{"1,5", "not a number"},
		{"36.6abc", "not a number"},
		{"-5", "negative"},
		{"-0.001", "negative"},
		{"42949672.955", "too large"},
		{"1e12", "too large"},
		{"123456789", "too large"},
		{"1e999999999", "too large"},
		{"0.000001e999999999", "too large"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := Quantize(tt.raw)
			var invalid *InvalidValueError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.raw, invalid.Input)
			assert.Contains(t, invalid.Reason, tt.reason)
		})
	}
}

func TestQuantize_Idempotent(t *testing.T) {
	for _, raw := range []string{"36.6", "0.125", "7", "99.995", "1234.5678"} {
		first, err := Quantize(raw)
		require.NoError(t, err)
		second, err := Quantize(raw)
		require.NoError(t, err)
		assert.Equal(t, first, second, raw)

		// Re-quantizing the unscaled result is a fixed point.
		again, err := Quantize(Unscale(uint64(first)).String())
		require.NoError(t, err)
		assert.Equal(t, first, again, raw)
	}
}

func TestUnscale(t *testing.T) {
	assert.Equal(t, "36.60", Unscale(3660).StringFixed(2))
	assert.Equal(t, "40.00", Unscale(4000).StringFixed(2))
	assert.Equal(t, "0.01", Unscale(1).StringFixed(2))
	assert.Equal(t, "184467440737095516.15", Unscale(18446744073709551615).StringFixed(2))
}
