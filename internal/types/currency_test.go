package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrencyExponent(t *testing.T) {
	tests := []struct {
		code string
		want int32
	}{
		{"USD", 2},
		{"kes", 2},
		{"UGX", 0},
		{"JPY", 0},
		{"KWD", 3},
		{"bhd", 3},
		{"OMR", 3},
		{"TND", 3},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrencyExponent(tt.code))
		})
	}
}

func TestMinorMajorConversion(t *testing.T) {
	assert.Equal(t, "1.000", MinorToMajor(1000, "KWD").StringFixed(CurrencyExponent("KWD")))
	assert.Equal(t, "1500.50", MinorToMajor(150050, "KES").StringFixed(CurrencyExponent("KES")))
	assert.Equal(t, "500", MinorToMajor(500, "UGX").StringFixed(CurrencyExponent("UGX")))

	assert.Equal(t, "1250", MinorToMajor(1250, "JPY").String())

	assert.Equal(t, int64(1250), MajorToMinor(decimal.RequireFromString("1.25"), "KWD"))
	assert.Equal(t, int64(1999), MajorToMinor(decimal.RequireFromString("19.985"), "USD"))
	assert.Equal(t, int64(500), MajorToMinor(decimal.RequireFromString("500"), "RWF"))
}

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency(" kwd ")
	require.NoError(t, err)
	assert.Equal(t, "KWD", code)

	for _, bad := range []string{"", "US", "USDT", "U$D"} {
		_, err := NormalizeCurrency(bad)
		assert.Error(t, err, bad)
	}
}
