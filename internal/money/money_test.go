package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1,000.00", "1000.00"},
		{"$1,234,567.89", "1234567.89"},
		{"-500", "-500.00"},
		{"(250.10)", "-250.10"},
		{"", "0.00"},
		{"  42.5 ", "42.50"},
	}
	for _, tt := range tests {
		got, err := Parse(tt.input)
		require.NoError(t, err, "input: %q", tt.input)
		assert.Equal(t, tt.want, got.StringFixed(2), "Parse(%q)", tt.input)
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("12abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing amount")
}

func TestFormat(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0", "0.00"},
		{"999.999", "1,000.00"},
		{"1221.745", "1,221.75"},
		{"1234567.8", "1,234,567.80"},
		{"-1500.05", "-1,500.05"},
		{"-0.4", "-0.40"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(decimal.RequireFromString(tt.input)), "Format(%s)", tt.input)
	}
}

func TestRoundAndFixed(t *testing.T) {
	assert.Equal(t, "22.11", Fixed(Round(decimal.RequireFromString("22.11"))))
	assert.Equal(t, "90.21", Fixed(Round(decimal.RequireFromString("90.2088"))))
	assert.Equal(t, "-0.01", Fixed(Round(decimal.RequireFromString("-0.005"))))
}

func TestPercent(t *testing.T) {
	p := PercentOf(decimal.NewFromInt(50), decimal.NewFromInt(200))
	assert.Equal(t, "25.00%", Percent(p))
}
