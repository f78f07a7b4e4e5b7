package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGroupedInt(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"1234", 1234},
		{"1,234,567", 1234567},
		{"1.234.567", 1234567},
		{"1'234'567", 1234567},
		{" 42 ", 42},
	}
	for _, tt := range tests {
		got, err := parseGroupedInt(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseGroupedIntRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", ",,,", "abc", "12a3"} {
		_, err := parseGroupedInt(in)
		assert.Error(t, err, in)
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"0.001", 0.001},
		{"831.33", 831.33},
		{"831,33", 831.33},
		{"1,234.56", 1234.56},
		{"1.234,56", 1234.56},
		{"1,234,567", 1234567},
		{"1.000", 1.0},
	}
	for _, tt := range tests {
		got, err := parseDecimal(tt.in)
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}
