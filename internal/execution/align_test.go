package execution

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAlignQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.123", "10.12"},
		{"10.129", "10.12"},
		{"10", "10"},
		{"0.009", "0"},
		{"0.01", "0.01"},
		{"-1", "0"},
	}
	for _, tt := range tests {
		got := AlignQuantity(decimal.RequireFromString(tt.in))
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
			"AlignQuantity(%s) = %s, want %s", tt.in, got, tt.want)
	}
}

func TestAlignPrice(t *testing.T) {
	tests := []struct {
		price   string
		tick    string
		roundUp bool
		want    string
	}{
		{"0.553", "0.01", false, "0.55"},
		{"0.553", "0.01", true, "0.56"},
		{"0.55", "0.01", true, "0.55"},
		{"0.5532", "0.001", false, "0.553"},
		// A zero tick passes the price through unchanged.
		{"0.5532", "0", false, "0.5532"},
	}
	for _, tt := range tests {
		got := AlignPrice(decimal.RequireFromString(tt.price),
			decimal.RequireFromString(tt.tick), tt.roundUp)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
			"AlignPrice(%s, %s, %v) = %s, want %s", tt.price, tt.tick, tt.roundUp, got, tt.want)
	}
}
