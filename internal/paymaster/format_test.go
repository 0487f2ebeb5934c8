package paymaster

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad number literal: " + s)
	}
	return v
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		name      string
		amount    *big.Int
		decimals  int
		precision int
		want      string
	}{
		{"nil", nil, 18, 12, "0"},
		{"zero", big.NewInt(0), 18, 12, "0"},
		{"one ether", wei("1000000000000000000"), 18, 12, "1.000000000000"},
		{"sub-unit", wei("123456789000000000"), 18, 12, "0.123456789000"},
		{"gwei in ether", wei("1000000000"), 18, 12, "0.000000001000"},
		{"truncates, never rounds", wei("1999999999999999999"), 18, 12, "1.999999999999"},
		{"truncates below half", wei("1000000000000000999"), 18, 12, "1.000000000000"},
		{"six digit integer keeps precision", wei("123456000000000000000000"), 18, 12, "123456.000000000000"},
		{"seven digit integer drops to 2", wei("1234567000000000000000000"), 18, 12, "1234567.00"},
		{"usdc decimals", big.NewInt(12_345_678), 6, 2, "12.34"},
		{"zero precision", wei("1999999999999999999"), 18, 0, "1"},
		{"precision wider than decimals", big.NewInt(1_500_000), 6, 8, "1.50000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUnits(tt.amount, tt.decimals, tt.precision))
		})
	}
}

func TestFormatWei(t *testing.T) {
	assert.Equal(t, "0.000000002000", FormatWei(big.NewInt(2_000_000_000)))
	assert.Equal(t, "0", FormatWei(nil))
}
