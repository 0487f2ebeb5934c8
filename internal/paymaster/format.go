package paymaster

import (
	"math/big"
	"strings"
)

// Display formatting defaults: 18-decimal base units rendered with a
// 12-digit fraction, dropping to 2 digits once the integer part would
// overflow a 6-digit display column.
const (
	DefaultDecimals    = 18
	DefaultPrecision   = 12
	wideIntegerDigits  = 6
	truncatedPrecision = 2
)

// FormatUnits renders an integer base-unit amount as a fixed-point decimal
// string. The fractional remainder beyond precision is truncated, never
// rounded. A nil or zero amount formats as "0".
func FormatUnits(amount *big.Int, decimals int, precision int) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	intPart, fracPart := new(big.Int).QuoRem(amount, scale, new(big.Int))

	if len(intPart.String()) > wideIntegerDigits {
		precision = truncatedPrecision
	}
	if precision <= 0 {
		return intPart.String()
	}

	// Left-pad the remainder to the full decimal width, then truncate.
	frac := fracPart.String()
	if pad := decimals - len(frac); pad > 0 {
		frac = strings.Repeat("0", pad) + frac
	}
	if len(frac) > precision {
		frac = frac[:precision]
	} else if pad := precision - len(frac); pad > 0 {
		frac += strings.Repeat("0", pad)
	}

	return intPart.String() + "." + frac
}

// FormatWei renders a wei amount with the display defaults.
func FormatWei(amount *big.Int) string {
	return FormatUnits(amount, DefaultDecimals, DefaultPrecision)
}
