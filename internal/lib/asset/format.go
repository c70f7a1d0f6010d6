package asset

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// FormatAmount renders base units as a decimal number of whole tokens, ie:
// 1500000000000000000 with 18 decimals is "1.5".
func FormatAmount(amount *uint256.Int, decimals uint8) string {
	digits := amount.Dec()
	if decimals == 0 {
		return digits
	}
	if len(digits) <= int(decimals) {
		digits = strings.Repeat("0", int(decimals)-len(digits)+1) + digits
	}
	whole, frac := digits[:len(digits)-int(decimals)], digits[len(digits)-int(decimals):]
	// chop trailing 0's and decimal (if nothing else)
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// ParseAmount is the inverse of FormatAmount. More fractional digits than the
// token has decimals is an error rather than a silent truncation.
func ParseAmount(text string, decimals uint8) (*uint256.Int, error) {
	text = strings.ReplaceAll(strings.TrimSpace(text), "_", "")
	whole, frac, _ := strings.Cut(text, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, text, decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidAmount, text, err)
	}
	return amount, nil
}

// Units returns n whole tokens in base units.
func Units(n uint64, decimals uint8) *uint256.Int {
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return scale.Mul(scale, uint256.NewInt(n))
}
