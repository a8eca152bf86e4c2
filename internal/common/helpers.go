package common

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	SOLDecimals   = 9 // SOL has 9 decimals (lamports)
	PENSADecimals = 6 // PENSA has 6 decimals
)

var (
	errEmptyAmount   = errors.New("empty amount")
	errNotDecimal    = errors.New("not a non-negative decimal number")
	errTooManyDigits = errors.New("too many decimal places")
	errOutOfRange    = errors.New("amount out of range")
)

// LamportsToSOL converts lamports to SOL string without float precision loss
func LamportsToSOL(lamports uint64) string {
	return FormatUnits(lamports, SOLDecimals)
}

// SOLToLamports converts SOL string to lamports without float precision loss
func SOLToLamports(sol string) (uint64, error) {
	return ParseUnits(sol, SOLDecimals)
}

// StripGrouping removes thousands separators ("5,000", "5_000", "5 000")
// and surrounding whitespace without changing the numeric value.
func StripGrouping(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '_', ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}

// FormatUnits converts integer to decimal string by inserting decimal point
// Example: FormatUnits(24981836, 9) = "0.024981836"
func FormatUnits(value uint64, decimals int) string {
	s := strconv.FormatUint(value, 10)
	if decimals <= 0 {
		return s
	}

	// Pad with leading zeros if needed
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}

	// Insert decimal point
	pos := len(s) - decimals
	return s[:pos] + "." + s[pos:]
}

// ParseUnits converts decimal string to integer smallest units by combining
// the integer and fraction digits, never going through float64.
// Example: ParseUnits("0.024981836", 9) = 24981836
//
// Fraction digits beyond decimals are rejected rather than truncated.
func ParseUnits(s string, decimals int) (uint64, error) {
	s = StripGrouping(s)
	if s == "" {
		return 0, errEmptyAmount
	}

	whole, frac, _ := strings.Cut(s, ".")
	if !isDigits(whole) || !isDigits(frac) || (whole == "" && frac == "") {
		return 0, fmt.Errorf("%q: %w", s, errNotDecimal)
	}

	// Trailing zeros carry no value
	frac = strings.TrimRight(frac, "0")
	if len(frac) > decimals {
		return 0, fmt.Errorf("%q: %w (max %d)", s, errTooManyDigits, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(combined, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, errOutOfRange)
	}
	return n, nil
}

// CompareAmounts compares two decimal string amounts without float precision loss.
// Returns: -1 if a < b, 0 if a == b, 1 if a > b, and error if parsing fails
func CompareAmounts(a, b string, decimals int) (int, error) {
	aVal, err := ParseUnits(a, decimals)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", a, err)
	}

	bVal, err := ParseUnits(b, decimals)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", b, err)
	}

	if aVal < bVal {
		return -1, nil
	}
	if aVal > bVal {
		return 1, nil
	}
	return 0, nil
}

// ShortenAddress abbreviates an address for display: first 6 and last 5 characters.
func ShortenAddress(address string) string {
	if len(address) <= 11 {
		return address
	}
	return address[:6] + "..." + address[len(address)-5:]
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
