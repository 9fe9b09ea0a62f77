/*
This file contains conversion helpers between on-chain vote units (bps) and
user-facing shares, plus decimal formatting built on SDK math.
*/

package utils

import (
	"errors"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrAmountNegative   = errors.New("amount is negative")
	ErrConversionFailed = errors.New("conversion failed")
	ErrOutOfRange       = errors.New("value out of range")
)

// BpsPerShare converts between shares (0-100) and basis points (0-10000).
const BpsPerShare = 100

// maxShares bounds inputs so bps always fit in an int64.
var maxShares = sdkmath.LegacyNewDec(1_000_000_000_000)

// ParseDec parses a decimal string. The empty string is zero.
func ParseDec(value string) (sdkmath.LegacyDec, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return sdkmath.LegacyZeroDec(), nil
	}
	if strings.HasPrefix(value, ".") {
		value = "0" + value
	}
	dec, err := sdkmath.LegacyNewDecFromStr(value)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %q: %w", ErrConversionFailed, value, err)
	}
	return dec, nil
}

// ParseShares parses a share string and checks it is non-negative and bounded.
func ParseShares(shares string) (sdkmath.LegacyDec, error) {
	dec, err := ParseDec(shares)
	if err != nil {
		return dec, err
	}
	if dec.IsNegative() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s", ErrAmountNegative, shares)
	}
	if dec.GT(maxShares) {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s", ErrOutOfRange, shares)
	}
	return dec, nil
}

// SharesToBps converts shares to integer basis points, rounding to the nearest bps.
// "3.1" -> 310, "" -> 0.
func SharesToBps(shares string) (int64, error) {
	dec, err := ParseShares(shares)
	if err != nil {
		return 0, err
	}
	return dec.MulInt64(BpsPerShare).RoundInt64(), nil
}

// BpsToShares converts an integer bps string to shares without trailing zeros.
// Zero (or empty) bps is the empty string, meaning "no vote".
func BpsToShares(bps string) (string, error) {
	dec, err := BpsToSharesDec(bps)
	if err != nil {
		return "", err
	}
	if dec.IsZero() {
		return "", nil
	}
	return TrimDec(dec), nil
}

// BpsToSharesDec converts an integer bps string to a shares decimal.
func BpsToSharesDec(bps string) (sdkmath.LegacyDec, error) {
	bps = strings.TrimSpace(bps)
	if bps == "" {
		return sdkmath.LegacyZeroDec(), nil
	}
	amount, ok := sdkmath.NewIntFromString(bps)
	if !ok {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: bps %q is not an integer", ErrConversionFailed, bps)
	}
	if amount.IsNegative() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: bps %s", ErrAmountNegative, bps)
	}
	return sdkmath.LegacyNewDecFromInt(amount).QuoInt64(BpsPerShare), nil
}

// TrimDec renders a decimal with trailing fractional zeros removed ("3.100" -> "3.1").
func TrimDec(dec sdkmath.LegacyDec) string {
	s := dec.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}

// FormatDec renders a decimal rounded half away from zero to a fixed number of places.
func FormatDec(dec sdkmath.LegacyDec, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	scale := sdkmath.NewIntWithDecimal(1, decimals)
	scaled := dec.Abs().MulInt(scale)
	// Round half up on the absolute value, then restore the sign.
	rounded := scaled.Add(sdkmath.LegacyNewDecWithPrec(5, 1)).TruncateInt()

	intPart := rounded.Quo(scale)
	fracPart := rounded.Mod(scale)

	sign := ""
	if dec.IsNegative() && !rounded.IsZero() {
		sign = "-"
	}
	if decimals == 0 {
		return sign + intPart.String()
	}
	frac := fracPart.String()
	frac = strings.Repeat("0", decimals-len(frac)) + frac
	return sign + intPart.String() + "." + frac
}
