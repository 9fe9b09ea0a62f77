package utils

import (
	sdkmath "cosmossdk.io/math"
)

// DecayedBalance projects a linearly decaying lock balance to time now (unix seconds):
// max(0, bias - slope*(now - timestamp)).
func DecayedBalance(bias, slope string, timestamp, now int64) (sdkmath.LegacyDec, error) {
	biasDec, err := ParseDec(bias)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	slopeDec, err := ParseDec(slope)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}

	elapsed := now - timestamp
	balance := biasDec.Sub(slopeDec.MulInt64(elapsed))
	if balance.IsNegative() {
		return sdkmath.LegacyZeroDec(), nil
	}
	return balance, nil
}
