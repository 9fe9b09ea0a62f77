package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsSameAddress compares two hex addresses ignoring case and checksum.
func IsSameAddress(a, b string) bool {
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// IsGaugeExpired reports whether addr is in the expired gauge list.
// An empty or nil list means no gauge is expired.
func IsGaugeExpired(expiredGauges []string, addr string) bool {
	for _, expired := range expiredGauges {
		if IsSameAddress(expired, addr) {
			return true
		}
	}
	return false
}
