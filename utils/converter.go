package utils

import (
	"errors"
	"math/big"
	"strings"
)

// CanonicalAddress lowercases an address so comparisons are case-insensitive
// everywhere. Stored forms are always canonical.
func CanonicalAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return CanonicalAddress(a) == CanonicalAddress(b)
}

// ScaleAmount converts a human decimal amount ("10.0") into raw on-chain
// units at the given token precision. The conversion is exact string
// arithmetic; amounts with more fractional digits than the token carries
// are rejected rather than rounded.
func ScaleAmount(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, errors.New("empty amount")
	}
	if strings.HasPrefix(amount, "-") || strings.HasPrefix(amount, "+") {
		return nil, errors.New("amount must be unsigned")
	}

	whole, frac := amount, ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole, frac = amount[:i], amount[i+1:]
	}
	if whole == "" && frac == "" {
		return nil, errors.New("malformed amount")
	}
	for _, part := range []string{whole, frac} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return nil, errors.New("malformed amount")
			}
		}
	}

	frac = strings.TrimRight(frac, "0")
	if len(frac) > int(decimals) {
		return nil, errors.New("amount has more precision than the token")
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	raw, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, errors.New("malformed amount")
	}
	return raw, nil
}

// IsPositiveAmount reports whether amount is a well-formed decimal > 0.
func IsPositiveAmount(amount string) bool {
	raw, err := ScaleAmount(amount, NativeDecimals)
	return err == nil && raw.Sign() > 0
}

// FormatUnits renders a raw on-chain value back into a human decimal string.
func FormatUnits(raw *big.Int, decimals uint8) string {
	s := raw.String()
	if decimals == 0 {
		return s
	}
	if len(s) <= int(decimals) {
		s = strings.Repeat("0", int(decimals)-len(s)+1) + s
	}
	cut := len(s) - int(decimals)
	whole, frac := s[:cut], strings.TrimRight(s[cut:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
