package fetcher

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Normalize divides an integer base-unit amount by 10^decimals, truncating
// the fractional part.
func Normalize(amount string, decimals int32) (string, error) {
	raw, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok {
		return "", fmt.Errorf("amount %q is not an integer", amount)
	}
	return NormalizeInt(raw, decimals), nil
}

// NormalizeInt is Normalize for an already parsed amount.
func NormalizeInt(raw *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(raw, -decimals).Truncate(0).String()
}
