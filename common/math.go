package common

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EtherDecimals is the number of decimals of the native token.
const EtherDecimals = 18

// SecondsPerHour converts auction durations entered in hours.
const SecondsPerHour = 3600

// ParseUnits parses a decimal string like "0.15" into its integer amount of
// the smallest unit. It never goes through float64 so "0.1" ether is exactly
// 10^17 wei.
func ParseUnits(value string, decimal uint64) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty amount")
	}
	neg := strings.HasPrefix(value, "-")
	value = strings.TrimPrefix(strings.TrimPrefix(value, "-"), "+")
	whole, frac, _ := strings.Cut(value, ".")
	if whole == "" {
		whole = "0"
	}
	if uint64(len(frac)) > decimal {
		if strings.Trim(frac[decimal:], "0") != "" {
			return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimal)
		}
		frac = frac[:decimal]
	}
	frac += strings.Repeat("0", int(decimal)-len(frac))
	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("couldn't parse %q as a decimal amount", value)
	}
	if neg {
		result.Neg(result)
	}
	return result, nil
}

// ParseEther parses an ether denominated decimal string into wei.
func ParseEther(value string) (*big.Int, error) {
	return ParseUnits(value, EtherDecimals)
}

// FormatUnits renders an integer amount with the given decimals, dropping
// trailing zeros.
// Example:
// - FormatUnits(1100, 3) = "1.1"
// - FormatUnits(1100, 2) = "11"
func FormatUnits(value *big.Int, decimal uint64) string {
	if value == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(value)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	q, r := new(big.Int).QuoRem(abs, pow10(decimal), new(big.Int))
	if r.Sign() == 0 {
		return sign + q.String()
	}
	frac := fmt.Sprintf("%0*s", int(decimal), r.String())
	return sign + q.String() + "." + strings.TrimRight(frac, "0")
}

// FormatEther renders wei as ether.
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, EtherDecimals)
}

// ParseTokenID accepts a decimal or 0x prefixed token id.
func ParseTokenID(s string) (*big.Int, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "#"))
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return hexutil.DecodeBig(s)
	}
	result, ok := new(big.Int).SetString(s, 10)
	if !ok || result.Sign() < 0 {
		return nil, fmt.Errorf("invalid token id %q", s)
	}
	return result, nil
}

// HoursToSeconds converts a duration in hours to whole seconds.
func HoursToSeconds(hours float64) *big.Int {
	return big.NewInt(int64(math.Round(hours * SecondsPerHour)))
}

func pow10(n uint64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), new(big.Int).SetUint64(n), nil)
}
