package txbuilder

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Decimals of the native and bridged token.
const Decimals = 18

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ErrEmptyRange is returned when no 4-decimal amount lies within [min, max].
var ErrEmptyRange = errors.New("no 4-decimal amount in range")

// EncodingError reports an amount or argument that cannot be encoded.
type EncodingError struct {
	Value  string
	Reason string
	Err    error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot encode %q: %s", e.Value, e.Reason)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// ParseAmount converts a decimal token amount to its 18-decimal integer form.
// The amount must be positive, have at most 18 fractional digits and fit in
// a uint256.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || !isDigits(frac) || (frac == "" && strings.HasSuffix(s, ".")) {
		return nil, &EncodingError{Value: s, Reason: "not a decimal number"}
	}
	if len(frac) > Decimals {
		return nil, &EncodingError{Value: s, Reason: "more than 18 fractional digits"}
	}

	v, ok := new(big.Int).SetString(whole+frac+strings.Repeat("0", Decimals-len(frac)), 10)
	if !ok {
		return nil, &EncodingError{Value: s, Reason: "not a decimal number"}
	}
	if v.Sign() <= 0 {
		return nil, &EncodingError{Value: s, Reason: "amount must be positive"}
	}
	if v.Cmp(maxUint256) > 0 {
		return nil, &EncodingError{Value: s, Reason: "overflows uint256"}
	}
	return v, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatAmount renders wei with 4 decimals, truncating.
func FormatAmount(wei *big.Int) string {
	if wei == nil {
		return "0.0000"
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals-4), nil)
	q := new(big.Int).Quo(wei, unit)
	return formatTenThousandths(q)
}

func formatTenThousandths(n *big.Int) string {
	sign := ""
	if n.Sign() < 0 {
		sign = "-"
		n = new(big.Int).Neg(n)
	}
	whole, frac := new(big.Int).QuoRem(n, big.NewInt(10_000), new(big.Int))
	return fmt.Sprintf("%s%s.%04d", sign, whole.String(), frac.Int64())
}

// IntNer is satisfied by *math/rand/v2.Rand.
type IntNer interface {
	IntN(n int) int
}

// RandomAmount picks an amount uniformly among the 4-decimal values in
// [min, max] and formats it with 4 decimals.
func RandomAmount(rng IntNer, min, max float64) (string, error) {
	lo := int64(math.Ceil(min*10_000 - 1e-6))
	hi := int64(math.Floor(max*10_000 + 1e-6))
	if lo < 1 {
		lo = 1
	}
	if lo > hi {
		return "", &EncodingError{
			Value:  fmt.Sprintf("[%g, %g]", min, max),
			Reason: "range holds no positive 4-decimal amount",
			Err:    ErrEmptyRange,
		}
	}
	n := lo + int64(rng.IntN(int(hi-lo+1)))
	return formatTenThousandths(big.NewInt(n)), nil
}
