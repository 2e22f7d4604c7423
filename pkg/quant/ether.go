package quant

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the number of decimal places between ether and wei.
// E.g., 1.5 ETH = 1,500,000,000,000,000,000 wei.
const EtherDecimals = 18

// ErrInvalidAmount is returned for malformed, negative or over-precise amounts.
var ErrInvalidAmount = errors.New("invalid amount")

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

// Now returns the current time as a TimeStamp.
func Now() TimeStamp {
	return TimeStamp(time.Now().UnixMicro())
}

// NextSeq generates the next sequence number atomically.
func NextSeq(ptr *uint64) uint64 {
	return atomic.AddUint64(ptr, 1)
}

// ToWei converts a decimal ether string to wei.
// Rule #1: No Float. The string goes through fixed-point decimal parsing only.
func ToWei(s string) (*big.Int, error) {
	return ParseUnits(s, EtherDecimals)
}

// FromWei formats wei as a decimal ether string with trailing zeros trimmed.
// A nil amount formats as "0".
func FromWei(wei *big.Int) string {
	return FormatUnits(wei, EtherDecimals)
}

// ParseUnits parses a non-negative decimal string into an integer scaled by 10^decimals.
// E.g., ParseUnits("1.23", 6) -> 1,230,000.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative %q", ErrInvalidAmount, s)
	}

	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: more than %d decimal places in %q", ErrInvalidAmount, decimals, s)
	}
	// Amounts are uint256 on chain; 10^78 already overflows.
	if scaled.Exponent()+int32(scaled.NumDigits()) > 78 {
		return nil, fmt.Errorf("%w: %q overflows uint256", ErrInvalidAmount, s)
	}
	v := scaled.BigInt()
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %q overflows uint256", ErrInvalidAmount, s)
	}
	return v, nil
}

// FormatUnits is the inverse of ParseUnits.
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// MustWei is ToWei for constants and tests. It panics on malformed input.
func MustWei(s string) *big.Int {
	w, err := ToWei(s)
	if err != nil {
		panic(err)
	}
	return w
}
