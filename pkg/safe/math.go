package safe

import (
	"math/big"
)

// MaxUint256 is 2^256 - 1, the largest value a contract word can hold.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// FitsUint256 reports whether v is a valid uint256.
func FitsUint256(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 256
}

// Add returns a+b and panics when the result leaves the uint256 range.
func Add(a, b *big.Int) *big.Int {
	r := new(big.Int).Add(a, b)
	if !FitsUint256(r) {
		panic("CORE_SAFE_ADD_OVERFLOW")
	}
	return r
}

// Sub returns a-b and panics when the result is negative.
func Sub(a, b *big.Int) *big.Int {
	r := new(big.Int).Sub(a, b)
	if r.Sign() < 0 {
		panic("CORE_SAFE_SUB_UNDERFLOW")
	}
	return r
}

// Mul returns a*b and panics when the result leaves the uint256 range.
func Mul(a, b *big.Int) *big.Int {
	r := new(big.Int).Mul(a, b)
	if !FitsUint256(r) {
		panic("CORE_SAFE_MUL_OVERFLOW")
	}
	return r
}

// Clone returns an independent copy; nil becomes zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
