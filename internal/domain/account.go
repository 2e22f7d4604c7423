package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"drealestate/pkg/safe"
)

// Account is an externally owned account on the development chain.
// BalanceWei must never go negative.
type Account struct {
	Address    common.Address `json:"address"`
	BalanceWei *big.Int       `json:"balance"`
	Nonce      uint64         `json:"nonce"`
}

// NewAccount creates an account with the given starting balance.
func NewAccount(addr common.Address, balance *big.Int) *Account {
	return &Account{Address: addr, BalanceWei: safe.Clone(balance)}
}

// Credit adds wei to the balance.
func (a *Account) Credit(wei *big.Int) {
	a.BalanceWei = safe.Add(safe.Clone(a.BalanceWei), wei)
}

// Debit removes wei and panics if the balance is insufficient.
// Callers check CanAfford first; a panic here means a broken invariant.
func (a *Account) Debit(wei *big.Int) {
	a.BalanceWei = safe.Sub(safe.Clone(a.BalanceWei), wei)
}

// CanAfford reports whether the balance covers wei.
func (a *Account) CanAfford(wei *big.Int) bool {
	return safe.Clone(a.BalanceWei).Cmp(wei) >= 0
}

// VerifyInvariant panics if the balance is negative or missing.
func (a *Account) VerifyInvariant() {
	if a.BalanceWei == nil || a.BalanceWei.Sign() < 0 {
		panic(fmt.Sprintf("INVARIANT_VIOLATION: account %s balance %v", a.Address.Hex(), a.BalanceWei))
	}
}
