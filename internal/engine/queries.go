package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"drealestate/internal/domain"
	"drealestate/internal/event"
	"drealestate/pkg/safe"
)

// Call dry-runs ev against current state and returns the property id it
// would create or touch. Nothing is stamped or persisted.
func (l *Ledger) Call(ev event.Event) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.check(ev); err != nil {
		return 0, err
	}

	switch e := ev.(type) {
	case *event.ListPropertyEvent:
		return uint64(len(l.properties)), nil
	case *event.BuyPropertyEvent:
		return e.PropertyID, nil
	case *event.ToggleForSaleEvent:
		return e.PropertyID, nil
	case *event.UpdatePriceEvent:
		return e.PropertyID, nil
	}
	return 0, nil
}

// EstimateGas returns the gas ev would use, or the error it would fail with.
func (l *Ledger) EstimateGas(ev event.Event) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	// Estimation ignores the caller's limit.
	tx := ev.GetTx()
	limit := tx.Gas
	tx.Gas = 0
	defer func() { tx.Gas = limit }()

	return l.check(ev)
}

// Property returns a copy of the property with the given id.
func (l *Ledger) Property(id uint64) (domain.Property, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, err := l.lookup(id)
	if err != nil {
		return domain.Property{}, err
	}
	return p.Clone(), nil
}

// PropertyCount returns the number of properties ever listed.
func (l *Ledger) PropertyCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.properties))
}

// IsOwner reports whether from owns property id.
func (l *Ledger) IsOwner(from common.Address, id uint64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, err := l.lookup(id)
	if err != nil {
		return false, err
	}
	return p.OwnedBy(from), nil
}

// Accounts returns the funded accounts in genesis order.
func (l *Ledger) Accounts() []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]common.Address, len(l.order))
	copy(out, l.order)
	return out
}

// HasAccount reports whether addr is an unlocked account on this ledger.
func (l *Ledger) HasAccount(addr common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.accounts[addr]
	return ok
}

// Balance returns the wei balance of addr; unknown accounts hold zero.
func (l *Ledger) Balance(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if a, ok := l.accounts[addr]; ok {
		return safe.Clone(a.BalanceWei)
	}
	return new(big.Int)
}

// Nonce returns the number of transactions addr has sent.
func (l *Ledger) Nonce(addr common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if a, ok := l.accounts[addr]; ok {
		return a.Nonce
	}
	return 0
}

// BlockNumber returns the latest mined block, 0 before the first transaction.
func (l *Ledger) BlockNumber() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextSeq - 1
}

// GasPrice returns the price charged per unit of gas.
func (l *Ledger) GasPrice() *big.Int {
	return safe.Clone(l.gasPrice)
}

// Receipt looks up a mined transaction by hash.
func (l *Ledger) Receipt(hash common.Hash) (*event.Receipt, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.byHash[hash]
	return r, ok
}

// Logs returns every log emitted in blocks [from, to], in order.
func (l *Ledger) Logs(from, to uint64) []event.Log {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if from == 0 {
		from = 1
	}
	var out []event.Log
	for _, r := range l.receipts {
		if r.BlockNumber < from || r.BlockNumber > to {
			continue
		}
		out = append(out, r.Logs...)
	}
	return out
}

// String summarizes the ledger for logs.
func (l *Ledger) String() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fmt.Sprintf("ledger{block=%d accounts=%d properties=%d}", l.nextSeq-1, len(l.accounts), len(l.properties))
}

// StateDigest hashes balances, nonces, properties and the block height.
// Two ledgers that applied the same transactions have the same digest.
func (l *Ledger) StateDigest() common.Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()

	addrs := make([]common.Address, 0, len(l.accounts))
	for addr := range l.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })

	h := crypto.NewKeccakState()
	var num [8]byte
	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(num[:], v)
		h.Write(num[:])
	}
	writeBig := func(v *big.Int) {
		h.Write(common.BigToHash(v).Bytes())
	}
	writeString := func(s string) {
		writeUint(uint64(len(s)))
		h.Write([]byte(s))
	}

	writeUint(l.nextSeq - 1)
	for _, addr := range addrs {
		a := l.accounts[addr]
		h.Write(addr[:])
		writeBig(a.BalanceWei)
		writeUint(a.Nonce)
	}
	for _, p := range l.properties {
		writeUint(p.ID)
		writeString(p.Name)
		writeString(p.Location)
		writeString(p.Description)
		writeString(p.ImageURL)
		writeBig(p.Price)
		writeBig(p.Size)
		h.Write([]byte{p.Bedrooms, p.Bathrooms})
		h.Write(p.Owner[:])
		if p.IsForSale {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}

	var out common.Hash
	h.Read(out[:])
	return out
}
