package market

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"drealestate/internal/domain"
)

// recentLimit bounds the history of finished transactions.
const recentLimit = 32

// Book caches listed properties, the partition owned by the active account
// and the transaction flags.
type Book struct {
	mu         sync.RWMutex
	properties map[uint64]domain.Property
	account    common.Address
	owned      map[uint64]struct{}
	stamps     map[uint64]uint64 // clock value of the last write per id
	clock      uint64
	pending    map[string]*domain.PendingTx // by account and key
	recent     []domain.PendingTx
}

func NewBook() *Book {
	return &Book{
		properties: make(map[uint64]domain.Property),
		owned:      make(map[uint64]struct{}),
		stamps:     make(map[uint64]uint64),
		pending:    make(map[string]*domain.PendingTx),
	}
}

// Account returns the account the owned partition is computed for.
func (b *Book) Account() common.Address {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.account
}

// Reset drops every cached property and switches the active account.
func (b *Book) Reset(account common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.account = account
	b.properties = make(map[uint64]domain.Property)
	b.owned = make(map[uint64]struct{})
	b.stamps = make(map[uint64]uint64)
}

// Mark returns the current write clock. Pass it to Replace once the load
// that started after it has finished.
func (b *Book) Mark() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.clock
}

// Replace swaps in a freshly loaded set of properties. Entries written after
// mark are newer than the load and are kept.
func (b *Book) Replace(props []domain.Property, mark uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fresh := make(map[uint64]domain.Property, len(props))
	for _, p := range props {
		fresh[p.ID] = p
	}
	for id, p := range b.properties {
		if b.stamps[id] > mark {
			fresh[id] = p
		}
	}

	stamps := b.stamps
	b.properties = make(map[uint64]domain.Property, len(fresh))
	b.owned = make(map[uint64]struct{})
	b.stamps = make(map[uint64]uint64, len(fresh))
	for id, p := range fresh {
		if stamps[id] > mark {
			b.store(p, stamps[id])
			continue
		}
		b.put(p)
	}
}

// Upsert stores p by id and reports whether anything changed.
func (b *Book) Upsert(p domain.Property) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.properties[p.ID]; ok && sameProperty(old, p) {
		b.clock++
		b.stamps[p.ID] = b.clock
		return false
	}
	b.put(p)
	return true
}

func (b *Book) put(p domain.Property) {
	b.clock++
	b.store(p, b.clock)
}

func (b *Book) store(p domain.Property, stamp uint64) {
	b.stamps[p.ID] = stamp
	b.properties[p.ID] = p.Clone()
	if b.account != (common.Address{}) && p.OwnedBy(b.account) {
		b.owned[p.ID] = struct{}{}
	} else {
		delete(b.owned, p.ID)
	}
}

// Get returns a copy of property id.
func (b *Book) Get(id uint64) (domain.Property, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.properties[id]
	if !ok {
		return domain.Property{}, false
	}
	return p.Clone(), true
}

// Len returns the number of cached properties.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.properties)
}

// Select returns the properties accepted by keep, ordered by id.
func (b *Book) Select(keep func(domain.Property) bool) []domain.Property {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.Property, 0, len(b.properties))
	for _, p := range b.properties {
		if keep == nil || keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Owned returns the partition owned by account, using the cached partition
// when account is the active one.
func (b *Book) Owned(account common.Address) []domain.Property {
	if account == (common.Address{}) {
		return []domain.Property{}
	}

	b.mu.RLock()
	if account == b.account {
		out := make([]domain.Property, 0, len(b.owned))
		for id := range b.owned {
			out = append(out, b.properties[id].Clone())
		}
		b.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out
	}
	b.mu.RUnlock()

	return b.Select(func(p domain.Property) bool { return p.OwnedBy(account) })
}

func flagKey(account common.Address, key string) string {
	return account.Hex() + "/" + key
}

// Begin flags tx as in flight. It returns false when the same account
// already has tx.Key pending.
func (b *Book) Begin(tx domain.PendingTx) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	fk := flagKey(tx.Account, tx.Key)
	if _, busy := b.pending[fk]; busy {
		return false
	}
	tx.State = domain.TxPending
	if tx.StartedAt.IsZero() {
		tx.StartedAt = time.Now()
	}
	b.pending[fk] = &tx
	return true
}

// Finish clears the flag account holds on key and records the outcome.
func (b *Book) Finish(account common.Address, key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fk := flagKey(account, key)
	st, ok := b.pending[fk]
	if !ok {
		return
	}
	delete(b.pending, fk)

	st.FinishedAt = time.Now()
	st.State = domain.TxConfirmed
	if err != nil {
		st.State = domain.TxFailed
		st.Error = err.Error()
	}

	b.recent = append(b.recent, *st)
	if len(b.recent) > recentLimit {
		b.recent = b.recent[len(b.recent)-recentLimit:]
	}
}

// Pending returns the in-flight transactions, oldest first.
func (b *Book) Pending() []domain.PendingTx {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.PendingTx, 0, len(b.pending))
	for _, st := range b.pending {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			if out[i].Key == out[j].Key {
				return out[i].Account.Hex() < out[j].Account.Hex()
			}
			return out[i].Key < out[j].Key
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Recent returns finished transactions, newest last.
func (b *Book) Recent() []domain.PendingTx {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]domain.PendingTx(nil), b.recent...)
}

func sameProperty(a, b domain.Property) bool {
	return a.ID == b.ID &&
		a.Name == b.Name &&
		a.Location == b.Location &&
		a.Description == b.Description &&
		a.ImageURL == b.ImageURL &&
		cmpBig(a.Price, b.Price) &&
		cmpBig(a.Size, b.Size) &&
		a.Bedrooms == b.Bedrooms &&
		a.Bathrooms == b.Bathrooms &&
		a.Owner == b.Owner &&
		a.IsForSale == b.IsForSale
}

func cmpBig(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}
