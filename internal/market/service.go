// Package market keeps the client-side view of the marketplace in sync with
// the contract and runs user actions against it.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gofrs/uuid/v5"

	"drealestate/internal/domain"
	"drealestate/internal/event"
)

// ErrInFlight rejects an action the same account already has pending.
var ErrInFlight = errors.New("a transaction for this property is already in progress")

// Contract is the subset of the contract client the service drives.
type Contract interface {
	GetPropertyCount(ctx context.Context) (uint64, error)
	GetProperty(ctx context.Context, id uint64) (domain.Property, error)
	ListProperty(ctx context.Context, from common.Address, form domain.ListingForm) (uint64, error)
	BuyProperty(ctx context.Context, from common.Address, id uint64, price *big.Int) (*types.Receipt, error)
	ToggleForSale(ctx context.Context, from common.Address, id uint64) (*types.Receipt, error)
	UpdatePropertyPrice(ctx context.Context, from common.Address, id uint64, price *big.Int) (*types.Receipt, error)
}

// AccountSource lists the signer accounts of the connected node.
type AccountSource interface {
	Accounts() []common.Address
}

// Service orchestrates loads, user actions and contract events over a Book.
type Service struct {
	contract Contract
	accounts AccountSource
	book     *Book
}

func NewService(c Contract, accounts AccountSource) *Service {
	return &Service{contract: c, accounts: accounts, book: NewBook()}
}

// Book exposes the underlying cache.
func (s *Service) Book() *Book { return s.book }

// Account returns the selected account.
func (s *Service) Account() common.Address { return s.book.Account() }

// Accounts returns the signer accounts.
func (s *Service) Accounts() []common.Address { return s.accounts.Accounts() }

// SelectAccount makes accounts[index] active, clears the cache and reloads.
func (s *Service) SelectAccount(ctx context.Context, index int) (common.Address, error) {
	accounts := s.accounts.Accounts()
	if index < 0 || index >= len(accounts) {
		return common.Address{}, fmt.Errorf("%w: index %d of %d", domain.ErrNoAccount, index, len(accounts))
	}
	account := accounts[index]
	s.book.Reset(account)
	slog.Info("👤 Account selected", slog.String("account", account.Hex()), slog.Int("index", index))
	return account, s.Load(ctx)
}

// Load fetches every property. Ids that fail to load are logged and skipped.
// Properties refreshed by events while the load runs keep their newer state.
func (s *Service) Load(ctx context.Context) error {
	mark := s.book.Mark()
	count, err := s.contract.GetPropertyCount(ctx)
	if err != nil {
		return fmt.Errorf("load properties: %w", err)
	}

	props := make([]domain.Property, 0, count)
	for id := uint64(0); id < count; id++ {
		p, err := s.contract.GetProperty(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("Skipping property", slog.Uint64("id", id), slog.Any("err", err))
			continue
		}
		props = append(props, p)
	}

	s.book.Replace(props, mark)
	slog.Info("🏠 Properties loaded", slog.Int("count", len(props)), slog.Uint64("onchain", count))
	return nil
}

// HandleLog refreshes the property a contract event refers to.
// Replaying the same event leaves the book unchanged.
func (s *Service) HandleLog(ctx context.Context, lg event.Log) {
	changed, err := s.refresh(ctx, lg.PropertyID)
	if err != nil {
		slog.Warn("Refresh after event failed",
			slog.String("event", lg.Type.String()),
			slog.Uint64("id", lg.PropertyID),
			slog.Any("err", err))
		return
	}
	if changed {
		slog.Info("Property updated", slog.String("event", lg.Type.String()), slog.Uint64("id", lg.PropertyID))
	}
}

// List submits a new listing and returns it.
func (s *Service) List(ctx context.Context, from common.Address, form domain.ListingForm) (View, error) {
	if from == (common.Address{}) {
		return View{}, domain.ErrNoAccount
	}
	key := string(domain.TxList) + "-" + uuid.Must(uuid.NewV4()).String()

	var id uint64
	err := s.track(domain.PendingTx{Key: key, Kind: domain.TxList, Account: from}, func() error {
		var err error
		id, err = s.contract.ListProperty(ctx, from, form)
		return err
	})
	if err != nil {
		return View{}, err
	}
	return s.refreshed(ctx, id, from)
}

// Buy pays the current price of property id.
func (s *Service) Buy(ctx context.Context, from common.Address, id uint64) (View, error) {
	p, err := s.property(ctx, id)
	if err != nil {
		return View{}, err
	}
	if p.OwnedBy(from) {
		return View{}, domain.ErrBuyOwn
	}

	err = s.track(txFor(domain.TxBuy, id, from), func() error {
		_, err := s.contract.BuyProperty(ctx, from, id, p.Price)
		return err
	})
	if err != nil {
		return View{}, err
	}
	return s.refreshed(ctx, id, from)
}

// ToggleForSale flips the sale flag of a property owned by from.
func (s *Service) ToggleForSale(ctx context.Context, from common.Address, id uint64) (View, error) {
	if err := s.requireOwner(ctx, from, id); err != nil {
		return View{}, err
	}

	err := s.track(txFor(domain.TxToggle, id, from), func() error {
		_, err := s.contract.ToggleForSale(ctx, from, id)
		return err
	})
	if err != nil {
		return View{}, err
	}
	return s.refreshed(ctx, id, from)
}

// UpdatePrice sets a new price in wei on a property owned by from.
func (s *Service) UpdatePrice(ctx context.Context, from common.Address, id uint64, price *big.Int) (View, error) {
	if price == nil || price.Sign() <= 0 {
		return View{}, domain.NewValidationError("price", "Please enter a valid price greater than zero")
	}
	if err := s.requireOwner(ctx, from, id); err != nil {
		return View{}, err
	}

	err := s.track(txFor(domain.TxPrice, id, from), func() error {
		_, err := s.contract.UpdatePropertyPrice(ctx, from, id, price)
		return err
	})
	if err != nil {
		return View{}, err
	}
	return s.refreshed(ctx, id, from)
}

// Marketplace lists properties for sale that account does not own.
func (s *Service) Marketplace(account common.Address) []View {
	return views(s.book.Select(func(p domain.Property) bool {
		return p.IsForSale && !p.OwnedBy(account)
	}), account)
}

// Owned lists the properties of account.
func (s *Service) Owned(account common.Address) []View {
	return views(s.book.Owned(account), account)
}

// All lists every cached property.
func (s *Service) All(account common.Address) []View {
	return views(s.book.Select(nil), account)
}

// Property returns one cached property.
func (s *Service) Property(id uint64, account common.Address) (View, bool) {
	p, ok := s.book.Get(id)
	if !ok {
		return View{}, false
	}
	return NewView(p, account), true
}

// Pending lists in-flight transactions.
func (s *Service) Pending() []domain.PendingTx { return s.book.Pending() }

// Recent lists finished transactions.
func (s *Service) Recent() []domain.PendingTx { return s.book.Recent() }

func txFor(kind domain.TxKind, id uint64, from common.Address) domain.PendingTx {
	return domain.PendingTx{Key: domain.TxKey(kind, id), Kind: kind, PropertyID: &id, Account: from}
}

func (s *Service) track(st domain.PendingTx, fn func() error) error {
	if st.Account == (common.Address{}) {
		return domain.ErrNoAccount
	}
	if !s.book.Begin(st) {
		return ErrInFlight
	}

	err := fn()
	s.book.Finish(st.Account, st.Key, err)
	if err != nil {
		slog.Warn("Transaction failed", slog.String("key", st.Key), slog.Any("err", err))
		return err
	}
	slog.Info("✅ Transaction confirmed", slog.String("key", st.Key), slog.String("account", st.Account.Hex()))
	return nil
}

// property returns the cached entry, fetching it on a miss.
func (s *Service) property(ctx context.Context, id uint64) (domain.Property, error) {
	if p, ok := s.book.Get(id); ok {
		return p, nil
	}
	if _, err := s.refresh(ctx, id); err != nil {
		return domain.Property{}, err
	}
	p, _ := s.book.Get(id)
	return p, nil
}

func (s *Service) requireOwner(ctx context.Context, from common.Address, id uint64) error {
	if from == (common.Address{}) {
		return domain.ErrNoAccount
	}
	p, err := s.property(ctx, id)
	if err != nil {
		return err
	}
	if !p.OwnedBy(from) {
		return domain.ErrNotOwner
	}
	return nil
}

func (s *Service) refresh(ctx context.Context, id uint64) (bool, error) {
	p, err := s.contract.GetProperty(ctx, id)
	if err != nil {
		return false, err
	}
	return s.book.Upsert(p), nil
}

func (s *Service) refreshed(ctx context.Context, id uint64, account common.Address) (View, error) {
	if _, err := s.refresh(ctx, id); err != nil {
		return View{}, fmt.Errorf("refresh property %d: %w", id, err)
	}
	v, _ := s.Property(id, account)
	return v, nil
}
