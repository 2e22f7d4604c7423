package engine

import (
	"fmt"
	"math/big"

	"drealestate/internal/domain"
	"drealestate/internal/event"
	"drealestate/pkg/safe"
)

// Intrinsic gas charged per method. Every call costs exactly this much, so
// estimateGas and the mined receipt always agree.
const (
	GasTransfer      uint64 = 21_000
	GasListProperty  uint64 = 240_000
	GasBuyProperty   uint64 = 85_000
	GasToggleForSale uint64 = 35_000
	GasUpdatePrice   uint64 = 35_000
)

// Revert reasons raised by the marketplace contract.
const (
	ReasonPriceZero     = "Price must be greater than zero"
	ReasonNameEmpty     = "Name cannot be empty"
	ReasonLocationEmpty = "Location cannot be empty"
	ReasonNotExist      = "Property does not exist"
	ReasonNotForSale    = "Property is not for sale"
	ReasonOwnerBuys     = "Owner cannot buy own property"
	ReasonLowValue      = "Not enough ETH sent"
	ReasonToggleOwner   = "Only owner can toggle sale status"
	ReasonPriceOwner    = "Only owner can update price"
)

// GasCost returns the gas a transaction of type t consumes.
func GasCost(t event.Type) uint64 {
	switch t {
	case event.EvListProperty:
		return GasListProperty
	case event.EvBuyProperty:
		return GasBuyProperty
	case event.EvToggleForSale:
		return GasToggleForSale
	case event.EvUpdatePrice:
		return GasUpdatePrice
	default:
		return GasTransfer
	}
}

func revert(reason string) error {
	return &domain.RevertError{Reason: reason}
}

// check validates ev against current state without mutating it and returns
// the gas it would use. Caller holds mu.
func (l *Ledger) check(ev event.Event) (uint64, error) {
	tx := ev.GetTx()
	acc, ok := l.accounts[tx.From]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, tx.From.Hex())
	}

	gas := GasCost(ev.GetType())
	if tx.Gas != 0 && tx.Gas < gas {
		return 0, ErrOutOfGas
	}

	price := tx.GasPrice
	if price == nil {
		price = l.gasPrice
	}
	value := tx.ValueOrZero()
	if value.Sign() < 0 || price.Sign() < 0 {
		return 0, ErrInsufficientFunds
	}
	// Gas price and value are caller supplied and may exceed uint256.
	total := new(big.Int).Mul(new(big.Int).SetUint64(gas), price)
	total.Add(total, value)
	if !safe.FitsUint256(total) || !acc.CanAfford(total) {
		return 0, ErrInsufficientFunds
	}

	// Only buyProperty is payable.
	if ev.GetType() != event.EvBuyProperty && value.Sign() > 0 {
		return 0, revert("")
	}

	if err := l.rules(ev); err != nil {
		return 0, err
	}
	return gas, nil
}

func (l *Ledger) rules(ev event.Event) error {
	from := ev.GetTx().From

	switch e := ev.(type) {
	case *event.ListPropertyEvent:
		if e.Price == nil || e.Price.Sign() <= 0 {
			return revert(ReasonPriceZero)
		}
		if e.Name == "" {
			return revert(ReasonNameEmpty)
		}
		if e.Location == "" {
			return revert(ReasonLocationEmpty)
		}

	case *event.BuyPropertyEvent:
		p, err := l.lookup(e.PropertyID)
		if err != nil {
			return err
		}
		if !p.IsForSale {
			return revert(ReasonNotForSale)
		}
		if p.Owner == from {
			return revert(ReasonOwnerBuys)
		}
		if e.ValueOrZero().Cmp(p.Price) < 0 {
			return revert(ReasonLowValue)
		}

	case *event.ToggleForSaleEvent:
		p, err := l.lookup(e.PropertyID)
		if err != nil {
			return err
		}
		if p.Owner != from {
			return revert(ReasonToggleOwner)
		}

	case *event.UpdatePriceEvent:
		p, err := l.lookup(e.PropertyID)
		if err != nil {
			return err
		}
		if p.Owner != from {
			return revert(ReasonPriceOwner)
		}
		if e.Price == nil || e.Price.Sign() <= 0 {
			return revert(ReasonPriceZero)
		}

	default:
		return fmt.Errorf("unsupported transaction type %s", ev.GetType())
	}
	return nil
}

func (l *Ledger) lookup(id uint64) (*domain.Property, error) {
	if id >= uint64(len(l.properties)) {
		return nil, revert(ReasonNotExist)
	}
	return l.properties[id], nil
}

// apply mutates state for an already checked transaction. Caller holds mu.
func (l *Ledger) apply(ev event.Event, gasUsed uint64) *event.Receipt {
	tx := ev.GetTx()
	sender := l.accounts[tx.From]

	price := tx.GasPrice
	if price == nil {
		price = l.gasPrice
	}
	sender.Debit(safe.Mul(new(big.Int).SetUint64(gasUsed), safe.Clone(price)))
	sender.Nonce++

	rec := &event.Receipt{
		TxHash:      tx.Hash,
		BlockNumber: ev.GetSeq(),
		From:        tx.From,
		Method:      ev.GetType(),
		GasUsed:     gasUsed,
		Ts:          int64(ev.GetTs()),
	}

	switch e := ev.(type) {
	case *event.ListPropertyEvent:
		id := uint64(len(l.properties))
		l.properties = append(l.properties, &domain.Property{
			ID:          id,
			Name:        e.Name,
			Location:    e.Location,
			Description: e.Description,
			ImageURL:    e.ImageURL,
			Price:       safe.Clone(e.Price),
			Size:        safe.Clone(e.Size),
			Bedrooms:    e.Bedrooms,
			Bathrooms:   e.Bathrooms,
			Owner:       tx.From,
			IsForSale:   true,
		})
		rec.ReturnID = id
		rec.Logs = append(rec.Logs, event.Log{
			Type:       event.LogPropertyListed,
			PropertyID: id,
			Location:   e.Location,
			Price:      safe.Clone(e.Price),
			Owner:      tx.From,
		})

	case *event.BuyPropertyEvent:
		p := l.properties[e.PropertyID]
		seller, ok := l.accounts[p.Owner]
		if !ok {
			seller = domain.NewAccount(p.Owner, nil)
			l.accounts[p.Owner] = seller
			l.order = append(l.order, p.Owner)
		}

		value := tx.ValueOrZero()
		sender.Debit(value)
		seller.Credit(p.Price)
		sender.Credit(safe.Sub(value, p.Price))

		oldOwner := p.Owner
		p.Owner = tx.From
		p.IsForSale = false

		rec.ReturnID = p.ID
		rec.Logs = append(rec.Logs, event.Log{
			Type:       event.LogPropertySold,
			PropertyID: p.ID,
			Price:      safe.Clone(p.Price),
			OldOwner:   oldOwner,
			NewOwner:   tx.From,
		})

	case *event.ToggleForSaleEvent:
		p := l.properties[e.PropertyID]
		p.IsForSale = !p.IsForSale
		rec.ReturnID = p.ID

	case *event.UpdatePriceEvent:
		p := l.properties[e.PropertyID]
		p.Price = safe.Clone(e.Price)
		rec.ReturnID = p.ID
	}

	for i := range rec.Logs {
		rec.Logs[i].BlockNumber = rec.BlockNumber
		rec.Logs[i].TxHash = rec.TxHash
		rec.Logs[i].Index = uint(i)
	}

	l.receipts = append(l.receipts, rec)
	l.byHash[rec.TxHash] = rec

	sender.VerifyInvariant()
	return rec
}
