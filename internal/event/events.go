package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"drealestate/pkg/quant"
)

// Type defines the type of event.
type Type uint16

const (
	EvListProperty Type = iota + 1
	EvBuyProperty
	EvToggleForSale
	EvUpdatePrice
)

func (t Type) String() string {
	switch t {
	case EvListProperty:
		return "listProperty"
	case EvBuyProperty:
		return "buyProperty"
	case EvToggleForSale:
		return "toggleForSale"
	case EvUpdatePrice:
		return "updatePropertyPrice"
	default:
		return "unknown"
	}
}

// Event is the interface for all ledger transactions.
// Every accepted Event is written to the WAL before it is applied.
type Event interface {
	GetSeq() uint64
	GetTs() quant.TimeStamp
	GetType() Type
	GetTx() *TxEnvelope
	Stamp(seq uint64, ts quant.TimeStamp)
}

// BaseEvent contains common fields for all events.
// Seq doubles as the block number: the ledger mines one transaction per block.
type BaseEvent struct {
	Seq uint64          `json:"seq"`
	Ts  quant.TimeStamp `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64         { return e.Seq }
func (e BaseEvent) GetTs() quant.TimeStamp { return e.Ts }

func (e *BaseEvent) Stamp(seq uint64, ts quant.TimeStamp) {
	e.Seq = seq
	e.Ts = ts
}

// TxEnvelope holds the sender-side fields shared by every transaction.
type TxEnvelope struct {
	From     common.Address `json:"from"`
	Value    *big.Int       `json:"value,omitempty"`
	Gas      uint64         `json:"gas"`
	GasPrice *big.Int       `json:"gas_price,omitempty"`
	Nonce    uint64         `json:"nonce"`
	Hash     common.Hash    `json:"hash"`
}

func (t *TxEnvelope) GetTx() *TxEnvelope { return t }

// ValueOrZero returns Value, or zero when the transaction carries no ether.
func (t *TxEnvelope) ValueOrZero() *big.Int {
	if t.Value == nil {
		return new(big.Int)
	}
	return t.Value
}

// ListPropertyEvent creates a new listing owned by the sender.
type ListPropertyEvent struct {
	BaseEvent
	TxEnvelope
	Name        string   `json:"name"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url"`
	Price       *big.Int `json:"price"`
	Size        *big.Int `json:"size"`
	Bedrooms    uint8    `json:"bedrooms"`
	Bathrooms   uint8    `json:"bathrooms"`
}

func (e ListPropertyEvent) GetType() Type { return EvListProperty }

// BuyPropertyEvent transfers a listing to the sender against Value.
type BuyPropertyEvent struct {
	BaseEvent
	TxEnvelope
	PropertyID uint64 `json:"property_id"`
}

func (e BuyPropertyEvent) GetType() Type { return EvBuyProperty }

// ToggleForSaleEvent flips the for-sale flag.
type ToggleForSaleEvent struct {
	BaseEvent
	TxEnvelope
	PropertyID uint64 `json:"property_id"`
}

func (e ToggleForSaleEvent) GetType() Type { return EvToggleForSale }

// UpdatePriceEvent sets a new asking price.
type UpdatePriceEvent struct {
	BaseEvent
	TxEnvelope
	PropertyID uint64   `json:"property_id"`
	Price      *big.Int `json:"price"`
}

func (e UpdatePriceEvent) GetType() Type { return EvUpdatePrice }

// New returns an empty event of the given type, for decoding WAL payloads.
func New(t Type) (Event, bool) {
	switch t {
	case EvListProperty:
		return &ListPropertyEvent{}, true
	case EvBuyProperty:
		return &BuyPropertyEvent{}, true
	case EvToggleForSale:
		return &ToggleForSaleEvent{}, true
	case EvUpdatePrice:
		return &UpdatePriceEvent{}, true
	default:
		return nil, false
	}
}
