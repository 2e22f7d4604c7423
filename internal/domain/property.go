package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Property is a tokenized real-estate listing as stored by the marketplace contract.
// Price is in wei.
type Property struct {
	ID          uint64         `json:"id"`
	Name        string         `json:"name"`
	Location    string         `json:"location"`
	Description string         `json:"description"`
	ImageURL    string         `json:"imageUrl"`
	Price       *big.Int       `json:"price"`
	Size        *big.Int       `json:"size"`
	Bedrooms    uint8          `json:"bedrooms"`
	Bathrooms   uint8          `json:"bathrooms"`
	Owner       common.Address `json:"owner"`
	IsForSale   bool           `json:"isForSale"`
}

// OwnedBy reports whether account currently owns the property.
func (p *Property) OwnedBy(account common.Address) bool {
	return p.Owner == account
}

// Clone returns a deep copy so cached entries never share big.Int pointers.
func (p Property) Clone() Property {
	if p.Price != nil {
		p.Price = new(big.Int).Set(p.Price)
	}
	if p.Size != nil {
		p.Size = new(big.Int).Set(p.Size)
	}
	return p
}
