package market

import (
	"github.com/ethereum/go-ethereum/common"

	"drealestate/internal/domain"
	"drealestate/pkg/quant"
)

// View is a property as seen by one account.
// Price is decimal ether; PriceWei keeps the exact amount.
type View struct {
	ID                 uint64         `json:"id"`
	Name               string         `json:"name"`
	Location           string         `json:"location"`
	Description        string         `json:"description"`
	ImageURL           string         `json:"imageUrl"`
	Price              string         `json:"price"`
	PriceWei           string         `json:"priceWei"`
	Size               string         `json:"size"`
	Bedrooms           uint8          `json:"bedrooms"`
	Bathrooms          uint8          `json:"bathrooms"`
	Owner              common.Address `json:"owner"`
	IsForSale          bool           `json:"isForSale"`
	IsCurrentUserOwner bool           `json:"isCurrentUserOwner"`
}

// NewView derives the account-specific view of p.
func NewView(p domain.Property, account common.Address) View {
	v := View{
		ID:                 p.ID,
		Name:               p.Name,
		Location:           p.Location,
		Description:        p.Description,
		ImageURL:           p.ImageURL,
		Price:              quant.FromWei(p.Price),
		PriceWei:           "0",
		Size:               "0",
		Bedrooms:           p.Bedrooms,
		Bathrooms:          p.Bathrooms,
		Owner:              p.Owner,
		IsForSale:          p.IsForSale,
		IsCurrentUserOwner: account != (common.Address{}) && p.OwnedBy(account),
	}
	if p.Price != nil {
		v.PriceWei = p.Price.String()
	}
	if p.Size != nil {
		v.Size = p.Size.String()
	}
	return v
}

func views(props []domain.Property, account common.Address) []View {
	out := make([]View, len(props))
	for i, p := range props {
		out[i] = NewView(p, account)
	}
	return out
}
