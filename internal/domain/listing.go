package domain

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"drealestate/pkg/quant"
)

// ListingForm carries the user-entered fields of a new listing.
// Numeric fields stay strings until Validate so that errors can name the field.
type ListingForm struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Price       string `json:"price"` // ether, e.g. "1.5"
	Size        string `json:"size"`  // square feet
	Bedrooms    string `json:"bedrooms"`
	Bathrooms   string `json:"bathrooms"`
}

// Listing is a validated ListingForm, ready to be encoded as listProperty arguments.
type Listing struct {
	Name        string
	Location    string
	Description string
	ImageURL    string
	Price       *big.Int
	Size        *big.Int
	Bedrooms    uint8
	Bathrooms   uint8
}

// Validate checks required fields and converts numbers.
// Description is required client-side even though the contract accepts it empty.
func (f ListingForm) Validate() (*Listing, error) {
	name := strings.TrimSpace(f.Name)
	location := strings.TrimSpace(f.Location)
	description := strings.TrimSpace(f.Description)

	switch {
	case name == "":
		return nil, NewValidationError("name", "Please fill in all required fields")
	case location == "":
		return nil, NewValidationError("location", "Please fill in all required fields")
	case description == "":
		return nil, NewValidationError("description", "Please fill in all required fields")
	}

	price, err := quant.ToWei(f.Price)
	if err != nil || price.Sign() == 0 {
		return nil, NewValidationError("price", "Please enter a valid price greater than zero")
	}

	size, err := parseCount(f.Size, math.MaxInt64)
	if err != nil {
		return nil, NewValidationError("size", "Please enter valid numbers for size, bedrooms, and bathrooms")
	}
	bedrooms, err := parseCount(f.Bedrooms, math.MaxUint8)
	if err != nil {
		return nil, NewValidationError("bedrooms", "Please enter valid numbers for size, bedrooms, and bathrooms")
	}
	bathrooms, err := parseCount(f.Bathrooms, math.MaxUint8)
	if err != nil {
		return nil, NewValidationError("bathrooms", "Please enter valid numbers for size, bedrooms, and bathrooms")
	}

	return &Listing{
		Name:        name,
		Location:    location,
		Description: description,
		ImageURL:    strings.TrimSpace(f.ImageURL),
		Price:       price,
		Size:        new(big.Int).SetUint64(size),
		Bedrooms:    uint8(bedrooms),
		Bathrooms:   uint8(bathrooms),
	}, nil
}

// parseCount accepts non-negative integers up to max.
func parseCount(s string, max uint64) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	if v > max {
		return 0, strconv.ErrRange
	}
	return v, nil
}
