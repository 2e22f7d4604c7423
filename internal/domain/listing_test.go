package domain

import (
	"errors"
	"testing"
)

func validForm() ListingForm {
	return ListingForm{
		Name:        "Sunset Villa",
		Location:    "123 Main St, CryptoCity",
		Description: "Three floors, sea view",
		ImageURL:    "https://example.com/villa.png",
		Price:       "1.5",
		Size:        "2400",
		Bedrooms:    "3",
		Bathrooms:   "2",
	}
}

func TestListingForm_Validate(t *testing.T) {
	l, err := validForm().Validate()
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if l.Price.String() != "1500000000000000000" {
		t.Errorf("price = %s", l.Price)
	}
	if l.Size.Int64() != 2400 || l.Bedrooms != 3 || l.Bathrooms != 2 {
		t.Errorf("unexpected numbers: %+v", l)
	}
}

func TestListingForm_Validate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*ListingForm)
		field string
	}{
		{"Missing Name", func(f *ListingForm) { f.Name = "  " }, "name"},
		{"Missing Location", func(f *ListingForm) { f.Location = "" }, "location"},
		{"Missing Description", func(f *ListingForm) { f.Description = "" }, "description"},
		{"Zero Price", func(f *ListingForm) { f.Price = "0" }, "price"},
		{"Bad Price", func(f *ListingForm) { f.Price = "cheap" }, "price"},
		{"Negative Size", func(f *ListingForm) { f.Size = "-1" }, "size"},
		{"Fractional Bedrooms", func(f *ListingForm) { f.Bedrooms = "2.5" }, "bedrooms"},
		{"Too Many Bathrooms", func(f *ListingForm) { f.Bathrooms = "256" }, "bathrooms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.mut(&f)
			_, err := f.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %s, want %s", verr.Field, tt.field)
			}
		})
	}
}

func TestListingForm_ImageOptional(t *testing.T) {
	f := validForm()
	f.ImageURL = ""
	if _, err := f.Validate(); err != nil {
		t.Errorf("image should be optional: %v", err)
	}
}
