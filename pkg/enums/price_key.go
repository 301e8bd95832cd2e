package enums

import "fmt"

// PriceKey names a row of the price table.
type PriceKey string

const (
	PriceBasic        PriceKey = "basic"
	PriceProfessional PriceKey = "professional"
	PriceBackground   PriceKey = "background"
	PriceEdit         PriceKey = "edit"
	PriceVirtualModel PriceKey = "virtual_model"
	PriceRetouch      PriceKey = "retouch"
)

var validPriceKeys = []PriceKey{
	PriceBasic,
	PriceProfessional,
	PriceBackground,
	PriceEdit,
	PriceVirtualModel,
	PriceRetouch,
}

// PriceKeys returns every known key in display order.
func PriceKeys() []PriceKey {
	out := make([]PriceKey, len(validPriceKeys))
	copy(out, validPriceKeys)
	return out
}

// String implements fmt.Stringer.
func (k PriceKey) String() string {
	return string(k)
}

// IsValid reports whether the value is known.
func (k PriceKey) IsValid() bool {
	for _, candidate := range validPriceKeys {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParsePriceKey converts raw input into a PriceKey.
func ParsePriceKey(value string) (PriceKey, error) {
	for _, candidate := range validPriceKeys {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid price key %q", value)
}
