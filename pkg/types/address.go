package types

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
)

// BillingAddress is the optional structured address printed on a quote.
type BillingAddress struct {
	Name    string `json:"name,omitempty" validate:"omitempty,max=200"`
	Company string `json:"company,omitempty" validate:"omitempty,max=200"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Street  string `json:"street,omitempty" validate:"omitempty,max=300"`
	City    string `json:"city,omitempty" validate:"omitempty,max=100"`
	State   string `json:"state,omitempty" validate:"omitempty,max=100"`
	ZipCode string `json:"zip_code,omitempty" validate:"omitempty,max=20"`
	Country string `json:"country,omitempty" validate:"omitempty,max=100"`
}

// IsZero reports whether every field is blank.
func (a BillingAddress) IsZero() bool {
	for _, v := range []string{a.Name, a.Company, a.Email, a.Phone, a.Street, a.City, a.State, a.ZipCode, a.Country} {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Value serializes the address to JSON.
func (a *BillingAddress) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan decodes a JSON column into the address.
func (a *BillingAddress) Scan(value interface{}) error {
	if value == nil {
		*a = BillingAddress{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, a)
}
