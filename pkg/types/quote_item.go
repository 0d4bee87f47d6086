package types

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteItem is one priced line of a quote. The amount fields are derived and
// always written by the pricing calculator.
type QuoteItem struct {
	ProductID       *uuid.UUID      `json:"product_id,omitempty"`
	ProductName     string          `json:"product_name"`
	Description     string          `json:"description,omitempty"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// QuoteItems stores the ordered line items inside a JSONB column.
type QuoteItems []QuoteItem

// Value serializes the items to JSON.
func (q QuoteItems) Value() (driver.Value, error) {
	if q == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(q)
}

// Scan decodes JSONB into the item list.
func (q *QuoteItems) Scan(value interface{}) error {
	if value == nil {
		*q = QuoteItems{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded QuoteItems
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*q = decoded
	return nil
}

