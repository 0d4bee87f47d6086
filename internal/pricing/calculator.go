// Package pricing computes quote line and aggregate amounts in decimal
// arithmetic. It holds no state and performs no I/O.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places money is rounded to.
const MoneyPlaces int32 = 2

// MaxQuantity bounds a single line's quantity.
const MaxQuantity = 1_000_000

var (
	hundred = decimal.NewFromInt(100)

	// MaxAmount is the exclusive upper bound of any stored amount. It matches
	// the numeric(14,2) money columns.
	MaxAmount = decimal.New(1, 12)
)

// ItemInput carries the priced fields of a single line item.
type ItemInput struct {
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
}

// ItemTotals is the derived breakdown of one line item.
type ItemTotals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	LineTotal      decimal.Decimal
}

// QuoteTotals is the derived breakdown of a whole quote. Items is in input order.
type QuoteTotals struct {
	Items         []ItemTotals
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	TotalTax      decimal.Decimal
	ShippingCost  decimal.Decimal
	GrandTotal    decimal.Decimal
}

// ValidationError names the input field that failed a precondition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ComputeItem derives the amounts of a single item. Unit prices are whole
// cents, so the subtotal is exact; discount and tax are rounded to cents and
// the line total equals the discounted subtotal plus the rounded tax.
func ComputeItem(item ItemInput) (ItemTotals, error) {
	return computeItem("", item)
}

// ComputeQuote derives the quote aggregates as sums of the rounded per-item
// parts, so grandTotal == subtotal - totalDiscount + totalTax + shipping holds
// exactly.
func ComputeQuote(items []ItemInput, shippingCost decimal.Decimal) (QuoteTotals, error) {
	if err := validateAmount("shipping_cost", shippingCost); err != nil {
		return QuoteTotals{}, err
	}

	totals := QuoteTotals{
		Items:         make([]ItemTotals, 0, len(items)),
		Subtotal:      decimal.Zero,
		TotalDiscount: decimal.Zero,
		TotalTax:      decimal.Zero,
		ShippingCost:  shippingCost,
	}
	for i, item := range items {
		line, err := computeItem(fmt.Sprintf("items[%d].", i), item)
		if err != nil {
			return QuoteTotals{}, err
		}
		totals.Items = append(totals.Items, line)
		totals.Subtotal = totals.Subtotal.Add(line.Subtotal)
		totals.TotalDiscount = totals.TotalDiscount.Add(line.DiscountAmount)
		totals.TotalTax = totals.TotalTax.Add(line.TaxAmount)
	}

	totals.GrandTotal = totals.Subtotal.
		Sub(totals.TotalDiscount).
		Add(totals.TotalTax).
		Add(totals.ShippingCost)
	if !totals.Subtotal.LessThan(MaxAmount) || !totals.GrandTotal.LessThan(MaxAmount) {
		return QuoteTotals{}, &ValidationError{Field: "items", Reason: "total exceeds " + MaxAmount.String()}
	}
	return totals, nil
}

func computeItem(prefix string, item ItemInput) (ItemTotals, error) {
	if err := validateItem(prefix, item); err != nil {
		return ItemTotals{}, err
	}

	subtotal := decimal.NewFromInt(int64(item.Quantity)).Mul(item.UnitPrice)
	discount := subtotal.Mul(item.DiscountPercent).Div(hundred).Round(MoneyPlaces)
	afterDiscount := subtotal.Sub(discount)
	tax := afterDiscount.Mul(item.TaxPercent).Div(hundred).Round(MoneyPlaces)

	return ItemTotals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxAmount:      tax,
		LineTotal:      afterDiscount.Add(tax),
	}, nil
}

func validateItem(prefix string, item ItemInput) error {
	if item.Quantity < 1 {
		return &ValidationError{Field: prefix + "quantity", Reason: "must be at least 1"}
	}
	if item.Quantity > MaxQuantity {
		return &ValidationError{Field: prefix + "quantity", Reason: fmt.Sprintf("must be at most %d", MaxQuantity)}
	}
	if err := validateAmount(prefix+"unit_price", item.UnitPrice); err != nil {
		return err
	}
	if !inPercentRange(item.DiscountPercent) {
		return &ValidationError{Field: prefix + "discount_percent", Reason: "must be between 0 and 100"}
	}
	if !inPercentRange(item.TaxPercent) {
		return &ValidationError{Field: prefix + "tax_percent", Reason: "must be between 0 and 100"}
	}
	return nil
}

// validateAmount accepts non-negative money with at most two decimal places
// below MaxAmount.
func validateAmount(field string, v decimal.Decimal) error {
	switch {
	case v.IsNegative():
		return &ValidationError{Field: field, Reason: "must be greater than or equal to 0"}
	case !v.Equal(v.Truncate(MoneyPlaces)):
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must have at most %d decimal places", MoneyPlaces)}
	case !v.LessThan(MaxAmount):
		return &ValidationError{Field: field, Reason: "must be less than " + MaxAmount.String()}
	}
	return nil
}

func inPercentRange(v decimal.Decimal) bool {
	return !v.IsNegative() && v.LessThanOrEqual(hundred)
}
