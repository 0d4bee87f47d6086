package quotes

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalquotes "github.com/angelmondragon/portal-crm-backend/internal/quotes"
	"github.com/angelmondragon/portal-crm-backend/pkg/pagination"
	"github.com/angelmondragon/portal-crm-backend/pkg/types"
)

// itemRequest is a submitted line item. Derived amounts are accepted so the
// editor can post back what it rendered, but they are recomputed server side.
type itemRequest struct {
	ProductID       *uuid.UUID       `json:"product_id,omitempty"`
	ProductName     string           `json:"product_name" validate:"max=200"`
	Description     string           `json:"description,omitempty" validate:"max=2000"`
	Quantity        int              `json:"quantity"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	TaxPercent      decimal.Decimal  `json:"tax_percent"`
	Subtotal        *decimal.Decimal `json:"subtotal,omitempty"`
	DiscountAmount  *decimal.Decimal `json:"discount_amount,omitempty"`
	TaxAmount       *decimal.Decimal `json:"tax_amount,omitempty"`
	LineTotal       *decimal.Decimal `json:"line_total,omitempty"`
}

// clientTotals are quote level amounts a client may echo back. They are ignored.
type clientTotals struct {
	Subtotal      *decimal.Decimal `json:"subtotal,omitempty"`
	TotalDiscount *decimal.Decimal `json:"total_discount,omitempty"`
	TotalTax      *decimal.Decimal `json:"total_tax,omitempty"`
	GrandTotal    *decimal.Decimal `json:"grand_total,omitempty"`
}

type createQuoteRequest struct {
	clientTotals
	Title              string                `json:"title" validate:"required,max=200"`
	Items              []itemRequest         `json:"items" validate:"required,min=1,max=200,dive"`
	BillingAddress     *types.BillingAddress `json:"billing_address,omitempty"`
	ShippingCost       decimal.Decimal       `json:"shipping_cost"`
	IssueDate          *time.Time            `json:"issue_date,omitempty"`
	ExpiryDate         *time.Time            `json:"expiry_date,omitempty"`
	OwnerID            *uuid.UUID            `json:"owner_id,omitempty"`
	Notes              *string               `json:"notes,omitempty" validate:"omitempty,max=5000"`
	TermsAndConditions *string               `json:"terms_and_conditions,omitempty" validate:"omitempty,max=10000"`
	Status             *string               `json:"status,omitempty"`
}

type updateQuoteRequest struct {
	clientTotals
	Title              *string               `json:"title,omitempty" validate:"omitempty,max=200"`
	Items              *[]itemRequest        `json:"items,omitempty" validate:"omitempty,max=200,dive"`
	BillingAddress     *types.BillingAddress `json:"billing_address,omitempty"`
	ShippingCost       *decimal.Decimal      `json:"shipping_cost,omitempty"`
	ExpiryDate         *time.Time            `json:"expiry_date,omitempty"`
	OwnerID            *uuid.UUID            `json:"owner_id,omitempty"`
	Notes              *string               `json:"notes,omitempty" validate:"omitempty,max=5000"`
	TermsAndConditions *string               `json:"terms_and_conditions,omitempty" validate:"omitempty,max=10000"`
	LockVersion        *int                  `json:"lock_version,omitempty"`
	Status             *string               `json:"status,omitempty"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type conversionResponse struct {
	QuoteID          uuid.UUID `json:"quote_id"`
	DealID           uuid.UUID `json:"deal_id"`
	AlreadyConverted bool      `json:"already_converted"`
}

type quoteListResponse struct {
	Quotes     []internalquotes.QuoteDTO `json:"quotes"`
	Pagination pagination.Meta           `json:"pagination"`
}

func toItemInputs(items []itemRequest) []internalquotes.ItemInput {
	out := make([]internalquotes.ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, internalquotes.ItemInput{
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			TaxPercent:      item.TaxPercent,
		})
	}
	return out
}

func (r createQuoteRequest) toInput() internalquotes.CreateQuoteInput {
	return internalquotes.CreateQuoteInput{
		Title:              r.Title,
		Items:              toItemInputs(r.Items),
		BillingAddress:     r.BillingAddress,
		ShippingCost:       r.ShippingCost,
		IssueDate:          r.IssueDate,
		ExpiryDate:         r.ExpiryDate,
		OwnerID:            r.OwnerID,
		Notes:              r.Notes,
		TermsAndConditions: r.TermsAndConditions,
	}
}

func (r updateQuoteRequest) toInput() internalquotes.UpdateQuoteInput {
	input := internalquotes.UpdateQuoteInput{
		Title:               r.Title,
		BillingAddress:      r.BillingAddress,
		ShippingCost:        r.ShippingCost,
		ExpiryDate:          r.ExpiryDate,
		OwnerID:             r.OwnerID,
		Notes:               r.Notes,
		TermsAndConditions:  r.TermsAndConditions,
		ExpectedLockVersion: r.LockVersion,
	}
	if r.Items != nil {
		input.Items = toItemInputs(*r.Items)
	}
	return input
}
