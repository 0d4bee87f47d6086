package quotes

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	"github.com/angelmondragon/portal-crm-backend/pkg/pagination"
	"github.com/angelmondragon/portal-crm-backend/pkg/types"
)

const (
	MaxItems       = 200
	MaxTitleLength = 200
)

// Actor is the authenticated caller performing an operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

// ItemInput is a client supplied line item. Derived amounts are never read
// from the client.
type ItemInput struct {
	ProductID       *uuid.UUID
	ProductName     string
	Description     string
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
}

// CreateQuoteInput carries the fields accepted on creation. Status is always
// draft and totals are always computed.
type CreateQuoteInput struct {
	Title              string
	Items              []ItemInput
	BillingAddress     *types.BillingAddress
	ShippingCost       decimal.Decimal
	IssueDate          *time.Time
	ExpiryDate         *time.Time
	OwnerID            *uuid.UUID
	Notes              *string
	TermsAndConditions *string
}

// UpdateQuoteInput is a partial update of a draft. Nil fields are left as is.
// ExpectedLockVersion, when set, must match the stored lock version.
type UpdateQuoteInput struct {
	Title               *string
	Items               []ItemInput
	BillingAddress      *types.BillingAddress
	ShippingCost        *decimal.Decimal
	ExpiryDate          *time.Time
	OwnerID             *uuid.UUID
	Notes               *string
	TermsAndConditions  *string
	ExpectedLockVersion *int
}

// ListFilters narrows the quote list.
type ListFilters struct {
	Search  string
	Status  *enums.QuoteStatus
	OwnerID *uuid.UUID
}

// QuoteList is a single page of quotes.
type QuoteList struct {
	Quotes     []models.Quote
	Pagination pagination.Meta
}

// ConversionResult reports the deal linked to a quote. AlreadyConverted is
// true when the deal existed before this call.
type ConversionResult struct {
	QuoteID          uuid.UUID
	DealID           uuid.UUID
	AlreadyConverted bool
}

// QuoteItemDTO is the wire shape of a line item. Money is rendered with two
// decimal places and percentages exactly as stored, so the item can be sent
// back unchanged.
type QuoteItemDTO struct {
	ProductID       *uuid.UUID `json:"product_id,omitempty"`
	ProductName     string     `json:"product_name"`
	Description     string     `json:"description,omitempty"`
	Quantity        int        `json:"quantity"`
	UnitPrice       string     `json:"unit_price"`
	DiscountPercent string     `json:"discount_percent"`
	TaxPercent      string     `json:"tax_percent"`
	Subtotal        string     `json:"subtotal"`
	DiscountAmount  string     `json:"discount_amount"`
	TaxAmount       string     `json:"tax_amount"`
	LineTotal       string     `json:"line_total"`
}

// QuoteDTO is the wire shape of a quote.
type QuoteDTO struct {
	ID                 uuid.UUID             `json:"id"`
	QuoteNumber        string                `json:"quote_number"`
	Version            int                   `json:"version"`
	ParentQuoteID      *uuid.UUID            `json:"parent_quote_id"`
	Title              string                `json:"title"`
	Status             enums.QuoteStatus     `json:"status"`
	Items              []QuoteItemDTO        `json:"items"`
	BillingAddress     *types.BillingAddress `json:"billing_address,omitempty"`
	ShippingCost       string                `json:"shipping_cost"`
	Subtotal           string                `json:"subtotal"`
	TotalDiscount      string                `json:"total_discount"`
	TotalTax           string                `json:"total_tax"`
	GrandTotal         string                `json:"grand_total"`
	IssueDate          time.Time             `json:"issue_date"`
	ExpiryDate         time.Time             `json:"expiry_date"`
	OwnerID            uuid.UUID             `json:"owner_id"`
	DealID             *uuid.UUID            `json:"deal_id"`
	Notes              *string               `json:"notes,omitempty"`
	TermsAndConditions *string               `json:"terms_and_conditions,omitempty"`
	StatusChangedAt    *time.Time            `json:"status_changed_at,omitempty"`
	LockVersion        int                   `json:"lock_version"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// NewQuoteDTO maps a stored quote to its wire shape.
func NewQuoteDTO(q models.Quote) QuoteDTO {
	items := make([]QuoteItemDTO, 0, len(q.Items))
	for _, item := range q.Items {
		items = append(items, QuoteItemDTO{
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitPrice:       money(item.UnitPrice),
			DiscountPercent: item.DiscountPercent.String(),
			TaxPercent:      item.TaxPercent.String(),
			Subtotal:        money(item.Subtotal),
			DiscountAmount:  money(item.DiscountAmount),
			TaxAmount:       money(item.TaxAmount),
			LineTotal:       money(item.LineTotal),
		})
	}
	dto := QuoteDTO{
		ID:                 q.ID,
		QuoteNumber:        q.QuoteNumber,
		Version:            q.Version,
		ParentQuoteID:      q.ParentQuoteID,
		Title:              q.Title,
		Status:             q.Status,
		Items:              items,
		BillingAddress:     q.BillingAddress,
		ShippingCost:       money(q.ShippingCost),
		Subtotal:           money(q.Subtotal),
		TotalDiscount:      money(q.TotalDiscount),
		TotalTax:           money(q.TotalTax),
		GrandTotal:         money(q.GrandTotal),
		IssueDate:          q.IssueDate.UTC(),
		ExpiryDate:         q.ExpiryDate.UTC(),
		OwnerID:            q.OwnerID,
		DealID:             q.DealID,
		Notes:              q.Notes,
		TermsAndConditions: q.TermsAndConditions,
		LockVersion:        q.LockVersion,
		CreatedAt:          q.CreatedAt.UTC(),
		UpdatedAt:          q.UpdatedAt.UTC(),
	}
	if q.StatusChangedAt != nil {
		changed := q.StatusChangedAt.UTC()
		dto.StatusChangedAt = &changed
	}
	return dto
}

// NewQuoteDTOs maps a page of quotes.
func NewQuoteDTOs(list []models.Quote) []QuoteDTO {
	out := make([]QuoteDTO, 0, len(list))
	for _, q := range list {
		out = append(out, NewQuoteDTO(q))
	}
	return out
}

func money(v decimal.Decimal) string {
	return v.StringFixed(2)
}
