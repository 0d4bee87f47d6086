package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	"github.com/angelmondragon/portal-crm-backend/pkg/types"
)

// Quote is the aggregate root of the quote engine. Totals are derived from
// Items and ShippingCost and are only written by the pricing calculator.
type Quote struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	QuoteNumber        string                `gorm:"column:quote_number;not null;uniqueIndex"`
	Version            int                   `gorm:"column:version;not null;default:1"`
	ParentQuoteID      *uuid.UUID            `gorm:"column:parent_quote_id;type:uuid"`
	Title              string                `gorm:"column:title;not null"`
	Status             enums.QuoteStatus     `gorm:"column:status;type:text;not null;default:'draft'"`
	Items              types.QuoteItems      `gorm:"column:items;type:jsonb;not null"`
	BillingAddress     *types.BillingAddress `gorm:"column:billing_address;type:jsonb"`
	ShippingCost       decimal.Decimal       `gorm:"column:shipping_cost;type:numeric(14,2);not null;default:0"`
	Subtotal           decimal.Decimal       `gorm:"column:subtotal;type:numeric(14,2);not null;default:0"`
	TotalDiscount      decimal.Decimal       `gorm:"column:total_discount;type:numeric(14,2);not null;default:0"`
	TotalTax           decimal.Decimal       `gorm:"column:total_tax;type:numeric(14,2);not null;default:0"`
	GrandTotal         decimal.Decimal       `gorm:"column:grand_total;type:numeric(14,2);not null;default:0"`
	IssueDate          time.Time             `gorm:"column:issue_date;not null"`
	ExpiryDate         time.Time             `gorm:"column:expiry_date;not null"`
	OwnerID            uuid.UUID             `gorm:"column:owner_id;type:uuid;not null"`
	DealID             *uuid.UUID            `gorm:"column:deal_id;type:uuid"`
	Notes              *string               `gorm:"column:notes"`
	TermsAndConditions *string               `gorm:"column:terms_and_conditions"`
	StatusChangedAt    *time.Time            `gorm:"column:status_changed_at"`
	LockVersion        int                   `gorm:"column:lock_version;not null;default:0"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (Quote) TableName() string { return "quotes" }
