package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
)

// QuoteCreatedEvent is emitted when a draft quote is first persisted.
type QuoteCreatedEvent struct {
	QuoteID     uuid.UUID       `json:"quote_id"`
	QuoteNumber string          `json:"quote_number"`
	OwnerID     uuid.UUID       `json:"owner_id"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
}

// QuoteStatusChangedEvent records a lifecycle transition.
type QuoteStatusChangedEvent struct {
	QuoteID     uuid.UUID         `json:"quote_id"`
	QuoteNumber string            `json:"quote_number"`
	From        enums.QuoteStatus `json:"from"`
	To          enums.QuoteStatus `json:"to"`
	ChangedAt   time.Time         `json:"changed_at"`
}

// QuoteRevisedEvent links a parent quote to the revision cloned from it.
type QuoteRevisedEvent struct {
	ParentQuoteID uuid.UUID `json:"parent_quote_id"`
	ChildQuoteID  uuid.UUID `json:"child_quote_id"`
	ChildNumber   string    `json:"child_quote_number"`
	Version       int       `json:"version"`
}

// QuoteConvertedEvent is emitted once per quote when its deal is created.
type QuoteConvertedEvent struct {
	QuoteID uuid.UUID       `json:"quote_id"`
	DealID  uuid.UUID       `json:"deal_id"`
	OwnerID uuid.UUID       `json:"owner_id"`
	Value   decimal.Decimal `json:"value"`
}

// QuoteExpiredEvent is emitted by the expiry sweep.
type QuoteExpiredEvent struct {
	QuoteID    uuid.UUID `json:"quote_id"`
	ExpiryDate time.Time `json:"expiry_date"`
	ExpiredAt  time.Time `json:"expired_at"`
}
