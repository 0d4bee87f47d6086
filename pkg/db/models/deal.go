package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
)

// Deal is a sales opportunity in the CRM pipeline.
type Deal struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title         string          `gorm:"column:title;not null"`
	Value         decimal.Decimal `gorm:"column:value;type:numeric(14,2);not null"`
	Stage         enums.DealStage `gorm:"column:stage;type:text;not null"`
	OwnerID       uuid.UUID       `gorm:"column:owner_id;type:uuid;not null"`
	SourceQuoteID *uuid.UUID      `gorm:"column:source_quote_id;type:uuid;uniqueIndex"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Deal) TableName() string { return "deals" }
