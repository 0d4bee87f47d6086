package quotes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	"github.com/angelmondragon/portal-crm-backend/pkg/pagination"
)

// Repository defines persistence operations for the quotes table. Every
// conditional write reports whether it matched a row so callers can tell a
// lost race from success.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, quote *models.Quote) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Quote, int64, error)
	UpdateIfVersion(ctx context.Context, id uuid.UUID, lockVersion int, updates map[string]any) (bool, error)
	UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, from enums.QuoteStatus, lockVersion int, to enums.QuoteStatus, changedAt time.Time) (bool, error)
	AttachDeal(ctx context.Context, id, dealID uuid.UUID, at time.Time) (bool, error)
	DeleteDraft(ctx context.Context, id uuid.UUID, lockVersion int) (bool, error)
	FindSentExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Quote, error)
}

// Service exposes CRUD plus the lifecycle, revision and conversion operations.
type Service interface {
	Create(ctx context.Context, actor Actor, input CreateQuoteInput) (*models.Quote, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*QuoteList, error)
	Update(ctx context.Context, actor Actor, id uuid.UUID, input UpdateQuoteInput) (*models.Quote, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error

	Transition(ctx context.Context, actor Actor, id uuid.UUID, requested enums.QuoteStatus) (*models.Quote, error)
	ExpiryCandidates(ctx context.Context, now time.Time, limit int) ([]models.Quote, error)
	ExpireQuote(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	Clone(ctx context.Context, actor Actor, id uuid.UUID) (*models.Quote, error)
	ConvertToDeal(ctx context.Context, actor Actor, id uuid.UUID) (*ConversionResult, error)
}
