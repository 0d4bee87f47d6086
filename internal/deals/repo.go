package deals

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
)

// Repository is the slice of the deals store the quote engine writes to.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, deal *models.Deal) error
	FindBySourceQuote(ctx context.Context, quoteID uuid.UUID) (*models.Deal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a deals repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, deal *models.Deal) error {
	if deal.ID == uuid.Nil {
		deal.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(deal).Error
}

func (r *repository) FindBySourceQuote(ctx context.Context, quoteID uuid.UUID) (*models.Deal, error) {
	var deal models.Deal
	if err := r.db.WithContext(ctx).Where("source_quote_id = ?", quoteID).First(&deal).Error; err != nil {
		return nil, err
	}
	return &deal, nil
}

