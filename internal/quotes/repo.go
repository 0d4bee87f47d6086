package quotes

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	"github.com/angelmondragon/portal-crm-backend/pkg/pagination"
)

const insertSavepoint = "quote_insert"

type repository struct {
	db *gorm.DB
}

// NewRepository builds a quotes repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the quote. Inside a transaction the insert runs under a
// savepoint so a unique violation leaves the transaction usable for a retry.
func (r *repository) Create(ctx context.Context, quote *models.Quote) error {
	if quote.ID == uuid.Nil {
		quote.ID = uuid.New()
	}
	db := r.db.WithContext(ctx)
	if _, inTx := db.Statement.ConnPool.(gorm.TxCommitter); !inTx {
		return db.Create(quote).Error
	}
	if err := db.SavePoint(insertSavepoint).Error; err != nil {
		return err
	}
	if err := db.Create(quote).Error; err != nil {
		if rbErr := db.RollbackTo(insertSavepoint).Error; rbErr != nil {
			return rbErr
		}
		return err
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Quote, int64, error) {
	params = params.Normalize()
	query := r.db.WithContext(ctx).Model(&models.Quote{})
	if search := strings.TrimSpace(filters.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("(LOWER(title) LIKE ? OR LOWER(quote_number) LIKE ?)", pattern, pattern)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.OwnerID != nil {
		query = query.Where("owner_id = ?", *filters.OwnerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Quote
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// UpdateIfVersion applies updates only when lock_version still matches and
// bumps it in the same statement.
func (r *repository) UpdateIfVersion(ctx context.Context, id uuid.UUID, lockVersion int, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["lock_version"] = gorm.Expr("lock_version + 1")
	res := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("id = ? AND lock_version = ?", id, lockVersion).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, from enums.QuoteStatus, lockVersion int, to enums.QuoteStatus, changedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("id = ? AND status = ? AND lock_version = ?", id, from, lockVersion).
		Updates(map[string]any{
			"status":            to,
			"status_changed_at": changedAt,
			"updated_at":        changedAt,
			"lock_version":      gorm.Expr("lock_version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AttachDeal links the deal only while the quote is accepted and unlinked.
func (r *repository) AttachDeal(ctx context.Context, id, dealID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("id = ? AND deal_id IS NULL AND status = ?", id, enums.QuoteStatusAccepted).
		Updates(map[string]any{
			"deal_id":      dealID,
			"updated_at":   at,
			"lock_version": gorm.Expr("lock_version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DeleteDraft(ctx context.Context, id uuid.UUID, lockVersion int) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ? AND lock_version = ?", id, enums.QuoteStatusDraft, lockVersion).
		Delete(&models.Quote{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindSentExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Quote, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND expiry_date < ?", enums.QuoteStatusSent, cutoff).
		Order("expiry_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.Quote
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
