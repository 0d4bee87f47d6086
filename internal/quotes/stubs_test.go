package quotes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/portal-crm-backend/internal/deals"
	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox"
	"github.com/angelmondragon/portal-crm-backend/pkg/pagination"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

// stubQuotesRepo serves one quote and lets tests decide whether
// conditional writes win.
type stubQuotesRepo struct {
	quote        *models.Quote
	reloads      []*models.Quote
	statusWins   bool
	attachWins   bool
	statusWrites int
}

func (s *stubQuotesRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubQuotesRepo) Create(ctx context.Context, quote *models.Quote) error { return nil }

func (s *stubQuotesRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	if len(s.reloads) > 0 {
		next := s.reloads[0]
		s.reloads = s.reloads[1:]
		copied := *next
		return &copied, nil
	}
	if s.quote == nil || s.quote.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.quote
	return &copied, nil
}

func (s *stubQuotesRepo) List(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Quote, int64, error) {
	panic("not implemented")
}

func (s *stubQuotesRepo) UpdateIfVersion(ctx context.Context, id uuid.UUID, lockVersion int, updates map[string]any) (bool, error) {
	return s.statusWins, nil
}

func (s *stubQuotesRepo) UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, from enums.QuoteStatus, lockVersion int, to enums.QuoteStatus, changedAt time.Time) (bool, error) {
	s.statusWrites++
	return s.statusWins, nil
}

func (s *stubQuotesRepo) AttachDeal(ctx context.Context, id, dealID uuid.UUID, at time.Time) (bool, error) {
	return s.attachWins, nil
}

func (s *stubQuotesRepo) DeleteDraft(ctx context.Context, id uuid.UUID, lockVersion int) (bool, error) {
	return s.statusWins, nil
}

func (s *stubQuotesRepo) FindSentExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Quote, error) {
	if s.quote == nil {
		return nil, nil
	}
	return []models.Quote{*s.quote}, nil
}

type stubDealsRepo struct {
	created []*models.Deal
	// existing is returned by FindBySourceQuote when set.
	existing *models.Deal
}

func (s *stubDealsRepo) WithTx(tx *gorm.DB) deals.Repository { return s }

func (s *stubDealsRepo) Create(ctx context.Context, deal *models.Deal) error {
	s.created = append(s.created, deal)
	return nil
}

func (s *stubDealsRepo) FindBySourceQuote(ctx context.Context, quoteID uuid.UUID) (*models.Deal, error) {
	if s.existing != nil {
		return s.existing, nil
	}
	return nil, gorm.ErrRecordNotFound
}
