package quotes

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/portal-crm-backend/pkg/db"
	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/portal-crm-backend/pkg/errors"
	"github.com/angelmondragon/portal-crm-backend/pkg/metrics"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox/payloads"
)

const dealTitlePrefix = "Deal: "

var errConversionRace = errors.New("quote conversion lost race")

// ConvertToDeal creates the deal for an accepted quote. Repeated calls return
// the deal created by the first successful call.
func (s *service) ConvertToDeal(ctx context.Context, actor Actor, id uuid.UUID) (*ConversionResult, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id required")
	}

	var (
		result *ConversionResult
		quote  *models.Quote
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		dealsRepo := s.deals.WithTx(tx)

		current, err := loadQuote(ctx, repo, id)
		if err != nil {
			return err
		}
		if current.DealID != nil {
			result = &ConversionResult{QuoteID: current.ID, DealID: *current.DealID, AlreadyConverted: true}
			return nil
		}
		if current.Status != enums.QuoteStatusAccepted {
			return invalidState(current, "quote not accepted")
		}

		now := s.now().UTC()
		sourceID := current.ID
		deal := &models.Deal{
			ID:            uuid.New(),
			Title:         dealTitlePrefix + current.Title,
			Value:         current.GrandTotal,
			Stage:         enums.DealStageProspecting,
			OwnerID:       current.OwnerID,
			SourceQuoteID: &sourceID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := dealsRepo.Create(ctx, deal); err != nil {
			if db.IsUniqueViolation(err, "source_quote_id") {
				return errConversionRace
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create deal")
		}

		ok, err := repo.AttachDeal(ctx, current.ID, deal.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link deal to quote")
		}
		if !ok {
			return errConversionRace
		}

		if err := s.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuoteConverted,
			AggregateType: enums.AggregateQuote,
			AggregateID:   current.ID,
			Actor:         buildActor(actor),
			OccurredAt:    now,
			Data: payloads.QuoteConvertedEvent{
				QuoteID: current.ID,
				DealID:  deal.ID,
				OwnerID: deal.OwnerID,
				Value:   deal.Value,
			},
		}); err != nil {
			return err
		}

		quote = current
		result = &ConversionResult{QuoteID: current.ID, DealID: deal.ID}
		return nil
	})
	if errors.Is(err, errConversionRace) {
		result, err = s.resolveConversionRace(ctx, id)
	}
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInvalidState) {
			s.metrics.ObserveConversion(metrics.ConversionOutcomeRejected)
		}
		return nil, err
	}

	if result.AlreadyConverted {
		s.metrics.ObserveConversion(metrics.ConversionOutcomeAlreadyConverted)
		logCtx := s.logg.WithQuoteID(ctx, id.String())
		logCtx = s.logg.WithField(logCtx, "deal_id", result.DealID.String())
		s.logg.Info(logCtx, "quote.conversion_repeated")
		return result, nil
	}

	s.metrics.ObserveConversion(metrics.ConversionOutcomeCreated)
	s.logQuote(ctx, quote, "quote.converted", map[string]any{
		"deal_id":  result.DealID.String(),
		"actor_id": actor.UserID.String(),
	})
	return result, nil
}

// resolveConversionRace reloads the quote after a concurrent conversion won
// and reports the winner's deal. The deal is looked up by source quote when
// the winner's link is not visible yet.
func (s *service) resolveConversionRace(ctx context.Context, id uuid.UUID) (*ConversionResult, error) {
	current, err := loadQuote(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if current.DealID != nil {
		return &ConversionResult{QuoteID: current.ID, DealID: *current.DealID, AlreadyConverted: true}, nil
	}
	deal, err := s.deals.FindBySourceQuote(ctx, current.ID)
	switch {
	case err == nil:
		return &ConversionResult{QuoteID: current.ID, DealID: deal.ID, AlreadyConverted: true}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find deal for quote")
	}
	if current.Status != enums.QuoteStatusAccepted {
		return nil, invalidState(current, "quote not accepted")
	}
	return nil, concurrentModification(current.ID)
}
