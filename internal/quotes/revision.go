package quotes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/portal-crm-backend/pkg/errors"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox/payloads"
)

// Clone creates the next revision of a quote as a new draft and marks the
// source revised in the same transaction. A quote has at most one revision.
func (s *service) Clone(ctx context.Context, actor Actor, id uuid.UUID) (*models.Quote, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id required")
	}

	var (
		child  *models.Quote
		source *models.Quote
		from   enums.QuoteStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := loadQuote(ctx, repo, id)
		if err != nil {
			return err
		}
		if current.Status == enums.QuoteStatusRevised {
			return pkgerrors.New(pkgerrors.CodeConflict, "quote already has a revision").
				WithDetails(map[string]any{"quote_id": current.ID})
		}

		from = current.Status

		items, totals, err := priceItems(itemInputsFrom(current.Items), current.ShippingCost)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		window := current.ExpiryDate.Sub(current.IssueDate)
		if window < 0 {
			window = 0
		}
		parentID := current.ID
		next := &models.Quote{
			ID:                 uuid.New(),
			Version:            current.Version + 1,
			ParentQuoteID:      &parentID,
			Title:              current.Title,
			Status:             enums.QuoteStatusDraft,
			Items:              items,
			BillingAddress:     normalizeAddress(current.BillingAddress),
			IssueDate:          now,
			ExpiryDate:         now.Add(window),
			OwnerID:            current.OwnerID,
			Notes:              cloneString(current.Notes),
			TermsAndConditions: cloneString(current.TermsAndConditions),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		applyTotals(next, totals)

		ok, err := repo.UpdateStatusIfCurrent(ctx, current.ID, current.Status, current.LockVersion, enums.QuoteStatusRevised, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark quote revised")
		}
		if !ok {
			return concurrentModification(current.ID)
		}
		if err := s.insertWithNumber(ctx, repo, next, now); err != nil {
			return err
		}

		revisedSource := *current
		revisedSource.Status = enums.QuoteStatusRevised
		revisedSource.StatusChangedAt = &now
		revisedSource.UpdatedAt = now
		revisedSource.LockVersion = current.LockVersion + 1

		actorRef := buildActor(actor)
		if err := s.emit(ctx, tx, statusChangedEvent(&revisedSource, current.Status, actorRef, now)); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuoteRevised,
			AggregateType: enums.AggregateQuote,
			AggregateID:   current.ID,
			Actor:         actorRef,
			OccurredAt:    now,
			Data: payloads.QuoteRevisedEvent{
				ParentQuoteID: current.ID,
				ChildQuoteID:  next.ID,
				ChildNumber:   next.QuoteNumber,
				Version:       next.Version,
			},
		}); err != nil {
			return err
		}

		source = &revisedSource
		child = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(from), string(enums.QuoteStatusRevised))
	s.metrics.IncRevision()
	s.logQuote(ctx, child, "quote.cloned", map[string]any{
		"parent_quote_id": source.ID.String(),
		"actor_id":        actor.UserID.String(),
	})
	return child, nil
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}
