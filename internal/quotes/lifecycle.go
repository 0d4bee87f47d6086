package quotes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/portal-crm-backend/pkg/errors"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox/payloads"
)

// transitions lists the statuses reachable from each status by an explicit
// request. Statuses without an entry are terminal. revised is only reached
// through Clone.
var transitions = map[enums.QuoteStatus][]enums.QuoteStatus{
	enums.QuoteStatusDraft:   {enums.QuoteStatusPending, enums.QuoteStatusSent},
	enums.QuoteStatusPending: {enums.QuoteStatusSent, enums.QuoteStatusRejected},
	enums.QuoteStatusSent:    {enums.QuoteStatusAccepted, enums.QuoteStatusRejected, enums.QuoteStatusExpired},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to enums.QuoteStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the targets reachable from the given status.
func AllowedTransitions(from enums.QuoteStatus) []enums.QuoteStatus {
	allowed := transitions[from]
	out := make([]enums.QuoteStatus, len(allowed))
	copy(out, allowed)
	return out
}

// IsTerminal reports whether no explicit transition leaves the status.
func IsTerminal(status enums.QuoteStatus) bool {
	return len(transitions[status]) == 0
}

func (s *service) Transition(ctx context.Context, actor Actor, id uuid.UUID, requested enums.QuoteStatus) (*models.Quote, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id required")
	}
	if !requested.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status").
			WithDetails(map[string]string{"status": string(requested)})
	}

	var (
		updated *models.Quote
		from    enums.QuoteStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := loadQuote(ctx, repo, id)
		if err != nil {
			return err
		}
		from = current.Status
		if !CanTransition(current.Status, requested) {
			return illegalTransition(current.Status, requested)
		}

		now := s.now().UTC()
		ok, err := repo.UpdateStatusIfCurrent(ctx, current.ID, current.Status, current.LockVersion, requested, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update quote status")
		}
		if !ok {
			return concurrentModification(current.ID)
		}

		next := *current
		next.Status = requested
		next.StatusChangedAt = &now
		next.UpdatedAt = now
		next.LockVersion = current.LockVersion + 1
		updated = &next

		return s.emit(ctx, tx, statusChangedEvent(&next, from, buildActor(actor), now))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(from), string(requested))
	s.logQuote(ctx, updated, "quote.transitioned", map[string]any{
		"from":     from,
		"to":       requested,
		"actor_id": actor.UserID.String(),
	})
	return updated, nil
}

func (s *service) ExpiryCandidates(ctx context.Context, now time.Time, limit int) ([]models.Quote, error) {
	rows, err := s.repo.FindSentExpiredBefore(ctx, now.UTC(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query expired quotes")
	}
	return rows, nil
}

// ExpireQuote moves a sent quote past its expiry date to expired. It returns
// false without error when the quote no longer qualifies, including when a
// concurrent writer changed it first.
func (s *service) ExpireQuote(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	now = now.UTC()
	var expired *models.Quote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quote")
		}
		if current.Status != enums.QuoteStatusSent || !current.ExpiryDate.Before(now) {
			return nil
		}
		ok, err := repo.UpdateStatusIfCurrent(ctx, current.ID, current.Status, current.LockVersion, enums.QuoteStatusExpired, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire quote")
		}
		if !ok {
			return nil
		}

		next := *current
		next.Status = enums.QuoteStatusExpired
		next.StatusChangedAt = &now
		next.UpdatedAt = now
		next.LockVersion = current.LockVersion + 1

		if err := s.emit(ctx, tx, statusChangedEvent(&next, enums.QuoteStatusSent, nil, now)); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuoteExpired,
			AggregateType: enums.AggregateQuote,
			AggregateID:   next.ID,
			OccurredAt:    now,
			Data: payloads.QuoteExpiredEvent{
				QuoteID:    next.ID,
				ExpiryDate: next.ExpiryDate,
				ExpiredAt:  now,
			},
		}); err != nil {
			return err
		}
		expired = &next
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired == nil {
		return false, nil
	}
	s.metrics.ObserveTransition(string(enums.QuoteStatusSent), string(enums.QuoteStatusExpired))
	s.logQuote(ctx, expired, "quote.expired", nil)
	return true, nil
}

func statusChangedEvent(quote *models.Quote, from enums.QuoteStatus, actor *outbox.ActorRef, at time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventQuoteStatusChanged,
		AggregateType: enums.AggregateQuote,
		AggregateID:   quote.ID,
		Actor:         actor,
		OccurredAt:    at,
		Data: payloads.QuoteStatusChangedEvent{
			QuoteID:     quote.ID,
			QuoteNumber: quote.QuoteNumber,
			From:        from,
			To:          quote.Status,
			ChangedAt:   at,
		},
	}
}

func illegalTransition(from, to enums.QuoteStatus) error {
	allowed := AllowedTransitions(from)
	return pkgerrors.New(pkgerrors.CodeIllegalTransition, "status transition not allowed").
		WithDetails(map[string]any{
			"from":    from,
			"to":      to,
			"allowed": allowed,
		})
}
