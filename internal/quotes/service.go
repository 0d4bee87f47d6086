package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/portal-crm-backend/internal/deals"
	"github.com/angelmondragon/portal-crm-backend/internal/pricing"
	"github.com/angelmondragon/portal-crm-backend/pkg/db"
	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/portal-crm-backend/pkg/errors"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/portal-crm-backend/pkg/pagination"
	"github.com/angelmondragon/portal-crm-backend/pkg/types"
)

const defaultValidityDays = 30

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type metricsRecorder interface {
	ObserveTransition(from, to string)
	ObserveConversion(outcome string)
	IncRevision()
}

// ServiceParams wires the quote service dependencies.
type ServiceParams struct {
	Repo         Repository
	Deals        deals.Repository
	Tx           txRunner
	Outbox       outboxPublisher
	Logger       *logger.Logger
	Metrics      metricsRecorder
	Numbers      NumberGenerator
	ValidityDays int
}

type service struct {
	repo         Repository
	deals        deals.Repository
	tx           txRunner
	outbox       outboxPublisher
	logg         *logger.Logger
	metrics      metricsRecorder
	numbers      NumberGenerator
	validityDays int
	now          func() time.Time
}

// NewService builds the quote service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("quotes repository required")
	}
	if params.Deals == nil {
		return nil, fmt.Errorf("deals repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	numbers := params.Numbers
	if numbers == nil {
		numbers = NewNumberGenerator("QT")
	}
	validity := params.ValidityDays
	if validity <= 0 {
		validity = defaultValidityDays
	}
	var recorder metricsRecorder = noopMetrics{}
	if params.Metrics != nil {
		recorder = params.Metrics
	}
	return &service{
		repo:         params.Repo,
		deals:        params.Deals,
		tx:           params.Tx,
		outbox:       params.Outbox,
		logg:         params.Logger,
		metrics:      recorder,
		numbers:      numbers,
		validityDays: validity,
		now:          time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor Actor, input CreateQuoteInput) (*models.Quote, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required")
	}
	now := s.now().UTC()
	issue := now
	if input.IssueDate != nil {
		issue = input.IssueDate.UTC()
	}
	expiry := issue.AddDate(0, 0, s.validityDays)
	if input.ExpiryDate != nil {
		expiry = input.ExpiryDate.UTC()
	}

	fields := fieldErrors{}
	fields.checkTitle(input.Title)
	fields.checkItems(input.Items)
	if expiry.Before(issue) {
		fields.add("expiry_date", "must not be before issue_date")
	}
	if err := fields.err(); err != nil {
		return nil, err
	}

	items, totals, err := priceItems(input.Items, input.ShippingCost)
	if err != nil {
		return nil, err
	}

	owner := actor.UserID
	if input.OwnerID != nil && *input.OwnerID != uuid.Nil {
		owner = *input.OwnerID
	}

	quote := &models.Quote{
		ID:                 uuid.New(),
		Version:            1,
		Title:              strings.TrimSpace(input.Title),
		Status:             enums.QuoteStatusDraft,
		Items:              items,
		BillingAddress:     normalizeAddress(input.BillingAddress),
		IssueDate:          issue,
		ExpiryDate:         expiry,
		OwnerID:            owner,
		Notes:              input.Notes,
		TermsAndConditions: input.TermsAndConditions,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	applyTotals(quote, totals)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.insertWithNumber(ctx, repo, quote, now); err != nil {
			return err
		}
		return s.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuoteCreated,
			AggregateType: enums.AggregateQuote,
			AggregateID:   quote.ID,
			Actor:         buildActor(actor),
			OccurredAt:    now,
			Data: payloads.QuoteCreatedEvent{
				QuoteID:     quote.ID,
				QuoteNumber: quote.QuoteNumber,
				OwnerID:     quote.OwnerID,
				GrandTotal:  quote.GrandTotal,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logQuote(ctx, quote, "quote.created", nil)
	return quote, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id required")
	}
	return loadQuote(ctx, s.repo, id)
}

func (s *service) List(ctx context.Context, params pagination.Params, filters ListFilters) (*QuoteList, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").
			WithDetails(map[string]string{"status": string(*filters.Status)})
	}
	params = params.Normalize()
	rows, total, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list quotes")
	}
	if rows == nil {
		rows = []models.Quote{}
	}
	return &QuoteList{
		Quotes:     rows,
		Pagination: pagination.NewMeta(params, total),
	}, nil
}

func (s *service) Update(ctx context.Context, actor Actor, id uuid.UUID, input UpdateQuoteInput) (*models.Quote, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id required")
	}
	fields := fieldErrors{}
	if input.Title != nil {
		fields.checkTitle(*input.Title)
	}
	if input.Items != nil {
		fields.checkItems(input.Items)
	}
	if err := fields.err(); err != nil {
		return nil, err
	}

	var updated *models.Quote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := loadQuote(ctx, repo, id)
		if err != nil {
			return err
		}
		if current.Status != enums.QuoteStatusDraft {
			return invalidState(current, "only draft quotes can be edited")
		}
		if input.ExpectedLockVersion != nil && *input.ExpectedLockVersion != current.LockVersion {
			return concurrentModification(current.ID)
		}

		next := *current
		if input.Title != nil {
			next.Title = strings.TrimSpace(*input.Title)
		}
		if input.BillingAddress != nil {
			next.BillingAddress = normalizeAddress(input.BillingAddress)
		}
		if input.ExpiryDate != nil {
			next.ExpiryDate = input.ExpiryDate.UTC()
		}
		if input.OwnerID != nil && *input.OwnerID != uuid.Nil {
			next.OwnerID = *input.OwnerID
		}
		if input.Notes != nil {
			next.Notes = input.Notes
		}
		if input.TermsAndConditions != nil {
			next.TermsAndConditions = input.TermsAndConditions
		}
		if next.ExpiryDate.Before(next.IssueDate) {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid quote").
				WithDetails(map[string]string{"expiry_date": "must not be before issue_date"})
		}

		itemInputs := itemInputsFrom(current.Items)
		if input.Items != nil {
			itemInputs = input.Items
		}
		shipping := current.ShippingCost
		if input.ShippingCost != nil {
			shipping = *input.ShippingCost
		}
		items, totals, err := priceItems(itemInputs, shipping)
		if err != nil {
			return err
		}
		next.Items = items
		applyTotals(&next, totals)
		next.UpdatedAt = s.now().UTC()

		ok, err := repo.UpdateIfVersion(ctx, next.ID, current.LockVersion, map[string]any{
			"title":                next.Title,
			"items":                next.Items,
			"billing_address":      next.BillingAddress,
			"shipping_cost":        next.ShippingCost,
			"subtotal":             next.Subtotal,
			"total_discount":       next.TotalDiscount,
			"total_tax":            next.TotalTax,
			"grand_total":          next.GrandTotal,
			"expiry_date":          next.ExpiryDate,
			"owner_id":             next.OwnerID,
			"notes":                next.Notes,
			"terms_and_conditions": next.TermsAndConditions,
			"updated_at":           next.UpdatedAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update quote")
		}
		if !ok {
			return concurrentModification(current.ID)
		}
		next.LockVersion = current.LockVersion + 1
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logQuote(ctx, updated, "quote.updated", map[string]any{"actor_id": actor.UserID.String()})
	return updated, nil
}

func (s *service) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "quote id required")
	}
	var deleted *models.Quote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := loadQuote(ctx, repo, id)
		if err != nil {
			return err
		}
		if current.Status != enums.QuoteStatusDraft {
			return invalidState(current, "only draft quotes can be deleted")
		}
		ok, err := repo.DeleteDraft(ctx, current.ID, current.LockVersion)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete quote")
		}
		if !ok {
			return concurrentModification(current.ID)
		}
		deleted = current
		return nil
	})
	if err != nil {
		return err
	}
	s.logQuote(ctx, deleted, "quote.deleted", map[string]any{"actor_id": actor.UserID.String()})
	return nil
}

// insertWithNumber assigns a fresh quote number and retries on collision.
func (s *service) insertWithNumber(ctx context.Context, repo Repository, quote *models.Quote, now time.Time) error {
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		quote.QuoteNumber = s.numbers(now)
		err := repo.Create(ctx, quote)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, "quote_number") {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create quote")
		}
		logCtx := s.logg.WithFields(ctx, map[string]any{"quote_number": quote.QuoteNumber, "attempt": attempt + 1})
		s.logg.Warn(logCtx, "quote number collision")
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique quote number")
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(event.EventType))
	}
	return nil
}

func (s *service) logQuote(ctx context.Context, quote *models.Quote, msg string, extra map[string]any) {
	if quote == nil {
		return
	}
	fields := map[string]any{
		"quote_number": quote.QuoteNumber,
		"status":       quote.Status,
		"version":      quote.Version,
	}
	for k, v := range extra {
		fields[k] = v
	}
	logCtx := s.logg.WithQuoteID(ctx, quote.ID.String())
	logCtx = s.logg.WithFields(logCtx, fields)
	s.logg.Info(logCtx, msg)
}

func loadQuote(ctx context.Context, repo Repository, id uuid.UUID) (*models.Quote, error) {
	quote, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quote")
	}
	return quote, nil
}

func priceItems(inputs []ItemInput, shipping decimal.Decimal) (types.QuoteItems, pricing.QuoteTotals, error) {
	priced := make([]pricing.ItemInput, len(inputs))
	for i, in := range inputs {
		priced[i] = pricing.ItemInput{
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			TaxPercent:      in.TaxPercent,
		}
	}
	totals, err := pricing.ComputeQuote(priced, shipping)
	if err != nil {
		var vErr *pricing.ValidationError
		if errors.As(err, &vErr) {
			return nil, pricing.QuoteTotals{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid quote").
				WithDetails(map[string]string{vErr.Field: vErr.Reason})
		}
		return nil, pricing.QuoteTotals{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "price quote")
	}

	items := make(types.QuoteItems, len(inputs))
	for i, in := range inputs {
		line := totals.Items[i]
		items[i] = types.QuoteItem{
			ProductID:       in.ProductID,
			ProductName:     strings.TrimSpace(in.ProductName),
			Description:     strings.TrimSpace(in.Description),
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			TaxPercent:      in.TaxPercent,
			Subtotal:        line.Subtotal,
			DiscountAmount:  line.DiscountAmount,
			TaxAmount:       line.TaxAmount,
			LineTotal:       line.LineTotal,
		}
	}
	return items, totals, nil
}

func applyTotals(quote *models.Quote, totals pricing.QuoteTotals) {
	quote.ShippingCost = totals.ShippingCost
	quote.Subtotal = totals.Subtotal
	quote.TotalDiscount = totals.TotalDiscount
	quote.TotalTax = totals.TotalTax
	quote.GrandTotal = totals.GrandTotal
}

func itemInputsFrom(items types.QuoteItems) []ItemInput {
	out := make([]ItemInput, len(items))
	for i, item := range items {
		out[i] = ItemInput{
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			TaxPercent:      item.TaxPercent,
		}
	}
	return out
}

func normalizeAddress(addr *types.BillingAddress) *types.BillingAddress {
	if addr == nil || addr.IsZero() {
		return nil
	}
	copied := *addr
	return &copied
}

func buildActor(actor Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

func invalidState(quote *models.Quote, message string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidState, message).
		WithDetails(map[string]any{"quote_id": quote.ID, "status": quote.Status})
}

func concurrentModification(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConcurrentModification, "quote was modified concurrently, reload and retry").
		WithDetails(map[string]any{"quote_id": id})
}

type fieldErrors map[string]string

func (f fieldErrors) add(field, reason string) {
	if _, exists := f[field]; !exists {
		f[field] = reason
	}
}

func (f fieldErrors) checkTitle(title string) {
	trimmed := strings.TrimSpace(title)
	switch {
	case trimmed == "":
		f.add("title", "is required")
	case utf8.RuneCountInString(trimmed) > MaxTitleLength:
		f.add("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
	}
}

func (f fieldErrors) checkItems(items []ItemInput) {
	switch {
	case len(items) == 0:
		f.add("items", "at least one item is required")
		return
	case len(items) > MaxItems:
		f.add("items", fmt.Sprintf("at most %d items are allowed", MaxItems))
		return
	}
	for i, item := range items {
		if strings.TrimSpace(item.ProductName) == "" {
			f.add(fmt.Sprintf("items[%d].product_name", i), "is required")
		}
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid quote").WithDetails(map[string]string(f))
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(string, string) {}
func (noopMetrics) ObserveConversion(string)         {}
func (noopMetrics) IncRevision()                     {}
