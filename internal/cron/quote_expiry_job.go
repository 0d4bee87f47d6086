package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
)

const defaultExpiryBatchSize = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// quoteExpirer is the slice of the quote service the sweep drives.
type quoteExpirer interface {
	ExpiryCandidates(ctx context.Context, now time.Time, limit int) ([]models.Quote, error)
	ExpireQuote(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

// QuoteExpiryJobParams configure the quote expiry sweep.
type QuoteExpiryJobParams struct {
	Logger    *logger.Logger
	Quotes    quoteExpirer
	BatchSize int
}

// NewQuoteExpiryJob builds the job that expires sent quotes past their
// expiry date.
func NewQuoteExpiryJob(params QuoteExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Quotes == nil {
		return nil, fmt.Errorf("quote service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &quoteExpiryJob{
		logg:   params.Logger,
		quotes: params.Quotes,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type quoteExpiryJob struct {
	logg   *logger.Logger
	quotes quoteExpirer
	batch  int
	now    func() time.Time
}

func (j *quoteExpiryJob) Name() string { return "quote-expiry" }

// Run expires due quotes in batches until a batch makes no progress. Failures
// on individual quotes are collected and do not stop the sweep.
func (j *quoteExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var (
		errs    error
		expired int
		skipped int
	)
	seen := make(map[uuid.UUID]struct{})
	for {
		candidates, err := j.quotes.ExpiryCandidates(ctx, now, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("query expiry candidates: %w", err))
		}
		progressed := false
		for _, quote := range candidates {
			if _, done := seen[quote.ID]; done {
				continue
			}
			seen[quote.ID] = struct{}{}
			progressed = true

			ok, err := j.quotes.ExpireQuote(ctx, quote.ID, now)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("expire quote %s: %w", quote.ID, err))
				continue
			}
			if ok {
				expired++
			} else {
				skipped++
			}
		}
		if !progressed || len(candidates) < j.batch {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"expired": expired,
		"skipped": skipped,
		"cutoff":  now,
	})
	j.logg.Info(logCtx, "quote expiry sweep complete")
	return errs
}
