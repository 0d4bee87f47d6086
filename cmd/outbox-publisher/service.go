package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/portal-crm-backend/pkg/config"
	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
	"github.com/angelmondragon/portal-crm-backend/pkg/metrics"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox/registry"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

var defaultSettings = settings{
	batchSize:      50,
	maxAttempts:    10,
	pollInterval:   500 * time.Millisecond,
	publishTimeout: 15 * time.Second,
}

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type settings struct {
	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
}

func settingsFrom(cfg config.OutboxConfig) settings {
	s := defaultSettings
	if cfg.BatchSize > 0 {
		s.batchSize = cfg.BatchSize
	}
	if cfg.MaxAttempts > 0 {
		s.maxAttempts = cfg.MaxAttempts
	}
	if cfg.PollIntervalMS > 0 {
		s.pollInterval = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}
	if cfg.PublishTimeout > 0 {
		s.publishTimeout = cfg.PublishTimeout
	}
	return s
}

// outcome is what happens to a row after one publish attempt.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

type attempt struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	err     error
	fields  map[string]any
}

// ServiceParams wires the quote event dispatcher.
type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// Service drains outbox_events to Pub/Sub. Rows are locked per batch so
// multiple replicas never publish the same event concurrently.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	publisherFactory publisherFactory
	metrics          *metrics.OutboxMetrics
	settings         settings
	now              func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	required := []struct {
		name string
		ok   bool
	}{
		{"config", params.Config != nil},
		{"logger", params.Logger != nil},
		{"database client", params.DB != nil},
		{"pubsub client", params.PubSub != nil},
		{"outbox repository", params.Repository != nil},
		{"event registry", params.Registry != nil},
		{"dlq repository", params.DLQRepository != nil},
	}
	for _, dep := range required {
		if !dep.ok {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = cachedPublishers(params.PubSub)
	}

	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: factory,
		metrics:          params.Metrics,
		settings:         settingsFrom(params.Config.Outbox),
		now:              time.Now,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	}
	for _, check := range checks {
		if err := check.ping(ctx); err != nil {
			s.logg.Error(ctx, check.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", check.name, err)
		}
	}
	return nil
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// the next one; batch errors back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.settings.pollInterval
	wait := interval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = nextBackoff(wait, interval, maxBackoff)
		case processed:
			wait = interval
			continue
		default:
			wait = interval
		}
		if err := sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var count int
	started := s.now()
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.settings.batchSize, s.settings.maxAttempts)
		if err != nil {
			return err
		}
		count = len(events)
		for _, event := range events {
			if err := s.settle(ctx, tx, event, s.try(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	if count > 0 {
		s.metrics.ObserveBatch(s.now().Sub(started))
	}
	return count > 0, err
}

// try publishes one row and classifies the result. It never touches the
// database.
func (s *Service) try(ctx context.Context, event models.OutboxEvent) attempt {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return attempt{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err, fields: s.eventFields(event, outbox.PayloadEnvelope{}, "")}
	}

	fields := s.eventFields(event, resolved.Envelope, resolved.Descriptor.Topic)
	err = s.publish(ctx, event, resolved)
	if err == nil {
		return attempt{outcome: outcomePublished, fields: fields}
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return attempt{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err, fields: fields}
	}
	next := event.AttemptCount + 1
	fields["attempt_count"] = next
	if next >= s.settings.maxAttempts {
		fields["terminal_reason"] = "max_attempts"
		return attempt{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonMaxAttempts, err: fmt.Errorf("max publish attempts reached: %w", err), fields: fields}
	}
	return attempt{outcome: outcomeRetry, err: err, fields: fields}
}

// settle records an attempt on the row. Only bookkeeping failures are
// returned, which rolls the batch back.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, a attempt) error {
	logCtx := s.logg.WithFields(ctx, a.fields)
	if a.err != nil {
		logCtx = s.logg.WithField(logCtx, "error", a.err.Error())
	}

	switch a.outcome {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
		s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxOutcomePublished)
	case outcomeRetry:
		if err := s.repo.MarkFailedTx(tx, event.ID, a.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		s.logg.Warn(logCtx, "outbox publish failed")
		s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxOutcomeRetry)
	case outcomeDeadLetter:
		if err := s.deadLetter(tx, event, a); err != nil {
			return err
		}
		s.logg.Warn(s.logg.WithField(logCtx, "error_reason", a.reason.String()), "outbox event will not be retried")
		s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxOutcomeDeadLettered)
	}
	return nil
}

func (s *Service) deadLetter(tx *gorm.DB, event models.OutboxEvent, a attempt) error {
	msg := a.err.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   a.reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, a.err, s.settings.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.settings.publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, newMessage(event, resolved.Envelope))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// newMessage keeps the payload as stored and mirrors the routing fields into
// attributes so subscribers can filter without decoding.
func newMessage(event models.OutboxEvent, envelope outbox.PayloadEnvelope) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"schema_version": strconv.Itoa(envelope.Version),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func (s *Service) eventFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

// cachedPublishers keeps one publisher per topic. The dispatcher runs on a
// single goroutine so the map needs no lock.
func cachedPublishers(client pubSubClient) publisherFactory {
	byTopic := map[string]publisher{}
	return func(topic string) publisher {
		if pub, ok := byTopic[topic]; ok {
			return pub
		}
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		pub := gcpPublisher{p}
		byTopic[topic] = pub
		return pub
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}
