package quotes

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/portal-crm-backend/internal/deals"
	"github.com/angelmondragon/portal-crm-backend/pkg/db"
	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/portal-crm-backend/pkg/errors"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS quotes (
  id TEXT PRIMARY KEY,
  quote_number TEXT NOT NULL UNIQUE,
  version INTEGER NOT NULL DEFAULT 1,
  parent_quote_id TEXT,
  title TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'draft',
  items TEXT NOT NULL,
  billing_address TEXT,
  shipping_cost TEXT NOT NULL DEFAULT '0',
  subtotal TEXT NOT NULL DEFAULT '0',
  total_discount TEXT NOT NULL DEFAULT '0',
  total_tax TEXT NOT NULL DEFAULT '0',
  grand_total TEXT NOT NULL DEFAULT '0',
  issue_date DATETIME NOT NULL,
  expiry_date DATETIME NOT NULL,
  owner_id TEXT NOT NULL,
  deal_id TEXT,
  notes TEXT,
  terms_and_conditions TEXT,
  status_changed_at DATETIME,
  lock_version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS deals (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  value TEXT NOT NULL,
  stage TEXT NOT NULL,
  owner_id TEXT NOT NULL,
  source_quote_id TEXT UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`

func setupQuotesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range strings.Split(testSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

type testEnv struct {
	conn    *gorm.DB
	repo    Repository
	deals   deals.Repository
	svc     *service
	clock   time.Time
	actor   Actor
	metrics *recordingMetrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn := setupQuotesTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "quotes-test", Output: io.Discard})
	repo := NewRepository(conn)
	dealsRepo := deals.NewRepository(conn)
	recorder := &recordingMetrics{}

	svc, err := NewService(ServiceParams{
		Repo:    repo,
		Deals:   dealsRepo,
		Tx:      db.NewFromConn(conn),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:  logg,
		Metrics: recorder,
	})
	require.NoError(t, err)

	env := &testEnv{
		conn:    conn,
		repo:    repo,
		deals:   dealsRepo,
		svc:     svc.(*service),
		clock:   time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		actor:   Actor{UserID: uuid.New(), Role: enums.MemberRoleSales},
		metrics: recorder,
	}
	env.svc.now = func() time.Time { return env.clock }
	return env
}

func (e *testEnv) createQuote(t *testing.T, input CreateQuoteInput) *models.Quote {
	t.Helper()
	quote, err := e.svc.Create(context.Background(), e.actor, input)
	require.NoError(t, err)
	return quote
}

// forceStatus writes status directly so tests can start from any state.
func (e *testEnv) forceStatus(t *testing.T, id uuid.UUID, status enums.QuoteStatus) {
	t.Helper()
	require.NoError(t, e.conn.Model(&models.Quote{}).Where("id = ?", id).Update("status", status).Error)
}

func (e *testEnv) outboxEvents(t *testing.T, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, e.conn.Where("event_type = ?", eventType).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func (e *testEnv) dealCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.conn.Model(&models.Deal{}).Count(&count).Error)
	return count
}

func sampleItem() ItemInput {
	return ItemInput{
		ProductName:     "Consulting hours",
		Quantity:        2,
		UnitPrice:       decimal.NewFromInt(100),
		DiscountPercent: decimal.NewFromInt(10),
		TaxPercent:      decimal.NewFromInt(5),
	}
}

func sampleInput() CreateQuoteInput {
	return CreateQuoteInput{
		Title:        "Website rebuild",
		Items:        []ItemInput{sampleItem(), sampleItem()},
		ShippingCost: decimal.NewFromInt(15),
	}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), "unexpected error: %v", err)
}

type recordingMetrics struct {
	transitions []string
	conversions []string
	revisions   int
}

func (r *recordingMetrics) ObserveTransition(from, to string) {
	r.transitions = append(r.transitions, from+"->"+to)
}

func (r *recordingMetrics) ObserveConversion(outcome string) {
	r.conversions = append(r.conversions, outcome)
}

func (r *recordingMetrics) IncRevision() { r.revisions++ }
