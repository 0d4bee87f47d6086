package quotes

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/portal-crm-backend/pkg/errors"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
)

func newStubService(t *testing.T, repo *stubQuotesRepo, dealsRepo *stubDealsRepo) (*service, *stubOutbox) {
	t.Helper()
	out := &stubOutbox{}
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Deals:  dealsRepo,
		Tx:     stubTxRunner{},
		Outbox: out,
		Logger: logger.New(logger.Options{ServiceName: "quotes-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc.(*service), out
}

func TestTransitionTable(t *testing.T) {
	legal := map[[2]enums.QuoteStatus]bool{
		{enums.QuoteStatusDraft, enums.QuoteStatusPending}:   true,
		{enums.QuoteStatusDraft, enums.QuoteStatusSent}:      true,
		{enums.QuoteStatusPending, enums.QuoteStatusSent}:    true,
		{enums.QuoteStatusPending, enums.QuoteStatusRejected}: true,
		{enums.QuoteStatusSent, enums.QuoteStatusAccepted}:   true,
		{enums.QuoteStatusSent, enums.QuoteStatusRejected}:   true,
		{enums.QuoteStatusSent, enums.QuoteStatusExpired}:    true,
	}
	for _, from := range enums.QuoteStatuses() {
		for _, to := range enums.QuoteStatuses() {
			want := legal[[2]enums.QuoteStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	for _, terminal := range []enums.QuoteStatus{enums.QuoteStatusAccepted, enums.QuoteStatusRejected, enums.QuoteStatusExpired, enums.QuoteStatusRevised} {
		assert.True(t, IsTerminal(terminal), string(terminal))
	}
	assert.False(t, IsTerminal(enums.QuoteStatusDraft))
}

func TestTransitionMatrixAgainstStore(t *testing.T) {
	ctx := context.Background()
	for _, from := range enums.QuoteStatuses() {
		for _, to := range enums.QuoteStatuses() {
			from, to := from, to
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				env := newTestEnv(t)
				quote := env.createQuote(t, sampleInput())
				env.forceStatus(t, quote.ID, from)

				updated, err := env.svc.Transition(ctx, env.actor, quote.ID, to)
				stored, getErr := env.svc.Get(ctx, quote.ID)
				require.NoError(t, getErr)

				if !CanTransition(from, to) {
					requireCode(t, err, pkgerrors.CodeIllegalTransition)
					assert.Equal(t, from, stored.Status)
					assert.Empty(t, env.outboxEvents(t, enums.EventQuoteStatusChanged))
					return
				}
				require.NoError(t, err)
				assert.Equal(t, to, updated.Status)
				assert.Equal(t, to, stored.Status)
				require.NotNil(t, stored.StatusChangedAt)
				assert.True(t, stored.StatusChangedAt.Equal(env.clock))
				assert.Equal(t, quote.LockVersion+1, stored.LockVersion)
				assert.Len(t, env.outboxEvents(t, enums.EventQuoteStatusChanged), 1)
			})
		}
	}
}

func TestTransitionDraftToSentThenBackFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quote := env.createQuote(t, sampleInput())

	sent, err := env.svc.Transition(ctx, env.actor, quote.ID, enums.QuoteStatusSent)
	require.NoError(t, err)
	assert.Equal(t, enums.QuoteStatusSent, sent.Status)

	_, err = env.svc.Transition(ctx, env.actor, quote.ID, enums.QuoteStatusDraft)
	requireCode(t, err, pkgerrors.CodeIllegalTransition)
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, enums.QuoteStatusSent, details["from"])
	assert.Equal(t, []string{"draft->sent"}, env.metrics.transitions)
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	quote := env.createQuote(t, sampleInput())
	_, err := env.svc.Transition(context.Background(), env.actor, quote.ID, enums.QuoteStatus("archived"))
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = env.svc.Transition(context.Background(), env.actor, uuid.New(), enums.QuoteStatusSent)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestTransitionLosesConditionalWrite(t *testing.T) {
	quote := &models.Quote{ID: uuid.New(), Status: enums.QuoteStatusSent, LockVersion: 3}
	repo := &stubQuotesRepo{quote: quote, statusWins: false}
	svc, out := newStubService(t, repo, &stubDealsRepo{})

	_, err := svc.Transition(context.Background(), Actor{UserID: uuid.New()}, quote.ID, enums.QuoteStatusAccepted)
	requireCode(t, err, pkgerrors.CodeConcurrentModification)
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeConcurrentModification).Retryable)
	assert.Empty(t, out.events)
}

func TestExpireQuoteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	past := env.clock.Add(-48 * time.Hour)
	input := sampleInput()
	input.IssueDate = &past
	expiry := env.clock.Add(-time.Hour)
	input.ExpiryDate = &expiry
	due := env.createQuote(t, input)
	_, err := env.svc.Transition(ctx, env.actor, due.ID, enums.QuoteStatusSent)
	require.NoError(t, err)

	fresh := env.createQuote(t, sampleInput())
	_, err = env.svc.Transition(ctx, env.actor, fresh.ID, enums.QuoteStatusSent)
	require.NoError(t, err)

	candidates, err := env.svc.ExpiryCandidates(ctx, env.clock, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, due.ID, candidates[0].ID)

	expired, err := env.svc.ExpireQuote(ctx, due.ID, env.clock)
	require.NoError(t, err)
	assert.True(t, expired)

	again, err := env.svc.ExpireQuote(ctx, due.ID, env.clock)
	require.NoError(t, err)
	assert.False(t, again)

	notDue, err := env.svc.ExpireQuote(ctx, fresh.ID, env.clock)
	require.NoError(t, err)
	assert.False(t, notDue)

	stored, err := env.svc.Get(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.QuoteStatusExpired, stored.Status)
	assert.Len(t, env.outboxEvents(t, enums.EventQuoteExpired), 1)

	candidates, err = env.svc.ExpiryCandidates(ctx, env.clock, 10)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestExpireQuoteSkipsLostRace(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	quote := &models.Quote{ID: uuid.New(), Status: enums.QuoteStatusSent, ExpiryDate: now.Add(-time.Minute)}
	repo := &stubQuotesRepo{quote: quote, statusWins: false}
	svc, out := newStubService(t, repo, &stubDealsRepo{})

	expired, err := svc.ExpireQuote(context.Background(), quote.ID, now)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, 1, repo.statusWrites)
	assert.Empty(t, out.events)

	missing, err := svc.ExpireQuote(context.Background(), uuid.New(), now)
	require.NoError(t, err)
	assert.False(t, missing)
}
