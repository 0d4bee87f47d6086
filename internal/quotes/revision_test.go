package quotes

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/portal-crm-backend/pkg/errors"
	"github.com/angelmondragon/portal-crm-backend/pkg/types"
)

func TestCloneCreatesNextVersionAndRevisesSource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	notes := "net 30"
	input := sampleInput()
	input.Notes = &notes
	input.BillingAddress = &types.BillingAddress{Company: "Acme"}
	source := env.createQuote(t, input)
	_, err := env.svc.Transition(ctx, env.actor, source.ID, enums.QuoteStatusSent)
	require.NoError(t, err)

	env.clock = env.clock.Add(72 * time.Hour)
	child, err := env.svc.Clone(ctx, env.actor, source.ID)
	require.NoError(t, err)

	assert.NotEqual(t, source.ID, child.ID)
	assert.NotEqual(t, source.QuoteNumber, child.QuoteNumber)
	assert.Equal(t, source.Version+1, child.Version)
	require.NotNil(t, child.ParentQuoteID)
	assert.Equal(t, source.ID, *child.ParentQuoteID)
	assert.Equal(t, enums.QuoteStatusDraft, child.Status)
	assert.Nil(t, child.DealID)
	assert.True(t, child.IssueDate.Equal(env.clock))
	assert.Equal(t, source.ExpiryDate.Sub(source.IssueDate), child.ExpiryDate.Sub(child.IssueDate))
	assert.True(t, child.GrandTotal.Equal(source.GrandTotal))
	require.NotNil(t, child.Notes)
	assert.Equal(t, notes, *child.Notes)
	require.NotNil(t, child.BillingAddress)
	assert.Equal(t, "Acme", child.BillingAddress.Company)

	storedSource, err := env.svc.Get(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.QuoteStatusRevised, storedSource.Status)

	storedChild, err := env.svc.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, storedChild.Version)
	require.Len(t, storedChild.Items, 2)

	assert.Len(t, env.outboxEvents(t, enums.EventQuoteRevised), 1)
	assert.Equal(t, 1, env.metrics.revisions)
}

func TestCloneVersionsAreMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	current := env.createQuote(t, sampleInput())
	for want := 2; want <= 4; want++ {
		next, err := env.svc.Clone(ctx, env.actor, current.ID)
		require.NoError(t, err)
		assert.Equal(t, want, next.Version)
		assert.Equal(t, current.ID, *next.ParentQuoteID)
		current = next
	}
}

func TestCloneRejectsAlreadyRevisedSource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	source := env.createQuote(t, sampleInput())
	_, err := env.svc.Clone(ctx, env.actor, source.ID)
	require.NoError(t, err)

	_, err = env.svc.Clone(ctx, env.actor, source.ID)
	requireCode(t, err, pkgerrors.CodeConflict)

	var children int64
	require.NoError(t, env.conn.Model(&models.Quote{}).Where("parent_quote_id = ?", source.ID).Count(&children).Error)
	assert.Equal(t, int64(1), children)
}

func TestCloneOfConvertedQuoteStartsUnlinked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	source := env.createQuote(t, sampleInput())
	env.forceStatus(t, source.ID, enums.QuoteStatusAccepted)
	result, err := env.svc.ConvertToDeal(ctx, env.actor, source.ID)
	require.NoError(t, err)

	child, err := env.svc.Clone(ctx, env.actor, source.ID)
	require.NoError(t, err)
	assert.Nil(t, child.DealID)

	storedSource, err := env.svc.Get(ctx, source.ID)
	require.NoError(t, err)
	require.NotNil(t, storedSource.DealID)
	assert.Equal(t, result.DealID, *storedSource.DealID)
}

func TestCloneLosesConditionalWrite(t *testing.T) {
	quote := &models.Quote{
		ID:          uuid.New(),
		Version:     1,
		Status:      enums.QuoteStatusSent,
		Items:       types.QuoteItems{{ProductName: "x", Quantity: 1}},
		LockVersion: 2,
	}
	repo := &stubQuotesRepo{quote: quote, statusWins: false}
	svc, out := newStubService(t, repo, &stubDealsRepo{})

	_, err := svc.Clone(context.Background(), Actor{UserID: uuid.New()}, quote.ID)
	requireCode(t, err, pkgerrors.CodeConcurrentModification)
	assert.Empty(t, out.events)
}

func TestCloneMissingQuote(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Clone(context.Background(), env.actor, uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)
}
