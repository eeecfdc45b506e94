package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botlist/arcadia/internal/config"
	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/events"
	"github.com/botlist/arcadia/internal/repository/memstore"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

type queueFixture struct {
	db         *memstore.DB
	clock      *clock
	dispatcher events.Dispatcher
	authz      *Authorizer
	svc        *QueueService
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	f := &queueFixture{db: memstore.New(), clock: newClock(), dispatcher: events.NewInMemoryDispatcher()}
	f.db.Now = f.clock.Now
	seedHierarchy(f.db)
	f.authz = NewAuthorizer(f.db.Store())
	f.authz.now = f.clock.Now
	f.svc = NewQueueService(config.QueueConfig{MinClaimAge: 5 * time.Minute}, QueueDependencies{
		Store:      f.db.Store(),
		Transactor: f.db,
		Authorizer: f.authz,
		Dispatcher: f.dispatcher,
	})
	f.svc.now = f.clock.Now
	return f
}

func TestQueueClaimAndDecide(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	putStaff(f.db, "100", "reviewer")
	f.db.PutBot(domain.BotReviewRecord{BotID: "b1", Type: domain.BotTypePending, Owner: strPtr("owner")})
	decided := recordAll(f.dispatcher, events.EventBotClaimed, events.EventBotApproved)

	bot, err := f.svc.Claim(ctx, "100", "b1", false)
	require.NoError(t, err)
	assert.Equal(t, domain.BotTypeClaimed, bot.Type)
	assert.Equal(t, "100", *bot.ClaimedBy)

	f.clock.Advance(4 * time.Minute)
	_, err = f.svc.Approve(ctx, "100", "b1", "looks good")
	assert.True(t, apperrors.IsCode(err, "PRECONDITION_FAILED"))

	f.clock.Advance(time.Minute)
	bot, err = f.svc.Approve(ctx, "100", "b1", "looks good")
	require.NoError(t, err)
	assert.Equal(t, domain.BotTypeApproved, bot.Type)
	assert.Nil(t, bot.ClaimedBy)

	stored, _ := f.db.Bot("b1")
	assert.Equal(t, domain.BotTypeApproved, stored.Type)
	require.Len(t, decided.list(), 2)
	assert.Equal(t, events.EventBotApproved, decided.list()[1].Type)
}

func TestQueueDecisionNeedsReason(t *testing.T) {
	f := newQueueFixture(t)
	putStaff(f.db, "100", "reviewer")

	_, err := f.svc.Deny(context.Background(), "100", "b1", "  ")
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestQueueDecisionRequiresOwnClaim(t *testing.T) {
	f := newQueueFixture(t)
	putStaff(f.db, "100", "reviewer")
	claimed := testNow.Add(-time.Hour)
	f.db.PutBot(domain.BotReviewRecord{BotID: "b1", Type: domain.BotTypeClaimed, ClaimedBy: strPtr("101"), LastClaimed: &claimed})

	_, err := f.svc.Deny(context.Background(), "100", "b1", "broken")
	assert.True(t, apperrors.IsCode(err, "PRECONDITION_FAILED"))
}

func TestQueueClaimConflicts(t *testing.T) {
	ctx := context.Background()
	claimed := testNow.Add(-time.Minute)

	t.Run("already claimed by someone else", func(t *testing.T) {
		f := newQueueFixture(t)
		putStaff(f.db, "100", "reviewer")
		f.db.PutBot(domain.BotReviewRecord{BotID: "b1", Type: domain.BotTypeClaimed, ClaimedBy: strPtr("101"), LastClaimed: &claimed})

		_, err := f.svc.Claim(ctx, "100", "b1", false)
		assert.True(t, apperrors.IsCode(err, "PRECONDITION_FAILED"))
	})

	t.Run("force without permission", func(t *testing.T) {
		f := newQueueFixture(t)
		putStaff(f.db, "100", "reviewer")
		f.db.PutBot(domain.BotReviewRecord{BotID: "b1", Type: domain.BotTypeClaimed, ClaimedBy: strPtr("101"), LastClaimed: &claimed})

		_, err := f.svc.Claim(ctx, "100", "b1", true)
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
		stored, _ := f.db.Bot("b1")
		assert.Equal(t, "101", *stored.ClaimedBy)
	})

	t.Run("force with permission", func(t *testing.T) {
		f := newQueueFixture(t)
		putStaff(f.db, "200", "manager")
		f.db.PutBot(domain.BotReviewRecord{BotID: "b1", Type: domain.BotTypeClaimed, ClaimedBy: strPtr("101"), LastClaimed: &claimed})

		bot, err := f.svc.Claim(ctx, "200", "b1", true)
		require.NoError(t, err)
		assert.Equal(t, "200", *bot.ClaimedBy)
		assert.True(t, bot.LastClaimed.Equal(testNow))
	})

	t.Run("approved bot is not in queue", func(t *testing.T) {
		f := newQueueFixture(t)
		putStaff(f.db, "100", "reviewer")
		f.db.PutBot(domain.BotReviewRecord{BotID: "b1", Type: domain.BotTypeApproved})

		_, err := f.svc.Claim(ctx, "100", "b1", false)
		assert.True(t, apperrors.IsCode(err, "PRECONDITION_FAILED"))
	})

	t.Run("unknown bot", func(t *testing.T) {
		f := newQueueFixture(t)
		putStaff(f.db, "100", "reviewer")

		_, err := f.svc.Claim(ctx, "100", "nope", false)
		assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
	})

	t.Run("non-staff", func(t *testing.T) {
		f := newQueueFixture(t)
		f.db.PutBot(domain.BotReviewRecord{BotID: "b1", Type: domain.BotTypePending})

		_, err := f.svc.Claim(ctx, "555", "b1", false)
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	})
}

func TestQueueUnclaim(t *testing.T) {
	ctx := context.Background()
	claimed := testNow.Add(-time.Minute)

	f := newQueueFixture(t)
	putStaff(f.db, "100", "reviewer")
	putStaff(f.db, "200", "manager")
	f.db.PutBot(domain.BotReviewRecord{BotID: "b1", Type: domain.BotTypeClaimed, ClaimedBy: strPtr("101"), LastClaimed: &claimed})

	_, err := f.svc.Unclaim(ctx, "100", "b1", "")
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	bot, err := f.svc.Unclaim(ctx, "200", "b1", "stale")
	require.NoError(t, err)
	assert.Equal(t, domain.BotTypePending, bot.Type)
	assert.Nil(t, bot.ClaimedBy)

	_, err = f.svc.Unclaim(ctx, "200", "b1", "")
	assert.True(t, apperrors.IsCode(err, "PRECONDITION_FAILED"))
}

func TestQueueList(t *testing.T) {
	f := newQueueFixture(t)
	putStaff(f.db, "100", "reviewer")
	f.db.PutBot(domain.BotReviewRecord{BotID: "b1", Type: domain.BotTypePending})
	f.db.PutBot(domain.BotReviewRecord{BotID: "b2", Type: domain.BotTypeApproved})

	bots, err := f.svc.List(context.Background(), "100")
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.Equal(t, "b1", bots[0].BotID)

	_, err = f.svc.List(context.Background(), "555")
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}
