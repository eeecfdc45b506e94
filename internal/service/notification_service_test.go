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
)

func newNotificationFixture(t *testing.T) (*memstore.DB, events.Dispatcher, *fakeNotifier) {
	t.Helper()
	db := memstore.New()
	dispatcher := events.NewInMemoryDispatcher()
	notifier := &fakeNotifier{}
	svc := NewNotificationService(config.DiscordConfig{ReviewerChannel: "reviewers", ModLogsChannel: "mod-logs"}, NotificationDependencies{
		Dispatcher: dispatcher,
		Notifier:   notifier,
		BotRepo:    db.Store().Bots,
		TeamRepo:   db.Store().Teams,
	})
	svc.RegisterHandlers()
	return db, dispatcher, notifier
}

func TestAutoUnclaimNotifiesReviewersAndTeamOnce(t *testing.T) {
	db, dispatcher, notifier := newNotificationFixture(t)
	db.PutBot(domain.BotReviewRecord{BotID: "b1", Type: domain.BotTypePending, TeamOwner: strPtr("t1")})
	db.PutTeam(domain.Team{ID: "t1", Name: "crew"},
		domain.TeamMember{TeamID: "t1", UserID: "u1"},
		domain.TeamMember{TeamID: "t1", UserID: "u2"},
	)

	err := dispatcher.Publish(context.Background(), events.New(events.EventBotAutoUnclaimed, "b1", "",
		events.BotAutoUnclaimedPayload{PreviousClaimant: "100", ClaimedAt: testNow.Add(-time.Hour)}))
	require.NoError(t, err)

	sent := notifier.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "reviewers", sent[0].channel)
	assert.Contains(t, sent[0].content, "<@100>")
	assert.Equal(t, []string{"u1", "u2"}, sent[1].users)
}

func TestDecisionNotifiesOwner(t *testing.T) {
	db, dispatcher, notifier := newNotificationFixture(t)
	db.PutBot(domain.BotReviewRecord{BotID: "b1", Type: domain.BotTypeDenied, Owner: strPtr("u9")})

	err := dispatcher.Publish(context.Background(), events.New(events.EventBotDenied, "b1", "100", events.BotReviewPayload{Reason: "offline"}))
	require.NoError(t, err)

	sent := notifier.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "mod-logs", sent[0].channel)
	assert.Equal(t, []string{"u9"}, sent[1].users)
	assert.Contains(t, sent[1].content, "denied")
	assert.Contains(t, sent[1].content, "offline")
}

func TestOnboardingReviewGoesToModLogs(t *testing.T) {
	_, dispatcher, notifier := newNotificationFixture(t)
	ctx := context.Background()

	require.NoError(t, dispatcher.Publish(ctx, events.New(events.EventOnboardingStateChanged, "100", "100",
		events.OnboardingStateChangedPayload{OldState: domain.OnboardQueueStep, NewState: domain.OnboardStaffGuideViewed})))
	assert.Empty(t, notifier.messages())

	require.NoError(t, dispatcher.Publish(ctx, events.New(events.EventOnboardingStateChanged, "100", "100",
		events.OnboardingStateChangedPayload{OldState: domain.OnboardTestingBot, NewState: domain.OnboardPendingManagerReview})))
	require.Len(t, notifier.messages(), 1)
	assert.Equal(t, "mod-logs", notifier.messages()[0].channel)
}

func TestModLogLine(t *testing.T) {
	line := modLogLine(events.New(events.EventBotClaimed, "b1", "100", events.BotReviewPayload{Forced: true}))
	assert.Equal(t, "`bot_claimed` <@b1> by <@100> (forced)", line)

	line = modLogLine(events.New(events.EventRPCInvoked, "b1", "100", events.RPCInvokedPayload{Method: "VoteReset", State: "success"}))
	assert.Equal(t, "RPC `VoteReset` on `b1` by <@100>: success", line)
}
