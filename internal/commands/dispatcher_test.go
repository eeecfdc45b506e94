package commands

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botlist/arcadia/internal/config"
	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/events"
	"github.com/botlist/arcadia/internal/persistence"
	"github.com/botlist/arcadia/internal/repository/memstore"
	"github.com/botlist/arcadia/internal/service"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

const (
	sandboxBot   = "900000000000000001"
	sandboxGuild = "800000000000000001"
)

type stubOnboarding struct {
	result   *service.OnboardingResult
	post     []string
	handled  []string
	postRuns int
}

func (s *stubOnboarding) Handle(_ context.Context, inv service.Invocation) (*service.OnboardingResult, error) {
	s.handled = append(s.handled, inv.Command)
	return s.result, nil
}

func (s *stubOnboarding) Resume(_ context.Context, _ service.ResumeInput) (*service.OnboardingResult, error) {
	return &service.OnboardingResult{Status: service.OnboardingHalt, Messages: []string{"resumed"}}, nil
}

func (s *stubOnboarding) PostCommand(_ context.Context, _ string) ([]string, error) {
	s.postRuns++
	return s.post, nil
}

type stubAuthorizer struct {
	allowed map[string]bool
	calls   int
}

func (a *stubAuthorizer) Authorize(_ context.Context, _ string, required ...string) error {
	a.calls++
	var missing []string
	for _, p := range required {
		if !a.allowed[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewMissingPermissions(missing)
	}
	return nil
}

func stubRegistry(ran *int) *Registry {
	run := func(_ context.Context, inv service.Invocation) (*Reply, error) {
		*ran++
		return &Reply{Messages: []string{"ran " + inv.Command}}, nil
	}
	return &Registry{byName: map[string]Descriptor{
		"claim":      {Name: "claim", Requires: []string{"bots.claim"}, Onboarding: true, Run: run},
		"paneltoken": {Name: "paneltoken", Run: run},
	}}
}

func newTestLocker(t *testing.T) *persistence.ActorLocker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return persistence.NewActorLocker(&persistence.Redis{Client: client, Prefix: "arcadia:"}, 30*time.Second)
}

func TestDispatchHaltSkipsAuthorizationAndRun(t *testing.T) {
	var ran int
	onboarding := &stubOnboarding{
		result: &service.OnboardingResult{Status: service.OnboardingHalt, Messages: []string{"finish onboarding"}},
		post:   []string{"next step"},
	}
	authz := &stubAuthorizer{}
	d := NewDispatcher(DispatcherDependencies{Registry: stubRegistry(&ran), Onboarding: onboarding, Authorizer: authz})

	reply, err := d.Dispatch(context.Background(), service.Invocation{ActorID: "100", Command: "claim"})
	require.NoError(t, err)

	assert.Equal(t, 0, ran)
	assert.Equal(t, 0, authz.calls)
	assert.True(t, reply.Ephemeral)
	assert.Equal(t, []string{"finish onboarding", "next step"}, reply.Messages)
	assert.Equal(t, 1, onboarding.postRuns)
}

func TestDispatchProceedAuthorizesThenRuns(t *testing.T) {
	var ran int
	onboarding := &stubOnboarding{result: &service.OnboardingResult{Status: service.OnboardingProceed}}
	authz := &stubAuthorizer{allowed: map[string]bool{}}
	d := NewDispatcher(DispatcherDependencies{Registry: stubRegistry(&ran), Onboarding: onboarding, Authorizer: authz})
	ctx := context.Background()

	_, err := d.Dispatch(ctx, service.Invocation{ActorID: "100", Command: "claim"})
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	assert.Equal(t, 0, ran)
	assert.Equal(t, 0, onboarding.postRuns, "failed commands do not advance onboarding")

	authz.allowed["bots.claim"] = true
	reply, err := d.Dispatch(ctx, service.Invocation{ActorID: "100", Command: "claim"})
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.Equal(t, []string{"ran claim"}, reply.Messages)
	assert.Equal(t, 1, onboarding.postRuns)
}

func TestDispatchNonOnboardingCommand(t *testing.T) {
	var ran int
	onboarding := &stubOnboarding{}
	d := NewDispatcher(DispatcherDependencies{Registry: stubRegistry(&ran), Onboarding: onboarding, Authorizer: &stubAuthorizer{}})

	_, err := d.Dispatch(context.Background(), service.Invocation{ActorID: "100", Command: "paneltoken"})
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.Empty(t, onboarding.handled)
	assert.Equal(t, 0, onboarding.postRuns)
}

func TestDispatchUnknownCommand(t *testing.T) {
	var ran int
	d := NewDispatcher(DispatcherDependencies{Registry: stubRegistry(&ran), Onboarding: &stubOnboarding{}, Authorizer: &stubAuthorizer{}})

	_, err := d.Dispatch(context.Background(), service.Invocation{ActorID: "100", Command: "nope"})
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestDispatchRejectsConcurrentInvocationFromSameActor(t *testing.T) {
	var ran int
	locker := newTestLocker(t)
	onboarding := &stubOnboarding{result: &service.OnboardingResult{Status: service.OnboardingHalt}}
	d := NewDispatcher(DispatcherDependencies{
		Registry: stubRegistry(&ran), Onboarding: onboarding, Authorizer: &stubAuthorizer{}, Locker: locker,
	})
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "100")
	require.NoError(t, err)

	_, err = d.Dispatch(ctx, service.Invocation{ActorID: "100", Command: "claim"})
	assert.True(t, apperrors.IsCode(err, "PRECONDITION_FAILED"))
	_, err = d.Resume(ctx, service.ResumeInput{ActorID: "100", InteractionID: "x"})
	assert.True(t, apperrors.IsCode(err, "PRECONDITION_FAILED"))

	_, err = d.Dispatch(ctx, service.Invocation{ActorID: "101", Command: "claim"})
	assert.NoError(t, err)

	release()
	_, err = d.Dispatch(ctx, service.Invocation{ActorID: "100", Command: "claim"})
	assert.NoError(t, err)
	_, err = d.Dispatch(ctx, service.Invocation{ActorID: "100", Command: "claim"})
	assert.NoError(t, err, "the lock is released after each dispatch")
}

type sandboxGuilds struct{}

func (sandboxGuilds) GuildName(_ context.Context, guildID string) (string, error) {
	if guildID == sandboxGuild {
		return "100", nil
	}
	return "Main", nil
}

func (sandboxGuilds) IsMember(_ context.Context, guildID, userID string) (bool, error) {
	return guildID == sandboxGuild && userID == "100", nil
}

func (sandboxGuilds) EnsureSandbox(_ context.Context, actorID string) (string, error) {
	return "https://discord.gg/sandbox-" + actorID, nil
}

type integration struct {
	db         *memstore.DB
	dispatcher *Dispatcher
}

func newIntegration(t *testing.T) *integration {
	t.Helper()
	db := memstore.New()
	db.PutPosition(domain.StaffPosition{ID: "reviewer", Name: "Reviewer", Index: 20, Perms: []string{
		"bots.claim", "bots.unclaim", "bots.approve", "bots.deny", "bots.queue",
	}})
	db.PutMember(domain.StaffMember{UserID: "100", PositionIDs: []string{"reviewer"}, MFAVerified: true})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rdb := &persistence.Redis{Client: client, Prefix: "arcadia:"}

	bus := events.NewInMemoryDispatcher()
	authz := service.NewAuthorizer(db.Store())
	onboarding := service.NewOnboardingService(config.OnboardingConfig{
		GuideURL:            "https://staff.example.org/guide",
		SandboxBotID:        sandboxBot,
		InactivityWindow:    time.Hour,
		CompletionExpiry:    7 * 24 * time.Hour,
		SurveyTimeout:       10 * time.Minute,
		ConfirmationTimeout: time.Minute,
	}, service.OnboardingDependencies{
		UserRepo:     db.Store().Users,
		StaffRepo:    db.Store().Staff,
		Authorizer:   authz,
		Guilds:       sandboxGuilds{},
		Interactions: persistence.NewInteractionStore(rdb),
		Dispatcher:   bus,
	})
	queue := service.NewQueueService(config.QueueConfig{MinClaimAge: 5 * time.Minute}, service.QueueDependencies{
		Store: db.Store(), Transactor: db, Authorizer: authz, Dispatcher: bus,
	})
	registry := NewRegistry(Services{Queue: queue, Onboarding: onboarding, GuideURL: "https://staff.example.org/guide"})

	return &integration{
		db: db,
		dispatcher: NewDispatcher(DispatcherDependencies{
			Registry:   registry,
			Onboarding: onboarding,
			Authorizer: authz,
			Locker:     persistence.NewActorLocker(rdb, 30*time.Second),
		}),
	}
}

func (it *integration) run(t *testing.T, command string, args map[string]string) *Reply {
	t.Helper()
	reply, err := it.dispatcher.Dispatch(context.Background(), service.Invocation{
		ActorID: "100", Command: command, GuildID: sandboxGuild, Args: args,
	})
	require.NoError(t, err)
	return reply
}

func TestGuideCommandAdvancesToEncouragedInOneInvocation(t *testing.T) {
	it := newIntegration(t)

	it.run(t, service.CommandQueue, nil)
	rec, _ := it.db.User("100")
	require.Equal(t, domain.OnboardQueueStep, rec.State)

	reply := it.run(t, service.CommandStaffGuide, nil)
	require.Len(t, reply.Messages, 2)
	assert.Contains(t, reply.Messages[0], "https://staff.example.org/guide?session=")
	assert.Contains(t, reply.Messages[1], "claim <@"+sandboxBot+">")

	rec, _ = it.db.User("100")
	assert.Equal(t, domain.OnboardStaffGuideReadEncouraged, rec.State)
}

func TestCompletedStaffRunCommandsAndRefreshExpiry(t *testing.T) {
	it := newIntegration(t)
	started := time.Now().Add(-48 * time.Hour)
	it.db.PutUser(domain.StaffOnboardRecord{UserID: "100", State: domain.OnboardComplete, LastStartTime: &started})
	it.db.PutBot(domain.BotReviewRecord{BotID: "b1", Type: domain.BotTypePending})

	reply, err := it.dispatcher.Dispatch(context.Background(), service.Invocation{
		ActorID: "100", Command: service.CommandClaim, GuildID: "main", Args: map[string]string{"bot": "b1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"<@100> claimed <@b1>."}, reply.Messages)

	bot, _ := it.db.Bot("b1")
	assert.Equal(t, domain.BotTypeClaimed, bot.Type)
	rec, _ := it.db.User("100")
	require.NotNil(t, rec.LastStartTime)
	assert.True(t, rec.LastStartTime.After(started))

	reply = it.run(t, service.CommandQueue, nil)
	require.Len(t, reply.Messages, 1)
	assert.Equal(t, "Queue:\n1. <@b1> (claimed by <@100>)", reply.Messages[0])
}

func TestRPCInputMapsValueOntoExtraField(t *testing.T) {
	inv := service.Invocation{Args: map[string]string{"target": "b1", "reason": "spam", "value": "48"}}

	premium, ok := service.LookupRPCMethod(service.RPCPremiumAdd)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"target_id": "b1", "reason": "spam", "time_period_hours": "48"}, rpcInput(premium, inv))

	rename, ok := service.LookupRPCMethod(service.RPCTeamNameEdit)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"target_id": "b1", "new_name": "48"}, rpcInput(rename, inv))
}

func TestRegistryIsClosedAndSorted(t *testing.T) {
	r := NewRegistry(Services{})
	var names []string
	for _, d := range r.All() {
		names = append(names, d.Name)
		require.NotNil(t, d.Run, d.Name)
	}
	assert.Equal(t, []string{
		"approve", "approveonboard", "claim", "deny", "denyonboard", "paneltoken",
		"queue", "resetonboard", "rpc", "staffguide", "unclaim",
	}, names)

	paneltoken, _ := r.Lookup("paneltoken")
	assert.False(t, paneltoken.Onboarding)
}
