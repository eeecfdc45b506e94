package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/botlist/arcadia/internal/config"
	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/events"
	"github.com/botlist/arcadia/internal/persistence"
	"github.com/botlist/arcadia/internal/repository/memstore"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: testNow} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeGuilds struct {
	names     map[string]string
	members   map[string]bool
	sandboxes []string
}

func newFakeGuilds() *fakeGuilds {
	return &fakeGuilds{names: map[string]string{}, members: map[string]bool{}}
}

// addSandbox registers guildID as actorID's sandbox with actorID joined.
func (g *fakeGuilds) addSandbox(guildID, actorID string) {
	g.names[guildID] = actorID
	g.members[guildID+"/"+actorID] = true
}

func (g *fakeGuilds) GuildName(_ context.Context, guildID string) (string, error) {
	return g.names[guildID], nil
}

func (g *fakeGuilds) IsMember(_ context.Context, guildID, userID string) (bool, error) {
	return g.members[guildID+"/"+userID], nil
}

func (g *fakeGuilds) EnsureSandbox(_ context.Context, actorID string) (string, error) {
	g.sandboxes = append(g.sandboxes, actorID)
	return "https://discord.gg/sandbox-" + actorID, nil
}

type fakeInteractions struct {
	clock   *clock
	entries map[string]fakeInteraction
}

type fakeInteraction struct {
	raw     []byte
	expires time.Time
}

func newFakeInteractions(c *clock) *fakeInteractions {
	return &fakeInteractions{clock: c, entries: map[string]fakeInteraction{}}
}

func (f *fakeInteractions) Put(_ context.Context, id string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.entries[id] = fakeInteraction{raw: raw, expires: f.clock.Now().Add(ttl)}
	return nil
}

func (f *fakeInteractions) Take(_ context.Context, id string, v any) error {
	e, ok := f.entries[id]
	delete(f.entries, id)
	if !ok || !f.clock.Now().Before(e.expires) {
		return persistence.ErrInteractionExpired
	}
	return json.Unmarshal(e.raw, v)
}

type sentMessage struct {
	channel string
	users   []string
	content string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *fakeNotifier) SendChannel(_ context.Context, channelID, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{channel: channelID, content: content})
	return nil
}

func (n *fakeNotifier) SendUsers(_ context.Context, userIDs []string, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{users: append([]string(nil), userIDs...), content: content})
	return nil
}

func (n *fakeNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

type fakeLimiter struct {
	remaining map[string]int
}

func (l *fakeLimiter) Allow(actorID string) bool {
	n, ok := l.remaining[actorID]
	if !ok {
		return true
	}
	if n <= 0 {
		return false
	}
	l.remaining[actorID] = n - 1
	return true
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func recordAll(d events.Dispatcher, types ...events.EventType) *recordedEvents {
	rec := &recordedEvents{}
	for _, t := range types {
		d.Subscribe(t, func(_ context.Context, e events.Event) error {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.events = append(rec.events, e)
			return nil
		})
	}
	return rec
}

func (r *recordedEvents) list() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

const (
	sandboxBot   = "900000000000000001"
	sandboxGuild = "800000000000000001"
)

func testOnboardingConfig() config.OnboardingConfig {
	return config.OnboardingConfig{
		GuideURL:            "https://guide.example.test/onboard",
		SandboxBotID:        sandboxBot,
		InactivityWindow:    time.Hour,
		CompletionExpiry:    7 * 24 * time.Hour,
		SurveyTimeout:       10 * time.Minute,
		ConfirmationTimeout: time.Minute,
	}
}

// seedHierarchy stores three positions (owner 0, manager 10, reviewer 20).
func seedHierarchy(db *memstore.DB) {
	db.PutPosition(domain.StaffPosition{ID: "owner", Name: "Owner", RoleID: "r-owner", Index: 0, Perms: []string{"global.*"}})
	db.PutPosition(domain.StaffPosition{ID: "manager", Name: "Manager", RoleID: "r-manager", Index: 10, Perms: []string{
		"bots.*", "onboarding.*", "staff_positions.*", "staff_members.edit",
		"staff_disciplinary.*", "staff_disciplinary_types.*", "rpc.*",
	}})
	db.PutPosition(domain.StaffPosition{ID: "reviewer", Name: "Reviewer", RoleID: "r-reviewer", Index: 20, Perms: []string{
		"bots.claim", "bots.unclaim", "bots.approve", "bots.deny", "bots.queue", "rpc.tier.staff", "rpc.Approve", "rpc.Deny",
	}})
}

func putStaff(db *memstore.DB, userID string, positions ...string) {
	db.PutMember(domain.StaffMember{UserID: userID, PositionIDs: positions, MFAVerified: true})
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
