package worker

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/events"
	"github.com/botlist/arcadia/internal/perms"
	"github.com/botlist/arcadia/internal/repository"
)

// RoleSource reports the role IDs every member of the staff guild holds.
type RoleSource interface {
	MemberRoles(ctx context.Context) (map[string][]string, error)
}

// StaffResyncJob aligns stored position assignments with staff guild roles.
type StaffResyncJob struct {
	users      repository.UserRepository
	staff      repository.StaffRepository
	roles      RoleSource
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// StaffResyncDependencies bundles collaborators.
type StaffResyncDependencies struct {
	UserRepo   repository.UserRepository
	StaffRepo  repository.StaffRepository
	Roles      RoleSource
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewStaffResyncJob builds the job.
func NewStaffResyncJob(deps StaffResyncDependencies) *StaffResyncJob {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffResyncJob{
		users:      deps.UserRepo,
		staff:      deps.StaffRepo,
		roles:      deps.Roles,
		dispatcher: deps.Dispatcher,
		logger:     logger.Named("staff_resync"),
	}
}

func (j *StaffResyncJob) Name() string { return "staff_resync" }

type resyncChange struct {
	before  domain.StaffMember
	after   *domain.StaffMember
	removed bool
}

func (j *StaffResyncJob) Run(ctx context.Context) (int, error) {
	positions, err := j.staff.ListPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list positions: %w", err)
	}
	members, err := j.staff.ListMembers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list staff members: %w", err)
	}
	roles, err := j.roles.MemberRoles(ctx)
	if err != nil {
		return 0, fmt.Errorf("read staff guild roles: %w", err)
	}

	byID := make(map[string]domain.StaffPosition, len(positions))
	for _, p := range positions {
		byID[p.ID] = p
	}
	intended := intendedPositions(positions, roles)

	var changes []resyncChange
	known := make(map[string]struct{}, len(members))
	for _, m := range members {
		known[m.UserID] = struct{}{}
		if m.NoAutosync {
			continue
		}
		if c, ok := planMember(m, intended); ok {
			changes = append(changes, c)
		}
	}

	var newcomers []string
	for userID := range intended {
		if _, ok := known[userID]; !ok {
			newcomers = append(newcomers, userID)
		}
	}
	sort.Strings(newcomers)
	for _, userID := range newcomers {
		changes = append(changes, resyncChange{
			before: domain.StaffMember{UserID: userID},
			after:  &domain.StaffMember{UserID: userID, PositionIDs: intended[userID]},
		})
	}

	applied, failed := 0, 0
	for _, c := range changes {
		if err := j.apply(ctx, c); err != nil {
			failed++
			j.logger.Error("staff resync failed", zap.String("user_id", c.before.UserID), zap.Error(err))
			continue
		}
		applied++
		j.record(ctx, c, byID)
	}
	if failed > 0 {
		return applied, fmt.Errorf("%d of %d staff changes could not be applied", failed, len(changes))
	}
	return applied, nil
}

// intendedPositions maps every user holding at least one bound role to the
// sorted IDs of the positions those roles grant.
func intendedPositions(positions []domain.StaffPosition, roles map[string][]string) map[string][]string {
	byRole := make(map[string][]string)
	for _, p := range positions {
		if p.RoleID != "" {
			byRole[p.RoleID] = append(byRole[p.RoleID], p.ID)
		}
	}
	out := make(map[string][]string)
	for userID, held := range roles {
		set := make(map[string]struct{})
		for _, roleID := range held {
			for _, id := range byRole[roleID] {
				set[id] = struct{}{}
			}
		}
		if len(set) == 0 {
			continue
		}
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out[userID] = ids
	}
	return out
}

// planMember decides what a stored member should become. Members who left keep
// their row, marked unaccounted, only while they still carry overrides.
func planMember(m domain.StaffMember, intended map[string][]string) (resyncChange, bool) {
	want, present := intended[m.UserID]
	switch {
	case !present && len(m.PermOverrides) == 0:
		return resyncChange{before: m, removed: true}, true
	case !present:
		if m.Unaccounted && len(m.PositionIDs) == 0 {
			return resyncChange{}, false
		}
		after := m
		after.PositionIDs = nil
		after.Unaccounted = true
		return resyncChange{before: m, after: &after}, true
	default:
		if !m.Unaccounted && sameSet(m.PositionIDs, want) {
			return resyncChange{}, false
		}
		after := m
		after.PositionIDs = want
		after.Unaccounted = false
		return resyncChange{before: m, after: &after}, true
	}
}

func (j *StaffResyncJob) apply(ctx context.Context, c resyncChange) error {
	if c.removed {
		return j.staff.DeleteMember(ctx, c.before.UserID)
	}
	if err := j.users.Ensure(ctx, c.after.UserID); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return j.staff.UpsertMember(ctx, c.after)
}

func (j *StaffResyncJob) record(ctx context.Context, c resyncChange, positions map[string]domain.StaffPosition) {
	payload := events.StaffResyncedPayload{
		BeforePositions: c.before.PositionIDs,
		BeforePerms:     resolvedPerms(positions, c.before),
		Removed:         c.removed,
	}
	if c.after != nil {
		payload.AfterPositions = c.after.PositionIDs
		payload.AfterPerms = resolvedPerms(positions, *c.after)
	}

	j.logger.Info("staff member resynced",
		zap.String("user_id", c.before.UserID),
		zap.Strings("before_positions", payload.BeforePositions),
		zap.Strings("after_positions", payload.AfterPositions),
		zap.Strings("before_perms", payload.BeforePerms),
		zap.Strings("after_perms", payload.AfterPerms),
		zap.Bool("removed", payload.Removed),
	)
	if err := j.dispatcher.Publish(ctx, events.New(events.EventStaffResynced, c.before.UserID, "", payload)); err != nil {
		j.logger.Warn("staff resync notification failed", zap.String("user_id", c.before.UserID), zap.Error(err))
	}
}

func resolvedPerms(positions map[string]domain.StaffPosition, m domain.StaffMember) []string {
	in := perms.Input{Overrides: m.PermOverrides}
	for _, id := range m.PositionIDs {
		if p, ok := positions[id]; ok {
			in.Positions = append(in.Positions, perms.PositionPerms{ID: p.ID, Index: p.Index, Perms: p.Perms})
		}
	}
	return perms.Resolve(in)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}
