package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/perms"
	"github.com/botlist/arcadia/internal/repository"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// StaffContext is an actor's staff standing at the moment of a check.
// Member is nil for non-staff.
type StaffContext struct {
	UserID      string
	Member      *domain.StaffMember
	Positions   []domain.StaffPosition
	Perms       []string
	LowestIndex int
}

// IsStaff reports whether the actor has a staff_members row.
func (sc *StaffContext) IsStaff() bool {
	return sc != nil && sc.Member != nil
}

// Has reports whether the resolved set grants perm.
func (sc *StaffContext) Has(perm string) bool {
	return sc != nil && perms.HasPerm(sc.Perms, perm)
}

// Require fails naming every permission in required the actor lacks.
func (sc *StaffContext) Require(required ...string) error {
	var missing []string
	for _, p := range required {
		if !sc.Has(p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewMissingPermissions(missing)
	}
	return nil
}

// Authorizer is the single authorization entry point for commands, RPC methods
// and staff administration.
type Authorizer struct {
	store repository.Store
	now   func() time.Time
}

// NewAuthorizer builds an authorizer reading through store.
func NewAuthorizer(store repository.Store) *Authorizer {
	return &Authorizer{store: store, now: time.Now}
}

// Resolve loads the actor's staff context outside any transaction.
func (a *Authorizer) Resolve(ctx context.Context, userID string) (*StaffContext, error) {
	return a.ResolveIn(ctx, a.store, userID)
}

// ResolveIn loads the actor's staff context through store, which may be tx-bound.
func (a *Authorizer) ResolveIn(ctx context.Context, store repository.Store, userID string) (*StaffContext, error) {
	member, err := store.Staff.GetMember(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &StaffContext{UserID: userID, LowestIndex: perms.NoPosition}, nil
		}
		return nil, apperrors.MapError(err)
	}
	return a.resolveMember(ctx, store, member)
}

// Authorize fails unless the actor holds every required permission.
func (a *Authorizer) Authorize(ctx context.Context, userID string, required ...string) error {
	sc, err := a.Resolve(ctx, userID)
	if err != nil {
		return err
	}
	return sc.Require(required...)
}

func (a *Authorizer) resolveMember(ctx context.Context, store repository.Store, member *domain.StaffMember) (*StaffContext, error) {
	positions, err := store.Staff.ListPositions(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	discs, err := a.activeDisciplinaries(ctx, store, member.UserID)
	if err != nil {
		return nil, err
	}

	held := heldPositions(positions, member.PositionIDs)
	sc := &StaffContext{
		UserID:      member.UserID,
		Member:      member,
		Positions:   held,
		Perms:       perms.Resolve(resolveInput(held, member.PermOverrides, discs)),
		LowestIndex: lowestIndex(held),
	}
	return sc, nil
}

func (a *Authorizer) activeDisciplinaries(ctx context.Context, store repository.Store, userID string) ([]perms.Disciplinary, error) {
	entries, err := store.Disciplinaries.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	types, err := store.Disciplinaries.ListTypes(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	byID := make(map[string]domain.StaffDisciplinaryType, len(types))
	for _, t := range types {
		byID[t.ID] = t
	}

	now := a.now()
	var active []perms.Disciplinary
	for _, d := range entries {
		t, ok := byID[d.Type]
		if !ok || !disciplinaryActive(d, t, now) {
			continue
		}
		active = append(active, perms.Disciplinary{
			ID:         d.ID,
			CreatedAt:  d.CreatedAt,
			Additory:   t.Additory,
			PermLimits: t.PermLimits,
		})
	}
	return active, nil
}

// disciplinaryActive applies the expiry window and, for types that need
// approval, requires an approver.
func disciplinaryActive(d domain.StaffDisciplinary, t domain.StaffDisciplinaryType, now time.Time) bool {
	if !d.ActiveAt(now) {
		return false
	}
	return !t.NeedsApproval || d.ApprovedBy != nil
}

func heldPositions(all []domain.StaffPosition, ids []string) []domain.StaffPosition {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var held []domain.StaffPosition
	for _, p := range all {
		if _, ok := want[p.ID]; ok {
			held = append(held, p)
		}
	}
	return held
}

func lowestIndex(positions []domain.StaffPosition) int {
	indexes := make([]int, 0, len(positions))
	for _, p := range positions {
		indexes = append(indexes, p.Index)
	}
	return perms.LowestIndex(indexes)
}

func resolveInput(positions []domain.StaffPosition, overrides []string, discs []perms.Disciplinary) perms.Input {
	in := perms.Input{Overrides: overrides, Disciplinaries: discs}
	for _, p := range positions {
		in.Positions = append(in.Positions, perms.PositionPerms{ID: p.ID, Index: p.Index, Perms: p.Perms})
	}
	return in
}

// basePerms resolves positions and overrides only, ignoring disciplinaries.
func basePerms(positions []domain.StaffPosition, overrides []string) []string {
	return perms.Resolve(resolveInput(positions, overrides, nil))
}
