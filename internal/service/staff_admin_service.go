package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/events"
	"github.com/botlist/arcadia/internal/perms"
	"github.com/botlist/arcadia/internal/repository"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// StaffAdminService mutates positions, members and disciplinaries. Every
// permission mutation runs in a transaction that holds a row lock on the
// edited entity before the privilege checks.
type StaffAdminService struct {
	store      repository.Store
	tx         repository.Transactor
	authz      *Authorizer
	dispatcher events.Dispatcher
	now        func() time.Time
}

// StaffAdminDependencies bundles collaborators.
type StaffAdminDependencies struct {
	Store      repository.Store
	Transactor repository.Transactor
	Authorizer *Authorizer
	Dispatcher events.Dispatcher
}

// NewStaffAdminService constructs the service.
func NewStaffAdminService(deps StaffAdminDependencies) *StaffAdminService {
	return &StaffAdminService{
		store:      deps.Store,
		tx:         deps.Transactor,
		authz:      deps.Authorizer,
		dispatcher: deps.Dispatcher,
		now:        time.Now,
	}
}

// PositionInput creates a position.
type PositionInput struct {
	Name               string
	RoleID             string
	Index              int
	Perms              []string
	CorrespondingRoles []domain.CorrespondingRole
}

// PositionPatch edits a position. Nil fields are left unchanged.
type PositionPatch struct {
	Name               *string
	RoleID             *string
	Perms              *[]string
	CorrespondingRoles *[]domain.CorrespondingRole
}

// MemberPatch edits a staff member. Nil fields are left unchanged.
type MemberPatch struct {
	PositionIDs   *[]string
	PermOverrides *[]string
	NoAutosync    *bool
}

// DisciplinaryTypeInput creates or replaces a disciplinary type.
type DisciplinaryTypeInput struct {
	Name           string
	Description    string
	PermLimits     []string
	Additory       bool
	SelfAssignable bool
	NeedsApproval  bool
	MaxExpiry      time.Duration
}

// IssueInput issues a disciplinary to a member.
type IssueInput struct {
	UserID string
	TypeID string
	Reason string
	Expiry time.Duration
}

// ListPositions returns every position, most senior first.
func (s *StaffAdminService) ListPositions(ctx context.Context) ([]domain.StaffPosition, error) {
	positions, err := s.store.Staff.ListPositions(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return positions, nil
}

// CreatePosition inserts a position at in.Index, pushing junior positions down.
func (s *StaffAdminService) CreatePosition(ctx context.Context, actorID string, in PositionInput) (*domain.StaffPosition, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.RoleID) == "" {
		return nil, apperrors.NewValidationError("name and role_id are required", nil)
	}
	pos := &domain.StaffPosition{
		ID:                 uuid.NewString(),
		Name:               strings.TrimSpace(in.Name),
		RoleID:             in.RoleID,
		Index:              in.Index,
		Perms:              normalizeAll(in.Perms),
		CorrespondingRoles: in.CorrespondingRoles,
	}
	err := s.tx.InTx(ctx, func(st repository.Store) error {
		actor, err := s.authz.ResolveIn(ctx, st, actorID)
		if err != nil {
			return err
		}
		if err := actor.Require(perms.StaffPositionsCreate); err != nil {
			return err
		}
		if err := perms.CheckHierarchy(actor.LowestIndex, pos.Index, "a position"); err != nil {
			return err
		}
		if err := perms.CheckPatchChanges(actor.Perms, nil, pos.Perms); err != nil {
			return err
		}
		if err := st.Staff.ShiftIndexes(ctx, pos.Index); err != nil {
			return err
		}
		return st.Staff.CreatePosition(ctx, pos)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return pos, nil
}

// EditPosition applies patch to a position junior to the actor.
func (s *StaffAdminService) EditPosition(ctx context.Context, actorID, positionID string, patch PositionPatch) (*domain.StaffPosition, error) {
	var pos *domain.StaffPosition
	err := s.tx.InTx(ctx, func(st repository.Store) error {
		var err error
		pos, err = lockPosition(ctx, st, positionID)
		if err != nil {
			return err
		}
		actor, err := s.authz.ResolveIn(ctx, st, actorID)
		if err != nil {
			return err
		}
		if err := actor.Require(perms.StaffPositionsEdit); err != nil {
			return err
		}
		if err := perms.CheckHierarchy(actor.LowestIndex, pos.Index, "a position"); err != nil {
			return err
		}
		if patch.Perms != nil {
			next := normalizeAll(*patch.Perms)
			if err := perms.CheckPatchChanges(actor.Perms, pos.Perms, next); err != nil {
				return err
			}
			pos.Perms = next
		}
		if patch.Name != nil {
			pos.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.RoleID != nil {
			pos.RoleID = *patch.RoleID
		}
		if patch.CorrespondingRoles != nil {
			pos.CorrespondingRoles = *patch.CorrespondingRoles
		}
		return st.Staff.UpdatePosition(ctx, pos)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return pos, nil
}

// DeletePosition removes a junior position. Removing its permissions counts
// as revoking them, so the actor must hold all of them.
func (s *StaffAdminService) DeletePosition(ctx context.Context, actorID, positionID string) error {
	err := s.tx.InTx(ctx, func(st repository.Store) error {
		pos, err := lockPosition(ctx, st, positionID)
		if err != nil {
			return err
		}
		actor, err := s.authz.ResolveIn(ctx, st, actorID)
		if err != nil {
			return err
		}
		if err := actor.Require(perms.StaffPositionsDelete); err != nil {
			return err
		}
		if err := perms.CheckHierarchy(actor.LowestIndex, pos.Index, "a position"); err != nil {
			return err
		}
		if err := perms.CheckPatchChanges(actor.Perms, pos.Perms, nil); err != nil {
			return err
		}
		return st.Staff.DeletePosition(ctx, pos.ID)
	})
	return apperrors.MapError(err)
}

// ListMembers returns every staff member.
func (s *StaffAdminService) ListMembers(ctx context.Context) ([]domain.StaffMember, error) {
	members, err := s.store.Staff.ListMembers(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return members, nil
}

// EditMember changes a junior member's positions, overrides or autosync flag.
// The change in the member's base permissions must pass CheckPatchChanges.
func (s *StaffAdminService) EditMember(ctx context.Context, actorID, targetID string, patch MemberPatch) (*domain.StaffMember, error) {
	var member *domain.StaffMember
	err := s.tx.InTx(ctx, func(st repository.Store) error {
		var err error
		member, err = st.Staff.LockMember(ctx, targetID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("staff member", map[string]any{"user_id": targetID})
			}
			return err
		}
		actor, err := s.authz.ResolveIn(ctx, st, actorID)
		if err != nil {
			return err
		}
		if err := actor.Require(perms.StaffMembersEdit); err != nil {
			return err
		}

		all, err := st.Staff.ListPositions(ctx)
		if err != nil {
			return err
		}
		before := heldPositions(all, member.PositionIDs)
		if err := perms.CheckHierarchy(actor.LowestIndex, lowestIndex(before), "this staff member"); err != nil {
			return err
		}

		nextIDs := member.PositionIDs
		if patch.PositionIDs != nil {
			nextIDs = dedupe(*patch.PositionIDs)
		}
		after := heldPositions(all, nextIDs)
		if len(after) != len(nextIDs) {
			return apperrors.NewValidationError("unknown position id", map[string]any{"positions": nextIDs})
		}
		for _, p := range after {
			if err := perms.CheckHierarchy(actor.LowestIndex, p.Index, "position "+p.Name); err != nil {
				return err
			}
		}
		nextOverrides := member.PermOverrides
		if patch.PermOverrides != nil {
			nextOverrides = normalizeAll(*patch.PermOverrides)
		}

		if err := perms.CheckPatchChanges(actor.Perms,
			basePerms(before, member.PermOverrides),
			basePerms(after, nextOverrides),
		); err != nil {
			return err
		}

		member.PositionIDs = nextIDs
		member.PermOverrides = nextOverrides
		if patch.NoAutosync != nil {
			member.NoAutosync = *patch.NoAutosync
		}
		return st.Staff.UpsertMember(ctx, member)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return member, nil
}

// ListDisciplinaryTypes returns every type.
func (s *StaffAdminService) ListDisciplinaryTypes(ctx context.Context) ([]domain.StaffDisciplinaryType, error) {
	types, err := s.store.Disciplinaries.ListTypes(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return types, nil
}

// CreateDisciplinaryType adds a type. Its perm_limits count as granted permissions.
func (s *StaffAdminService) CreateDisciplinaryType(ctx context.Context, actorID string, in DisciplinaryTypeInput) (*domain.StaffDisciplinaryType, error) {
	if err := validateTypeInput(in); err != nil {
		return nil, err
	}
	t := &domain.StaffDisciplinaryType{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		PermLimits:     normalizeAll(in.PermLimits),
		Additory:       in.Additory,
		SelfAssignable: in.SelfAssignable,
		NeedsApproval:  in.NeedsApproval,
		MaxExpiry:      in.MaxExpiry,
	}
	err := s.tx.InTx(ctx, func(st repository.Store) error {
		actor, err := s.authz.ResolveIn(ctx, st, actorID)
		if err != nil {
			return err
		}
		if err := actor.Require(perms.StaffDisciplinaryTypesCreate); err != nil {
			return err
		}
		if err := perms.CheckPatchChanges(actor.Perms, nil, t.PermLimits); err != nil {
			return err
		}
		return st.Disciplinaries.CreateType(ctx, t)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return t, nil
}

// EditDisciplinaryType replaces a type's definition.
func (s *StaffAdminService) EditDisciplinaryType(ctx context.Context, actorID, typeID string, in DisciplinaryTypeInput) (*domain.StaffDisciplinaryType, error) {
	if err := validateTypeInput(in); err != nil {
		return nil, err
	}
	var t *domain.StaffDisciplinaryType
	err := s.tx.InTx(ctx, func(st repository.Store) error {
		var err error
		t, err = st.Disciplinaries.LockType(ctx, typeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("disciplinary type", map[string]any{"id": typeID})
			}
			return err
		}
		actor, err := s.authz.ResolveIn(ctx, st, actorID)
		if err != nil {
			return err
		}
		if err := actor.Require(perms.StaffDisciplinaryTypesEdit); err != nil {
			return err
		}
		next := normalizeAll(in.PermLimits)
		if err := perms.CheckPatchChanges(actor.Perms, t.PermLimits, next); err != nil {
			return err
		}
		t.Name = strings.TrimSpace(in.Name)
		t.Description = in.Description
		t.PermLimits = next
		t.Additory = in.Additory
		t.SelfAssignable = in.SelfAssignable
		t.NeedsApproval = in.NeedsApproval
		t.MaxExpiry = in.MaxExpiry
		return st.Disciplinaries.UpdateType(ctx, t)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return t, nil
}

// ListDisciplinaries returns a member's disciplinary history.
func (s *StaffAdminService) ListDisciplinaries(ctx context.Context, userID string) ([]domain.StaffDisciplinary, error) {
	entries, err := s.store.Disciplinaries.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// IssueDisciplinary records a sanction or grant. A self-assignable type may be
// issued to oneself without staff_disciplinary.issue. The expiry is capped at
// the type's max_expiry; types needing approval stay inactive until approved.
func (s *StaffAdminService) IssueDisciplinary(ctx context.Context, actorID string, in IssueInput) (*domain.StaffDisciplinary, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, apperrors.NewValidationError("a reason is required", map[string]any{"field": "reason"})
	}
	var (
		d   *domain.StaffDisciplinary
		typ *domain.StaffDisciplinaryType
	)
	err := s.tx.InTx(ctx, func(st repository.Store) error {
		t, err := st.Disciplinaries.GetType(ctx, in.TypeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("disciplinary type", map[string]any{"id": in.TypeID})
			}
			return err
		}
		if _, err := st.Staff.LockMember(ctx, in.UserID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("staff member", map[string]any{"user_id": in.UserID})
			}
			return err
		}
		actor, err := s.authz.ResolveIn(ctx, st, actorID)
		if err != nil {
			return err
		}

		self := in.UserID == actorID
		if !(self && t.SelfAssignable) {
			if err := actor.Require(perms.StaffDisciplinaryIssue); err != nil {
				return err
			}
			if self {
				return apperrors.NewForbidden("this disciplinary type is not self-assignable")
			}
			target, err := s.authz.ResolveIn(ctx, st, in.UserID)
			if err != nil {
				return err
			}
			if err := perms.CheckHierarchy(actor.LowestIndex, target.LowestIndex, "this staff member"); err != nil {
				return err
			}
		}
		if t.Additory {
			if err := perms.CheckPatchChanges(actor.Perms, nil, t.PermLimits); err != nil {
				return err
			}
		}

		expiry := in.Expiry
		if expiry <= 0 || expiry > t.MaxExpiry {
			expiry = t.MaxExpiry
		}
		d = &domain.StaffDisciplinary{
			ID:       uuid.NewString(),
			UserID:   in.UserID,
			Type:     t.ID,
			Reason:   strings.TrimSpace(in.Reason),
			IssuedBy: actorID,
			Expiry:   expiry,
		}
		if !t.NeedsApproval {
			d.ApprovedBy = &actorID
		}
		if err := st.Disciplinaries.Create(ctx, d); err != nil {
			return err
		}
		typ = t
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, d, typ)
	return d, nil
}

// ApproveDisciplinary activates an entry whose type needs approval.
func (s *StaffAdminService) ApproveDisciplinary(ctx context.Context, actorID, id string) (*domain.StaffDisciplinary, error) {
	var d *domain.StaffDisciplinary
	err := s.tx.InTx(ctx, func(st repository.Store) error {
		var err error
		d, err = s.guardDisciplinary(ctx, st, actorID, id, perms.StaffDisciplinaryApprove)
		if err != nil {
			return err
		}
		if d.ApprovedBy != nil {
			return apperrors.NewPrecondition("this disciplinary is already approved", map[string]any{"id": id})
		}
		if d.IssuedBy == actorID {
			return apperrors.NewForbidden("you cannot approve a disciplinary you issued")
		}
		if err := st.Disciplinaries.SetApprovedBy(ctx, id, actorID); err != nil {
			return err
		}
		d.ApprovedBy = &actorID
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return d, nil
}

// RevokeDisciplinary ends an entry now by shrinking its expiry to the elapsed time.
func (s *StaffAdminService) RevokeDisciplinary(ctx context.Context, actorID, id string) (*domain.StaffDisciplinary, error) {
	var d *domain.StaffDisciplinary
	err := s.tx.InTx(ctx, func(st repository.Store) error {
		var err error
		d, err = s.guardDisciplinary(ctx, st, actorID, id, perms.StaffDisciplinaryRevoke)
		if err != nil {
			return err
		}
		now := s.now()
		if !d.ActiveAt(now) {
			return apperrors.NewPrecondition("this disciplinary has already expired", map[string]any{"id": id})
		}
		elapsed := now.Sub(d.CreatedAt).Truncate(time.Second)
		if err := st.Disciplinaries.SetExpiry(ctx, id, elapsed); err != nil {
			return err
		}
		d.Expiry = elapsed
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return d, nil
}

func (s *StaffAdminService) guardDisciplinary(ctx context.Context, st repository.Store, actorID, id, perm string) (*domain.StaffDisciplinary, error) {
	d, err := st.Disciplinaries.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("disciplinary", map[string]any{"id": id})
		}
		return nil, err
	}
	if _, err := st.Staff.LockMember(ctx, d.UserID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	actor, err := s.authz.ResolveIn(ctx, st, actorID)
	if err != nil {
		return nil, err
	}
	if err := actor.Require(perm); err != nil {
		return nil, err
	}
	target, err := s.authz.ResolveIn(ctx, st, d.UserID)
	if err != nil {
		return nil, err
	}
	if err := perms.CheckHierarchy(actor.LowestIndex, target.LowestIndex, "this staff member"); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *StaffAdminService) publish(ctx context.Context, d *domain.StaffDisciplinary, t *domain.StaffDisciplinaryType) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.New(events.EventStaffDisciplinaryIssued, d.UserID, d.IssuedBy,
		events.StaffDisciplinaryIssuedPayload{
			DisciplinaryID:  d.ID,
			Type:            t.Name,
			Reason:          d.Reason,
			PendingApproval: d.ApprovedBy == nil,
		}))
}

func validateTypeInput(in DisciplinaryTypeInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return apperrors.NewValidationError("name is required", map[string]any{"field": "name"})
	}
	if in.MaxExpiry <= 0 {
		return apperrors.NewValidationError("max_expiry must be positive", map[string]any{"field": "max_expiry"})
	}
	return nil
}

func lockPosition(ctx context.Context, st repository.Store, id string) (*domain.StaffPosition, error) {
	pos, err := st.Staff.LockPosition(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("position", map[string]any{"id": id})
		}
		return nil, err
	}
	return pos, nil
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		p := perms.Normalize(raw)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
