package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/events"
	"github.com/botlist/arcadia/internal/repository/memstore"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

type adminFixture struct {
	db     *memstore.DB
	clock  *clock
	authz  *Authorizer
	events *recordedEvents
	svc    *StaffAdminService
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	f := &adminFixture{db: memstore.New(), clock: newClock()}
	f.db.Now = f.clock.Now
	seedHierarchy(f.db)
	dispatcher := events.NewInMemoryDispatcher()
	f.events = recordAll(dispatcher, events.EventStaffDisciplinaryIssued)
	f.authz = NewAuthorizer(f.db.Store())
	f.authz.now = f.clock.Now
	f.svc = NewStaffAdminService(StaffAdminDependencies{
		Store:      f.db.Store(),
		Transactor: f.db,
		Authorizer: f.authz,
		Dispatcher: dispatcher,
	})
	f.svc.now = f.clock.Now
	putStaff(f.db, "1", "owner")
	putStaff(f.db, "200", "manager")
	putStaff(f.db, "201", "manager")
	putStaff(f.db, "100", "reviewer")
	return f
}

func TestCreatePosition(t *testing.T) {
	ctx := context.Background()

	t.Run("junior slot shifts existing positions", func(t *testing.T) {
		f := newAdminFixture(t)
		pos, err := f.svc.CreatePosition(ctx, "200", PositionInput{Name: "Trial", RoleID: "r-trial", Index: 20, Perms: []string{"bots.claim", " bots.queue ", "bots.claim"}})
		require.NoError(t, err)
		assert.Equal(t, 20, pos.Index)
		assert.Equal(t, []string{"bots.claim", "bots.queue"}, pos.Perms)

		reviewer, _ := f.db.Position("reviewer")
		assert.Equal(t, 21, reviewer.Index)
	})

	t.Run("cannot create above own seniority", func(t *testing.T) {
		f := newAdminFixture(t)
		_, err := f.svc.CreatePosition(ctx, "200", PositionInput{Name: "Head", RoleID: "r-head", Index: 5})
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	})

	t.Run("cannot grant what the actor lacks", func(t *testing.T) {
		f := newAdminFixture(t)
		_, err := f.svc.CreatePosition(ctx, "200", PositionInput{Name: "Trial", RoleID: "r-trial", Index: 30, Perms: []string{"global.*"}})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
		assert.Equal(t, []string{"global.*"}, apperrors.ToDomainError(err).Details["missing"])
	})

	t.Run("validation", func(t *testing.T) {
		f := newAdminFixture(t)
		_, err := f.svc.CreatePosition(ctx, "200", PositionInput{Index: 30})
		assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	})
}

func TestEditAndDeletePosition(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	perms := []string{"bots.claim", "bots.queue"}
	pos, err := f.svc.EditPosition(ctx, "200", "reviewer", PositionPatch{Perms: &perms})
	require.NoError(t, err)
	assert.Equal(t, perms, pos.Perms)

	_, err = f.svc.EditPosition(ctx, "200", "manager", PositionPatch{Perms: &perms})
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	_, err = f.svc.EditPosition(ctx, "200", "missing", PositionPatch{})
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))

	require.NoError(t, f.svc.DeletePosition(ctx, "200", "reviewer"))
	_, ok := f.db.Position("reviewer")
	assert.False(t, ok)
	member, _ := f.db.Member("100")
	assert.Empty(t, member.PositionIDs)
}

func TestEditMember(t *testing.T) {
	ctx := context.Background()

	t.Run("assign junior position", func(t *testing.T) {
		f := newAdminFixture(t)
		putStaff(f.db, "300")
		ids := []string{"reviewer"}
		member, err := f.svc.EditMember(ctx, "200", "300", MemberPatch{PositionIDs: &ids})
		require.NoError(t, err)
		assert.Equal(t, ids, member.PositionIDs)

		sc, err := f.authz.Resolve(ctx, "300")
		require.NoError(t, err)
		assert.True(t, sc.Has("bots.claim"))
		assert.Equal(t, 20, sc.LowestIndex)
	})

	t.Run("cannot promote to own level", func(t *testing.T) {
		f := newAdminFixture(t)
		ids := []string{"reviewer", "manager"}
		_, err := f.svc.EditMember(ctx, "200", "100", MemberPatch{PositionIDs: &ids})
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
		member, _ := f.db.Member("100")
		assert.Equal(t, []string{"reviewer"}, member.PositionIDs)
	})

	t.Run("cannot edit a peer", func(t *testing.T) {
		f := newAdminFixture(t)
		overrides := []string{"~bots.claim"}
		_, err := f.svc.EditMember(ctx, "200", "201", MemberPatch{PermOverrides: &overrides})
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	})

	t.Run("override must be held by the actor", func(t *testing.T) {
		f := newAdminFixture(t)
		overrides := []string{"staff_positions.delete", "global.*"}
		_, err := f.svc.EditMember(ctx, "200", "100", MemberPatch{PermOverrides: &overrides})
		require.Error(t, err)
		assert.Equal(t, []string{"global.*"}, apperrors.ToDomainError(err).Details["missing"])
	})

	t.Run("unknown position", func(t *testing.T) {
		f := newAdminFixture(t)
		ids := []string{"ghost"}
		_, err := f.svc.EditMember(ctx, "200", "100", MemberPatch{PositionIDs: &ids})
		assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	})
}

func TestDisciplinaryLifecycle(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	typ, err := f.svc.CreateDisciplinaryType(ctx, "200", DisciplinaryTypeInput{
		Name:          "suspension",
		NeedsApproval: true,
		MaxExpiry:     24 * time.Hour,
	})
	require.NoError(t, err)

	d, err := f.svc.IssueDisciplinary(ctx, "200", IssueInput{UserID: "100", TypeID: typ.ID, Reason: "rude", Expiry: 48 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d.Expiry)
	assert.Nil(t, d.ApprovedBy)
	require.Len(t, f.events.list(), 1)
	assert.True(t, f.events.list()[0].Payload.(events.StaffDisciplinaryIssuedPayload).PendingApproval)

	sc, err := f.authz.Resolve(ctx, "100")
	require.NoError(t, err)
	assert.True(t, sc.Has("bots.claim"), "unapproved disciplinary must not apply")

	_, err = f.svc.ApproveDisciplinary(ctx, "200", d.ID)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	approved, err := f.svc.ApproveDisciplinary(ctx, "201", d.ID)
	require.NoError(t, err)
	assert.Equal(t, "201", *approved.ApprovedBy)

	_, err = f.svc.ApproveDisciplinary(ctx, "201", d.ID)
	assert.True(t, apperrors.IsCode(err, "PRECONDITION_FAILED"))

	sc, err = f.authz.Resolve(ctx, "100")
	require.NoError(t, err)
	assert.False(t, sc.Has("bots.claim"))

	f.clock.Advance(time.Hour + 300*time.Millisecond)
	revoked, err := f.svc.RevokeDisciplinary(ctx, "200", d.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, revoked.Expiry)

	sc, err = f.authz.Resolve(ctx, "100")
	require.NoError(t, err)
	assert.True(t, sc.Has("bots.claim"))

	_, err = f.svc.RevokeDisciplinary(ctx, "200", d.ID)
	assert.True(t, apperrors.IsCode(err, "PRECONDITION_FAILED"))
}

func TestIssueDisciplinaryRules(t *testing.T) {
	ctx := context.Background()

	t.Run("self-assignable needs no issue permission", func(t *testing.T) {
		f := newAdminFixture(t)
		f.db.PutType(domain.StaffDisciplinaryType{ID: "break", Name: "break", SelfAssignable: true, Additory: true, PermLimits: []string{"~bots.claim"}, MaxExpiry: time.Hour})

		d, err := f.svc.IssueDisciplinary(ctx, "100", IssueInput{UserID: "100", TypeID: "break", Reason: "vacation"})
		require.NoError(t, err)
		assert.Equal(t, time.Hour, d.Expiry)
		assert.Equal(t, "100", *d.ApprovedBy)
	})

	t.Run("non self-assignable to self", func(t *testing.T) {
		f := newAdminFixture(t)
		f.db.PutType(domain.StaffDisciplinaryType{ID: "warn", Name: "warn", MaxExpiry: time.Hour})

		_, err := f.svc.IssueDisciplinary(ctx, "200", IssueInput{UserID: "200", TypeID: "warn", Reason: "x"})
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	})

	t.Run("hierarchy", func(t *testing.T) {
		f := newAdminFixture(t)
		f.db.PutType(domain.StaffDisciplinaryType{ID: "warn", Name: "warn", MaxExpiry: time.Hour})

		_, err := f.svc.IssueDisciplinary(ctx, "200", IssueInput{UserID: "201", TypeID: "warn", Reason: "x"})
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	})

	t.Run("target must be staff", func(t *testing.T) {
		f := newAdminFixture(t)
		f.db.PutType(domain.StaffDisciplinaryType{ID: "warn", Name: "warn", MaxExpiry: time.Hour})

		_, err := f.svc.IssueDisciplinary(ctx, "200", IssueInput{UserID: "404", TypeID: "warn", Reason: "x"})
		assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
	})

	t.Run("additory grant checked against actor", func(t *testing.T) {
		f := newAdminFixture(t)
		f.db.PutType(domain.StaffDisciplinaryType{ID: "boost", Name: "boost", Additory: true, PermLimits: []string{"global.*"}, MaxExpiry: time.Hour})

		_, err := f.svc.IssueDisciplinary(ctx, "200", IssueInput{UserID: "100", TypeID: "boost", Reason: "x"})
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	})
}

func TestIssueDisciplinaryPublishesOnlyAfterCommit(t *testing.T) {
	f := newAdminFixture(t)
	f.db.PutType(domain.StaffDisciplinaryType{ID: "warn", Name: "warn", MaxExpiry: time.Hour})
	f.db.Fail = func(op, _ string) error {
		if op == "tx.commit" {
			return errors.New("could not serialize access")
		}
		return nil
	}

	_, err := f.svc.IssueDisciplinary(context.Background(), "200", IssueInput{UserID: "100", TypeID: "warn", Reason: "x"})
	require.Error(t, err)
	assert.Empty(t, f.events.list())

	f.db.Fail = nil
	_, err = f.svc.IssueDisciplinary(context.Background(), "200", IssueInput{UserID: "100", TypeID: "warn", Reason: "x"})
	require.NoError(t, err)
	assert.Len(t, f.events.list(), 1)
}

func TestDisciplinaryTypeValidation(t *testing.T) {
	f := newAdminFixture(t)

	_, err := f.svc.CreateDisciplinaryType(context.Background(), "200", DisciplinaryTypeInput{Name: "x"})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = f.svc.EditDisciplinaryType(context.Background(), "200", "missing", DisciplinaryTypeInput{Name: "x", MaxExpiry: time.Hour})
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}
