package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/perms"
	"github.com/botlist/arcadia/internal/repository/memstore"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

func TestAuthorizerResolve(t *testing.T) {
	db := memstore.New()
	seedHierarchy(db)
	putStaff(db, "100", "reviewer", "manager")
	authz := NewAuthorizer(db.Store())
	authz.now = func() time.Time { return testNow }

	sc, err := authz.Resolve(context.Background(), "100")
	require.NoError(t, err)
	assert.True(t, sc.IsStaff())
	assert.Equal(t, 10, sc.LowestIndex)
	assert.Len(t, sc.Positions, 2)
	assert.True(t, sc.Has(perms.StaffMembersEdit))

	outsider, err := authz.Resolve(context.Background(), "555")
	require.NoError(t, err)
	assert.False(t, outsider.IsStaff())
	assert.Equal(t, perms.NoPosition, outsider.LowestIndex)
	assert.Empty(t, outsider.Perms)
}

func TestAuthorizerNamesEveryMissingPermission(t *testing.T) {
	db := memstore.New()
	seedHierarchy(db)
	putStaff(db, "100", "reviewer")
	authz := NewAuthorizer(db.Store())

	err := authz.Authorize(context.Background(), "100", perms.BotsClaim, perms.StaffPositionsCreate, perms.OnboardingReset)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	assert.Equal(t, []string{perms.StaffPositionsCreate, perms.OnboardingReset}, apperrors.ToDomainError(err).Details["missing"])
}

func TestAuthorizerDisciplinaryWindow(t *testing.T) {
	db := memstore.New()
	seedHierarchy(db)
	putStaff(db, "100", "reviewer")
	db.PutType(domain.StaffDisciplinaryType{ID: "mute", Name: "mute", Additory: true, PermLimits: []string{"~bots.*"}, MaxExpiry: time.Hour})
	db.PutType(domain.StaffDisciplinaryType{ID: "probation", Name: "probation", NeedsApproval: true, PermLimits: []string{"bots.queue"}, MaxExpiry: time.Hour})
	db.PutDisciplinary(domain.StaffDisciplinary{ID: "d1", UserID: "100", Type: "mute", IssuedBy: "1", ApprovedBy: strPtr("1"), CreatedAt: testNow.Add(-30 * time.Minute), Expiry: time.Hour})
	db.PutDisciplinary(domain.StaffDisciplinary{ID: "d2", UserID: "100", Type: "probation", IssuedBy: "1", CreatedAt: testNow.Add(-10 * time.Minute), Expiry: time.Hour})

	authz := NewAuthorizer(db.Store())
	now := testNow
	authz.now = func() time.Time { return now }

	sc, err := authz.Resolve(context.Background(), "100")
	require.NoError(t, err)
	assert.False(t, sc.Has(perms.BotsClaim))
	assert.True(t, sc.Has(perms.RPC("Approve")))

	now = testNow.Add(31 * time.Minute)
	sc, err = authz.Resolve(context.Background(), "100")
	require.NoError(t, err)
	assert.True(t, sc.Has(perms.BotsClaim))
}
