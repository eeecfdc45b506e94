package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/botlist/arcadia/internal/config"
	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/repository/memstore"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

func TestPanelLogin(t *testing.T) {
	db := memstore.New()
	putStaff(db, "100")
	db.PutMember(domain.StaffMember{UserID: "101", MFAVerified: false})
	svc := NewPanelAuthService(config.AuthConfig{JWTSecret: "secret", AccessTokenTTLMinutes: 15, BcryptCost: bcrypt.MinCost}, db.Store().Staff)
	ctx := context.Background()

	token, err := svc.RotateAPIToken(ctx, "100")
	require.NoError(t, err)
	assert.Len(t, token, 43)

	session, err := svc.Login(ctx, "100", token)
	require.NoError(t, err)
	claims, err := svc.Tokens().ParseToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "100", claims.UserID)

	_, err = svc.Login(ctx, "100", "wrong")
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))

	_, err = svc.Login(ctx, "555", token)
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))

	_, err = svc.RotateAPIToken(ctx, "101")
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	rotated, err := svc.RotateAPIToken(ctx, "100")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "100", token)
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"), "old token must stop working after rotation")
	_, err = svc.Login(ctx, "100", rotated)
	assert.NoError(t, err)
}
