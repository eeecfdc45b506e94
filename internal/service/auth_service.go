package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/botlist/arcadia/internal/auth"
	"github.com/botlist/arcadia/internal/config"
	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/repository"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// PanelAuthService exchanges per-member API tokens for short-lived panel JWTs.
type PanelAuthService struct {
	staff      repository.StaffRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// NewPanelAuthService builds the service.
func NewPanelAuthService(cfg config.AuthConfig, staff repository.StaffRepository) *PanelAuthService {
	return &PanelAuthService{
		staff:      staff,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL()),
		bcryptCost: cfg.BcryptCost,
	}
}

// Tokens exposes the JWT manager for the HTTP auth middleware.
func (s *PanelAuthService) Tokens() *auth.TokenManager {
	return s.tokenMgr
}

// RotateAPIToken issues a new API token for the member, replacing any previous one.
// The plaintext is returned once and only its hash is stored.
func (s *PanelAuthService) RotateAPIToken(ctx context.Context, userID string) (string, error) {
	if _, err := s.mfaMember(ctx, userID); err != nil {
		return "", err
	}
	token, err := auth.NewAPIToken()
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}
	hash, err := auth.HashToken(token, s.bcryptCost)
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}
	if err := s.staff.SetPanelTokenHash(ctx, userID, hash); err != nil {
		return "", apperrors.MapError(err)
	}
	return token, nil
}

// Login verifies an API token and returns a panel session.
func (s *PanelAuthService) Login(ctx context.Context, userID, apiToken string) (*domain.PanelToken, error) {
	member, err := s.mfaMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	if member.PanelTokenHash == nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if err := auth.CompareToken(*member.PanelTokenHash, apiToken); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	token, exp, err := s.tokenMgr.GenerateToken(member.UserID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &domain.PanelToken{
		UserID:    member.UserID,
		Token:     token,
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: exp,
	}, nil
}

func (s *PanelAuthService) mfaMember(ctx context.Context, userID string) (*domain.StaffMember, error) {
	member, err := s.staff.GetMember(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if !member.MFAVerified {
		return nil, apperrors.NewForbidden("enable multi-factor authentication on your account before using the panel")
	}
	return member, nil
}
