package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/botlist/arcadia/internal/api/dto"
	"github.com/botlist/arcadia/internal/service"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// AuthHandler exposes panel authentication endpoints.
type AuthHandler struct {
	auth *service.PanelAuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.PanelAuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login handles POST /auth/panel/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.PanelLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.UserID) == "" || req.APIToken == "" {
		return apperrors.NewValidationError("user_id and api_token required", nil)
	}

	session, err := h.auth.Login(c.UserContext(), req.UserID, req.APIToken)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": dto.AuthResponse{Token: session.Token, ExpiresAt: session.ExpiresAt},
	})
}

// RotateToken handles POST /auth/panel/token.
func (h *AuthHandler) RotateToken(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	token, err := h.auth.RotateAPIToken(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.PanelTokenResponse{APIToken: token}})
}
