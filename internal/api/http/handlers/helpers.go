package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/botlist/arcadia/internal/auth"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

func staffPrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.UserID == "" {
		return nil, apperrors.NewUnauthorized("staff session required")
	}
	return principal, nil
}

// parseBody decodes an optional JSON body; an empty body leaves out untouched.
func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}
