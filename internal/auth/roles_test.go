package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botlist/arcadia/internal/domain"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

type onboardStates map[string]domain.OnboardState

func (s onboardStates) GetOnboard(_ context.Context, userID string) (*domain.StaffOnboardRecord, error) {
	state, ok := s[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &domain.StaffOnboardRecord{UserID: userID, State: state}, nil
}

func TestRequireOnboarded(t *testing.T) {
	states := onboardStates{"done": domain.OnboardComplete, "busy": domain.OnboardClaimedBot}

	cases := []struct {
		user string
		want int
	}{
		{"done", fiber.StatusOK},
		{"busy", fiber.StatusConflict},
		{"unknown", fiber.StatusConflict},
		{"", fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.user, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
				de := apperrors.ToDomainError(err)
				return c.Status(de.HTTPStatus).SendString(de.Code)
			}})
			app.Use(func(c *fiber.Ctx) error {
				if tc.user != "" {
					WithPrincipal(c, &Principal{UserID: tc.user})
				}
				return c.Next()
			})
			app.Get("/", RequireOnboarded(states), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}
