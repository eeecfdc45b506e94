package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/botlist/arcadia/internal/api/dto"
	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/service"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// OnboardingHandler serves the staff guide code lookup and the manager review endpoints.
type OnboardingHandler struct {
	onboarding *service.OnboardingService
}

// NewOnboardingHandler constructs handler.
func NewOnboardingHandler(onboardingService *service.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{onboarding: onboardingService}
}

// VerificationCode handles POST /onboarding/code. The guide page calls it
// with the session it was opened for.
func (h *OnboardingHandler) VerificationCode(c *fiber.Ctx) error {
	var req dto.VerificationCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Session) == "" {
		return apperrors.NewValidationError("session required", nil)
	}
	code, err := h.onboarding.IssueVerificationCode(c.UserContext(), req.Session)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.VerificationCodeResponse{Code: code}})
}

// Pending handles GET /staff/onboarding/pending.
func (h *OnboardingHandler) Pending(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	records, err := h.onboarding.PendingReviews(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	resp := make([]dto.OnboardResponse, 0, len(records))
	for i := range records {
		resp = append(resp, onboardResponse(&records[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Approve handles POST /staff/onboarding/:user_id/approve.
func (h *OnboardingHandler) Approve(c *fiber.Ctx) error {
	return h.review(c, h.onboarding.ApproveOnboard)
}

// Deny handles POST /staff/onboarding/:user_id/deny.
func (h *OnboardingHandler) Deny(c *fiber.Ctx) error {
	return h.review(c, h.onboarding.DenyOnboard)
}

// Reset handles POST /staff/onboarding/:user_id/reset.
func (h *OnboardingHandler) Reset(c *fiber.Ctx) error {
	return h.review(c, h.onboarding.ResetOnboard)
}

func (h *OnboardingHandler) review(c *fiber.Ctx, action func(ctx context.Context, actorID, targetID string) (*domain.StaffOnboardRecord, error)) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	rec, err := action(c.UserContext(), principal.UserID, c.Params("user_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": onboardResponse(rec)})
}

func onboardResponse(rec *domain.StaffOnboardRecord) dto.OnboardResponse {
	return dto.OnboardResponse{
		UserID:        rec.UserID,
		State:         string(rec.State),
		LastStartTime: rec.LastStartTime,
		Onboarded:     rec.Onboarded,
		Survey:        rec.Survey,
	}
}
