package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/botlist/arcadia/internal/api/dto"
	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/service"
)

// QueueHandler exposes the review queue to the panel.
type QueueHandler struct {
	queue *service.QueueService
}

// NewQueueHandler constructs handler.
func NewQueueHandler(queueService *service.QueueService) *QueueHandler {
	return &QueueHandler{queue: queueService}
}

// List handles GET /queue.
func (h *QueueHandler) List(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	bots, err := h.queue.List(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	resp := make([]dto.BotResponse, 0, len(bots))
	for i := range bots {
		resp = append(resp, botResponse(&bots[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Claim handles POST /queue/:bot_id/claim.
func (h *QueueHandler) Claim(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ClaimRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	bot, err := h.queue.Claim(c.UserContext(), principal.UserID, c.Params("bot_id"), req.Force)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": botResponse(bot)})
}

// Unclaim handles POST /queue/:bot_id/unclaim.
func (h *QueueHandler) Unclaim(c *fiber.Ctx) error {
	return h.withReason(c, h.queue.Unclaim)
}

// Approve handles POST /queue/:bot_id/approve.
func (h *QueueHandler) Approve(c *fiber.Ctx) error {
	return h.withReason(c, h.queue.Approve)
}

// Deny handles POST /queue/:bot_id/deny.
func (h *QueueHandler) Deny(c *fiber.Ctx) error {
	return h.withReason(c, h.queue.Deny)
}

type reasonAction func(ctx context.Context, actorID, botID, reason string) (*domain.BotReviewRecord, error)

func (h *QueueHandler) withReason(c *fiber.Ctx, action reasonAction) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ReasonRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	bot, err := action(c.UserContext(), principal.UserID, c.Params("bot_id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": botResponse(bot)})
}

func botResponse(bot *domain.BotReviewRecord) dto.BotResponse {
	return dto.BotResponse{
		BotID:       bot.BotID,
		Type:        string(bot.Type),
		ClaimedBy:   bot.ClaimedBy,
		LastClaimed: bot.LastClaimed,
		Owner:       bot.Owner,
		TeamOwner:   bot.TeamOwner,
		Votes:       bot.Votes,
		Premium:     bot.Premium,
		VoteBanned:  bot.VoteBanned,
		CreatedAt:   bot.CreatedAt,
	}
}
