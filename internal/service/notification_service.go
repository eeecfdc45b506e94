package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/botlist/arcadia/internal/config"
	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/events"
	"github.com/botlist/arcadia/internal/repository"
)

// Notifier delivers plain-text messages to channels and users.
type Notifier interface {
	SendChannel(ctx context.Context, channelID, content string) error
	// SendUsers delivers one notification addressed to every user in userIDs.
	SendUsers(ctx context.Context, userIDs []string, content string) error
}

// NotificationService turns domain events into reviewer, mod-log and owner messages.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   Notifier
	bots       repository.BotRepository
	teams      repository.TeamRepository
	logger     *zap.Logger
	cfg        config.DiscordConfig
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Notifier   Notifier
	BotRepo    repository.BotRepository
	TeamRepo   repository.TeamRepository
	Logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(cfg config.DiscordConfig, deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
		bots:       deps.BotRepo,
		teams:      deps.TeamRepo,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || n.notifier == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventBotAutoUnclaimed, n.handleAutoUnclaimed)
	n.dispatcher.Subscribe(events.EventBotApproved, n.handleDecision)
	n.dispatcher.Subscribe(events.EventBotDenied, n.handleDecision)
	n.dispatcher.Subscribe(events.EventBotClaimed, n.handleModLog)
	n.dispatcher.Subscribe(events.EventBotUnclaimed, n.handleModLog)
	n.dispatcher.Subscribe(events.EventRPCInvoked, n.handleModLog)
	n.dispatcher.Subscribe(events.EventStaffResynced, n.handleModLog)
	n.dispatcher.Subscribe(events.EventStaffDisciplinaryIssued, n.handleModLog)
	n.dispatcher.Subscribe(events.EventOnboardingStateChanged, n.handleOnboarding)
}

func (n *NotificationService) handleAutoUnclaimed(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.BotAutoUnclaimedPayload)
	n.logger.Info("BotAutoUnclaimed", zap.String("bot_id", event.SubjectID), zap.String("previous_claimant", payload.PreviousClaimant))

	reviewerMsg := fmt.Sprintf("<@%s> was automatically unclaimed: <@%s> held the claim for too long without a decision.",
		event.SubjectID, payload.PreviousClaimant)
	if err := n.notifier.SendChannel(ctx, n.cfg.ReviewerChannel, reviewerMsg); err != nil {
		return fmt.Errorf("notify reviewers of %s: %w", event.SubjectID, err)
	}

	owners, err := n.owners(ctx, event.SubjectID)
	if err != nil {
		return fmt.Errorf("resolve owners of %s: %w", event.SubjectID, err)
	}
	if len(owners) == 0 {
		return nil
	}
	ownerMsg := fmt.Sprintf("Your bot <@%s> is back in the review queue; the reviewer who claimed it did not finish in time.", event.SubjectID)
	if err := n.notifier.SendUsers(ctx, owners, ownerMsg); err != nil {
		return fmt.Errorf("notify owners of %s: %w", event.SubjectID, err)
	}
	return nil
}

func (n *NotificationService) handleDecision(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.BotReviewPayload)
	verb := "approved"
	if event.Type == events.EventBotDenied {
		verb = "denied"
	}
	n.logger.Info("BotDecision", zap.String("bot_id", event.SubjectID), zap.String("decision", verb))

	if err := n.notifier.SendChannel(ctx, n.cfg.ModLogsChannel,
		fmt.Sprintf("<@%s> was %s by <@%s>. Reason: %s", event.SubjectID, verb, event.ActorID, payload.Reason)); err != nil {
		return err
	}
	owners, err := n.owners(ctx, event.SubjectID)
	if err != nil || len(owners) == 0 {
		return err
	}
	return n.notifier.SendUsers(ctx, owners,
		fmt.Sprintf("Your bot <@%s> was %s. Reason: %s", event.SubjectID, verb, payload.Reason))
}

func (n *NotificationService) handleModLog(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), zap.String("subject_id", event.SubjectID), zap.String("actor_id", event.ActorID), zap.Any("payload", event.Payload))
	if strings.TrimSpace(n.cfg.ModLogsChannel) == "" {
		return nil
	}
	return n.notifier.SendChannel(ctx, n.cfg.ModLogsChannel, modLogLine(event))
}

func (n *NotificationService) handleOnboarding(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.OnboardingStateChangedPayload)
	if payload.NewState != domain.OnboardPendingManagerReview || strings.TrimSpace(n.cfg.ModLogsChannel) == "" {
		return nil
	}
	return n.notifier.SendChannel(ctx, n.cfg.ModLogsChannel,
		fmt.Sprintf("<@%s> finished onboarding and is waiting for manager review.", event.SubjectID))
}

// owners resolves the users to notify about a bot: its owner, or every member
// of its owning team.
func (n *NotificationService) owners(ctx context.Context, botID string) ([]string, error) {
	bot, err := n.bots.GetByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.Owner != nil {
		return []string{*bot.Owner}, nil
	}
	if bot.TeamOwner == nil {
		return nil, nil
	}
	members, err := n.teams.ListMembers(ctx, *bot.TeamOwner)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

func modLogLine(event events.Event) string {
	switch p := event.Payload.(type) {
	case events.BotReviewPayload:
		line := fmt.Sprintf("`%s` <@%s> by <@%s>", event.Type, event.SubjectID, event.ActorID)
		if p.Forced {
			line += " (forced)"
		}
		if p.Reason != "" {
			line += ": " + p.Reason
		}
		return line
	case events.RPCInvokedPayload:
		return fmt.Sprintf("RPC `%s` on `%s` by <@%s>: %s", p.Method, event.SubjectID, event.ActorID, p.State)
	case events.StaffResyncedPayload:
		if p.Removed {
			return fmt.Sprintf("Staff resync removed <@%s> (positions %v)", event.SubjectID, p.BeforePositions)
		}
		return fmt.Sprintf("Staff resync updated <@%s>: positions %v -> %v", event.SubjectID, p.BeforePositions, p.AfterPositions)
	case events.StaffDisciplinaryIssuedPayload:
		line := fmt.Sprintf("<@%s> issued `%s` to <@%s>: %s", event.ActorID, p.Type, event.SubjectID, p.Reason)
		if p.PendingApproval {
			line += " (awaiting approval)"
		}
		return line
	}
	return fmt.Sprintf("`%s` %s", event.Type, event.SubjectID)
}
