package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/botlist/arcadia/internal/config"
	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/events"
	"github.com/botlist/arcadia/internal/perms"
	"github.com/botlist/arcadia/internal/repository"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// QueueService handles claim, unclaim, approve and deny on the review queue.
type QueueService struct {
	store      repository.Store
	tx         repository.Transactor
	authz      *Authorizer
	dispatcher events.Dispatcher
	cfg        config.QueueConfig
	now        func() time.Time
}

// QueueDependencies bundles collaborators.
type QueueDependencies struct {
	Store      repository.Store
	Transactor repository.Transactor
	Authorizer *Authorizer
	Dispatcher events.Dispatcher
}

// NewQueueService creates the service.
func NewQueueService(cfg config.QueueConfig, deps QueueDependencies) *QueueService {
	return &QueueService{
		store:      deps.Store,
		tx:         deps.Transactor,
		authz:      deps.Authorizer,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		now:        time.Now,
	}
}

// List returns pending and claimed bots, oldest first.
func (s *QueueService) List(ctx context.Context, actorID string) ([]domain.BotReviewRecord, error) {
	if err := s.authz.Authorize(ctx, actorID, perms.BotsQueue); err != nil {
		return nil, err
	}
	bots, err := s.store.Bots.ListQueue(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return bots, nil
}

// Claim places a pending bot under the actor's hold. force takes over a bot
// claimed by someone else and needs bots.claim_force.
func (s *QueueService) Claim(ctx context.Context, actorID, botID string, force bool) (*domain.BotReviewRecord, error) {
	actor, err := s.authz.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := actor.Require(perms.BotsClaim); err != nil {
		return nil, err
	}

	var bot *domain.BotReviewRecord
	forced := false
	err = s.tx.InTx(ctx, func(st repository.Store) error {
		bot, err = lockBot(ctx, st, botID)
		if err != nil {
			return err
		}
		switch bot.Type {
		case domain.BotTypePending:
		case domain.BotTypeClaimed:
			if *bot.ClaimedBy == actorID {
				return apperrors.NewPrecondition("you have already claimed this bot", map[string]any{"bot_id": botID})
			}
			if !force {
				return apperrors.NewPrecondition(
					fmt.Sprintf("this bot is already claimed by <@%s>", *bot.ClaimedBy),
					map[string]any{"bot_id": botID, "claimed_by": *bot.ClaimedBy},
				)
			}
			if err := actor.Require(perms.BotsClaimForce); err != nil {
				return err
			}
			forced = true
		default:
			return notInQueue(bot)
		}
		bot.Claim(actorID, s.now())
		return st.Bots.Update(ctx, bot)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, events.EventBotClaimed, botID, actorID, events.BotReviewPayload{Forced: forced})
	return bot, nil
}

// Unclaim releases a claim back to pending. Releasing another reviewer's claim
// needs bots.claim_force.
func (s *QueueService) Unclaim(ctx context.Context, actorID, botID, reason string) (*domain.BotReviewRecord, error) {
	actor, err := s.authz.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := actor.Require(perms.BotsUnclaim); err != nil {
		return nil, err
	}

	var bot *domain.BotReviewRecord
	err = s.tx.InTx(ctx, func(st repository.Store) error {
		bot, err = lockBot(ctx, st, botID)
		if err != nil {
			return err
		}
		if bot.Type != domain.BotTypeClaimed {
			return apperrors.NewPrecondition("this bot is not claimed", map[string]any{"bot_id": botID})
		}
		if *bot.ClaimedBy != actorID {
			if err := actor.Require(perms.BotsClaimForce); err != nil {
				return err
			}
		}
		bot.Release(domain.BotTypePending)
		return st.Bots.Update(ctx, bot)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, events.EventBotUnclaimed, botID, actorID, events.BotReviewPayload{Reason: reason})
	return bot, nil
}

// Approve accepts a bot the actor has held for at least the minimum claim age.
func (s *QueueService) Approve(ctx context.Context, actorID, botID, reason string) (*domain.BotReviewRecord, error) {
	return s.decide(ctx, actorID, botID, reason, perms.BotsApprove, domain.BotTypeApproved, events.EventBotApproved)
}

// Deny rejects a bot the actor has held for at least the minimum claim age.
func (s *QueueService) Deny(ctx context.Context, actorID, botID, reason string) (*domain.BotReviewRecord, error) {
	return s.decide(ctx, actorID, botID, reason, perms.BotsDeny, domain.BotTypeDenied, events.EventBotDenied)
}

func (s *QueueService) decide(ctx context.Context, actorID, botID, reason, perm string, target domain.BotType, eventType events.EventType) (*domain.BotReviewRecord, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("a reason is required", map[string]any{"field": "reason"})
	}
	if err := s.authz.Authorize(ctx, actorID, perm); err != nil {
		return nil, err
	}

	var bot *domain.BotReviewRecord
	err := s.tx.InTx(ctx, func(st repository.Store) error {
		var err error
		bot, err = lockBot(ctx, st, botID)
		if err != nil {
			return err
		}
		if err := s.checkReviewable(bot, actorID); err != nil {
			return err
		}
		bot.Release(target)
		return st.Bots.Update(ctx, bot)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, eventType, botID, actorID, events.BotReviewPayload{Reason: reason})
	return bot, nil
}

func (s *QueueService) checkReviewable(bot *domain.BotReviewRecord, actorID string) error {
	if bot.Type != domain.BotTypeClaimed || bot.ClaimedBy == nil || *bot.ClaimedBy != actorID {
		return apperrors.NewPrecondition("you must claim this bot before reviewing it", map[string]any{"bot_id": bot.BotID})
	}
	if bot.LastClaimed == nil {
		return apperrors.NewPrecondition("claim time unknown; claim the bot again", map[string]any{"bot_id": bot.BotID})
	}
	held := s.now().Sub(*bot.LastClaimed)
	if held < s.cfg.MinClaimAge {
		return apperrors.NewPrecondition(
			fmt.Sprintf("you must test this bot for at least %s before deciding (claimed %s ago)",
				s.cfg.MinClaimAge, held.Truncate(time.Second)),
			map[string]any{"bot_id": bot.BotID},
		)
	}
	return nil
}

func (s *QueueService) publish(ctx context.Context, eventType events.EventType, botID, actorID string, payload events.BotReviewPayload) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.New(eventType, botID, actorID, payload))
}

func lockBot(ctx context.Context, st repository.Store, botID string) (*domain.BotReviewRecord, error) {
	bot, err := st.Bots.LockByID(ctx, botID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("bot", map[string]any{"bot_id": botID})
		}
		return nil, err
	}
	return bot, nil
}

func notInQueue(bot *domain.BotReviewRecord) error {
	return apperrors.NewPrecondition(
		fmt.Sprintf("this bot is %s and not in the queue", bot.Type),
		map[string]any{"bot_id": bot.BotID, "type": bot.Type},
	)
}
