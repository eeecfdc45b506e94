package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/botlist/arcadia/internal/events"
	"github.com/botlist/arcadia/internal/repository"
)

// AutoUnclaimJob returns claims older than the staleness threshold to the queue.
type AutoUnclaimJob struct {
	bots       repository.BotRepository
	dispatcher events.Dispatcher
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewAutoUnclaimJob builds the job.
func NewAutoUnclaimJob(bots repository.BotRepository, dispatcher events.Dispatcher, staleAfter time.Duration, logger *zap.Logger) *AutoUnclaimJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoUnclaimJob{
		bots:       bots,
		dispatcher: dispatcher,
		staleAfter: staleAfter,
		logger:     logger.Named("auto_unclaim"),
		now:        time.Now,
	}
}

func (j *AutoUnclaimJob) Name() string { return "auto_unclaim" }

// Run releases every stale claim. A row that fails is logged and skipped; the
// conditional release makes reruns harmless.
func (j *AutoUnclaimJob) Run(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.staleAfter)
	stale, err := j.bots.ListStaleClaims(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale claims: %w", err)
	}

	released, failed := 0, 0
	for _, bot := range stale {
		changed, err := j.bots.ReleaseStaleClaim(ctx, bot.BotID, cutoff)
		if err != nil {
			failed++
			j.logger.Error("release stale claim failed", zap.String("bot_id", bot.BotID), zap.Error(err))
			continue
		}
		if !changed {
			continue
		}
		released++

		payload := events.BotAutoUnclaimedPayload{}
		if bot.ClaimedBy != nil {
			payload.PreviousClaimant = *bot.ClaimedBy
		}
		if bot.LastClaimed != nil {
			payload.ClaimedAt = *bot.LastClaimed
		}
		j.logger.Info("released stale claim",
			zap.String("bot_id", bot.BotID),
			zap.String("claimed_by", payload.PreviousClaimant),
			zap.Time("claimed_at", payload.ClaimedAt),
		)
		if err := j.dispatcher.Publish(ctx, events.New(events.EventBotAutoUnclaimed, bot.BotID, "", payload)); err != nil {
			j.logger.Warn("auto-unclaim notification failed", zap.String("bot_id", bot.BotID), zap.Error(err))
		}
	}

	if failed > 0 {
		return released, fmt.Errorf("%d of %d stale claims could not be released", failed, len(stale))
	}
	return released, nil
}
