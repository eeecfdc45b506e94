package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/botlist/arcadia/internal/domain"
)

// BotRepository persists review-queue state of submitted bots.
type BotRepository interface {
	GetByID(ctx context.Context, botID string) (*domain.BotReviewRecord, error)
	LockByID(ctx context.Context, botID string) (*domain.BotReviewRecord, error)
	Update(ctx context.Context, bot *domain.BotReviewRecord) error
	Delete(ctx context.Context, botID string) error
	ListQueue(ctx context.Context) ([]domain.BotReviewRecord, error)
	ListStaleClaims(ctx context.Context, claimedBefore time.Time) ([]domain.BotReviewRecord, error)
	// ReleaseStaleClaim reverts a claim to pending only if it is still stale.
	// It reports whether a row changed.
	ReleaseStaleClaim(ctx context.Context, botID string, claimedBefore time.Time) (bool, error)
}

type botRepository struct {
	db DBTX
}

// NewBotRepository constructs the pgx implementation.
func NewBotRepository(db DBTX) BotRepository {
	return &botRepository{db: db}
}

const botColumns = `bot_id, type, claimed_by, last_claimed, owner, team_owner, votes, premium,
    start_premium_period, premium_period_length_seconds, vote_banned, created_at, updated_at`

func (r *botRepository) GetByID(ctx context.Context, botID string) (*domain.BotReviewRecord, error) {
	return scanBot(r.db.QueryRow(ctx, `SELECT `+botColumns+` FROM bots WHERE bot_id=$1`, botID))
}

func (r *botRepository) LockByID(ctx context.Context, botID string) (*domain.BotReviewRecord, error) {
	return scanBot(r.db.QueryRow(ctx, `SELECT `+botColumns+` FROM bots WHERE bot_id=$1 FOR UPDATE`, botID))
}

func (r *botRepository) Update(ctx context.Context, bot *domain.BotReviewRecord) error {
	if err := bot.Validate(); err != nil {
		return err
	}
	const query = `
        UPDATE bots SET type=$1, claimed_by=$2, last_claimed=$3, owner=$4, team_owner=$5, votes=$6,
            premium=$7, start_premium_period=$8, premium_period_length_seconds=$9, vote_banned=$10,
            updated_at=NOW()
        WHERE bot_id=$11
        RETURNING updated_at`
	err := r.db.QueryRow(ctx, query,
		string(bot.Type),
		bot.ClaimedBy,
		bot.LastClaimed,
		bot.Owner,
		bot.TeamOwner,
		bot.Votes,
		bot.Premium,
		bot.StartPremiumPeriod,
		int64(bot.PremiumPeriodLength/time.Second),
		bot.VoteBanned,
		bot.BotID,
	).Scan(&bot.UpdatedAt)
	return err
}

func (r *botRepository) Delete(ctx context.Context, botID string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM bots WHERE bot_id=$1`, botID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *botRepository) ListQueue(ctx context.Context) ([]domain.BotReviewRecord, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE type IN ('pending','claimed') ORDER BY created_at`
	return r.list(ctx, query)
}

func (r *botRepository) ListStaleClaims(ctx context.Context, claimedBefore time.Time) ([]domain.BotReviewRecord, error) {
	query := `SELECT ` + botColumns + ` FROM bots
        WHERE claimed_by IS NOT NULL AND last_claimed < $1 ORDER BY last_claimed`
	return r.list(ctx, query, claimedBefore)
}

func (r *botRepository) ReleaseStaleClaim(ctx context.Context, botID string, claimedBefore time.Time) (bool, error) {
	const query = `
        UPDATE bots SET type='pending', claimed_by=NULL, updated_at=NOW()
        WHERE bot_id=$1 AND claimed_by IS NOT NULL AND last_claimed < $2`
	cmd, err := r.db.Exec(ctx, query, botID, claimedBefore)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *botRepository) list(ctx context.Context, query string, args ...any) ([]domain.BotReviewRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.BotReviewRecord
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *bot)
	}
	return result, rows.Err()
}

func scanBot(row pgx.Row) (*domain.BotReviewRecord, error) {
	var (
		bot           domain.BotReviewRecord
		botType       string
		periodSeconds int64
	)
	if err := row.Scan(
		&bot.BotID,
		&botType,
		&bot.ClaimedBy,
		&bot.LastClaimed,
		&bot.Owner,
		&bot.TeamOwner,
		&bot.Votes,
		&bot.Premium,
		&bot.StartPremiumPeriod,
		&periodSeconds,
		&bot.VoteBanned,
		&bot.CreatedAt,
		&bot.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := domain.ParseBotType(botType)
	if err != nil {
		return nil, err
	}
	bot.Type = parsed
	bot.PremiumPeriodLength = time.Duration(periodSeconds) * time.Second
	return &bot, nil
}
