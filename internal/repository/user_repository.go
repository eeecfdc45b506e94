package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/botlist/arcadia/internal/domain"
)

// UserRepository persists the onboarding columns of the users table.
type UserRepository interface {
	Ensure(ctx context.Context, userID string) error
	GetOnboard(ctx context.Context, userID string) (*domain.StaffOnboardRecord, error)
	SaveOnboard(ctx context.Context, rec *domain.StaffOnboardRecord) error
	FindBySessionCode(ctx context.Context, code string) (*domain.StaffOnboardRecord, error)
	ListByOnboardState(ctx context.Context, state domain.OnboardState) ([]domain.StaffOnboardRecord, error)
}

type userRepository struct {
	db DBTX
}

// NewUserRepository returns a pgx-backed implementation.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

const onboardColumns = `user_id, onboard_state, last_start_time, macro_time, session_code, onboarded, survey`

func (r *userRepository) Ensure(ctx context.Context, userID string) error {
	const query = `INSERT INTO users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	_, err := r.db.Exec(ctx, query, userID)
	return err
}

func (r *userRepository) GetOnboard(ctx context.Context, userID string) (*domain.StaffOnboardRecord, error) {
	query := `SELECT ` + onboardColumns + ` FROM users WHERE user_id=$1`
	return scanOnboard(r.db.QueryRow(ctx, query, userID))
}

func (r *userRepository) FindBySessionCode(ctx context.Context, code string) (*domain.StaffOnboardRecord, error) {
	query := `SELECT ` + onboardColumns + ` FROM users WHERE session_code=$1`
	return scanOnboard(r.db.QueryRow(ctx, query, code))
}

func (r *userRepository) SaveOnboard(ctx context.Context, rec *domain.StaffOnboardRecord) error {
	const query = `
        UPDATE users SET onboard_state=$1, last_start_time=$2, macro_time=$3, session_code=$4,
            onboarded=$5, survey=$6, updated_at=NOW()
        WHERE user_id=$7`
	survey := rec.Survey
	if survey == nil {
		survey = map[string]string{}
	}
	cmd, err := r.db.Exec(ctx, query,
		string(rec.State),
		rec.LastStartTime,
		rec.MacroTime,
		rec.SessionCode,
		rec.Onboarded,
		survey,
		rec.UserID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) ListByOnboardState(ctx context.Context, state domain.OnboardState) ([]domain.StaffOnboardRecord, error) {
	query := `SELECT ` + onboardColumns + ` FROM users WHERE onboard_state=$1 ORDER BY last_start_time`
	rows, err := r.db.Query(ctx, query, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffOnboardRecord
	for rows.Next() {
		rec, err := scanOnboard(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

func scanOnboard(row pgx.Row) (*domain.StaffOnboardRecord, error) {
	var (
		rec   domain.StaffOnboardRecord
		state string
	)
	if err := row.Scan(
		&rec.UserID,
		&state,
		&rec.LastStartTime,
		&rec.MacroTime,
		&rec.SessionCode,
		&rec.Onboarded,
		&rec.Survey,
	); err != nil {
		return nil, err
	}
	parsed, err := domain.ParseOnboardState(state)
	if err != nil {
		return nil, err
	}
	rec.State = parsed
	return &rec, nil
}
