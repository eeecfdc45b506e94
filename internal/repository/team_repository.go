package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/botlist/arcadia/internal/domain"
)

// TeamRepository manages persistence for teams.
type TeamRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Team, error)
	UpdateName(ctx context.Context, id, name string) error
	ListMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error)
	// ListOrphaned returns teams that own no bots and have no members.
	ListOrphaned(ctx context.Context) ([]domain.Team, error)
	// DeleteIfOrphaned deletes the team only if it is still orphaned.
	DeleteIfOrphaned(ctx context.Context, id string) (bool, error)
}

type teamRepository struct {
	db DBTX
}

// NewTeamRepository constructs repository.
func NewTeamRepository(db DBTX) TeamRepository {
	return &teamRepository{db: db}
}

const orphanedTeam = `
    NOT EXISTS (SELECT 1 FROM bots b WHERE b.team_owner = t.id)
    AND NOT EXISTS (SELECT 1 FROM team_members m WHERE m.team_id = t.id)`

func (r *teamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	const query = `SELECT id, name, avatar, created_at FROM teams WHERE id=$1`
	var team domain.Team
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&team.ID,
		&team.Name,
		&team.Avatar,
		&team.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *teamRepository) UpdateName(ctx context.Context, id, name string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE teams SET name=$1 WHERE id=$2`, name, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *teamRepository) ListMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error) {
	const query = `SELECT team_id, user_id, perms FROM team_members WHERE team_id=$1 ORDER BY user_id`
	rows, err := r.db.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TeamMember
	for rows.Next() {
		var m domain.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Perms); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *teamRepository) ListOrphaned(ctx context.Context) ([]domain.Team, error) {
	query := `SELECT t.id, t.name, t.avatar, t.created_at FROM teams t WHERE` + orphanedTeam + ` ORDER BY t.created_at`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Team
	for rows.Next() {
		var team domain.Team
		if err := rows.Scan(&team.ID, &team.Name, &team.Avatar, &team.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, team)
	}
	return result, rows.Err()
}

func (r *teamRepository) DeleteIfOrphaned(ctx context.Context, id string) (bool, error) {
	query := `DELETE FROM teams t WHERE t.id=$1 AND` + orphanedTeam
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
