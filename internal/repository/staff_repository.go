package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/botlist/arcadia/internal/domain"
)

// StaffRepository handles staff positions and staff members.
type StaffRepository interface {
	ListPositions(ctx context.Context) ([]domain.StaffPosition, error)
	GetPosition(ctx context.Context, id string) (*domain.StaffPosition, error)
	// LockPosition reads a position with FOR UPDATE. Only meaningful inside a transaction.
	LockPosition(ctx context.Context, id string) (*domain.StaffPosition, error)
	CreatePosition(ctx context.Context, pos *domain.StaffPosition) error
	UpdatePosition(ctx context.Context, pos *domain.StaffPosition) error
	DeletePosition(ctx context.Context, id string) error
	// ShiftIndexes moves every position with index >= from down by one rank.
	ShiftIndexes(ctx context.Context, from int) error

	GetMember(ctx context.Context, userID string) (*domain.StaffMember, error)
	LockMember(ctx context.Context, userID string) (*domain.StaffMember, error)
	ListMembers(ctx context.Context) ([]domain.StaffMember, error)
	UpsertMember(ctx context.Context, member *domain.StaffMember) error
	DeleteMember(ctx context.Context, userID string) error
	SetPanelTokenHash(ctx context.Context, userID, hash string) error
}

type staffRepository struct {
	db DBTX
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(db DBTX) StaffRepository {
	return &staffRepository{db: db}
}

const positionColumns = `id, name, role_id, index, perms, corresponding_roles, created_at`

func (r *staffRepository) ListPositions(ctx context.Context) ([]domain.StaffPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM staff_positions ORDER BY index, id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffPosition
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *pos)
	}
	return result, rows.Err()
}

func (r *staffRepository) GetPosition(ctx context.Context, id string) (*domain.StaffPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM staff_positions WHERE id=$1`
	return scanPosition(r.db.QueryRow(ctx, query, id))
}

func (r *staffRepository) LockPosition(ctx context.Context, id string) (*domain.StaffPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM staff_positions WHERE id=$1 FOR UPDATE`
	return scanPosition(r.db.QueryRow(ctx, query, id))
}

func (r *staffRepository) CreatePosition(ctx context.Context, pos *domain.StaffPosition) error {
	const query = `
        INSERT INTO staff_positions (id, name, role_id, index, perms, corresponding_roles)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at`
	roles, err := json.Marshal(nonNilRoles(pos.CorrespondingRoles))
	if err != nil {
		return fmt.Errorf("encode corresponding roles: %w", err)
	}
	return r.db.QueryRow(ctx, query,
		pos.ID,
		pos.Name,
		pos.RoleID,
		pos.Index,
		nonNilStrings(pos.Perms),
		roles,
	).Scan(&pos.CreatedAt)
}

func (r *staffRepository) UpdatePosition(ctx context.Context, pos *domain.StaffPosition) error {
	const query = `
        UPDATE staff_positions SET name=$1, role_id=$2, index=$3, perms=$4, corresponding_roles=$5
        WHERE id=$6`
	roles, err := json.Marshal(nonNilRoles(pos.CorrespondingRoles))
	if err != nil {
		return fmt.Errorf("encode corresponding roles: %w", err)
	}
	cmd, err := r.db.Exec(ctx, query,
		pos.Name,
		pos.RoleID,
		pos.Index,
		nonNilStrings(pos.Perms),
		roles,
		pos.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *staffRepository) DeletePosition(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `UPDATE staff_members SET positions = array_remove(positions, $1)`, id); err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM staff_positions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *staffRepository) ShiftIndexes(ctx context.Context, from int) error {
	_, err := r.db.Exec(ctx, `UPDATE staff_positions SET index = index + 1 WHERE index >= $1`, from)
	return err
}

const memberColumns = `user_id, positions, perm_overrides, no_autosync, unaccounted, mfa_verified, panel_token_hash, created_at`

func (r *staffRepository) GetMember(ctx context.Context, userID string) (*domain.StaffMember, error) {
	query := `SELECT ` + memberColumns + ` FROM staff_members WHERE user_id=$1`
	return scanMember(r.db.QueryRow(ctx, query, userID))
}

func (r *staffRepository) LockMember(ctx context.Context, userID string) (*domain.StaffMember, error) {
	query := `SELECT ` + memberColumns + ` FROM staff_members WHERE user_id=$1 FOR UPDATE`
	return scanMember(r.db.QueryRow(ctx, query, userID))
}

func (r *staffRepository) ListMembers(ctx context.Context) ([]domain.StaffMember, error) {
	query := `SELECT ` + memberColumns + ` FROM staff_members ORDER BY user_id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *member)
	}
	return result, rows.Err()
}

func (r *staffRepository) UpsertMember(ctx context.Context, member *domain.StaffMember) error {
	const query = `
        INSERT INTO staff_members (user_id, positions, perm_overrides, no_autosync, unaccounted, mfa_verified)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (user_id) DO UPDATE SET
            positions=EXCLUDED.positions,
            perm_overrides=EXCLUDED.perm_overrides,
            no_autosync=EXCLUDED.no_autosync,
            unaccounted=EXCLUDED.unaccounted,
            mfa_verified=EXCLUDED.mfa_verified
        RETURNING created_at`
	return r.db.QueryRow(ctx, query,
		member.UserID,
		nonNilStrings(member.PositionIDs),
		nonNilStrings(member.PermOverrides),
		member.NoAutosync,
		member.Unaccounted,
		member.MFAVerified,
	).Scan(&member.CreatedAt)
}

func (r *staffRepository) DeleteMember(ctx context.Context, userID string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM staff_members WHERE user_id=$1`, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *staffRepository) SetPanelTokenHash(ctx context.Context, userID, hash string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE staff_members SET panel_token_hash=$1 WHERE user_id=$2`, hash, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanPosition(row pgx.Row) (*domain.StaffPosition, error) {
	var (
		pos   domain.StaffPosition
		roles []byte
	)
	if err := row.Scan(&pos.ID, &pos.Name, &pos.RoleID, &pos.Index, &pos.Perms, &roles, &pos.CreatedAt); err != nil {
		return nil, err
	}
	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &pos.CorrespondingRoles); err != nil {
			return nil, fmt.Errorf("decode corresponding roles of %s: %w", pos.ID, err)
		}
	}
	return &pos, nil
}

func scanMember(row pgx.Row) (*domain.StaffMember, error) {
	var m domain.StaffMember
	if err := row.Scan(
		&m.UserID,
		&m.PositionIDs,
		&m.PermOverrides,
		&m.NoAutosync,
		&m.Unaccounted,
		&m.MFAVerified,
		&m.PanelTokenHash,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilRoles(in []domain.CorrespondingRole) []domain.CorrespondingRole {
	if in == nil {
		return []domain.CorrespondingRole{}
	}
	return in
}
