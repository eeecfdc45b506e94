package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/botlist/arcadia/internal/domain"
)

// DisciplinaryRepository persists disciplinary types and issued disciplinaries.
type DisciplinaryRepository interface {
	ListTypes(ctx context.Context) ([]domain.StaffDisciplinaryType, error)
	GetType(ctx context.Context, id string) (*domain.StaffDisciplinaryType, error)
	LockType(ctx context.Context, id string) (*domain.StaffDisciplinaryType, error)
	CreateType(ctx context.Context, t *domain.StaffDisciplinaryType) error
	UpdateType(ctx context.Context, t *domain.StaffDisciplinaryType) error

	ListForUser(ctx context.Context, userID string) ([]domain.StaffDisciplinary, error)
	Get(ctx context.Context, id string) (*domain.StaffDisciplinary, error)
	Create(ctx context.Context, d *domain.StaffDisciplinary) error
	SetApprovedBy(ctx context.Context, id, approver string) error
	SetExpiry(ctx context.Context, id string, expiry time.Duration) error
}

type disciplinaryRepository struct {
	db DBTX
}

// NewDisciplinaryRepository builds the pgx implementation.
func NewDisciplinaryRepository(db DBTX) DisciplinaryRepository {
	return &disciplinaryRepository{db: db}
}

const typeColumns = `id, name, description, perm_limits, additory, self_assignable, needs_approval, max_expiry_seconds, created_at`

func (r *disciplinaryRepository) ListTypes(ctx context.Context) ([]domain.StaffDisciplinaryType, error) {
	rows, err := r.db.Query(ctx, `SELECT `+typeColumns+` FROM staff_disciplinary_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffDisciplinaryType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (r *disciplinaryRepository) GetType(ctx context.Context, id string) (*domain.StaffDisciplinaryType, error) {
	return scanType(r.db.QueryRow(ctx, `SELECT `+typeColumns+` FROM staff_disciplinary_types WHERE id=$1`, id))
}

func (r *disciplinaryRepository) LockType(ctx context.Context, id string) (*domain.StaffDisciplinaryType, error) {
	return scanType(r.db.QueryRow(ctx, `SELECT `+typeColumns+` FROM staff_disciplinary_types WHERE id=$1 FOR UPDATE`, id))
}

func (r *disciplinaryRepository) CreateType(ctx context.Context, t *domain.StaffDisciplinaryType) error {
	const query = `
        INSERT INTO staff_disciplinary_types
            (id, name, description, perm_limits, additory, self_assignable, needs_approval, max_expiry_seconds)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at`
	return r.db.QueryRow(ctx, query,
		t.ID,
		t.Name,
		t.Description,
		nonNilStrings(t.PermLimits),
		t.Additory,
		t.SelfAssignable,
		t.NeedsApproval,
		int64(t.MaxExpiry/time.Second),
	).Scan(&t.CreatedAt)
}

func (r *disciplinaryRepository) UpdateType(ctx context.Context, t *domain.StaffDisciplinaryType) error {
	const query = `
        UPDATE staff_disciplinary_types SET name=$1, description=$2, perm_limits=$3, additory=$4,
            self_assignable=$5, needs_approval=$6, max_expiry_seconds=$7
        WHERE id=$8`
	cmd, err := r.db.Exec(ctx, query,
		t.Name,
		t.Description,
		nonNilStrings(t.PermLimits),
		t.Additory,
		t.SelfAssignable,
		t.NeedsApproval,
		int64(t.MaxExpiry/time.Second),
		t.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

const disciplinaryColumns = `id, user_id, type, reason, issued_by, approved_by, created_at, expiry_seconds`

func (r *disciplinaryRepository) ListForUser(ctx context.Context, userID string) ([]domain.StaffDisciplinary, error) {
	query := `SELECT ` + disciplinaryColumns + ` FROM staff_disciplinaries WHERE user_id=$1 ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffDisciplinary
	for rows.Next() {
		d, err := scanDisciplinary(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *disciplinaryRepository) Get(ctx context.Context, id string) (*domain.StaffDisciplinary, error) {
	return scanDisciplinary(r.db.QueryRow(ctx, `SELECT `+disciplinaryColumns+` FROM staff_disciplinaries WHERE id=$1`, id))
}

func (r *disciplinaryRepository) Create(ctx context.Context, d *domain.StaffDisciplinary) error {
	const query = `
        INSERT INTO staff_disciplinaries (id, user_id, type, reason, issued_by, approved_by, expiry_seconds)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at`
	return r.db.QueryRow(ctx, query,
		d.ID,
		d.UserID,
		d.Type,
		d.Reason,
		d.IssuedBy,
		d.ApprovedBy,
		int64(d.Expiry/time.Second),
	).Scan(&d.CreatedAt)
}

func (r *disciplinaryRepository) SetApprovedBy(ctx context.Context, id, approver string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE staff_disciplinaries SET approved_by=$1 WHERE id=$2`, approver, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *disciplinaryRepository) SetExpiry(ctx context.Context, id string, expiry time.Duration) error {
	cmd, err := r.db.Exec(ctx, `UPDATE staff_disciplinaries SET expiry_seconds=$1 WHERE id=$2`, int64(expiry/time.Second), id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanType(row pgx.Row) (*domain.StaffDisciplinaryType, error) {
	var (
		t          domain.StaffDisciplinaryType
		maxSeconds int64
	)
	if err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.PermLimits,
		&t.Additory,
		&t.SelfAssignable,
		&t.NeedsApproval,
		&maxSeconds,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}
	t.MaxExpiry = time.Duration(maxSeconds) * time.Second
	return &t, nil
}

func scanDisciplinary(row pgx.Row) (*domain.StaffDisciplinary, error) {
	var (
		d       domain.StaffDisciplinary
		seconds int64
	)
	if err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Type,
		&d.Reason,
		&d.IssuedBy,
		&d.ApprovedBy,
		&d.CreatedAt,
		&seconds,
	); err != nil {
		return nil, err
	}
	d.Expiry = time.Duration(seconds) * time.Second
	return &d, nil
}
