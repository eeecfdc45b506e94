package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/botlist/arcadia/internal/domain"
)

// RPCLogRepository appends and settles RPC audit rows.
type RPCLogRepository interface {
	Create(ctx context.Context, entry *domain.RPCLogEntry) error
	UpdateState(ctx context.Context, id, state string) error
}

type rpcLogRepository struct {
	db DBTX
}

// NewRPCLogRepository builds the audit log repository.
func NewRPCLogRepository(db DBTX) RPCLogRepository {
	return &rpcLogRepository{db: db}
}

func (r *rpcLogRepository) Create(ctx context.Context, entry *domain.RPCLogEntry) error {
	const query = `
        INSERT INTO rpc_logs (id, method, user_id, data, state)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at`
	data := entry.Data
	if data == nil {
		data = map[string]any{}
	}
	return r.db.QueryRow(ctx, query,
		entry.ID,
		entry.Method,
		entry.UserID,
		data,
		entry.State,
	).Scan(&entry.CreatedAt)
}

func (r *rpcLogRepository) UpdateState(ctx context.Context, id, state string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE rpc_logs SET state=$1 WHERE id=$2`, state, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
