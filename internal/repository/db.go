package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so repositories can run
// inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles every repository bound to one DBTX.
type Store struct {
	Users          UserRepository
	Staff          StaffRepository
	Disciplinaries DisciplinaryRepository
	Bots           BotRepository
	Teams          TeamRepository
	RPCLogs        RPCLogRepository
}

// NewStore binds all repositories to db.
func NewStore(db DBTX) Store {
	return Store{
		Users:          NewUserRepository(db),
		Staff:          NewStaffRepository(db),
		Disciplinaries: NewDisciplinaryRepository(db),
		Bots:           NewBotRepository(db),
		Teams:          NewTeamRepository(db),
		RPCLogs:        NewRPCLogRepository(db),
	}
}

// Transactor runs fn with a Store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(Store) error) error
}

type pgTransactor struct {
	pool *pgxpool.Pool
}

// NewTransactor builds a Transactor over the pool.
func NewTransactor(pool *pgxpool.Pool) Transactor {
	return &pgTransactor{pool: pool}
}

func (t *pgTransactor) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewStore(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
