package core

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of database operations shared by *pgxpool.Pool and
// pgx.Tx. Helpers that must run inside a caller-owned transaction accept
// this instead of DB.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB defines the database operations used by core services.
// *pgxpool.Pool satisfies this interface.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}
