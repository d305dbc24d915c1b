package repo

import (
	"context"
	"database/sql"
)

// execer is satisfied by both *sql.DB and *sql.Tx so statements can run
// inside or outside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const (
	ChatStateNormal = 1
)
