package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
)

// DB guards the QueryContext/ExecContext/QueryRowContext trio the postgres
// repositories use, so repository calls fail fast while Postgres is down.
type DB struct {
	b  *Breaker
	db *sql.DB
}

// GuardDB wraps db with a DatabaseConfig breaker.
func GuardDB(db *sql.DB) *DB {
	return GuardDBWithConfig(db, DatabaseConfig())
}

// GuardDBWithConfig wraps db with a breaker built from cfg. sql.ErrNoRows and
// context cancellation never count as failures.
func GuardDBWithConfig(db *sql.DB, cfg Config) *DB {
	ignore := cfg.Ignore
	cfg.Ignore = func(err error) bool {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) {
			return true
		}
		return ignore != nil && ignore(err)
	}
	return &DB{b: New(cfg), db: db}
}

func (g *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := g.b.Call(func() error {
		var err error
		rows, err = g.db.QueryContext(ctx, query, args...)
		return err
	})
	return rows, err
}

func (g *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := g.b.Call(func() error {
		var err error
		res, err = g.db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// QueryRowContext counts the row's query error against the breaker. A
// *sql.Row cannot carry the breaker's own rejection, so while the breaker is
// open the query goes straight to the database.
func (g *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	var row *sql.Row
	_ = g.b.Call(func() error {
		row = g.db.QueryRowContext(ctx, query, args...)
		return row.Err()
	})
	if row == nil {
		row = g.db.QueryRowContext(ctx, query, args...)
	}
	return row
}

// PingContext reports an open breaker as unavailable.
func (g *DB) PingContext(ctx context.Context) error {
	return g.b.Call(func() error { return g.db.PingContext(ctx) })
}

// IsOpen reports whether the database breaker is open.
func (g *DB) IsOpen() bool { return g.b.IsOpen() }
