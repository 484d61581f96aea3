package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/festpass/registration-backend/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB interface defines database operations
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	PingContext(ctx context.Context) error
	Close() error
}

// querier is satisfied by both DB and *sqlx.Tx
type querier interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PostgresDB implements the DB interface using sqlx
type PostgresDB struct {
	*sqlx.DB
}

// NewConnection opens the PostgreSQL pool and verifies it with a ping
func NewConnection(cfg config.DatabaseConfig) (DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sqlx.Connect("postgres", poolerSafeURL(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxLifetime / 2)

	return &PostgresDB{DB: db}, nil
}

// poolerSafeURL enables lib/pq's unnamed-statement mode for PgBouncer style poolers,
// which reject named prepared statements in transaction mode.
func poolerSafeURL(raw string) string {
	if !strings.Contains(raw, "pooler") || strings.Contains(raw, "binary_parameters") {
		return raw
	}
	if strings.Contains(raw, "?") {
		return raw + "&binary_parameters=yes"
	}
	return raw + "?binary_parameters=yes"
}

// withTx runs fn inside a transaction, rolling back on error or panic
func withTx(ctx context.Context, db DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
