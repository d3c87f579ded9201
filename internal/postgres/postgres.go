package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/counterpos/counterpos/internal/config"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// IClient is what repositories and services depend on
type IClient interface {
	// WithTx runs fn inside a transaction carried by the returned context.
	// Nested calls reuse the outer transaction through savepoints.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Querier returns the transaction in ctx, or the pool when there is none
	Querier(ctx context.Context) Querier
}

// Querier interface defines all database operations
// Both *sqlx.DB and *sqlx.Tx implement these methods
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// DB wraps sqlx.DB to provide transaction management
type DB struct {
	*sqlx.DB
	logger      *logger.Logger
	lockTimeout time.Duration
}

var _ IClient = (*DB)(nil)

// NewDB opens the connection pool and applies pending migrations when configured
func NewDB(cfg *config.Configuration, logger *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		return nil, MapError(err, "connect")
	}

	if cfg.Postgres.MaxOpenConn > 0 {
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConn)
	}
	if cfg.Postgres.MaxIdleConn > 0 {
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConn)
	}
	if cfg.Postgres.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLife)
	}

	if cfg.Postgres.AutoMigrate {
		if err := NewMigrator(cfg.Postgres.GetURL(), logger).Up(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	out := NewFromSQLX(db, logger)
	out.lockTimeout = cfg.Postgres.LockTimeout
	return out, nil
}

// NewFromSQLX wraps an existing pool
func NewFromSQLX(db *sqlx.DB, logger *logger.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection
func (db *DB) Close() {
	if err := db.DB.Close(); err != nil {
		db.logger.Errorw("error closing database", "error", err)
	}
}

// Querier returns either the transaction from context or the base DB
func (db *DB) Querier(ctx context.Context) Querier {
	if tx, ok := GetTx(ctx); ok {
		return NewTracedQuerier(tx.Tx, db.logger, tx.ID)
	}
	return NewTracedQuerier(db.DB, db.logger, "")
}
