// Package sqlstore implements store.Store over database/sql for PostgreSQL
// and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"txn-ingest/pkg/record"
	"txn-ingest/pkg/status"
	"txn-ingest/pkg/store"
)

// Store keeps transactions in a single SQL table.
type Store struct {
	db      *sql.DB
	dialect Dialect
	name    string
}

// Config holds connection settings. DSN wins over the individual
// PostgreSQL fields when set.
type Config struct {
	Driver string
	DSN    string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// DefaultConfig returns local PostgreSQL settings.
func DefaultConfig() Config {
	return Config{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "transactions",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// ConnString returns the DSN passed to sql.Open.
func (c Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Open connects, checks the connection and creates the table if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Driver, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", dialect.Driver, err)
	}

	if dialect.Driver == SQLite.Driver {
		// SQLite allows a single writer; an in-memory database also lives
		// only as long as its connection.
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dialect.Driver, err)
	}

	s := New(db, dialect)
	if err := s.initTables(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init tables: %w", err)
	}
	return s, nil
}

// New wraps an open database. The caller is responsible for the schema.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, name: dialect.Driver}
}

func (s *Store) initTables(ctx context.Context) error {
	for _, query := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// InsertBatch writes the batch in one database transaction using a single
// prepared statement. Any failure rolls the whole batch back.
func (s *Store) InsertBatch(ctx context.Context, batch []record.Transaction) (err error) {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.WrapError(err, s.name, "begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.dialect.insertSQL())
	if err != nil {
		return store.WrapError(err, s.name, "prepare insert")
	}
	defer stmt.Close()

	for i, t := range batch {
		if _, err = stmt.ExecContext(ctx,
			t.TransactionID, t.Amount, t.CurrencyCode, t.TransactionDate.UTC(), string(t.Status),
		); err != nil {
			return store.WrapError(fmt.Errorf("record %d (%s): %w", i, t.TransactionID, err), s.name, "insert")
		}
	}

	if err = tx.Commit(); err != nil {
		return store.WrapError(err, s.name, "commit")
	}
	return nil
}

// QueryByCurrency implements store.Store.
func (s *Store) QueryByCurrency(ctx context.Context, currencyCode string) ([]record.Transaction, error) {
	return s.query(ctx, "query by currency", s.dialect.byCurrencySQL(), currencyCode)
}

// QueryByDateRange implements store.Store. Both bounds are inclusive.
func (s *Store) QueryByDateRange(ctx context.Context, start, end time.Time) ([]record.Transaction, error) {
	return s.query(ctx, "query by date range", s.dialect.byDateRangeSQL(), start.UTC(), end.UTC())
}

// QueryByStatus implements store.Store.
func (s *Store) QueryByStatus(ctx context.Context, code status.Code) ([]record.Transaction, error) {
	return s.query(ctx, "query by status", s.dialect.byStatusSQL(), string(code))
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]record.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.WrapError(err, s.name, op)
	}
	defer rows.Close()

	transactions := []record.Transaction{}
	for rows.Next() {
		var (
			t    record.Transaction
			code string
		)
		if err := rows.Scan(&t.ID, &t.TransactionID, &t.Amount, &t.CurrencyCode, &t.TransactionDate, &code); err != nil {
			return nil, store.WrapError(fmt.Errorf("scan transaction: %w", err), s.name, op)
		}
		t.TransactionDate = t.TransactionDate.UTC()
		t.Status = status.Code(code)
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.WrapError(err, s.name, op)
	}

	return transactions, nil
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return store.WrapError(s.db.PingContext(ctx), s.name, "ping")
}

// Name implements store.Store.
func (s *Store) Name() string {
	return s.name
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}
