package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store provides all functions to execute db queries and transactions.
type Store interface {
	Querier
	ExecTx(ctx context.Context, fn func(*Queries) error) error
	Ping(ctx context.Context) error
	Close() error
}

type SQLStore struct {
	*Queries
	db *sqlx.DB
}

// NewStore creates a new Store.
func NewStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{
		Queries: New(db),
		db:      db,
	}
}

// Open connects to the database behind driver and applies pending migrations.
func Open(ctx context.Context, driver, dataSourceName string) (*SQLStore, error) {
	var (
		sqlDriver string
		dialect   dialect
	)
	switch driver {
	case DriverPostgres:
		sqlDriver, dialect = "pgx", dialectPostgres
	case DriverSQLite:
		sqlDriver, dialect = "sqlite", dialectSQLite
		dataSourceName = sqliteDSN(dataSourceName)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sqlx.Open(sqlDriver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", driver, err)
	}

	if driver == DriverSQLite {
		// Each connection to ":memory:" is its own database.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err = conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to %s db: %w", driver, err)
	}

	if err = migrate(ctx, conn, dialect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return NewStore(conn), nil
}

// sqliteDSN makes the driver write times in a lexically ordered format and turns on foreign keys.
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_time_format=sqlite&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// ExecTx executes fn within a database transaction.
func (store *SQLStore) ExecTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := store.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	err = fn(New(tx))
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// Ping checks if the database connection is alive.
func (store *SQLStore) Ping(ctx context.Context) error {
	return store.db.PingContext(ctx)
}

func (store *SQLStore) Close() error {
	return store.db.Close()
}

// Now returns the current time in the precision every supported database keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
