package params

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStore keeps parameters in a SQLite database
type SqliteStore struct {
	dbPath string
	open   func(dsn string) (*sql.DB, error)

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the database file at dbPath. The
// database is opened and its schema initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{
		dbPath: dbPath,
		open: func(dsn string) (*sql.DB, error) {
			return sql.Open("sqlite3", dsn)
		},
	}
}

func runSQLCommand(ctx context.Context, db *sql.DB, sql string) error {
	_, err := db.ExecContext(ctx, sql)
	return err
}

// getDB opens the database once. Schema setup is not bound to any caller's
// context.
func (s *SqliteStore) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := s.open(fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.dbErr = fmt.Errorf("opening connection: %w", err)
			return
		}

		if err = runSQLCommand(context.Background(), db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.db = db
	})

	return s.db, s.dbErr
}

func (s *SqliteStore) Get(ctx context.Context, key string) (value string, err error) {
	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	if err = db.QueryRowContext(ctx, selectParamSQL, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("%w: %s", ErrNotFound, key)
			return
		}
		err = fmt.Errorf("scanning parameter %s: %w", key, err)
	}
	return
}

func (s *SqliteStore) Set(ctx context.Context, key, value string) error {
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, upsertParamSQL, key, value); err != nil {
		return fmt.Errorf("storing parameter %s: %w", key, err)
	}
	return nil
}

func (s *SqliteStore) Keys(ctx context.Context) (keys []string, err error) {
	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectKeysSQL)
	if err != nil {
		err = fmt.Errorf("querying keys: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			err = fmt.Errorf("scanning key: %w", err)
			return
		}
		keys = append(keys, key)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating keys: %w", err)
	}
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
			s.db = nil
		}
	})

	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
