package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/denster32/dogtv-datacore/logger"
	"github.com/denster32/dogtv-datacore/migrations"

	// database drivers registered for OpenSQL
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore is a DurableStore backed by a single kv_entries table in either
// SQLite (device-local deployments) or PostgreSQL (server-side replicas).
// Queries are built with squirrel so both placeholder dialects share one
// code path.
type SQLStore struct {
	db         *sql.DB
	builder    sq.StatementBuilderType
	classifier ErrorClassificator
	log        *logger.Logger
}

// OpenSQL opens a connection for the given dialect, verifies it with a ping
// and applies pending migrations before returning a ready store.
func OpenSQL(ctx context.Context, dialect migrations.Dialect, dsn string, log *logger.Logger) (*SQLStore, error) {
	if log == nil {
		log = logger.Nop()
	}

	driver := "sqlite3"
	if dialect == migrations.DialectPostgres {
		driver = "pgx"
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		log.Err(err).Str("func", "OpenSQL").Msg("error occured during database connection")
		return nil, fmt.Errorf("error occured during database connection: %w", err)
	}
	conn.SetMaxOpenConns(4)

	if err = conn.PingContext(ctx); err != nil {
		log.Err(err).Str("func", "OpenSQL").Msg("error connecting database (ping)")
		return nil, err
	}

	if err = migrations.Migrate(conn, dialect); err != nil {
		return nil, err
	}
	log.Info().Str("func", "OpenSQL").Str("driver", driver).Msg("connected to database successfully")

	return NewSQLStore(conn, dialect, log), nil
}

// NewSQLStore wraps an already-open connection. Used directly by tests that
// substitute the connection with sqlmock.
func NewSQLStore(db *sql.DB, dialect migrations.Dialect, log *logger.Logger) *SQLStore {
	if log == nil {
		log = logger.Nop()
	}

	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	classifier := ErrorClassificator(NewSQLiteErrorClassifier())
	if dialect == migrations.DialectPostgres {
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
		classifier = NewPostgresErrorClassifier()
	}

	return &SQLStore{db: db, builder: builder, classifier: classifier, log: log}
}

// Classify reports whether a previously returned error is worth retrying.
func (s *SQLStore) Classify(err error) ErrorClassification {
	return s.classifier.Classify(err)
}

// execErr wraps a failed query execution. Errors the dialect's classifier
// judges retryable carry ErrTransient so callers can distinguish a busy
// database from a permanent failure.
func (s *SQLStore) execErr(err error) error {
	if s.classifier.Classify(err) == Retryable {
		return fmt.Errorf("%w: %w: %w: %w", ErrPersistence, ErrTransient, ErrExecutingQuery, err)
	}
	return fmt.Errorf("%w: %w: %w", ErrPersistence, ErrExecutingQuery, err)
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	query, args, err := s.builder.
		Insert("kv_entries").
		Columns("key", "value", "updated_at").
		Values(key, value, time.Now().UTC()).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = s.db.ExecContext(ctx, query, args...); err != nil {
		return s.execErr(err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	query, args, err := s.builder.
		Select("value").
		From("kv_entries").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var value []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if err != nil {
		return nil, s.execErr(err)
	}
	return value, nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	query, args, err := s.builder.
		Delete("kv_entries").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = s.db.ExecContext(ctx, query, args...); err != nil {
		return s.execErr(err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	query, args, err := s.builder.
		Select("key").
		From("kv_entries").
		OrderBy("key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.execErr(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
		}
		keys = append(keys, key)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}
	return keys, nil
}
