package settings

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies the embedded schema migrations to the database at
// databaseURL. It is a no-op when the schema is already current.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("settings: migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("settings: migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("settings: migrate up: %w", err)
	}
	return nil
}

const settingsTable = "installation_settings"

// psql builds statements with Postgres $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresSource reads installation options from the installation_settings
// table. Every Load reads fresh rows; nothing is cached between events.
type PostgresSource struct {
	db *sql.DB
}

// OpenPostgres opens a connection pool for databaseURL and verifies it.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("settings: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: ping: %w", err)
	}
	return db, nil
}

// NewPostgresSource creates a Source backed by the given database handle.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func loadQuery(subreddit string) sq.SelectBuilder {
	return psql.Select("name", "value").
		From(settingsTable).
		Where(sq.Eq{"subreddit": subreddit})
}

func setQuery(subreddit, name, value string) sq.InsertBuilder {
	return psql.Insert(settingsTable).
		Columns("subreddit", "name", "value").
		Values(subreddit, name, value).
		Suffix("ON CONFLICT (subreddit, name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()")
}

func unsetQuery(subreddit, name string) sq.DeleteBuilder {
	return psql.Delete(settingsTable).
		Where(sq.Eq{"subreddit": subreddit, "name": name})
}

func subredditsQuery() sq.SelectBuilder {
	return psql.Select("subreddit").
		Distinct().
		From(settingsTable).
		OrderBy("subreddit")
}

// Load returns every option stored for subreddit.
func (s *PostgresSource) Load(ctx context.Context, subreddit string) (Values, error) {
	query, args, err := loadQuery(subreddit).ToSql()
	if err != nil {
		return Values{}, fmt.Errorf("settings: build load: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Values{}, fmt.Errorf("settings: load %s: %w", subreddit, err)
	}
	defer rows.Close()

	m := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return Values{}, fmt.Errorf("settings: scan: %w", err)
		}
		m[name] = value
	}
	if err := rows.Err(); err != nil {
		return Values{}, fmt.Errorf("settings: rows: %w", err)
	}
	return Values{raw: m}, nil
}

// Set stores a single option. It is used by operator tooling and tests; the
// rule pipeline never writes settings.
func (s *PostgresSource) Set(ctx context.Context, subreddit, name, value string) error {
	query, args, err := setQuery(subreddit, name, value).ToSql()
	if err != nil {
		return fmt.Errorf("settings: build set: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("settings: set %s.%s: %w", subreddit, name, err)
	}
	return nil
}

// Unset deletes a single option so its default applies again.
func (s *PostgresSource) Unset(ctx context.Context, subreddit, name string) error {
	query, args, err := unsetQuery(subreddit, name).ToSql()
	if err != nil {
		return fmt.Errorf("settings: build unset: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("settings: unset %s.%s: %w", subreddit, name, err)
	}
	return nil
}

// Subreddits lists every subreddit with at least one stored option.
func (s *PostgresSource) Subreddits(ctx context.Context) ([]string, error) {
	query, args, err := subredditsQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("settings: build subreddits: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("settings: subreddits: %w", err)
	}
	defer rows.Close()

	var subs []string
	for rows.Next() {
		var sub string
		if err := rows.Scan(&sub); err != nil {
			return nil, fmt.Errorf("settings: scan: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
