package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Store on Postgres via the pgx stdlib driver.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects, runs versioned migrations (falling back to the
// embedded statement list for installations predating the migration table),
// and returns the store.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migratePostgres(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("store opened", slog.String("backend", "postgres"), slog.String("component", "store"))
	return &PostgresStore{db: db}, nil
}

// migratePostgres applies versioned migrations embedded in the binary. If the
// migrate instance cannot be built (for example a pre-existing schema without a
// schema_migrations table left dirty by an operator), it falls back to the
// idempotent statement list so the service still comes up.
func migratePostgres(ctx context.Context, db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		return fmt.Errorf("postgres migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		slog.Warn("versioned migrations failed, falling back to embedded schema",
			slog.Any("err", err), slog.String("component", "store"))
		return execSchema(ctx, db, postgresSchema)
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS processed_messages (
		chat_id BIGINT NOT NULL,
		message_id BIGINT NOT NULL,
		PRIMARY KEY (chat_id, message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS album_cache (
		group_title TEXT PRIMARY KEY,
		album_id TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_titles (
		chat_id BIGINT PRIMARY KEY,
		group_title TEXT NOT NULL
	)`,
}

func execSchema(ctx context.Context, db *sql.DB, stmts []string) error {
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("schema step %d failed: %w", i, err)
		}
	}
	return nil
}

func (s *PostgresStore) IsProcessed(ctx context.Context, chatID, messageID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_messages WHERE chat_id = $1 AND message_id = $2`,
		chatID, messageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is processed: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, chatID, messageID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_messages (chat_id, message_id) VALUES ($1, $2)
		 ON CONFLICT (chat_id, message_id) DO NOTHING`,
		chatID, messageID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAlbumID(ctx context.Context, title string) (string, error) {
	var albumID string
	err := s.db.QueryRowContext(ctx,
		`SELECT album_id FROM album_cache WHERE group_title = $1`, title).Scan(&albumID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get album id: %w", err)
	}
	return albumID, nil
}

func (s *PostgresStore) SetAlbumID(ctx context.Context, title, albumID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO album_cache (group_title, album_id) VALUES ($1, $2)
		 ON CONFLICT (group_title) DO UPDATE SET album_id = EXCLUDED.album_id`,
		title, albumID)
	if err != nil {
		return fmt.Errorf("set album id: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAlbumCache(ctx context.Context, title string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM album_cache WHERE group_title = $1`, title)
	if err != nil {
		return fmt.Errorf("delete album cache: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChatTitle(ctx context.Context, chatID int64) (string, error) {
	var title string
	err := s.db.QueryRowContext(ctx,
		`SELECT group_title FROM chat_titles WHERE chat_id = $1`, chatID).Scan(&title)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get chat title: %w", err)
	}
	return title, nil
}

func (s *PostgresStore) SetChatTitle(ctx context.Context, chatID int64, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_titles (chat_id, group_title) VALUES ($1, $2)
		 ON CONFLICT (chat_id) DO UPDATE SET group_title = EXCLUDED.group_title`,
		chatID, title)
	if err != nil {
		return fmt.Errorf("set chat title: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *PostgresStore) Close() error { return s.db.Close() }
