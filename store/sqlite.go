package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// SQLiteStore implements Store on an embedded SQLite database file. It is the
// default backend: one instance, one file, no external service.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS processed_messages (
		chat_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		PRIMARY KEY (chat_id, message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS album_cache (
		group_title TEXT NOT NULL PRIMARY KEY,
		album_id TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_titles (
		chat_id INTEGER NOT NULL PRIMARY KEY,
		group_title TEXT NOT NULL
	)`,
}

// OpenSQLite opens (creating parent directories and the file as needed) a
// SQLite database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	// _busy_timeout keeps concurrent readers from failing fast on writer locks.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := execSchema(ctx, db, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("store opened", slog.String("backend", "sqlite"), slog.String("path", path), slog.String("component", "store"))
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) IsProcessed(ctx context.Context, chatID, messageID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_messages WHERE chat_id = ? AND message_id = ?`,
		chatID, messageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is processed: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, chatID, messageID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_messages (chat_id, message_id) VALUES (?, ?)`,
		chatID, messageID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAlbumID(ctx context.Context, title string) (string, error) {
	var albumID string
	err := s.db.QueryRowContext(ctx,
		`SELECT album_id FROM album_cache WHERE group_title = ?`, title).Scan(&albumID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get album id: %w", err)
	}
	return albumID, nil
}

func (s *SQLiteStore) SetAlbumID(ctx context.Context, title, albumID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO album_cache (group_title, album_id) VALUES (?, ?)`,
		title, albumID)
	if err != nil {
		return fmt.Errorf("set album id: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteAlbumCache(ctx context.Context, title string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM album_cache WHERE group_title = ?`, title)
	if err != nil {
		return fmt.Errorf("delete album cache: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChatTitle(ctx context.Context, chatID int64) (string, error) {
	var title string
	err := s.db.QueryRowContext(ctx,
		`SELECT group_title FROM chat_titles WHERE chat_id = ?`, chatID).Scan(&title)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get chat title: %w", err)
	}
	return title, nil
}

func (s *SQLiteStore) SetChatTitle(ctx context.Context, chatID int64, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chat_titles (chat_id, group_title) VALUES (?, ?)`,
		chatID, title)
	if err != nil {
		return fmt.Errorf("set chat title: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }
