// Package store persists the three durable concerns of the sync pipeline:
// processed-message markers (deduplication), the album-id cache keyed by group
// title, and the last-known title per chat (rename detection). Two backends are
// provided behind the same interface: an embedded SQLite file for the default
// single-instance deployment, and Postgres for operators who already run one.
package store

import (
	"context"
	"fmt"
	"strings"
)

// Store is the durable state surface used by the sync pipeline. Every mutating
// call commits before returning; there is no batching or write-behind. All
// operations are idempotent with respect to their postconditions.
type Store interface {
	// IsProcessed reports whether (chatID, messageID) was already synced.
	IsProcessed(ctx context.Context, chatID, messageID int64) (bool, error)
	// MarkProcessed records (chatID, messageID) as synced. Marking an already
	// marked pair is a no-op, not an error.
	MarkProcessed(ctx context.Context, chatID, messageID int64) error

	// GetAlbumID returns the cached album id for a group title, or "" when the
	// title has no cache entry. Absence is not an error.
	GetAlbumID(ctx context.Context, title string) (string, error)
	// SetAlbumID stores the album id for a title, overwriting any previous value.
	SetAlbumID(ctx context.Context, title, albumID string) error
	// DeleteAlbumCache removes the cache entry for a title. No-op when absent.
	DeleteAlbumCache(ctx context.Context, title string) error

	// GetChatTitle returns the last-known title for a chat, or "" when unseen.
	GetChatTitle(ctx context.Context, chatID int64) (string, error)
	// SetChatTitle stores the current title for a chat, overwriting any previous value.
	SetChatTitle(ctx context.Context, chatID int64, title string) error

	Ping(ctx context.Context) error
	Close() error
}

// Open selects a backend by DSN shape: postgres:// (or postgresql://) connects
// to Postgres via pgx; anything else is treated as a SQLite file path whose
// parent directory is created if needed. Both backends run their migrations
// before returning.
func Open(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: empty DSN")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(ctx, dsn)
	}
	return OpenSQLite(ctx, dsn)
}
