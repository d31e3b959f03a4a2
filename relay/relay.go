// Package relay orchestrates the path from a Telegram media message to a
// Google Photos album: group filtering, deduplication, rename bookkeeping,
// download, album resolution and upload.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avelichka/photobridge/media"
	"github.com/avelichka/photobridge/store"
	"github.com/avelichka/photobridge/telemetry"
)

// PhotosClient abstracts the Google Photos operations the relay needs
// (for tests/mocks).
type PhotosClient interface {
	GetOrCreateAlbum(ctx context.Context, title string) (string, error)
	GetAlbumProductURL(ctx context.Context, albumID string) (string, error)
	UploadMedia(ctx context.Context, data []byte, filename, mimeType, albumID string) error
}

// Fetcher abstracts attachment download.
type Fetcher interface {
	Fetch(ctx context.Context, att *media.Attachment) (*media.Content, error)
}

// ErrNoAlbum is returned by AlbumLink when the chat has no album yet.
var ErrNoAlbum = errors.New("relay: no album for chat")

// Event is one media message to sync.
type Event struct {
	ChatID     int64
	MessageID  int64
	ChatType   string
	Title      string
	Attachment *media.Attachment
}

// Relay wires the store, the Photos client and the fetcher together. Allowed
// restricts processing to specific chats; nil allows every group.
type Relay struct {
	Store   store.Store
	Photos  PhotosClient
	Fetcher Fetcher
	Allowed func(chatID int64) bool
}

// Process syncs one media event. Skips (wrong chat type, filtered chat,
// duplicates, oversized files, unsupported media) return nil; only failures
// that left the message unsynced return an error.
func (r *Relay) Process(ctx context.Context, ev Event) error {
	if ev.ChatType != "group" && ev.ChatType != "supergroup" {
		return nil
	}
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.Int64("chat_id", ev.ChatID),
		slog.Int64("message_id", ev.MessageID),
		slog.String("component", "relay"))

	if r.Allowed != nil && !r.Allowed(ev.ChatID) {
		logger.Debug("skipping chat not in allow list")
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "relay", "relay.process")
	defer span.End()

	done, err := r.Store.IsProcessed(ctx, ev.ChatID, ev.MessageID)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("relay: dedup check: %w", err)
	}
	if done {
		logger.Debug("already processed")
		telemetry.Inc(telemetry.DuplicatesSkipped)
		return nil
	}

	title := EffectiveTitle(ev.ChatID, ev.Title)
	if err := r.trackTitle(ctx, logger, ev.ChatID, title); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if ev.Attachment == nil {
		logger.Debug("no supported media")
		return nil
	}

	var content *media.Content
	var fetchErr error
	telemetry.TimeFunc(telemetry.DownloadDuration, func() {
		content, fetchErr = r.Fetcher.Fetch(ctx, ev.Attachment)
	})
	if fetchErr != nil {
		var sizeErr *media.SizeLimitError
		if errors.As(fetchErr, &sizeErr) {
			logger.Warn("skipping oversized file",
				slog.String("kind", sizeErr.Kind.String()),
				slog.Int64("size", sizeErr.Size),
				slog.Int64("limit", sizeErr.Limit))
			telemetry.Inc(telemetry.OversizeSkipped)
			return nil
		}
		telemetry.Inc(telemetry.DownloadsFailed)
		telemetry.RecordError(span, fetchErr)
		return fmt.Errorf("relay: download: %w", fetchErr)
	}

	albumID, err := r.resolveAlbum(ctx, logger, title)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	var uploadErr error
	telemetry.TimeFunc(telemetry.UploadDuration, func() {
		uploadErr = r.Photos.UploadMedia(ctx, content.Data, content.FileName, content.MIMEType, albumID)
	})
	if uploadErr != nil {
		telemetry.Inc(telemetry.UploadsFailed)
		telemetry.RecordError(span, uploadErr)
		return fmt.Errorf("relay: upload: %w", uploadErr)
	}

	if err := r.Store.MarkProcessed(ctx, ev.ChatID, ev.MessageID); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("relay: mark processed: %w", err)
	}
	telemetry.Inc(telemetry.MediaSynced)
	telemetry.SetSpanSuccess(span)
	logger.Info("media synced",
		slog.String("album", title),
		slog.String("filename", content.FileName))
	return nil
}

// trackTitle records the chat's current title and invalidates the album cache
// entry for the previous title after a rename, so the next upload lands in a
// fresh album named after the new title.
func (r *Relay) trackTitle(ctx context.Context, logger *slog.Logger, chatID int64, title string) error {
	stored, err := r.Store.GetChatTitle(ctx, chatID)
	if err != nil {
		return fmt.Errorf("relay: get chat title: %w", err)
	}
	if stored != "" && stored != title {
		logger.Info("group renamed",
			slog.String("old_title", stored),
			slog.String("new_title", title))
		if err := r.Store.DeleteAlbumCache(ctx, stored); err != nil {
			return fmt.Errorf("relay: invalidate album cache: %w", err)
		}
	}
	if err := r.Store.SetChatTitle(ctx, chatID, title); err != nil {
		return fmt.Errorf("relay: set chat title: %w", err)
	}
	return nil
}

// resolveAlbum returns the album id for a title, consulting the cache before
// the Photos API.
func (r *Relay) resolveAlbum(ctx context.Context, logger *slog.Logger, title string) (string, error) {
	albumID, err := r.Store.GetAlbumID(ctx, title)
	if err != nil {
		return "", fmt.Errorf("relay: album cache lookup: %w", err)
	}
	if albumID != "" {
		return albumID, nil
	}
	start := time.Now()
	albumID, err = r.Photos.GetOrCreateAlbum(ctx, title)
	if err != nil {
		return "", fmt.Errorf("relay: resolve album: %w", err)
	}
	telemetry.Inc(telemetry.AlbumsCreated)
	logger.Debug("album resolved remotely",
		slog.String("album", title),
		slog.Duration("took", time.Since(start)))
	if err := r.Store.SetAlbumID(ctx, title, albumID); err != nil {
		return "", fmt.Errorf("relay: cache album id: %w", err)
	}
	return albumID, nil
}

// AlbumLink returns the shareable URL of the chat's album. An empty title
// falls back to the last stored title for the chat. Only the local cache is
// consulted for the album id; a chat with no synced media yet yields
// ErrNoAlbum without touching the Photos API.
func (r *Relay) AlbumLink(ctx context.Context, chatID int64, title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		stored, err := r.Store.GetChatTitle(ctx, chatID)
		if err != nil {
			return "", fmt.Errorf("relay: get chat title: %w", err)
		}
		title = stored
	}
	effective := EffectiveTitle(chatID, title)
	albumID, err := r.Store.GetAlbumID(ctx, effective)
	if err != nil {
		return "", fmt.Errorf("relay: album cache lookup: %w", err)
	}
	if albumID == "" {
		return "", ErrNoAlbum
	}
	url, err := r.Photos.GetAlbumProductURL(ctx, albumID)
	if err != nil {
		return "", fmt.Errorf("relay: album link: %w", err)
	}
	return url, nil
}

// EffectiveTitle names the album for a chat: the chat title, or Chat_<id>
// when the title is empty or blank.
func EffectiveTitle(chatID int64, title string) string {
	if strings.TrimSpace(title) == "" {
		return fmt.Sprintf("Chat_%d", chatID)
	}
	return title
}
