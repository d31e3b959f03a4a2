package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avelichka/photobridge/telegram"
)

const (
	fetchMaxAttempts = 3
	fetchBaseDelay   = 2 * time.Second
)

// Content is a downloaded attachment ready for upload.
type Content struct {
	Data     []byte
	FileName string
	MIMEType string
}

// Fetcher downloads attachment content from Telegram. The size ceiling is
// checked against declared metadata before any bytes move and re-checked
// against getFile metadata, so oversized files are never transferred.
type Fetcher struct {
	Client *telegram.Client

	sleep func(time.Duration) // test hook
}

// NewFetcher returns a Fetcher over the given client.
func NewFetcher(client *telegram.Client) *Fetcher {
	return &Fetcher{Client: client, sleep: time.Sleep}
}

// Fetch downloads the attachment and returns its content with the filename
// and MIME type to upload under. A *SizeLimitError means the file was
// rejected without transfer.
func (f *Fetcher) Fetch(ctx context.Context, att *Attachment) (*Content, error) {
	limit := att.Kind.limit()
	if att.DeclaredSize > limit {
		return nil, &SizeLimitError{Kind: att.Kind, Size: att.DeclaredSize, Limit: limit}
	}

	file, data, err := f.downloadWithRetry(ctx, att.FileID, limit, att.Kind)
	if err != nil {
		return nil, err
	}

	name := att.FileName
	if name == "" {
		name = safeFileName(file.FilePath, att.Kind.fallbackName())
	}
	slog.Debug("media downloaded",
		slog.String("kind", att.Kind.String()),
		slog.String("file_id", att.FileID),
		slog.Int("size", len(data)),
		slog.String("component", "media"))
	return &Content{Data: data, FileName: name, MIMEType: att.MIMEType}, nil
}

// downloadWithRetry resolves the file path and downloads content, retrying
// transient failures with exponential backoff.
func (f *Fetcher) downloadWithRetry(ctx context.Context, fileID string, limit int64, kind Kind) (*telegram.File, []byte, error) {
	sleep := f.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	var lastErr error
	for attempt := 0; attempt < fetchMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := fetchBaseDelay << (attempt - 1)
			slog.Warn("telegram download retry",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", fetchMaxAttempts),
				slog.Duration("delay", delay),
				slog.String("file_id", fileID))
			sleep(delay)
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		file, err := f.Client.GetFile(ctx, fileID)
		if err != nil {
			lastErr = err
			continue
		}
		// getFile may report a size the message metadata lacked.
		if file.FileSize > limit {
			return nil, nil, &SizeLimitError{Kind: kind, Size: file.FileSize, Limit: limit}
		}
		data, err := f.Client.DownloadFile(ctx, file.FilePath)
		if err != nil {
			lastErr = err
			continue
		}
		return file, data, nil
	}
	return nil, nil, fmt.Errorf("media: download failed after %d attempts: %w", fetchMaxAttempts, lastErr)
}

func (k Kind) fallbackName() string {
	switch k {
	case KindPhoto:
		return "photo.jpg"
	case KindVideoNote:
		return "video_note.mp4"
	default:
		return "video.mp4"
	}
}

// safeFileName reduces a server path to its final segment, falling back when
// nothing usable remains.
func safeFileName(candidate, fallback string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return fallback
	}
	candidate = strings.ReplaceAll(candidate, `\`, "/")
	if i := strings.LastIndex(candidate, "/"); i >= 0 {
		candidate = candidate[i+1:]
	}
	if candidate == "" {
		return fallback
	}
	return candidate
}
