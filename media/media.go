// Package media extracts the supported attachment from a Telegram message and
// downloads its content with size limits and retry.
package media

import (
	"fmt"

	"github.com/avelichka/photobridge/telegram"
)

// Kind is the closed set of attachment types the bridge syncs.
type Kind int

const (
	KindPhoto Kind = iota
	KindVideo
	KindVideoNote
)

func (k Kind) String() string {
	switch k {
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	case KindVideoNote:
		return "video_note"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Upload size ceilings enforced by Google Photos.
const (
	PhotoMaxBytes int64 = 200 << 20 // 200 MiB
	VideoMaxBytes int64 = 10 << 30  // 10 GiB
)

// limit returns the upload ceiling for the kind.
func (k Kind) limit() int64 {
	if k == KindPhoto {
		return PhotoMaxBytes
	}
	return VideoMaxBytes
}

// Attachment describes one downloadable media item in a message.
type Attachment struct {
	Kind         Kind
	FileID       string
	DeclaredSize int64 // from Telegram metadata, may be zero
	FileName     string
	MIMEType     string
}

// FromMessage returns the attachment for a message, or nil when the message
// carries no supported media. Photos pick the largest resolution variant.
func FromMessage(msg *telegram.Message) *Attachment {
	if msg == nil {
		return nil
	}
	if len(msg.Photo) > 0 {
		largest := msg.Photo[len(msg.Photo)-1]
		return &Attachment{
			Kind:         KindPhoto,
			FileID:       largest.FileID,
			DeclaredSize: largest.FileSize,
			MIMEType:     "image/jpeg",
		}
	}
	if msg.Video != nil {
		mime := msg.Video.MimeType
		if mime == "" {
			mime = "video/mp4"
		}
		return &Attachment{
			Kind:         KindVideo,
			FileID:       msg.Video.FileID,
			DeclaredSize: msg.Video.FileSize,
			FileName:     msg.Video.FileName,
			MIMEType:     mime,
		}
	}
	if msg.VideoNote != nil {
		return &Attachment{
			Kind:         KindVideoNote,
			FileID:       msg.VideoNote.FileID,
			DeclaredSize: msg.VideoNote.FileSize,
			MIMEType:     "video/mp4",
		}
	}
	return nil
}

// SizeLimitError reports a file rejected before transfer for exceeding the
// upload ceiling for its kind.
type SizeLimitError struct {
	Kind  Kind
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("media: %s size %d exceeds limit %d", e.Kind, e.Size, e.Limit)
}
