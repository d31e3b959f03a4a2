package relay_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/avelichka/photobridge/media"
	"github.com/avelichka/photobridge/photos"
	"github.com/avelichka/photobridge/relay"
	"github.com/avelichka/photobridge/store"
	"github.com/avelichka/photobridge/telegram"
	"github.com/avelichka/photobridge/testutil"
)

const testToken = "TESTTOKEN"

// TestSyncPipeline runs a media event through the real fetcher and Photos
// client against mock servers: download, album creation, upload, dedup.
func TestSyncPipeline(t *testing.T) {
	ctx := context.Background()

	tg := testutil.NewMockTelegramServer(t)
	tg.MockGetFile(testToken, "p1", "photos/file_7.jpg", 9)
	tg.MockFileContent(testToken, "photos/file_7.jpg", []byte("jpeg-data"))

	ph := testutil.NewMockPhotosServer(t)

	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	tgClient := telegram.New(testToken, tg.URL)
	tgClient.HTTPClient = tg.Client()

	photosClient := &photos.Client{
		BaseURL:    ph.URL,
		UploadURL:  ph.URL + "/uploads",
		HTTPClient: ph.Client(),
		Tokens:     oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		Retry:      photos.RetryPolicy{MaxAttempts: 2, MinDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}

	rl := &relay.Relay{Store: s, Photos: photosClient, Fetcher: media.NewFetcher(tgClient)}

	ev := relay.Event{
		ChatID:    -100,
		MessageID: 42,
		ChatType:  "supergroup",
		Title:     "Vacation",
		Attachment: &media.Attachment{
			Kind:     media.KindPhoto,
			FileID:   "p1",
			MIMEType: "image/jpeg",
		},
	}
	if err := rl.Process(ctx, ev); err != nil {
		t.Fatalf("Process: %v", err)
	}

	albumID, ok := ph.Albums["Vacation"]
	if !ok {
		t.Fatalf("album not created, have %v", ph.Albums)
	}
	if len(ph.Uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(ph.Uploads))
	}
	up := ph.Uploads[0]
	if up.AlbumID != albumID || up.FileName != "file_7.jpg" || up.Size != len("jpeg-data") {
		t.Errorf("upload = %+v", up)
	}

	// Same message again: dedup short-circuits before any API call.
	if err := rl.Process(ctx, ev); err != nil {
		t.Fatalf("duplicate Process: %v", err)
	}
	if len(ph.Uploads) != 1 {
		t.Errorf("duplicate message re-uploaded: %d uploads", len(ph.Uploads))
	}

	// The link query resolves through the cached album id.
	url, err := rl.AlbumLink(ctx, -100, "Vacation")
	if err != nil {
		t.Fatalf("AlbumLink: %v", err)
	}
	if url != "https://photos.example/"+albumID {
		t.Errorf("album url = %q", url)
	}
}
