package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avelichka/photobridge/telegram"
)

// newTestFetcher points a Fetcher at a mock Bot API server with sleeps
// recorded instead of taken.
func newTestFetcher(srv *httptest.Server) (*Fetcher, *[]time.Duration) {
	client := telegram.New("TESTTOKEN", srv.URL)
	client.HTTPClient = srv.Client()
	var sleeps []time.Duration
	f := NewFetcher(client)
	f.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return f, &sleeps
}

func TestFetchPhoto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			fmt.Fprint(w, `{"ok":true,"result":{"file_id":"p1","file_path":"photos/file_9.jpg","file_size":4096}}`)
		case strings.HasPrefix(r.URL.Path, "/file/"):
			fmt.Fprint(w, "jpeg-bytes")
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	f, _ := newTestFetcher(srv)
	content, err := f.Fetch(context.Background(), &Attachment{Kind: KindPhoto, FileID: "p1", MIMEType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(content.Data) != "jpeg-bytes" {
		t.Errorf("data = %q", content.Data)
	}
	if content.FileName != "file_9.jpg" {
		t.Errorf("filename = %q, want file_9.jpg (from file_path)", content.FileName)
	}
	if content.MIMEType != "image/jpeg" {
		t.Errorf("mime = %q", content.MIMEType)
	}
}

func TestFetchVideoKeepsDeclaredName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getFile") {
			fmt.Fprint(w, `{"ok":true,"result":{"file_id":"v1","file_path":"videos/file_3.mp4"}}`)
			return
		}
		fmt.Fprint(w, "mp4-bytes")
	}))
	defer srv.Close()

	f, _ := newTestFetcher(srv)
	content, err := f.Fetch(context.Background(), &Attachment{
		Kind: KindVideo, FileID: "v1", FileName: "clip.mov", MIMEType: "video/quicktime",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if content.FileName != "clip.mov" {
		t.Errorf("filename = %q, want declared clip.mov", content.FileName)
	}
}

func TestFetchRejectsDeclaredOversizeWithoutTransfer(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(srv)
	_, err := f.Fetch(context.Background(), &Attachment{
		Kind: KindPhoto, FileID: "p1", DeclaredSize: PhotoMaxBytes + 1,
	})
	var sizeErr *SizeLimitError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("err = %v, want *SizeLimitError", err)
	}
	if sizeErr.Kind != KindPhoto || sizeErr.Limit != PhotoMaxBytes {
		t.Errorf("SizeLimitError = %+v", sizeErr)
	}
	if atomic.LoadInt32(&requests) != 0 {
		t.Errorf("made %d requests, want 0 (reject before transfer)", requests)
	}
}

func TestFetchRejectsGetFileOversize(t *testing.T) {
	var downloads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getFile") {
			fmt.Fprintf(w, `{"ok":true,"result":{"file_id":"p1","file_path":"photos/big.jpg","file_size":%d}}`, PhotoMaxBytes+1)
			return
		}
		atomic.AddInt32(&downloads, 1)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(srv)
	_, err := f.Fetch(context.Background(), &Attachment{Kind: KindPhoto, FileID: "p1"})
	var sizeErr *SizeLimitError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("err = %v, want *SizeLimitError", err)
	}
	if atomic.LoadInt32(&downloads) != 0 {
		t.Errorf("content downloaded despite oversize getFile metadata")
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var getFileCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getFile") {
			if atomic.AddInt32(&getFileCalls, 1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":{"file_id":"p1","file_path":"photos/file_9.jpg"}}`)
			return
		}
		fmt.Fprint(w, "jpeg-bytes")
	}))
	defer srv.Close()

	f, sleeps := newTestFetcher(srv)
	content, err := f.Fetch(context.Background(), &Attachment{Kind: KindPhoto, FileID: "p1"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(content.Data) != "jpeg-bytes" {
		t.Errorf("data = %q", content.Data)
	}
	// Base delay doubles per retry.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, (*sleeps)[i], want[i])
		}
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(srv)
	_, err := f.Fetch(context.Background(), &Attachment{Kind: KindPhoto, FileID: "p1"})
	if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("err = %v, want exhaustion after 3 attempts", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("getFile calls = %d, want 3", got)
	}
}
