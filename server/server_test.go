package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/avelichka/photobridge/relay"
	"github.com/avelichka/photobridge/store"
)

// fakePhotos serves canned product URLs for the relay's link path.
type fakePhotos struct {
	urls   map[string]string
	urlErr error
}

func (f *fakePhotos) GetOrCreateAlbum(context.Context, string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakePhotos) GetAlbumProductURL(_ context.Context, albumID string) (string, error) {
	if f.urlErr != nil {
		return "", f.urlErr
	}
	return f.urls[albumID], nil
}

func (f *fakePhotos) UploadMedia(context.Context, []byte, string, string, string) error {
	return errors.New("not used")
}

func newTestServer(t *testing.T) (*httptest.Server, store.Store, *fakePhotos) {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	photos := &fakePhotos{urls: map[string]string{}}
	rl := &relay.Relay{Store: s, Photos: photos}
	srv := httptest.NewServer(NewMux(s, rl))
	t.Cleanup(srv.Close)
	return srv, s, photos
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}
}

func TestReadyz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ready" {
		t.Errorf("status = %q, want ready", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAlbumLinkBadChatID(t *testing.T) {
	srv, _, _ := newTestServer(t)
	for _, query := range []string{"", "?chat_id=", "?chat_id=abc"} {
		resp, err := http.Get(srv.URL + "/api/album-link" + query)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status for %q = %d, want 400", query, resp.StatusCode)
		}
	}
}

func TestAlbumLinkMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/album-link?chat_id=-100", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestAlbumLinkNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/album-link?chat_id=-100")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for chat with no album", resp.StatusCode)
	}
}

func TestAlbumLink(t *testing.T) {
	srv, s, photos := newTestServer(t)
	ctx := context.Background()
	if err := s.SetChatTitle(ctx, -100, "Vacation"); err != nil {
		t.Fatalf("SetChatTitle: %v", err)
	}
	if err := s.SetAlbumID(ctx, "Vacation", "album-1"); err != nil {
		t.Fatalf("SetAlbumID: %v", err)
	}
	photos.urls["album-1"] = "https://photos.app/x"

	resp, err := http.Get(srv.URL + "/api/album-link?chat_id=-100")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["url"] != "https://photos.app/x" {
		t.Errorf("url = %q", body["url"])
	}
}

func TestAlbumLinkUpstreamFailure(t *testing.T) {
	srv, s, photos := newTestServer(t)
	ctx := context.Background()
	if err := s.SetChatTitle(ctx, -100, "Vacation"); err != nil {
		t.Fatalf("SetChatTitle: %v", err)
	}
	if err := s.SetAlbumID(ctx, "Vacation", "album-1"); err != nil {
		t.Fatalf("SetAlbumID: %v", err)
	}
	photos.urlErr = errors.New("photos api down")

	resp, err := http.Get(srv.URL + "/api/album-link?chat_id=-100")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestCorrelationIDHeader(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Error("response missing generated X-Correlation-ID")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("X-Correlation-ID", "caller-supplied")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Correlation-ID"); got != "caller-supplied" {
		t.Errorf("X-Correlation-ID = %q, want caller-supplied echoed", got)
	}
}
