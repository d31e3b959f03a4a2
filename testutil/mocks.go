// Package testutil provides mock servers and database helpers shared by
// integration tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// MockTelegramServer creates a test server that mocks Bot API responses
type MockTelegramServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTelegramServer creates a new mock Bot API server. Handlers are keyed
// by request path, e.g. "/botTOKEN/getFile".
func NewMockTelegramServer(t *testing.T) *MockTelegramServer {
	t.Helper()
	m := &MockTelegramServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockGetFile adds a getFile handler resolving any file_id to filePath.
func (m *MockTelegramServer) MockGetFile(token, fileID, filePath string, fileSize int64) {
	m.Handlers["/bot"+token+"/getFile"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"ok": true,
			"result": map[string]any{
				"file_id":   fileID,
				"file_path": filePath,
				"file_size": fileSize,
			},
		})
	}
}

// MockFileContent serves raw bytes for a download path.
func (m *MockTelegramServer) MockFileContent(token, filePath string, content []byte) {
	m.Handlers["/file/bot"+token+"/"+filePath] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	}
}

// MockSendMessage adds a sendMessage handler recording sent texts into sink.
func (m *MockTelegramServer) MockSendMessage(token string, sink *[]string) {
	m.Handlers["/bot"+token+"/sendMessage"] = func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		*sink = append(*sink, r.PostForm.Get("text"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": 1}}) //nolint:errcheck // test mock response
	}
}

// MockPhotosServer mocks the Photos Library API and its upload endpoint,
// keeping enough state for end-to-end assertions.
type MockPhotosServer struct {
	*httptest.Server
	Albums  map[string]string // title -> id
	URLs    map[string]string // id -> product url
	Uploads []UploadedItem
}

// UploadedItem records one completed upload-and-create round trip.
type UploadedItem struct {
	AlbumID  string
	FileName string
	Size     int
}

// NewMockPhotosServer creates a new mock Photos API server.
func NewMockPhotosServer(t *testing.T) *MockPhotosServer {
	t.Helper()
	m := &MockPhotosServer{
		Albums: make(map[string]string),
		URLs:   make(map[string]string),
	}
	var pendingSize int
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/uploads":
			body, _ := io.ReadAll(r.Body)
			pendingSize = len(body)
			fmt.Fprint(w, "mock-upload-token")
		case r.URL.Path == "/albums" && r.Method == http.MethodGet:
			albums := make([]map[string]string, 0, len(m.Albums))
			for title, id := range m.Albums {
				albums = append(albums, map[string]string{"id": id, "title": title})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"albums": albums})
		case r.URL.Path == "/albums" && r.Method == http.MethodPost:
			var req struct {
				Album struct {
					Title string `json:"title"`
				} `json:"album"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			id := fmt.Sprintf("album-%d", len(m.Albums)+1)
			m.Albums[req.Album.Title] = id
			m.URLs[id] = "https://photos.example/" + id
			_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
		case r.URL.Path == "/mediaItems:batchCreate":
			var req struct {
				AlbumID       string `json:"albumId"`
				NewMediaItems []struct {
					SimpleMediaItem struct {
						FileName string `json:"fileName"`
					} `json:"simpleMediaItem"`
				} `json:"newMediaItems"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			for _, item := range req.NewMediaItems {
				m.Uploads = append(m.Uploads, UploadedItem{
					AlbumID:  req.AlbumID,
					FileName: item.SimpleMediaItem.FileName,
					Size:     pendingSize,
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"newMediaItemResults": []map[string]any{{"status": map[string]any{}}},
			})
		case strings.HasPrefix(r.URL.Path, "/albums/") && r.Method == http.MethodGet:
			id := strings.TrimPrefix(r.URL.Path, "/albums/")
			url, ok := m.URLs[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "productUrl": url})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(m.Close)
	return m
}
