// Package photos wraps the Google Photos Library API for album resolution and
// media upload. Credentials use the OAuth2 refresh-token grant; the access
// token is re-derived lazily before every attempt, so a retry after token
// expiry succeeds without special handling. All calls go through one uniform
// retry wrapper that honors the API's rate-limit backoff contract.
package photos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultBaseURL   = "https://photoslibrary.googleapis.com/v1"
	defaultUploadURL = "https://photoslibrary.googleapis.com/v1/uploads"

	// API-imposed field limits; longer values are truncated before the call.
	maxAlbumTitleLen = 500
	maxFileNameLen   = 255

	albumPageSize = 50
)

// Scopes requested for the refresh token: append new media, read back only
// app-created albums.
var Scopes = []string{
	"https://www.googleapis.com/auth/photoslibrary.appendonly",
	"https://www.googleapis.com/auth/photoslibrary.readonly.appcreateddata",
}

// APIError is returned when a Photos API request fails terminally: a
// non-retryable status, exhausted retries, or a malformed success payload.
type APIError struct {
	// StatusCode is the last HTTP status observed, 0 if the failure was not
	// tied to a status (e.g. malformed 2xx payload).
	StatusCode int
	// Body is the raw response body, kept for operator diagnostics.
	Body    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return "photos: " + e.Message
	}
	return fmt.Sprintf("photos: API returned %d", e.StatusCode)
}

// Client talks to the Photos Library API. BaseURL, UploadURL, HTTPClient,
// Tokens and Retry are exported for tests; zero values get production
// defaults from New.
type Client struct {
	BaseURL    string
	UploadURL  string
	HTTPClient *http.Client
	Tokens     oauth2.TokenSource
	Retry      RetryPolicy

	sleep func(time.Duration)
}

// New builds a client from the long-lived refresh credential. timeout applies
// per HTTP call, not per logical operation.
func New(clientID, clientSecret, refreshToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	oc := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	}
	return &Client{
		BaseURL:    defaultBaseURL,
		UploadURL:  defaultUploadURL,
		HTTPClient: &http.Client{Timeout: timeout},
		// TokenSource caches the access token and exchanges the refresh token
		// only when the cached one is missing or expired.
		Tokens: oc.TokenSource(context.Background(), &oauth2.Token{RefreshToken: refreshToken}),
		Retry:  RetryPolicy{MaxAttempts: DefaultMaxAttempts, MinDelay: DefaultMinDelay, MaxDelay: DefaultMaxDelay},
		sleep:  time.Sleep,
	}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) sleepFn() func(time.Duration) {
	if c.sleep != nil {
		return c.sleep
	}
	return time.Sleep
}

// doRequest executes one API request under the retry policy. Transport errors
// and retryable statuses are re-attempted with exponential backoff; every
// attempt re-acquires the access token and re-applies caller headers, with
// Authorization always the freshly derived value. A token acquisition failure
// aborts immediately; the next attempt would derive a fresh one anyway.
func (c *Client) doRequest(ctx context.Context, method, rawurl string, query url.Values, body []byte, headers map[string]string) ([]byte, error) {
	p := c.Retry.normalized()
	delay := p.MinDelay
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			slog.Warn("photos request retry",
				slog.String("method", method), slog.String("url", rawurl),
				slog.Int("attempt", attempt+1), slog.Int("max_attempts", p.MaxAttempts),
				slog.Duration("delay", delay))
			c.sleepFn()(delay)
			delay *= 2
			if delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		tok, err := c.Tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("photos: access token: %w", err)
		}

		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawurl, reader)
		if err != nil {
			return nil, fmt.Errorf("photos: build request: %w", err)
		}
		if query != nil {
			req.URL.RawQuery = query.Encode()
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

		resp, err := c.http().Do(req)
		if err != nil {
			lastErr = err
			slog.Warn("photos request transport error",
				slog.String("method", method), slog.String("url", rawurl),
				slog.Int("attempt", attempt+1), slog.Any("err", err))
			continue
		}
		respBody, readErr := readAll(resp)
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if retryableStatus(resp.StatusCode) {
			lastErr = &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
			slog.Warn("photos request retryable status",
				slog.String("method", method), slog.String("url", rawurl),
				slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt+1))
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		return respBody, nil
	}

	return nil, fmt.Errorf("photos: request failed after %d attempts: %w", p.MaxAttempts, lastErr)
}

func (c *Client) doJSON(ctx context.Context, method, rawurl string, query url.Values, payload any) ([]byte, error) {
	var body []byte
	headers := map[string]string{}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("photos: encode request: %w", err)
		}
		body = b
		headers["Content-Type"] = "application/json"
	}
	return c.doRequest(ctx, method, rawurl, query, body, headers)
}

// GetOrCreateAlbum returns the album id for the given title, creating the
// album when no app-created album with an exactly matching title exists.
func (c *Client) GetOrCreateAlbum(ctx context.Context, title string) (string, error) {
	id, err := c.findAlbumByTitle(ctx, title)
	if err != nil {
		return "", err
	}
	if id != "" {
		slog.Debug("found existing album", slog.String("title", title), slog.String("album_id", id))
		return id, nil
	}
	id, err = c.createAlbum(ctx, title)
	if err != nil {
		return "", err
	}
	slog.Info("created new album", slog.String("title", title), slog.String("album_id", id))
	return id, nil
}

func (c *Client) findAlbumByTitle(ctx context.Context, title string) (string, error) {
	pageToken := ""
	for {
		query := url.Values{}
		query.Set("pageSize", fmt.Sprintf("%d", albumPageSize))
		query.Set("excludeNonAppCreatedData", "true")
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		body, err := c.doJSON(ctx, http.MethodGet, c.BaseURL+"/albums", query, nil)
		if err != nil {
			return "", err
		}
		var page struct {
			Albums []struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"albums"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return "", &APIError{Message: "album list response malformed", Body: string(body)}
		}
		for _, album := range page.Albums {
			if album.Title == title {
				return album.ID, nil
			}
		}
		pageToken = page.NextPageToken
		if pageToken == "" {
			return "", nil
		}
	}
}

func (c *Client) createAlbum(ctx context.Context, title string) (string, error) {
	payload := map[string]any{
		"album": map[string]string{"title": truncateRunes(title, maxAlbumTitleLen)},
	}
	body, err := c.doJSON(ctx, http.MethodPost, c.BaseURL+"/albums", nil, payload)
	if err != nil {
		return "", err
	}
	var album struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &album); err != nil || album.ID == "" {
		return "", &APIError{Message: "create album response missing id", Body: string(body)}
	}
	return album.ID, nil
}

// GetAlbumProductURL returns the web URL of an album. A 2xx response without a
// productUrl is a malformed response and fails the call without retry.
func (c *Client) GetAlbumProductURL(ctx context.Context, albumID string) (string, error) {
	body, err := c.doJSON(ctx, http.MethodGet, c.BaseURL+"/albums/"+url.PathEscape(albumID), nil, nil)
	if err != nil {
		return "", err
	}
	var album struct {
		ProductURL string `json:"productUrl"`
	}
	if err := json.Unmarshal(body, &album); err != nil || album.ProductURL == "" {
		return "", &APIError{Message: "album response missing productUrl", Body: string(body)}
	}
	return album.ProductURL, nil
}

// UploadMedia uploads raw bytes and attaches them to the album: first the
// byte upload producing an opaque upload token, then the batchCreate that
// turns the token into a visible media item.
func (c *Client) UploadMedia(ctx context.Context, data []byte, filename, mimeType, albumID string) error {
	token, err := c.uploadBytes(ctx, data, mimeType)
	if err != nil {
		return err
	}
	return c.createMediaItem(ctx, token, filename, albumID)
}

func (c *Client) uploadBytes(ctx context.Context, data []byte, mimeType string) (string, error) {
	headers := map[string]string{
		"Content-type":               "application/octet-stream",
		"X-Goog-Upload-Content-Type": mimeType,
		"X-Goog-Upload-Protocol":     "raw",
	}
	body, err := c.doRequest(ctx, http.MethodPost, c.UploadURL, nil, data, headers)
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", &APIError{Message: "upload response missing upload token"}
	}
	return token, nil
}

func (c *Client) createMediaItem(ctx context.Context, uploadToken, filename, albumID string) error {
	payload := map[string]any{
		"albumId": albumID,
		"newMediaItems": []map[string]any{
			{
				"description": "",
				"simpleMediaItem": map[string]string{
					"uploadToken": uploadToken,
					"fileName":    truncateRunes(filename, maxFileNameLen),
				},
			},
		},
	}
	body, err := c.doJSON(ctx, http.MethodPost, c.BaseURL+"/mediaItems:batchCreate", nil, payload)
	if err != nil {
		return err
	}
	var result struct {
		NewMediaItemResults []struct {
			Status struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"status"`
		} `json:"newMediaItemResults"`
	}
	if err := json.Unmarshal(body, &result); err != nil || len(result.NewMediaItemResults) == 0 {
		return &APIError{Message: "batchCreate returned no results", Body: string(body)}
	}
	// A non-zero per-item code is a failure even though the HTTP call was 2xx.
	if code := result.NewMediaItemResults[0].Status.Code; code != 0 {
		msg := result.NewMediaItemResults[0].Status.Message
		if msg == "" {
			msg = "unknown error"
		}
		return &APIError{Message: "batchCreate failed: " + msg, Body: string(body)}
	}
	return nil
}

func readAll(resp *http.Response) ([]byte, error) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("photos: read response: %w", err)
	}
	return buf.Bytes(), nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
