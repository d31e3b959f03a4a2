// Package telegram contains minimal helpers to interact with the Telegram Bot
// API over HTTP: long polling for updates, file downloads and replies. It
// speaks to api.telegram.org by default but accepts any Bot API compatible
// base URL, such as a local bot api server for large files.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the hosted Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// allowedUpdates limits getUpdates to the update kinds the bridge handles.
var allowedUpdates = []string{"message", "my_chat_member"}

// Client is a minimal Telegram Bot API client. Method calls and file
// downloads use separate HTTP clients: method calls want a deadline slightly
// past the long poll hold time, while a multi-gigabyte video download must not
// be bounded by a fixed overall timeout.
type Client struct {
	Token          string
	BaseURL        string
	HTTPClient     *http.Client
	FileHTTPClient *http.Client
}

// New returns a client for the given bot token. baseURL may be empty to use
// the hosted Bot API.
func New(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{Token: token, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) fileHTTP() *http.Client {
	if c.FileHTTPClient != nil {
		return c.FileHTTPClient
	}
	return c.http()
}

// apiEnvelope is the uniform Bot API response wrapper.
type apiEnvelope struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// call performs a Bot API method call and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	rawurl := c.BaseURL + "/bot" + c.Token + "/" + method
	var body io.Reader
	if params != nil {
		body = strings.NewReader(params.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawurl, body)
	if err != nil {
		return fmt.Errorf("telegram: build %s request: %w", method, err)
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if !env.Ok {
		return fmt.Errorf("telegram: %s failed: %s (code %d)", method, env.Description, env.ErrorCode)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetUpdates long polls for updates after offset. timeout is the server-side
// hold time in seconds; the HTTP client must allow at least that long.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	kinds, err := json.Marshal(allowedUpdates)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal allowed_updates: %w", err)
	}
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(timeout))
	params.Set("allowed_updates", string(kinds))
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// GetFile resolves a file_id to its server-side download path.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	params := url.Values{}
	params.Set("file_id", fileID)
	var f File
	if err := c.call(ctx, "getFile", params, &f); err != nil {
		return nil, err
	}
	if f.FilePath == "" {
		return nil, fmt.Errorf("telegram: getFile returned no file_path for %s", fileID)
	}
	return &f, nil
}

// DownloadFile fetches the content behind a getFile path.
func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	rawurl := c.BaseURL + "/file/bot" + c.Token + "/" + filePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: build download request: %w", err)
	}
	resp, err := c.fileHTTP().Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: download %s: %w", filePath, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: download %s: status %d", filePath, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("telegram: read download: %w", err)
	}
	return data, nil
}

// SendMessage posts a plain text message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	return c.call(ctx, "sendMessage", params, nil)
}
