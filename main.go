// Command photobridge syncs media posted in Telegram group chats to Google
// Photos albums named after the chats. It:
//   - Loads configuration and initializes structured logging.
//   - Opens the idempotency store (SQLite by default, Postgres via DSN) and
//     runs idempotent migrations.
//   - Long polls the Telegram Bot API and relays photos, videos and video
//     notes into per-chat albums.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /metrics and
//     /api/album-link.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/avelichka/photobridge/config"
	"github.com/avelichka/photobridge/media"
	"github.com/avelichka/photobridge/photos"
	"github.com/avelichka/photobridge/relay"
	"github.com/avelichka/photobridge/server"
	"github.com/avelichka/photobridge/store"
	"github.com/avelichka/photobridge/telegram"
	"github.com/avelichka/photobridge/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("photobridge", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Store
	st, err := store.Open(context.Background(), cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open store", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("failed to close store", slog.Any("err", err))
		}
	}()

	photosClient := photos.New(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRefreshToken, cfg.HTTPTimeout)
	tgClient := telegram.New(cfg.TelegramBotToken, cfg.TelegramAPIURL)
	// Long poll holds the connection open; give the client headroom past the
	// server-side timeout.
	tgClient.HTTPClient = &http.Client{Timeout: time.Duration(telegram.DefaultPollTimeout+10) * time.Second}
	// Downloads can run into the gigabytes on a local bot api server; bound
	// them by context, not a fixed client timeout.
	tgClient.FileHTTPClient = &http.Client{}

	rl := &relay.Relay{
		Store:   st,
		Photos:  photosClient,
		Fetcher: media.NewFetcher(tgClient),
	}
	if len(cfg.AllowedGroupIDs) > 0 {
		rl.Allowed = cfg.GroupAllowed
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poller := &telegram.Poller{
		Client: tgClient,
		Handle: func(hctx context.Context, u telegram.Update) {
			handleUpdate(hctx, rl, tgClient, u)
		},
	}
	go poller.Run(ctx)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/readiness/metrics/album link)
	go func() {
		if err := server.Start(ctx, st, rl, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("photobridge started", slog.String("http_addr", cfg.HTTPAddr))

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

// handleUpdate routes one update: /link replies with the album URL, media
// messages go through the relay, membership changes are logged.
func handleUpdate(ctx context.Context, rl *relay.Relay, tg *telegram.Client, u telegram.Update) {
	telemetry.Inc(telemetry.UpdatesReceived)
	logger := telemetry.LoggerWithCorr(ctx)

	if change := u.MyChatMember; change != nil {
		status := change.NewChatMember.Status
		if status == "left" || status == "kicked" {
			logger.Info("bot removed from group",
				slog.Int64("chat_id", change.Chat.ID),
				slog.String("title", change.Chat.Title),
				slog.String("status", status))
		}
		return
	}

	msg := u.Message
	if msg == nil {
		return
	}

	if isLinkCommand(msg.Text) {
		replyAlbumLink(ctx, rl, tg, msg)
		return
	}

	ev := relay.Event{
		ChatID:     msg.Chat.ID,
		MessageID:  msg.MessageID,
		ChatType:   msg.Chat.Type,
		Title:      msg.Chat.Title,
		Attachment: media.FromMessage(msg),
	}
	if err := rl.Process(ctx, ev); err != nil {
		logger.Error("sync failed",
			slog.Int64("chat_id", ev.ChatID),
			slog.Int64("message_id", ev.MessageID),
			slog.Any("err", err))
	}
}

// isLinkCommand matches "/link" and "/link@BotName".
func isLinkCommand(text string) bool {
	text = strings.TrimSpace(text)
	return text == "/link" || strings.HasPrefix(text, "/link@")
}

func replyAlbumLink(ctx context.Context, rl *relay.Relay, tg *telegram.Client, msg *telegram.Message) {
	logger := telemetry.LoggerWithCorr(ctx)
	if msg.Chat.Type != "group" && msg.Chat.Type != "supergroup" {
		return
	}
	url, err := rl.AlbumLink(ctx, msg.Chat.ID, msg.Chat.Title)
	reply := url
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrNoAlbum):
		reply = "No album yet. Post a photo or video first."
	default:
		logger.Error("album link failed", slog.Int64("chat_id", msg.Chat.ID), slog.Any("err", err))
		reply = "Could not retrieve the album link, try again later."
	}
	if err := tg.SendMessage(ctx, msg.Chat.ID, reply); err != nil {
		logger.Error("send reply failed", slog.Int64("chat_id", msg.Chat.ID), slog.Any("err", err))
	}
}
