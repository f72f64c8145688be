// Command hearth-client is the headless chat synchronization daemon. It:
//   - Loads configuration and initializes structured logging.
//   - Opens the local credential store and restores any persisted session.
//   - Keeps room/message state in sync over the request channel and the
//     realtime push channel, reconnecting as needed.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, and
//     /metrics for the UI layer and container supervisors.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hearthchat/hearth-client/api"
	"github.com/hearthchat/hearth-client/config"
	"github.com/hearthchat/hearth-client/crypto"
	"github.com/hearthchat/hearth-client/notify"
	"github.com/hearthchat/hearth-client/realtime"
	"github.com/hearthchat/hearth-client/server"
	"github.com/hearthchat/hearth-client/session"
	"github.com/hearthchat/hearth-client/state"
	"github.com/hearthchat/hearth-client/storage"
	"github.com/hearthchat/hearth-client/telemetry"
	"github.com/hearthchat/hearth-client/transport"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

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
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateServerReady(); err != nil {
		slog.Error("invalid config", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("hearth-client", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Credential store, optionally encrypting the token at rest.
	var enc crypto.Encryptor
	if cfg.TokenKey != "" {
		enc, err = crypto.NewAESEncryptor(cfg.TokenKey)
		if err != nil {
			slog.Error("invalid CHAT_TOKEN_KEY", slog.Any("err", err))
			os.Exit(1)
		}
	}
	store, err := storage.NewFileStore(cfg.DataDir, enc)
	if err != nil {
		slog.Error("failed to open credential store", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wire the services: transport -> api -> classifier -> state -> realtime -> session.
	tc := &transport.Client{
		BaseURL:   cfg.BaseURL,
		APIPrefix: cfg.APIPrefix,
		Creds:     store,
		Relaxed:   cfg.RelaxedTimeouts,
	}
	apiClient := &api.Client{Transport: tc}

	notices := notify.NewRing(32)
	classifier := &notify.Classifier{
		Registry: notify.NewRegistry(),
		Sink: notify.FanOut(notices, notify.SinkFunc(func(n notify.Notification) {
			slog.Warn("notification",
				slog.String("severity", string(n.Severity)),
				slog.String("title", n.Title),
				slog.String("message", n.Message),
				slog.String("context", n.Context))
		})),
	}

	channel := &realtime.Manager{
		URL:            cfg.WSURL,
		Creds:          store,
		Classifier:     classifier,
		TypingDebounce: cfg.TypingDebounce,
	}
	syncer := state.NewSynchronizer(apiClient, channel, classifier)
	channel.Rooms = syncer
	channel.Sink = syncer

	sess := session.NewManager(ctx, apiClient, store, channel, classifier)
	sess.OnIdentity = syncer.SetIdentity

	// Headless recovery hooks: a UI would navigate; the daemon re-syncs.
	classifier.ReloadView = syncer.LoadRooms
	classifier.RedirectLogin = func(context.Context) error {
		slog.Warn("sign-in required; waiting for credentials")
		return nil
	}
	classifier.Registry.Register("loadRooms", syncer.LoadRooms)

	// Restore any persisted session and pull the initial room set.
	restoreCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := sess.Restore(restoreCtx); err != nil {
		slog.Warn("session restore failed; will retry on demand", slog.Any("err", err))
	}
	cancel()
	if sess.Status() == session.Authenticated {
		loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := syncer.LoadRooms(loadCtx); err != nil {
			slog.Warn("initial room load failed", slog.Any("err", err))
		}
		cancel()
	}

	sess.StartRefresher(ctx, 5*time.Minute, 15*time.Minute)

	// HTTP server (health/readiness/status/metrics)
	deps := &server.Deps{Session: sess, Channel: channel, State: syncer, Notices: notices}
	go func() {
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
