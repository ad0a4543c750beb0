package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shared-notes-server/internal/config"
	"shared-notes-server/internal/handler"
	"shared-notes-server/internal/metrics"
	"shared-notes-server/internal/middleware"
	"shared-notes-server/internal/pubsub"
	"shared-notes-server/internal/service"
	"shared-notes-server/internal/share"
	"shared-notes-server/internal/websocket"
	"shared-notes-server/pkg/logger/slogx"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("run server: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := slogx.InitGlobal(os.Stdout, cfg.Logging.Level, cfg.Logging.Pretty); err != nil {
		return err
	}

	repo, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer repo.Close()
	slogx.Info(ctx, "shared note store ready", slog.String("driver", cfg.Store.Driver))

	m := metrics.NewMetrics("server")

	wsManager := websocket.NewManager(websocket.Options{
		MaxConnPerNote: cfg.WebSocket.MaxConnPerNote,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	})
	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(wsManager))
	wsManager.SetObserver(m)

	eg, ctx := errgroup.WithContext(ctx)

	// With Redis every write goes through the channel, including to this
	// replica's own subscribers.
	var notifier service.Notifier = pubsub.NewHubNotifier(wsManager)
	if cfg.Redis.URL != "" {
		redisClient, err := pubsub.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		relay := pubsub.NewRedisRelay(redisClient, notifier)
		eg.Go(func() error { return relay.Run(ctx) })
		notifier = pubsub.NewRedisNotifier(redisClient)
	}

	noteService := service.NewSharedNoteService(repo, share.NewID,
		service.WithNotifier(notifier),
		service.WithRecorder(m),
	)
	issuer, err := share.NewIssuer(noteService, cfg.Server.PublicBaseURL)
	if err != nil {
		return err
	}

	r := mux.NewRouter()
	r.Use(middleware.LoggerMiddleware())
	r.Use(m.Middleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))
	r.Use(middleware.BodyLimitMiddleware(cfg.Server.MaxBodyBytes))

	handler.Routes(r, handler.Handlers{
		Notes:     handler.NewSharedNoteHandler(noteService),
		Share:     handler.NewShareHandler(issuer),
		WebSocket: handler.NewWebSocketHandler(wsManager, noteService, cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize),
		Metrics:   m.Handler(),
	})

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	eg.Go(func() error {
		wsManager.Run(ctx)
		return nil
	})

	eg.Go(func() error {
		slogx.Info(ctx, "starting shared notes server",
			slog.String("addr", addr),
			slog.String("env", cfg.Server.Env),
			slog.String("public_base_url", cfg.Server.PublicBaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		slogx.Info(context.Background(), "shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("wait server stop: %w", err)
	}

	slogx.Info(context.Background(), "server stopped gracefully")
	return nil
}
