package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/config"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
	appHTTP "github.com/yrippert-maker/klg-asutk-app-sub001/internal/handler/http"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/cron"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/hub"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/jwt"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/logger"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/repository/memory"
	notificationService "github.com/yrippert-maker/klg-asutk-app-sub001/internal/service/notification"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notificationRepo := memory.NewNotificationRepository()
	events := hub.New[string, notification.Event](64)
	notifService := notificationService.NewNotificationService(notificationRepo, events, notificationService.Config{
		Logger: log,
	})
	defer notifService.Stop()

	JWTService := jwt.NewJWTService(cfg.Stub.JWTSecret, cfg.Stub.TokenTTL)

	authHandler := appHTTP.NewAuthHandler(JWTService, log)
	notificationHandler := appHTTP.NewNotificationHandler(notifService, JWTService, cfg.Stub.AllowedOrigins, log)
	router := appHTTP.NewRouter(log, JWTService, authHandler, notificationHandler, cfg.Stub.AllowedOrigins)

	scheduler := cron.NewScheduler(log)
	if cfg.Stub.EmitInterval > 0 {
		cron.NewDemoJobs(notifService, notifService, cfg.Stub.EmitInterval).RegisterJobs(scheduler)
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.Session.UserID != "" {
		token, expiresAt, err := JWTService.GenerateAccessToken(cfg.Session.UserID, cfg.Session.OrganizationID)
		if err != nil {
			return fmt.Errorf("issue development token: %w", err)
		}
		log.Info("Development token issued",
			"user_id", cfg.Session.UserID,
			"expires_at", time.Unix(expiresAt, 0).UTC().Format(time.RFC3339),
			"token", token,
		)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Stub.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server running", "addr", "http://localhost"+server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// WebSocket streams are hijacked and not tracked by Shutdown
		events.CloseAll()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
