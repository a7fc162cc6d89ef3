package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kodix/kodix/internal/email"
	"github.com/kodix/kodix/internal/handler"
	"github.com/kodix/kodix/internal/server"
)

const cleanupInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	var mailer handler.Mailer
	emailClient := email.NewClient(cfg.Email.PostmarkToken, cfg.Email.FromEmail, cfg.BaseURL)
	if emailClient.Configured() {
		mailer = emailClient
	} else {
		logger.Warn("postmark not configured, login and invitation codes will be logged")
		mailer = email.LogMailer{Logger: logger.With("component", "mailer")}
	}

	srv := server.New(db, cfg, mailer, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runCleanup(ctx, srv, logger.With("component", "cleanup"))

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("kodix running", "port", cfg.Port, "env", cfg.Environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// runCleanup periodically removes expired sessions, login codes and
// invitations, and prunes the rate limiter.
func runCleanup(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if n, err := srv.SessionStore().DeleteExpired(); err != nil {
			logger.Error("delete expired sessions", "error", err)
		} else if n > 0 {
			logger.Info("deleted expired sessions", "count", n)
		}
		if n, err := srv.LoginCodeStore().DeleteExpired(); err != nil {
			logger.Error("delete expired login codes", "error", err)
		} else if n > 0 {
			logger.Info("deleted expired login codes", "count", n)
		}
		if n, err := srv.InvitationStore().DeleteExpired(); err != nil {
			logger.Error("delete expired invitations", "error", err)
		} else if n > 0 {
			logger.Info("deleted expired invitations", "count", n)
		}
		if n := srv.RateLimiter().Cleanup(); n > 0 {
			logger.Debug("dropped rate limit buckets", "count", n)
		}
	}
}
