package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/config"
	"expense-tracker/internal/handlers"
	"expense-tracker/internal/ledger"
	"expense-tracker/internal/llm"
	"expense-tracker/internal/logger"
	"expense-tracker/internal/models"
	"expense-tracker/internal/storage"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log := logger.New("info")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := seedAdmin(ctx, db, cfg.Admin, log); err != nil {
		return err
	}
	if n, err := db.CleanExpiredSessions(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to clean expired sessions")
	} else if n > 0 {
		log.Info().Int64("removed", n).Msg("Cleaned expired sessions")
	}

	var (
		extractor ledger.Extractor
		assistant handlers.Assistant
	)
	svc, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		log.Warn().Err(err).Msg("Language model unavailable; message ingestion and classification are disabled")
	} else {
		extractor, assistant = svc, svc
		log.Info().Str("provider", cfg.LLM.Provider).Msg("Language model configured")
	}

	h := handlers.NewHandlers(db, ledger.NewEngine(db, extractor), assistant, cfg.Server.SecureCookie)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           setupRouter(h, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * cfg.LLM.Timeout,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setupRouter wraps the API routes with panic recovery and request logging.
func setupRouter(h *handlers.Handlers, log zerolog.Logger) http.Handler {
	var handler http.Handler = h.Routes()
	handler = handlers.Recovery(log)(handler)
	handler = handlers.Logger(log)(handler)
	return handler
}

// seedAdmin creates the configured admin account when the database has no
// users yet.
func seedAdmin(ctx context.Context, db *storage.DB, admin config.AdminConfig, log zerolog.Logger) error {
	if admin.User == "" || admin.Password == "" {
		return nil
	}
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(admin.Password)
	if err != nil {
		return err
	}
	if err := db.CreateUser(ctx, &models.User{Username: admin.User, PasswordHash: hash}); err != nil {
		return err
	}
	log.Info().Str("username", admin.User).Msg("Created admin user")
	return nil
}
