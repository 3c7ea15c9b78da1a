package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"labmate/internal/app"
	"labmate/internal/auth"
	"labmate/internal/config"
	"labmate/internal/handler"
	"labmate/internal/handler/sse"
	"labmate/internal/middleware"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	out, closeLog, err := config.LogWriter(cfg, os.Stdout, "server")
	if err != nil {
		log.Fatalf("Failed to set up log file: %v", err)
	}
	defer closeLog()

	logger := config.NewLogger(cfg, out)
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifier auth.TokenVerifier
	if cfg.JWKSURL != "" {
		v, err := auth.NewJWTVerifier(ctx, cfg.JWKSURL, logger)
		if err != nil {
			log.Fatalf("Failed to create JWT verifier: %v", err)
		}
		defer v.Close()
		verifier = v
	} else {
		if cfg.IsProduction() {
			log.Fatalf("JWKS_URL is required in production")
		}
		logger.Warn("JWKS_URL not set: all requests run as the development user")
	}

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}
	defer application.Close()

	threadHandler := handler.NewThreadHandler(application.Orchestrator, sse.DefaultConfig(), logger)

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()
	threadHandler.Routes(mux)

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	var h http.Handler = mux
	h = middleware.Auth(verifier, logger, "/health")(h)
	h = middleware.Recovery(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
