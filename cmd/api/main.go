package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/zapfit/server/internal/auth"
	"github.com/zapfit/server/internal/config"
	"github.com/zapfit/server/internal/db"
	httprouter "github.com/zapfit/server/internal/http"
	"github.com/zapfit/server/internal/http/handlers"
	"github.com/zapfit/server/internal/logger"
	"github.com/zapfit/server/internal/repo"
	"github.com/zapfit/server/internal/reward"
	"github.com/zapfit/server/internal/submit"
	"github.com/zapfit/server/internal/verify"
	"github.com/zapfit/server/internal/wallet"
)

func main() {
	// Load .env from CWD so local runs pick it up (env vars override)
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, cfg.DevMode)
	defer logger.Sync()

	// Create context for startup operations
	ctx := context.Background()

	// Open database connection
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	// Run migrations
	if err := runMigrations(database); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize repositories
	verificationRepo := repo.NewVerificationRepo(database)
	submissionRepo := repo.NewSubmissionRepo(database)
	claimRepo := repo.NewClaimRepo(database)

	// Initialize services
	issuer := verify.NewIssuer(cfg.VerifySecrets, verificationRepo)
	validator := submit.NewValidator(submissionRepo, verificationRepo, cfg.VerifySecrets, cfg.LegacyCodesEnabled)
	walletClient := wallet.NewClient(cfg.NWCConnection)
	resolver := wallet.NewResolver()
	orchestrator := reward.NewOrchestrator(walletClient, resolver, claimRepo)
	tokenService := auth.NewTokenService(cfg.AdminJWTSecret)

	// Initialize handlers
	verificationHandler := handlers.NewVerificationHandler(issuer)
	submissionHandler := handlers.NewSubmissionHandler(validator)
	rewardHandler := handlers.NewRewardHandler(orchestrator, walletClient, tokenService)

	// Create router
	router := httprouter.NewRouter(verificationHandler, submissionHandler, rewardHandler)

	// Create HTTP server with timeouts. Write timeout leaves headroom for the
	// relay round trip behind claim-reward.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      40 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from repo root)")
	}

	absDir, _ := filepath.Abs(migrationDir)
	logger.Info("running migrations", zap.String("dir", absDir))

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
