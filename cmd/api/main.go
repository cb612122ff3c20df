package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/enrolld/server/internal/auth"
	"github.com/enrolld/server/internal/config"
	"github.com/enrolld/server/internal/db"
	httphandler "github.com/enrolld/server/internal/http"
	"github.com/enrolld/server/internal/http/handlers"
	"github.com/enrolld/server/internal/notify"
	"github.com/enrolld/server/internal/otp"
	"github.com/enrolld/server/internal/registration"
	"github.com/enrolld/server/internal/repo"
)

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	// Open database connection
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Wire dependencies explicitly; every operation takes typed handles, no
	// ambient service container.
	store := repo.NewStore(database)

	smsClient := notify.NewSMSClient(cfg.SMS.APIKey, cfg.SMS.Sender, cfg.SMS.DryRun)
	emailSender := notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From, cfg.SMTP.DryRun)
	dispatcher := notify.NewDispatcher(smsClient, emailSender)

	jwtService := auth.NewJWTService(cfg.JWTSecret)
	passwords := auth.NewPasswordHasher()
	hasher := otp.NewHasher(cfg.OTPSalt)

	policy := registration.Policy{
		OTPTTL:         cfg.OTPTTL,
		ResendCooldown: cfg.ResendCooldown,
		MaxAttempts:    cfg.MaxAttempts,
		DevMode:        cfg.DevMode,
	}
	regService := registration.NewService(store, dispatcher, hasher, jwtService, passwords, policy)

	regHandler := handlers.NewRegistrationHandler(regService)
	router := httphandler.NewRouter(regHandler, jwtService, store.Customers())

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from module root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
