package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokobengkel/backend/internal/backup"
	"tokobengkel/backend/internal/cache"
	"tokobengkel/backend/internal/cleanup"
	"tokobengkel/backend/internal/config"
	"tokobengkel/backend/internal/domain"
	"tokobengkel/backend/internal/httpapi"
	"tokobengkel/backend/internal/service"
	"tokobengkel/backend/internal/store"
	"tokobengkel/backend/internal/store/memory"
	pgstore "tokobengkel/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")

		if err := bootstrapRootAdmin(ctx, pg); err != nil {
			log.Fatalf("bootstrap root admin: %v", err)
		}
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	estimates := cache.EstimateCache(cache.NoopEstimateCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisEstimateCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop estimate cache", err)
		} else {
			estimates = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("estimate cache: redis")
		}
	} else {
		log.Println("estimate cache: noop")
	}

	backups, err := backup.NewManager(repo, cfg.BackupDir)
	if err != nil {
		log.Fatalf("backup manager: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	cleaner := cleanup.NewWorker(64)
	cleaner.Start(workerCtx)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("create upload dir: %v", err)
	}

	svc := service.New(repo, estimates, backups, cleaner, time.Duration(cfg.EstimateTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, cfg.UploadDir)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	// Let queued file deletions finish before closing the stores.
	cleaner.Stop()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// bootstrapRootAdmin creates the initial system admin on a fresh database.
// ROOT_PASSWORD must be set the first time a postgres deployment boots;
// after that the account exists and the variable may be dropped.
func bootstrapRootAdmin(ctx context.Context, repo store.Repository) error {
	if _, err := repo.GetUserByUsername(ctx, "root"); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	rootPassword := os.Getenv("ROOT_PASSWORD")
	if rootPassword == "" {
		return fmt.Errorf("no system admin exists; set ROOT_PASSWORD to bootstrap one")
	}
	if len(rootPassword) < 8 {
		return fmt.Errorf("ROOT_PASSWORD must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rootPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := repo.CreateUser(ctx, domain.UserAccount{
		Username:  "root",
		Password:  string(hash),
		Role:      domain.RoleSystemAdmin,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	log.Println("bootstrapped system admin account: root")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
