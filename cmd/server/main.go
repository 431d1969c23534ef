package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	imagehandlers "Postdeck/internal/api/handlers/images"
	"Postdeck/internal/api/middleware"
	"Postdeck/internal/api/routes"
	"Postdeck/internal/core/imagecache"
	"Postdeck/internal/storage"
	diskstore "Postdeck/internal/storage/disk"
	pgstore "Postdeck/internal/storage/postgres"
)

func main() {
	cfg := imagecache.ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	objectStore, cleanup, err := openObjectStore(cfg)
	if err != nil {
		log.Fatal("Failed to open object store:", err)
	}
	defer cleanup()

	cacheStore, err := imagecache.NewStore(cfg.CacheMaxEntries, cfg.CacheMaxBytes())
	if err != nil {
		log.Fatal("Failed to create cache store:", err)
	}

	writeback, err := imagecache.NewWriteBack(objectStore, cfg.WriteBackWorkers, cfg.WriteBackQueue, cfg.WriteBackTimeout)
	if err != nil {
		log.Fatal("Failed to start write-back pool:", err)
	}

	service, err := imagecache.NewService(
		cacheStore,
		imagecache.NewOriginFetcher(objectStore, cfg.FetchTimeout, cfg.MaxSourceSizeMB),
		imagecache.NewCorrector(cfg.JPEGQuality),
		writeback,
		cfg,
	)
	if err != nil {
		log.Fatal("Failed to create image cache service:", err)
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)

	// Rate limiting: 300 requests per minute per IP
	rateLimiter := middleware.NewRateLimiter(300, 1*time.Minute)
	r.Use(rateLimiter.Middleware)

	routes.RegisterImageRoutes(r, imagehandlers.NewHandler(service))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Println("Image cache service listening on", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error:", err)
		}
	case sig := <-sigCh:
		log.Println("Shutting down on signal:", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Println("Shutdown error:", err)
		}
	}

	rateLimiter.Stop()
	writeback.Close()
}

// openObjectStore selects the object store backend: PostgreSQL when
// DATABASE_URL is set, the local disk store otherwise.
func openObjectStore(cfg imagecache.Config) (storage.ObjectStore, func(), error) {
	if cfg.DatabaseURL == "" {
		store, err := diskstore.NewStore(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		log.Println("Using disk object store at", cfg.StoragePath)
		return store, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}

	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := goose.Up(db, "internal/db/migrations"); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Println("Using PostgreSQL object store, migrations applied")

	return pgstore.NewBlobStore(db), func() { db.Close() }, nil
}
