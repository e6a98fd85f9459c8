package cli

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

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"

	"webpush-demo-backend/config"
	"webpush-demo-backend/internal/api"
	"webpush-demo-backend/internal/db"
	"webpush-demo-backend/internal/model"
	"webpush-demo-backend/internal/notification"
	"webpush-demo-backend/internal/store"
	"webpush-demo-backend/internal/sweeper"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the push subscription server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup logger
			logger := log.New(cmd.OutOrStdout(), "pushd ", log.LstdFlags)

			cfg, path, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger.Printf("configuration loaded successfully from %s", path)

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			srv, err := newServer(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer srv.close()

			return srv.run(ctx, logger)
		},
	}
}

// server bundles the HTTP server with the background services it owns.
type server struct {
	http     *http.Server
	registry store.Registry
	closeDB  func() error
}

// newServer wires the registry, the worker pool, the sweeper and the router.
// Background goroutines stop when ctx is cancelled.
func newServer(ctx context.Context, cfg *config.Config, logger *log.Logger) (*server, error) {
	registry, closeDB, err := openRegistry(cfg)
	if err != nil {
		return nil, err
	}
	logger.Printf("subscription registry initialized (driver %s, on_duplicate %s)", cfg.Registry.Driver, cfg.Registry.OnDuplicate)

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, &webpushOptions, registry,
		notification.WithSendTimeout(cfg.WorkerPool.SendTimeout))
	pool.Start(ctx)

	go sweeper.NewService(registry, cfg.Registry.SweepInterval).Run(ctx)

	payload := model.Payload{
		Title: cfg.Push.BroadcastTitle,
		Body:  cfg.Push.BroadcastBody,
		Icon:  cfg.Push.Icon,
	}
	handler := api.NewHandler(registry, pool, &webpushOptions, payload)
	router := api.NewRouter(&cfg.Server, handler)

	return &server{
		http: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: router,
		},
		registry: registry,
		closeDB:  closeDB,
	}, nil
}

// openRegistry returns the registry selected by cfg.Registry.Driver and a
// function releasing its resources.
func openRegistry(cfg *config.Config) (store.Registry, func() error, error) {
	policy, err := store.ParseDuplicatePolicy(cfg.Registry.OnDuplicate)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Registry.Driver == config.DriverMemory {
		return store.NewMemoryStore(policy), func() error { return nil }, nil
	}

	gormDB, err := db.Init(cfg.Registry.Driver, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, nil, err
	}
	return store.NewGormStore(gormDB, policy), sqlDB.Close, nil
}

// run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// the HTTP server down gracefully.
func (s *server) run(ctx context.Context, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server starting on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		logger.Println("Shutdown signal received, stopping services...")
	case <-ctx.Done():
		logger.Println("Context cancelled, stopping services...")
	case err := <-errCh:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	logger.Println("Server gracefully stopped")
	return nil
}

func (s *server) close() {
	if err := s.closeDB(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}
