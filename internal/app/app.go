// Package app initializes and runs the students service.
// It configures logging, storage, authentication and routing,
// starts the optional gRPC health server and handles graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patric-chuzhbe/students/internal/auth"
	"github.com/patric-chuzhbe/students/internal/avatar"
	"github.com/patric-chuzhbe/students/internal/config"
	"github.com/patric-chuzhbe/students/internal/db/memorystorage"
	"github.com/patric-chuzhbe/students/internal/db/postgresdb"
	"github.com/patric-chuzhbe/students/internal/db/sqlitedb"
	"github.com/patric-chuzhbe/students/internal/db/storage"
	"github.com/patric-chuzhbe/students/internal/grpcserver"
	"github.com/patric-chuzhbe/students/internal/healthwatcher"
	"github.com/patric-chuzhbe/students/internal/ipchecker"
	"github.com/patric-chuzhbe/students/internal/logger"
	"github.com/patric-chuzhbe/students/internal/models"
	"github.com/patric-chuzhbe/students/internal/router"
	"github.com/patric-chuzhbe/students/internal/service"
)

const healthErrorsCapacity = 16

// App encapsulates the configuration, HTTP handler, storage backend
// and background services needed to run the students service.
type App struct {
	cfg           *config.Config
	db            storage.Storage
	httpHandler   http.Handler
	grpcServer    *grpcserver.Server
	healthWatcher *healthwatcher.HealthWatcher
	httpAddr      net.Addr
	ready         chan struct{}
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage
// - setting up authentication, the service and the router
// - setting up the gRPC health server and the storage health watcher
func New(configOptions ...config.InitOption) (*App, error) {
	var err error
	app := &App{
		ready: make(chan struct{}),
	}

	app.cfg, err = config.New(configOptions...)
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel, app.cfg.Environment)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	checker, err := ipchecker.New(
		app.cfg.TrustedSubnet,
		ipchecker.WithProxyHeaders(app.cfg.TrustProxyHeaders),
	)
	if err != nil {
		return nil, errors.Join(err, app.db.Close())
	}

	theAuth := auth.New(auth.NewJWT(
		auth.NewTokenSettings(
			app.cfg.Auth.Access.Key,
			app.cfg.Auth.Access.ExpDuration(),
			app.cfg.Auth.Access.MaxAgeDuration(),
		),
		auth.NewTokenSettings(
			app.cfg.Auth.Refresh.Key,
			app.cfg.Auth.Refresh.ExpDuration(),
			app.cfg.Auth.Refresh.MaxAgeDuration(),
		),
	))

	app.httpHandler = router.New(
		service.New(app.db, avatar.New(app.cfg.Avatar.BaseURL, app.cfg.Avatar.DefaultImg)),
		theAuth,
		checker,
		router.WithGzip(app.cfg.EnableGzip),
	)

	if app.cfg.HealthCheckInterval > 0 {
		app.healthWatcher = healthwatcher.New(app.db, app.cfg.HealthCheckInterval, healthErrorsCapacity)
	}

	if app.cfg.GRPCAddr != "" {
		app.grpcServer, err = grpcserver.New(app.cfg.GRPCAddr)
		if err != nil {
			return nil, errors.Join(err, app.db.Close())
		}
		if app.healthWatcher != nil {
			app.healthWatcher.Subscribe(app.grpcServer.SetServing)
		} else {
			app.grpcServer.SetServing(true)
		}
	}

	return app, nil
}

// Run starts the servers and blocks until SIGINT or SIGTERM is received.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.run(ctx)
}

// HTTPAddr is the address the HTTP server listens on. It blocks until Run
// has tried to open the listener and is nil when that failed.
func (a *App) HTTPAddr() net.Addr {
	<-a.ready
	return a.httpAddr
}

func (a *App) run(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.cfg.RunAddr)
	if err != nil {
		close(a.ready)
		err = fmt.Errorf("in internal/app/app.go/run(): error while `net.Listen()` calling: %w", err)
		if a.grpcServer != nil {
			err = errors.Join(err, a.grpcServer.Close())
		}
		return errors.Join(err, a.db.Close())
	}
	a.httpAddr = listener.Addr()
	close(a.ready)

	logger.Log.Infow("server running", "RunAddr", a.httpAddr.String(), "environment", a.cfg.Environment)

	server := &http.Server{
		Handler: a.httpHandler,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if a.grpcServer != nil {
		logger.Log.Infow("gRPC server running", "GRPCAddr", a.grpcServer.Addr().String())
		group.Go(func() error {
			if err := a.grpcServer.Serve(); err != nil {
				return fmt.Errorf("gRPC server error: %w", err)
			}
			return nil
		})
	}

	if a.healthWatcher != nil {
		a.healthWatcher.ListenErrors(func(err error) {
			logger.Log.Warnw("storage health check failed", zap.Error(err))
		})
		group.Go(func() error {
			return a.healthWatcher.Run(groupCtx)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Log.Infow("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		if a.grpcServer != nil {
			a.grpcServer.GracefulStop()
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return nil
	})

	err = group.Wait()

	return errors.Join(err, a.db.Close())
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.DBFilePath != "" {
		return models.StorageTypeSQLite
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		logger.Log.Infow("using PostgreSQL storage")
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			postgresdb.WithMaxOpenConns(cfg.DBMaxOpenConns),
			postgresdb.WithMaxIdleConns(cfg.DBMaxIdleConns),
		)

	case models.StorageTypeSQLite:
		logger.Log.Infow("using SQLite storage", "path", cfg.DBFilePath)
		return sqlitedb.New(context.Background(), cfg.DBFilePath, cfg.DBConnectionTimeout)
	}

	logger.Log.Infow("using in-memory storage")

	return memorystorage.New(), nil
}
