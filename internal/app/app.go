// Package app initializes and runs the to-do service. It configures
// logging, storage, authentication, pricing and routing, and handles
// graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/todoapp/internal/auth"
	"github.com/patric-chuzhbe/todoapp/internal/config"
	"github.com/patric-chuzhbe/todoapp/internal/db/jsondb"
	"github.com/patric-chuzhbe/todoapp/internal/db/memorystorage"
	"github.com/patric-chuzhbe/todoapp/internal/db/postgresdb"
	"github.com/patric-chuzhbe/todoapp/internal/db/storage"
	"github.com/patric-chuzhbe/todoapp/internal/hasher"
	"github.com/patric-chuzhbe/todoapp/internal/ipchecker"
	"github.com/patric-chuzhbe/todoapp/internal/logger"
	"github.com/patric-chuzhbe/todoapp/internal/models"
	"github.com/patric-chuzhbe/todoapp/internal/pricing"
	"github.com/patric-chuzhbe/todoapp/internal/router"
	"github.com/patric-chuzhbe/todoapp/internal/service"
	"github.com/patric-chuzhbe/todoapp/internal/taskspurger"
)

const shutdownTimeout = 10 * time.Second

// App holds the configuration, HTTP handler, storage backend and the
// background tasks purger.
type App struct {
	cfg             *config.Config
	db              storage.Storage
	tasksPurger     *taskspurger.TasksPurger
	stopTasksPurger context.CancelFunc
	httpHandler     http.Handler
}

type initOptions struct {
	configOptions []config.InitOption
}

type InitOption func(*initOptions)

// WithConfigOptions forwards options to config.New.
func WithConfigOptions(configOptions ...config.InitOption) InitOption {
	return func(options *initOptions) {
		options.configOptions = append(options.configOptions, configOptions...)
	}
}

// New loads the configuration, initializes the logger, picks a storage
// backend, starts the tasks purger and builds the router.
func New(optionsProto ...InitOption) (*App, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	var err error
	app := &App{}

	app.cfg, err = config.New(options.configOptions...)
	if err != nil {
		return nil, err
	}

	var loggerOptions []logger.InitOption
	if app.cfg.LogFile != "" {
		loggerOptions = append(loggerOptions, logger.WithFile(app.cfg.LogFile))
	}
	err = logger.Init(app.cfg.LogLevel, loggerOptions...)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	gate, err := ipchecker.New(app.cfg.TrustedSubnet)
	if err != nil {
		return nil, err
	}

	app.tasksPurger = taskspurger.New(
		app.db,
		app.cfg.PurgeChannelCapacity,
		app.cfg.PurgeInterval,
	)
	tasksPurgerRunCtx, stopTasksPurger := context.WithCancel(context.Background())
	app.stopTasksPurger = stopTasksPurger

	app.tasksPurger.Run(tasksPurgerRunCtx)
	app.tasksPurger.ListenErrors(func(err error) {
		logger.Log.Errorln("Error passed from the `app.tasksPurger.ListenErrors()`:", zap.Error(err))
	})

	theAuth := auth.New([]byte(app.cfg.JWTSecretKey), app.cfg.TokenTTL)

	serviceOptions := []service.Option{
		service.WithTasksPurger(app.tasksPurger),
		service.WithUsernameSuffix(app.cfg.UsernameSuffix),
	}
	if app.cfg.PricingBaseURL != "" {
		serviceOptions = append(serviceOptions, service.WithPricingGateway(
			pricing.New(app.cfg.PricingBaseURL, app.cfg.PricingTimeout, app.cfg.PricingCacheTTL),
		))
	} else {
		logger.Log.Infoln("PRICING_BASE_URL is empty, tasks are stored without market data")
	}

	app.httpHandler = router.New(
		service.New(app.db, hasher.New(app.cfg.BcryptCost), theAuth, serviceOptions...),
		theAuth,
		gate,
		router.WithAllowedOrigins(app.cfg.CORSAllowedOrigins...),
	)

	return app, nil
}

// Handler exposes the HTTP handler, mostly for tests.
func (a *App) Handler() http.Handler {
	return a.httpHandler
}

// Run starts the HTTP server and blocks until a termination signal or a
// server failure. Either way the tasks purger is flushed and the storage is
// closed before Run returns.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:    a.cfg.RunAddr,
		Handler: a.httpHandler,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Flushing pending work and exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return a.shutdownBackground(shutdownCtx)

	case err := <-serverErrCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		closeErr := a.shutdownBackground(shutdownCtx)
		if errors.Is(err, http.ErrServerClosed) {
			return closeErr
		}
		return errors.Join(fmt.Errorf("server error: %w", err), closeErr)
	}
}

func (a *App) shutdownBackground(ctx context.Context) error {
	a.stopTasksPurger()

	select {
	case <-a.tasksPurger.Done():
	case <-ctx.Done():
		logger.Log.Warnln("tasks purger did not finish before the shutdown deadline")
	}

	return a.db.Close()
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

	if cfg.DBFileName != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.MigrationsDir,
		)

	case models.StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}
