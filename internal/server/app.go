// Package server wires the LFRAS server: database and migrations, object
// storage, notification transport, run lock, services, the gRPC API, the
// ops HTTP endpoints and the reminder cron.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrijs2005/lfras/internal/logging"
	"github.com/dmitrijs2005/lfras/internal/server/config"
	"github.com/dmitrijs2005/lfras/internal/server/httpapi"
	"github.com/dmitrijs2005/lfras/internal/server/jobs"
	"github.com/dmitrijs2005/lfras/internal/server/metrics"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/lfras/internal/server/services"

	gs "github.com/dmitrijs2005/lfras/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	grpcServer *gs.GRPCServer
	httpServer *httpapi.Server
	scheduler  *jobs.Scheduler
	closers    []closeFunc
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, logging.ParseLevel(c.LogLevel))

	app := &App{config: c, logger: logger}
	if err := app.init(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	reminderCfg, err := c.Reminder()
	if err != nil {
		return err
	}

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	store, err := NewObjectStore(ctx, c)
	if err != nil {
		return err
	}

	dispatcher, closeDispatcher, err := NewDispatcher(c, app.logger)
	if err != nil {
		return err
	}
	app.closers = append(app.closers, closeDispatcher)

	locker, closeLocker, err := NewLocker(ctx, c)
	if err != nil {
		return err
	}
	app.closers = append(app.closers, closeLocker)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	archiver := services.NewArchiver(db, rm, store, app.logger)
	activities := services.NewActivityService(db, rm, store, archiver, m, app.logger, c.UploadURLTTL)
	rules := services.NewRuleService(db, rm, app.logger)
	reminderSvc := services.NewReminderService(db, rm, dispatcher, reminderCfg, m, app.logger, c.SiteURL)
	auth := services.NewAuthService(db, rm, c.SecretKey)

	app.grpcServer = gs.NewGRPCServer(c.EndpointAddrGRPC, app.logger, activities, rules, reminderSvc, auth)

	h := httpapi.NewHandler(reminderSvc, auth, db.PingContext, app.logger)
	app.httpServer = httpapi.NewServer(c.EndpointAddrHTTP, h.Router(reg), app.logger)

	app.scheduler = jobs.NewScheduler(reminderSvc, locker, reminderCfg, app.logger, c.JobTimeout)
	if err := app.scheduler.Add(services.JobDocuments, c.DocumentsSchedule); err != nil {
		return err
	}
	if err := app.scheduler.Add(services.JobFiles, c.FilesSchedule); err != nil {
		return err
	}
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) serve(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, name+" server failed", "error", err)
		cancelFunc()
	}
}

// Run serves until a termination signal arrives or a server fails, then
// shuts everything down.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.serve(ctx, cancelFunc, "gRPC", app.grpcServer.Run)
	}()
	go func() {
		defer wg.Done()
		app.serve(ctx, cancelFunc, "HTTP", app.httpServer.Run)
	}()

	app.scheduler.Start()

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()
	if err := app.scheduler.Stop(stopCtx); err != nil {
		app.logger.Warn(stopCtx, "reminder jobs still running at shutdown", "error", err)
	}

	wg.Wait()
	app.close(stopCtx)
	app.logger.Info(stopCtx, "App stopped")
}

func (app *App) close(ctx context.Context) {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn(ctx, "close failed", "error", err)
		}
	}
	app.closers = nil
}
