package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/ae-comb/app/api"
	"github.com/lysyi3m/ae-comb/app/cache"
	"github.com/lysyi3m/ae-comb/app/cfg"
	"github.com/lysyi3m/ae-comb/app/database"
	"github.com/lysyi3m/ae-comb/app/dataset"
	"github.com/lysyi3m/ae-comb/app/pipeline"
	"github.com/lysyi3m/ae-comb/app/source"
	"github.com/lysyi3m/ae-comb/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}
	if appCfg == nil {
		// help was shown
		return
	}

	setupLogging(appCfg.Debug)

	if err := run(appCfg); err != nil {
		slog.Error("AE Comb failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting AE Comb", "version", appCfg.Version, "start", appCfg.StartMonth, "end", appCfg.EndMonth)

	sourceCfg, err := source.LoadConfig(appCfg.SourceFile)
	if err != nil {
		return fmt.Errorf("failed to load source configuration: %w", err)
	}
	if appCfg.RequestTimeout > 0 {
		sourceCfg.Settings.Timeout = int(appCfg.RequestTimeout / time.Second)
	}

	client := source.NewClientFromConfig(&http.Client{}, sourceCfg, appCfg.UserAgent)

	acquirer, err := pipeline.NewAcquirer(client, sourceCfg)
	if err != nil {
		return fmt.Errorf("failed to build acquirer: %w", err)
	}

	var cacheHealth api.CacheHealthChecker
	if appCfg.RedisAddr != "" {
		releaseCache, err := cache.NewCache(appCfg.RedisAddr, appCfg.CacheTTL)
		if err != nil {
			return err
		}
		defer releaseCache.Close()

		acquirer.UseReleaseGetter(source.NewCachedGetter(client, releaseCache))
		cacheHealth = releaseCache
	}

	var (
		datasetRepo *database.DatasetRepository
		runRepo     *database.RunRepository
	)
	if !appCfg.NoDB {
		db, err := connect(appCfg)
		if err != nil {
			return err
		}
		defer db.Close()

		datasetRepo = database.NewDatasetRepository(db)
		runRepo = database.NewRunRepository(db)
	}

	// typed nils must not reach the interfaces below
	var (
		sink     pipeline.Sink
		recorder pipeline.RunRecorder
		repo     database.DatasetRepositoryInterface
		lister   api.RunLister
	)
	if datasetRepo != nil {
		sink, repo = datasetRepo, datasetRepo
		recorder, lister = runRepo, runRepo
	}

	runner := pipeline.NewRunner(acquirer, sink, recorder, pipeline.RunnerOptions{
		TableName:  appCfg.TableName,
		OutputFile: appCfg.OutputFile,
	})

	if !appCfg.Serve {
		return runOnce(runner, appCfg)
	}

	return serve(appCfg, sourceCfg, client, runner, repo, lister, cacheHealth)
}

func connect(appCfg *cfg.Cfg) (*database.DB, error) {
	slog.Info("Connecting to database", "driver", appCfg.DBDriver)

	var (
		db  *database.DB
		err error
	)
	switch appCfg.DBDriver {
	case string(database.DriverSQLite):
		db, err = database.NewSQLiteConnection(appCfg.SQLitePath)
	default:
		db, err = database.NewConnection(appCfg.DBHost, appCfg.DBPort, appCfg.DBUser,
			appCfg.DBPassword, appCfg.DBName, appCfg.DBSSLMode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "driver", appCfg.DBDriver, "schema_version", version, "dirty", dirty)

	return db, nil
}

func runOnce(runner *pipeline.Runner, appCfg *cfg.Cfg) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runner.Run(ctx, appCfg.StartMonth, appCfg.EndMonth)
	if err != nil {
		if errors.Is(err, dataset.ErrEmptyResult) {
			slog.Warn("No data acquired for the requested range", "start", appCfg.StartMonth, "end", appCfg.EndMonth)
		}
		return err
	}

	slog.Info("Dataset acquired",
		"range", res.Range.String(),
		"rows", res.Table.NumRows(),
		"columns", res.Table.NumColumns(),
		"duplicates", res.Summary.Duplicates,
		"dropped_rows", res.Summary.DroppedRows)

	for _, c := range res.Summary.MissingCounts {
		if c.Count > 0 {
			slog.Debug("Missing values", "column", c.Column, "count", c.Count)
		}
	}

	return nil
}

func serve(appCfg *cfg.Cfg, sourceCfg *source.Config, client *source.Client, runner *pipeline.Runner,
	repo database.DatasetRepositoryInterface, lister api.RunLister, cacheHealth api.CacheHealthChecker) error {
	var watcher tasks.ReleaseWatcher
	if sourceCfg.FeedURL != "" {
		watcher = source.NewWatcher(client, sourceCfg.FeedURL, sourceCfg.FeedMatch)
	}

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval", appCfg.GetSchedulerInterval().String(), "feed", sourceCfg.FeedURL)
	scheduler := tasks.NewScheduler(runner, watcher, tasks.SchedulerOptions{
		StartMonth:  appCfg.StartMonth,
		EndMonth:    appCfg.EndMonth,
		FeedURL:     sourceCfg.FeedURL,
		Interval:    appCfg.GetSchedulerInterval(),
		WorkerCount: appCfg.WorkerCount,
	})
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(repo, lister, runner, scheduler, runner, api.HandlerOptions{
		TableName:  appCfg.TableName,
		StartMonth: appCfg.StartMonth,
		Version:    appCfg.Version,
		Cache:      cacheHealth,
	})

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case serveErr = <-serverErrChan:
		slog.Error("Server error", "error", serveErr)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("AE Comb shutdown complete")
	return serveErr
}
