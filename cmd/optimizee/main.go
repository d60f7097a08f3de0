package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"optimizee/internal/config"
	"optimizee/internal/handlers"
	"optimizee/internal/models"
	"optimizee/internal/repository"
	"optimizee/internal/services"
	"optimizee/pkg/database"
	"optimizee/pkg/logging"
	"optimizee/pkg/metrics"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

const usage = `Usage: optimizee [-config file] <command>

Commands:
  preprocess   load data/raw/*.csv, derive features, write the processed dataset
  train        fit the baseline model on the processed dataset and save it
  status       report whether the processed dataset and model exist
  dash         serve the dashboard over the processed dataset and model
`

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// app holds the wiring shared by every command
type app struct {
	cfg      *config.Config
	logger   *logging.StructuredLogger
	registry *prometheus.Registry
	metrics  *metrics.Collector
	stdout   io.Writer

	datasets  *repository.DatasetRepository
	artifacts *repository.ArtifactRepository
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("optimizee", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", config.DefaultConfigFile, "YAML configuration file")
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return 2
	}
	command := flags.Arg(0)

	if err := loadDotEnv(); err != nil {
		fmt.Fprintf(stderr, "error: failed to load .env: %v\n", err)
		return 1
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: invalid configuration: %v\n", err)
		return 1
	}

	logger := logging.NewStructuredLoggerWithOutput("optimizee", version, cfg.LogLevel(), stderr)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		metrics:   metrics.NewCollector(cfg.Metrics.Namespace, registry),
		stdout:    stdout,
		datasets:  repository.NewDatasetRepository(cfg.Paths.ProcessedFile(), logger),
		artifacts: repository.NewArtifactRepository(cfg.Paths.ModelFile(), logger),
	}

	logger.Debug(ctx, "[STARTUP] Command starting", logging.Fields{
		"command":   command,
		"root":      cfg.Paths.Root,
		"schema":    cfg.Schema,
		"warehouse": cfg.Database.Enabled,
	})

	switch command {
	case "preprocess":
		err = a.preprocess(ctx)
	case "train":
		err = a.train(ctx)
	case "status":
		a.status()
	case "dash":
		err = a.dash(ctx)
	default:
		fmt.Fprintf(stderr, "error: unknown command %q\n\n", command)
		flags.Usage()
		return 2
	}

	if err != nil {
		logger.Error(ctx, "[COMMAND_ERROR] Command failed", logging.Fields{
			"command": command,
			"kind":    models.ErrorKind(err),
		}, err)
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// loadDotEnv loads ./.env when present; existing variables win
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (a *app) preprocess(ctx context.Context) error {
	var warehouse repository.FeatureRepository
	if a.cfg.Database.Enabled {
		db, err := database.NewPostgresDB(ctx, a.databaseConfig(), a.logger, a.metrics)
		if err != nil {
			return fmt.Errorf("failed to connect to warehouse: %w", err)
		}
		defer db.Close()
		warehouse = repository.NewFeatureRepository(db, a.cfg.Database.BatchSize, a.logger, a.metrics)
	}

	svc := services.NewPreprocessService(
		services.NewIngestionService(a.logger, a.metrics),
		a.datasets,
		warehouse,
		a.logger,
		a.metrics,
	)

	result, err := svc.Run(ctx, a.cfg.Paths.RawDirPath(), a.cfg.Schema)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "[ok] processed data saved -> %s (rows=%d)\n", result.Path, result.Rows)
	return a.writeMetrics(ctx)
}

func (a *app) train(ctx context.Context) error {
	svc := services.NewTrainingService(a.datasets, a.artifacts, a.logger, a.metrics)

	result, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "[ok] trained model saved -> %s\n", result.ModelPath)
	fmt.Fprintf(a.stdout, "MAE=%.4f | RMSE=%.4f\n", result.MAE, result.RMSE)
	return a.writeMetrics(ctx)
}

func (a *app) status() {
	fmt.Fprintf(a.stdout, "processed: %s (%s)\n", yesNo(a.datasets.Exists()), a.datasets.Path())
	fmt.Fprintf(a.stdout, "model:     %s (%s)\n", yesNo(a.artifacts.Exists()), a.artifacts.Path())
}

func (a *app) dash(ctx context.Context) error {
	forecast, err := services.NewForecastService(ctx, a.datasets, a.artifacts, services.NewStatisticsService(a.logger), a.logger)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	handlers.NewDashboardHandler(forecast, a.logger, a.metrics).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info(ctx, "[SERVER_START] Dashboard listening", logging.Fields{
			"address": "http://" + server.Addr,
			"rows":    forecast.Rows(),
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("dashboard server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info(ctx, "[SHUTDOWN] Shutting down dashboard...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(shutdownCtx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
		return err
	}

	a.logger.Info(shutdownCtx, "[SHUTDOWN_COMPLETE] Dashboard stopped", logging.Fields{})
	return nil
}

func (a *app) databaseConfig() *database.Config {
	return &database.Config{
		Host:            a.cfg.Database.Host,
		Port:            a.cfg.Database.Port,
		User:            a.cfg.Database.User,
		Password:        a.cfg.Database.Password,
		Database:        a.cfg.Database.Database,
		SSLMode:         a.cfg.Database.SSLMode,
		MaxOpenConns:    a.cfg.Database.MaxOpenConns,
		MaxIdleConns:    a.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: a.cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: a.cfg.Database.ConnMaxIdleTime,
	}
}

// writeMetrics exports the run's metrics for the node-exporter textfile collector
func (a *app) writeMetrics(ctx context.Context) error {
	path := a.cfg.Metrics.TextfilePath
	if path == "" {
		return nil
	}
	if err := metrics.WriteTextfile(path, a.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	a.logger.Debug(ctx, "[METRICS_WRITTEN] Metrics textfile written", logging.Fields{"path": path})
	return nil
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
