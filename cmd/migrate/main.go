package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"optimizee/internal/config"
	"optimizee/pkg/database"
	"optimizee/pkg/logging"
	"optimizee/pkg/metrics"
)

const migrationName = "001_create_energy_features"

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "YAML configuration file")
	direction := flag.String("direction", "up", "Migration direction: up or down")
	dir := flag.String("dir", "migrations", "Directory holding the migration files")
	flag.Parse()

	if *direction != "up" && *direction != "down" {
		fmt.Fprintf(os.Stderr, "Invalid direction %q: expected up or down\n", *direction)
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("optimizee-migrate", "1.0.0", cfg.LogLevel())
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	migrationFile := filepath.Join(*dir, fmt.Sprintf("%s.%s.sql", migrationName, *direction))
	content, err := os.ReadFile(migrationFile)
	if err != nil {
		logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to read migration file", logging.Fields{
			"file": migrationFile,
		}, err)
	}

	db, err := database.NewPostgresDB(ctx, &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, logger, metrics.NewCollector(cfg.Metrics.Namespace, prometheus.NewRegistry()))
	if err != nil {
		logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to connect to database", logging.Fields{
			"host":     cfg.Database.Host,
			"database": cfg.Database.Database,
		}, err)
	}
	defer db.Close()

	logger.Info(ctx, "[MIGRATE_START] Running migration", logging.Fields{
		"file":      migrationFile,
		"direction": *direction,
	})

	if _, err := db.ExecContext(ctx, "migrate_"+*direction, string(content)); err != nil {
		db.Close()
		logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to execute migration", logging.Fields{
			"file": migrationFile,
		}, err)
	}

	logger.Info(ctx, "[MIGRATE_COMPLETE] Migration completed successfully", logging.Fields{
		"direction": *direction,
	})
}
