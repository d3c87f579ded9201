package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/counterpos/counterpos/internal/config"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/postgres"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	steps := flag.Int("steps", 1, "Number of migrations to roll back with -direction=down")
	showVersion := flag.Bool("version", false, "Print the current schema version and exit")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	migrator := postgres.NewMigrator(cfg.Postgres.GetURL(), logger)
	logger.Infow("Connecting to database", "host", cfg.Postgres.Host, "dbname", cfg.Postgres.DBName)

	if *showVersion {
		version, dirty, err := migrator.Version()
		if err != nil {
			logger.Fatalw("Failed to read schema version", "error", err)
		}
		fmt.Printf("schema version %d (dirty=%t)\n", version, dirty)
		return
	}

	switch *direction {
	case "up":
		err = migrator.Up()
	case "down":
		if *steps < 1 {
			logger.Fatalw("steps must be at least 1", "steps", *steps)
		}
		err = migrator.Down(*steps)
	default:
		logger.Fatalw("Unknown migration direction", "direction", *direction)
	}
	if err != nil {
		logger.Fatalw("Migration failed", "direction", *direction, "error", err)
	}

	fmt.Println("Migration process completed")
}
