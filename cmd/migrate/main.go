package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"filedrive/internal/config"
	"filedrive/internal/database"
	"filedrive/internal/logging"
	"filedrive/internal/migrations"
)

func main() {
	statusOnly := flag.Bool("status", false, "print the applied schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Error(ctx, "connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if !*statusOnly {
		if err := migrations.Apply(ctx, db); err != nil {
			log.Error(ctx, "apply migrations", "error", err)
			os.Exit(1)
		}
	}

	version, err := migrations.Version(db)
	if err != nil {
		log.Error(ctx, "read schema version", "error", err)
		os.Exit(1)
	}
	log.Info(ctx, "migrations applied", "version", version)
}
