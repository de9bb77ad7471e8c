package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/config"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/db"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/logger"
)

func main() {
	down := flag.Bool("down", false, "revert all migrations")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := db.RunMigrations(lg, cfg.DB.DSN, cfg.DB.MigrationsPath, *down); err != nil {
		lg.Fatal("migrate failed", zap.Error(err))
	}
}
