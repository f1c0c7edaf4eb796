// migrate runs DB migrations from embedded SQL; use with go run ./cmd/migrate -direction up.
package main

import (
	"flag"
	"fmt"
	"os"

	"consultancy-auth/backend/internal/config"
	"consultancy-auth/backend/internal/db/migrate"
	"consultancy-auth/backend/internal/logger"

	"go.uber.org/zap"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	dir, err := migrate.ParseDirection(*direction)
	if err != nil {
		log.Fatal("invalid direction", zap.Error(err))
	}
	if err := migrate.Run(cfg.DatabaseURL, dir, log); err != nil {
		log.Fatal("migrate failed", zap.Error(err))
	}
}
