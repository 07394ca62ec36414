package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/richxcame/tartanilla-earnings/pkg/config"
	"github.com/richxcame/tartanilla-earnings/pkg/database"
	"github.com/richxcame/tartanilla-earnings/pkg/logger"
)

const serviceName = "earnings-migrate"

func main() {
	direction := flag.String("direction", "up", "Migration direction: up|down")
	steps := flag.Int("steps", 0, "Number of versions to move; 0 applies or rolls back everything")
	verify := flag.Bool("verify", true, "Check upsert conflict indexes after migrating up")
	flag.Parse()

	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment, serviceName); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	dir := database.Direction(*direction)
	state, err := database.Migrate(cfg.Database.DSN(), dir, *steps)
	if err != nil {
		logger.Fatal("Migration failed", zap.String("direction", *direction), zap.Error(err))
	}
	logger.Info("Migrations applied",
		zap.String("direction", *direction),
		zap.Uint("version", state.Version),
		zap.Bool("dirty", state.Dirty),
		zap.Bool("changed", state.Changed),
	)

	if dir != database.Up || !*verify {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, &cfg.Database, serviceName)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(pool)

	if err := database.VerifySchema(ctx, pool); err != nil {
		logger.Fatal("Schema verification failed", zap.Error(err))
	}
	logger.Info("Schema verified")
}
