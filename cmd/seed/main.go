package main

import (
	"context"
	"log"
	"os"

	"stripe-fire-sync/internal/config"
	"stripe-fire-sync/internal/db"
	"stripe-fire-sync/internal/repository/document"
	"stripe-fire-sync/internal/seed"
)

func main() {
	if _, err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[seed] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	n, err := seed.Apply(ctx, document.NewPostgres(pool, logger))
	if err != nil {
		logger.Fatalf("seed apply: %v", err)
	}

	logger.Printf("seed applied documents=%d", n)
}
