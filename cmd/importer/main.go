package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"stripe-fire-sync/internal/config"
	"stripe-fire-sync/internal/db"
	"stripe-fire-sync/internal/importer"
	"stripe-fire-sync/internal/repository/document"
)

func main() {
	var (
		filePath   string
		collection string
	)
	flag.StringVar(&filePath, "file", "", "Path to storefront product CSV export")
	flag.StringVar(&collection, "collection", "storefront", "Document collection to import into")
	flag.Parse()

	if filePath == "" || collection == "" {
		flag.Usage()
		os.Exit(2)
	}

	if _, err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.FromEnv()
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	f, err := os.Open(filePath)
	if err != nil {
		log.Fatalf("open file: %v", err)
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, document.NewPostgres(pool, nil), collection)

	start := time.Now()
	count, err := imp.Run(ctx)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}

	fmt.Printf("Imported %d documents into collection %s in %s\n", count, collection, time.Since(start).Truncate(time.Millisecond))
}
