// cmd/importslots/main.go
// Replaces the slot catalogue with the rows of a CSV file.
//
// Usage:
//
//	go run ./cmd/importslots -csv data/slots.csv
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/padraicbc/huntapi/config"
	bundb "github.com/padraicbc/huntapi/db"
	"github.com/padraicbc/huntapi/slots"
)

func main() {
	cfg := config.Load()
	path := flag.String("csv", cfg.SlotsCSV, "path to the slots CSV")
	flag.Parse()

	start := time.Now()
	list, err := slots.ParseFile(*path)
	if err != nil {
		log.Fatalf("read %s: %v", *path, err)
	}
	log.Printf("parsed %d slots from %s", len(list), *path)

	ctx := context.Background()
	db := bundb.Setup(cfg)
	defer db.Close()
	log.Println("connected to PostgreSQL")

	if err := bundb.CreateTables(ctx, db); err != nil {
		log.Fatalf("create tables: %v", err)
	}

	n, err := slots.Replace(ctx, db, list)
	if err != nil {
		log.Fatalf("import: %v", err)
	}
	log.Printf("%d slots imported in batches of %d (%s)", n, slots.BatchSize, time.Since(start).Round(time.Millisecond))
}
