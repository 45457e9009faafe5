package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pulkyeet/flash-arb/internal/storage"
)

func main() {
	_ = godotenv.Load()

	var (
		dbPath  = flag.String("db", envOr("JOURNAL_PATH", "data/journal.db"), "Path to journal database")
		outPath = flag.String("out", "data/attempts.parquet", "Output parquet file")
		since   = flag.Duration("since", 24*time.Hour, "Export attempts newer than this")
	)
	flag.Parse()

	journal, err := storage.NewJournal(*dbPath)
	if err != nil {
		fmt.Printf("Failed to open journal: %v\n", err)
		os.Exit(1)
	}
	defer journal.Close()

	attempts, err := journal.Attempts(time.Now().Add(-*since))
	if err != nil {
		fmt.Printf("Failed to read attempts: %v\n", err)
		journal.Close()
		os.Exit(1)
	}

	n, err := storage.ExportParquet(*outPath, attempts)
	if err != nil {
		fmt.Printf("Export failed: %v\n", err)
		journal.Close()
		os.Exit(1)
	}

	stats, err := journal.GetStats()
	if err == nil {
		fmt.Printf("Journal: %d cycles, %d attempts, %d executed\n", stats["cycles"], stats["attempts"], stats["executed"])
	}
	fmt.Printf("Wrote %d attempts to %s\n", n, *outPath)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
