// audit-images prints a catalog completeness report: how many cards
// still lack stored artwork, per TCG and series. Useful after a
// -skip-images ingestion pass or a storage migration.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/database"
	"github.com/Vinke1/collectorverse-tcg-sub002/internal/services"
)

func main() {
	dbPath := flag.String("db", envOr("DB_PATH", "./catalog.db"), "Path to SQLite database")
	asJSON := flag.Bool("json", false, "Emit the report as JSON")
	flag.Parse()

	if err := database.InitializeQuiet(*dbPath); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	catalog := services.NewCatalogService(database.GetDB())
	audit := services.NewAuditService(catalog, 0)

	report, err := audit.RunOnce(context.Background())
	if err != nil {
		log.Fatalf("Audit failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("Failed to encode report: %v", err)
		}
		return
	}

	fmt.Println("=== Missing Image Report ===")
	fmt.Printf("Total cards:   %d\n", report.TotalCards)
	fmt.Printf("Missing image: %d\n", report.TotalMissing)

	if len(report.PerSeries) == 0 {
		fmt.Println("\nEvery card has artwork.")
		return
	}

	fmt.Println("\n--- Per series ---")
	for _, row := range report.PerSeries {
		fmt.Printf("  %-12s %-10s %d\n", row.TCGSlug, row.SeriesCode, row.Missing)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
