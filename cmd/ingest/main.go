// ingest crawls a configured card source and upserts every discovered
// card into the catalog, materializing artwork along the way.
//
// Usage: ingest -tcg=<slug> [-series=<code>] [-lang=<code>] [options]
//
// The pipeline per item: parse the identifier out of the source slug,
// normalize name and rarity, ensure the card image exists in storage,
// upsert the catalog row, record completion in the checkpoint file.
// Re-running after an interrupt resumes from the checkpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/database"
	"github.com/Vinke1/collectorverse-tcg-sub002/internal/services"
)

func main() {
	tcg := flag.String("tcg", "", "TCG slug to ingest, must match a sources.json entry (required)")
	series := flag.String("series", "", "Restrict the run to one series code")
	lang := flag.String("lang", "", "Restrict the run to one language code")
	limit := flag.Int("limit", 0, "Stop after this many items (0 = no limit)")
	dryRun := flag.Bool("dry-run", false, "Report what would happen without writing anything")
	continueOnError := flag.Bool("continue-on-error", false, "Keep going after database failures")
	skipImages := flag.Bool("skip-images", false, "Data-only pass, leave stored artwork untouched")
	dataDir := flag.String("data", envOr("DATA_DIR", "./data"), "Directory holding sources.json and normalization.json")
	dbPath := flag.String("db", envOr("DB_PATH", "./catalog.db"), "Path to SQLite database")
	imageDir := flag.String("images", envOr("IMAGE_STORAGE_DIR", "./images"), "Image storage directory")
	imageBaseURL := flag.String("image-base-url", envOr("IMAGE_BASE_URL", "/images"), "Public URL prefix for stored images")
	checkpointDir := flag.String("checkpoints", envOr("CHECKPOINT_DIR", "./checkpoints"), "Directory for checkpoint files")
	flag.Parse()

	if *tcg == "" {
		fmt.Println("Usage: ingest -tcg=<slug> [options]")
		fmt.Println("")
		fmt.Println("Crawls the configured source for a TCG and upserts every card")
		fmt.Println("into the catalog, downloading artwork as it goes.")
		fmt.Println("")
		fmt.Println("Options:")
		fmt.Println("  -tcg                TCG slug from sources.json (required)")
		fmt.Println("  -series             Only this series code")
		fmt.Println("  -lang               Only this language code")
		fmt.Println("  -limit              Stop after N items")
		fmt.Println("  -dry-run            Report planned work, write nothing")
		fmt.Println("  -continue-on-error  Keep going after database failures")
		fmt.Println("  -skip-images        Data-only pass, no artwork writes")
		fmt.Println("")
		fmt.Println("Examples:")
		fmt.Println("  # Preview one series")
		fmt.Println("  ingest -tcg=onepiece -series=OP02 -lang=en -dry-run")
		fmt.Println("")
		fmt.Println("  # Full ingestion for a TCG")
		fmt.Println("  ingest -tcg=onepiece")
		os.Exit(1)
	}

	configs, err := services.LoadSourceConfigs(filepath.Join(*dataDir, "sources.json"))
	if err != nil {
		log.Fatalf("Failed to load source configs: %v", err)
	}
	cfg, ok := services.FindSourceConfig(configs, *tcg)
	if !ok {
		log.Fatalf("No source configured for TCG %q", *tcg)
	}
	if *series != "" {
		if _, found := cfg.FindSeries(*series); !found {
			log.Fatalf("Series %q is not configured for %s", *series, cfg.TCG)
		}
	}
	if *lang != "" && !cfg.HasLanguage(*lang) {
		log.Fatalf("Language %q is not configured for %s", *lang, cfg.TCG)
	}

	tables, err := services.LoadNormalizationTables(filepath.Join(*dataDir, "normalization.json"))
	if err != nil {
		log.Fatalf("Failed to load normalization tables: %v", err)
	}

	if err := database.InitializeQuiet(*dbPath); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	store, err := services.NewFileObjectStore(*imageDir, *imageBaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize image storage: %v", err)
	}

	if !*dryRun {
		if err := os.MkdirAll(*checkpointDir, 0755); err != nil {
			log.Fatalf("Failed to create checkpoint directory: %v", err)
		}
	}

	catalog := services.NewCatalogService(database.GetDB())
	imageClient := services.NewFetchClient(cfg.Name, time.Duration(cfg.DetailDelay())*time.Millisecond)
	images := services.NewImagePipeline(store, imageClient, catalog, *dryRun)
	source := services.NewCardSource(cfg)
	normalizer := services.NewNormalizer(tables)

	runner := services.NewIngestRunner(cfg, source, normalizer, images, catalog, services.IngestOptions{
		Series:          *series,
		Language:        *lang,
		Limit:           *limit,
		DryRun:          *dryRun,
		ContinueOnError: *continueOnError,
		SkipImages:      *skipImages,
		CheckpointDir:   *checkpointDir,
	})

	// Cancel on interrupt so the checkpoint captures the stop point
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Interrupt received, stopping after the current item...")
		cancel()
	}()

	start := time.Now()
	result, runErr := runner.Run(ctx)
	printSummary(result, *dryRun, *limit, time.Since(start))

	if runErr != nil {
		log.Fatalf("Run aborted: %v", runErr)
	}
}

func printSummary(r *services.RunResult, dryRun bool, limit int, elapsed time.Duration) {
	fmt.Println("")
	fmt.Println("=== Ingestion Summary ===")
	if dryRun {
		fmt.Println("(DRY RUN - no changes made)")
	}
	fmt.Printf("Attempted:         %d\n", r.Attempted)
	if r.BulkUpserted > 0 {
		fmt.Printf("Upserted:          %d\n", r.BulkUpserted)
	} else {
		fmt.Printf("Created:           %d\n", r.Created)
		fmt.Printf("Updated:           %d\n", r.Updated)
	}
	fmt.Printf("Images downloaded: %d\n", r.ImagesDownloaded)
	fmt.Printf("Images copied:     %d\n", r.ImagesCopied)
	fmt.Printf("Checkpoint skips:  %d\n", r.Skipped)
	fmt.Printf("Unparseable:       %d\n", r.ParseSkipped)
	fmt.Printf("Not found:         %d\n", r.NotFound)
	fmt.Printf("Errors:            %d\n", r.Errors)
	fmt.Printf("Elapsed:           %s\n", elapsed.Round(time.Second))

	if len(r.ErrorsByStage) > 0 {
		fmt.Println("\n--- Errors by stage ---")
		for _, kind := range []services.FailureKind{
			services.ParseFailure,
			services.FetchFailure,
			services.TranscodeFailure,
			services.StorageFailure,
			services.DatabaseFailure,
		} {
			if n := r.ErrorsByStage[kind]; n > 0 {
				fmt.Printf("  %-12s %d\n", string(kind)+":", n)
			}
		}
	}

	if len(r.Truncated) > 0 {
		fmt.Println("\n--- Truncated listings (source returned fewer items than expected) ---")
		for _, t := range r.Truncated {
			fmt.Printf("  %s\n", t)
		}
	}

	if len(r.UnknownRarities) > 0 {
		fmt.Println("\n--- Unknown rarities (add to normalization.json) ---")
		for _, rarity := range r.UnknownRarities {
			fmt.Printf("  %q\n", rarity)
		}
	}

	if !dryRun {
		switch {
		case r.CheckpointGone:
			fmt.Println("\nClean run, checkpoint removed.")
		case r.Errors > 0:
			fmt.Println("\nErrors occurred, checkpoint kept for resume.")
		case limit > 0:
			fmt.Println("\nCheckpoint kept, run stopped at the item limit.")
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
