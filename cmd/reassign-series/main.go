// reassign-series moves catalog cards from one series to another,
// optionally relabeling their rarity along the way.
//
// Usage: reassign-series -tcg=<slug> -from=<code> -to=<code> [-dry-run] [-execute]
//
// The usual reason: promo cards ingested under a regular series before
// the parser learned to split them out. The tool:
// 1. Finds cards in the source series (optionally only given numbers)
// 2. Skips cards whose number/language already exists in the target
// 3. With -execute, rewrites series_id (and rarity when -rarity is set)
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gorm.io/gorm"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/database"
	"github.com/Vinke1/collectorverse-tcg-sub002/internal/models"
)

// ReassignResult tracks the outcome for each candidate card
type ReassignResult struct {
	CardID   uint
	Number   string
	Language string
	Name     string
	Action   string // "moved", "conflict", "error"
	Reason   string
}

func main() {
	dbPath := flag.String("db", envOr("DB_PATH", "./catalog.db"), "Path to SQLite database")
	tcg := flag.String("tcg", "", "TCG slug (required)")
	from := flag.String("from", "", "Source series code (required)")
	to := flag.String("to", "", "Target series code (required)")
	numbers := flag.String("numbers", "", "Comma-separated card numbers to move (default: all)")
	rarity := flag.String("rarity", "", "Relabel moved cards with this rarity")
	dryRun := flag.Bool("dry-run", false, "Preview changes without modifying database")
	execute := flag.Bool("execute", false, "Execute the reassignment (required to make changes)")
	flag.Parse()

	if *tcg == "" || *from == "" || *to == "" {
		fmt.Println("Usage: reassign-series -tcg=<slug> -from=<code> -to=<code> [options]")
		fmt.Println("")
		fmt.Println("Moves cards between series within one TCG, e.g. promos that were")
		fmt.Println("ingested under a regular series.")
		fmt.Println("")
		fmt.Println("Options:")
		fmt.Println("  -db       Path to SQLite database")
		fmt.Println("  -tcg      TCG slug (required)")
		fmt.Println("  -from     Source series code (required)")
		fmt.Println("  -to       Target series code (required)")
		fmt.Println("  -numbers  Only these card numbers, comma separated")
		fmt.Println("  -rarity   Relabel moved cards with this rarity")
		fmt.Println("  -dry-run  Preview changes without modifying database")
		fmt.Println("  -execute  Execute the reassignment (required to make changes)")
		fmt.Println("")
		fmt.Println("Examples:")
		fmt.Println("  # Preview moving the promo numbers out of OP02")
		fmt.Println("  reassign-series -tcg=onepiece -from=OP02 -to=P -numbers=1/P3,2/P3 -dry-run")
		os.Exit(1)
	}

	if !*dryRun && !*execute {
		fmt.Println("Error: Must specify either -dry-run or -execute")
		os.Exit(1)
	}

	if err := database.InitializeQuiet(*dbPath); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	db := database.GetDB()

	fromSeries, err := findSeries(db, *tcg, *from)
	if err != nil {
		log.Fatalf("Source series: %v", err)
	}
	toSeries, err := findSeries(db, *tcg, *to)
	if err != nil {
		log.Fatalf("Target series: %v", err)
	}

	query := db.Where("series_id = ?", fromSeries.ID)
	if *numbers != "" {
		var wanted []string
		for _, n := range strings.Split(*numbers, ",") {
			if n = strings.TrimSpace(n); n != "" {
				wanted = append(wanted, n)
			}
		}
		query = query.Where("number IN ?", wanted)
	}

	var cards []models.Card
	if err := query.Order("number, language").Find(&cards).Error; err != nil {
		log.Fatalf("Failed to query cards: %v", err)
	}

	log.Printf("Found %d cards in %s to move to %s", len(cards), fromSeries.Code, toSeries.Code)
	if len(cards) == 0 {
		fmt.Println("Nothing to move!")
		return
	}

	var results []ReassignResult
	for i, card := range cards {
		fmt.Printf("[%d/%d] %s %s (%s)\n", i+1, len(cards), card.Number, card.Name, card.Language)

		result := ReassignResult{
			CardID:   card.ID,
			Number:   card.Number,
			Language: string(card.Language),
			Name:     card.Name,
		}

		// The target may already hold this number/language
		var existing models.Card
		err := db.Where("series_id = ? AND number = ? AND language = ?",
			toSeries.ID, card.Number, card.Language).
			First(&existing).Error
		if err == nil {
			result.Action = "conflict"
			result.Reason = fmt.Sprintf("card %d already occupies %s/%s in %s",
				existing.ID, card.Number, card.Language, toSeries.Code)
			fmt.Printf("  → Skipped: %s\n", result.Reason)
			results = append(results, result)
			continue
		}

		result.Action = "moved"
		if *execute && !*dryRun {
			updates := map[string]interface{}{"series_id": toSeries.ID}
			if *rarity != "" {
				updates["rarity"] = *rarity
			}
			if err := db.Model(&models.Card{}).Where("id = ?", card.ID).Updates(updates).Error; err != nil {
				result.Action = "error"
				result.Reason = err.Error()
				fmt.Printf("  → Update failed: %v\n", err)
			}
		}

		results = append(results, result)
	}

	printSummary(results, *dryRun, fromSeries.Code, toSeries.Code)
}

func findSeries(db *gorm.DB, tcgSlug, code string) (*models.Series, error) {
	var series models.Series
	err := db.Joins("JOIN tcg_games ON tcg_games.id = series.tcg_game_id").
		Where("tcg_games.slug = ? AND UPPER(series.code) = UPPER(?)", tcgSlug, code).
		First(&series).Error
	if err != nil {
		return nil, fmt.Errorf("no series %q for TCG %q: %w", code, tcgSlug, err)
	}
	return &series, nil
}

func printSummary(results []ReassignResult, dryRun bool, from, to string) {
	var moved, conflicts, errors int
	for _, r := range results {
		switch r.Action {
		case "moved":
			moved++
		case "conflict":
			conflicts++
		case "error":
			errors++
		}
	}

	fmt.Println("")
	fmt.Printf("=== Reassignment Summary (%s -> %s) ===\n", from, to)
	if dryRun {
		fmt.Println("(DRY RUN - no changes made)")
	}
	fmt.Printf("Moved:           %d\n", moved)
	fmt.Printf("Conflicts:       %d\n", conflicts)
	fmt.Printf("Errors:          %d\n", errors)
	fmt.Printf("Total processed: %d\n", len(results))

	if conflicts > 0 {
		fmt.Println("\n--- Conflicts (need manual resolution) ---")
		for _, r := range results {
			if r.Action == "conflict" {
				fmt.Printf("  ID %d: %s %s (%s) - %s\n", r.CardID, r.Number, r.Name, r.Language, r.Reason)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
