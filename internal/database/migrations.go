package database

import (
	"log"

	"gorm.io/gorm"
)

// cleanupDuplicateCards removes duplicate cards entries before the unique
// constraint on (series_id, number, language) is added.
// This runs BEFORE AutoMigrate to prevent constraint violations.
func cleanupDuplicateCards(db *gorm.DB) error {
	// Check if the table exists
	if !db.Migrator().HasTable("cards") {
		return nil // No table, no duplicates to clean
	}

	// Normalize NULL/empty language values to 'en' so they collapse
	// into the same conflict key before deduplication
	if db.Migrator().HasColumn("cards", "language") {
		result := db.Exec(`UPDATE cards SET language = 'en' WHERE language IS NULL OR language = ''`)
		if result.Error != nil {
			log.Printf("Warning: failed to normalize language values: %v", result.Error)
		}
	}

	// Find and remove duplicates, keeping the most recently inserted row
	result := db.Exec(`
		DELETE FROM cards
		WHERE id NOT IN (
			SELECT MAX(id)
			FROM cards
			GROUP BY series_id, number, language
		)
	`)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Printf("Cleaned up %d duplicate cards entries", result.RowsAffected)
	}

	return nil
}

// RunMigrations runs any custom data migrations after schema changes
func RunMigrations(db *gorm.DB) error {
	if err := migrateLanguageField(db); err != nil {
		return err
	}
	if err := migrateVariantColumn(db); err != nil {
		return err
	}
	return nil
}

// migrateLanguageField rewrites legacy long-form language names to the
// short codes the ingestion pipeline writes.
// Safe to run multiple times; it only touches rows still holding old values.
func migrateLanguageField(db *gorm.DB) error {
	if db.Migrator().HasColumn("cards", "language") {
		renames := map[string]string{
			"English":  "en",
			"French":   "fr",
			"Japanese": "jp",
			"Chinese":  "zh",
			"German":   "de",
			"Spanish":  "es",
			"Italian":  "it",
		}
		for long, short := range renames {
			db.Exec(`UPDATE cards SET language = ? WHERE language = ?`, short, long)
		}
	}

	// Drop legacy unique index that did not include language (prevents
	// multi-language rows for the same collector number).
	// Note: AutoMigrate will not reliably drop old indexes.
	if db.Migrator().HasIndex("cards", "idx_cards_series_number") {
		if err := db.Migrator().DropIndex("cards", "idx_cards_series_number"); err != nil {
			log.Printf("Warning: failed to drop legacy cards index idx_cards_series_number: %v", err)
		}
	}

	return nil
}

// migrateVariantColumn folds the legacy standalone variant column into
// the number suffix form ("004" + "ALT" -> "004-ALT")
func migrateVariantColumn(db *gorm.DB) error {
	if !db.Migrator().HasColumn("cards", "variant") {
		return nil
	}

	log.Println("Migrating cards: variant column -> number suffix")

	result := db.Exec(`
		UPDATE cards
		SET number = number || '-' || variant
		WHERE variant IS NOT NULL AND variant != ''
		  AND number NOT LIKE '%-' || variant
	`)
	if result.Error != nil {
		log.Printf("Warning: failed to fold variant column into number: %v", result.Error)
		return nil
	}
	if result.RowsAffected > 0 {
		log.Printf("Migrated %d cards rows", result.RowsAffected)
	}

	if err := db.Migrator().DropColumn("cards", "variant"); err != nil {
		log.Printf("Warning: failed to drop legacy cards variant column: %v", err)
	}

	return nil
}
