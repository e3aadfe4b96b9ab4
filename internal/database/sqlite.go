package database

import (
	"log"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Initialize(dbPath string) error {
	return initialize(dbPath, logger.Default.LogMode(logger.Info))
}

// InitializeQuiet opens the database with SQL logging reduced to
// warnings. Ingestion runs touch thousands of rows and the default
// Info logger would drown the per-item progress output.
func InitializeQuiet(dbPath string) error {
	return initialize(dbPath, logger.Default.LogMode(logger.Warn))
}

func initialize(dbPath string, gormLogger logger.Interface) error {
	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return err
	}

	log.Println("Database connected successfully")

	// Deduplicate before AutoMigrate adds the unique constraints,
	// otherwise index creation fails on legacy data.
	if err := cleanupDuplicateCards(DB); err != nil {
		return err
	}

	err = DB.AutoMigrate(
		&models.TCGGame{},
		&models.Series{},
		&models.Card{},
		&models.UserCollection{},
	)
	if err != nil {
		return err
	}

	if err := RunMigrations(DB); err != nil {
		return err
	}

	log.Println("Database migration completed")
	return nil
}

func GetDB() *gorm.DB {
	return DB
}
