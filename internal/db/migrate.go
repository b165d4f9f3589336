package db

import (
	"ever_greater/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus"

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
)

// Migrate opens a connection and applies the schema, for the migrate command
func Migrate(dsn string) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true}) // Open a connection to the database
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err) // Log fatal error if connection fails
	}
	if err := Setup(db); err != nil {
		logrus.Fatalf("migration failed: %v", err) // Log fatal error if migration fails
	}
	logrus.Info("Migration completed.") // Log successful migration
}

// Setup performs automatic migration for the database schema and seeds the
// singleton global counter row at zero on first boot. Also run by the server
// at startup so a fresh database works without a separate migrate step.
func Setup(db *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := db.AutoMigrate(&domain.User{}, &domain.GlobalCounter{}, &domain.Purchase{}); err != nil {
		return err
	}
	return seedCounter(db)
}

// seedCounter inserts the counter row with count 0 if it does not exist yet.
// The counter is created exactly once and only ever incremented afterwards.
func seedCounter(db *gorm.DB) error {
	var existing int64
	if err := db.Model(&domain.GlobalCounter{}).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		logrus.Info("Global counter already initialized") // Nothing to seed
		return nil
	}
	counter := domain.GlobalCounter{ID: domain.GlobalCounterID, Count: 0}
	if err := db.Create(&counter).Error; err != nil {
		return err
	}
	logrus.Info("Global counter initialized with count = 0")
	return nil
}
