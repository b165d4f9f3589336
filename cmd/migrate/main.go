package main

import (
	"ever_greater/internal/config" // Custom package for configuration
	"ever_greater/internal/db"     // Custom package for database migration
)

// Main function to run database migration
func main() {
	cfg := config.LoadConfig() // Load configuration
	// Setup Data Source Name (DSN) and run migration
	dsn := cfg.DBUser + ":" + cfg.DBPassword + "@tcp(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBName + "?parseTime=true"
	db.Migrate(dsn) // Run migration
}
