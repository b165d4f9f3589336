package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort      string // Application port
	DBUser       string // Database user
	DBPassword   string // Database password
	DBHost       string // Database host
	DBPort       string // Database port
	DBName       string // Database name
	JWTSecret    string // JWT secret key
	RedisAddr    string // Redis server address
	RedisPass    string // Redis password
	RedisDB      int    // Redis database number
	TickSeconds  int    // Aggregation tick interval in seconds
	CORSOrigin   string // Allowed browser origin
	IsProd       bool   // Is production environment
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	tickSeconds, _ := strconv.Atoi(os.Getenv("TICK_INTERVAL_SECONDS"))
	if tickSeconds <= 0 {
		tickSeconds = 4 // Default aggregation interval
	}
	return &Config{
		AppPort:     getEnv("APP_PORT", "4000"),              // Application port
		DBUser:      os.Getenv("DB_USER"),                    // Database user
		DBPassword:  os.Getenv("DB_PASSWORD"),                // Database password
		DBHost:      os.Getenv("DB_HOST"),                    // Database host
		DBPort:      os.Getenv("DB_PORT"),                    // Database port
		DBName:      os.Getenv("DB_NAME"),                    // Database name
		JWTSecret:   os.Getenv("JWT_SECRET"),                 // JWT secret key
		RedisAddr:   os.Getenv("REDIS_ADDR"),                 // Redis server address
		RedisPass:   os.Getenv("REDIS_PASS"),                 // Redis password
		RedisDB:     redisDB,                                 // Redis database number
		TickSeconds: tickSeconds,                             // Aggregation tick interval
		CORSOrigin:  getEnv("CORS_ORIGIN", "http://localhost:3000"), // Allowed browser origin
		IsProd:      os.Getenv("IS_PROD") == "true",          // Is production environment
	}
}

// getEnv returns an environment variable or a fallback when unset
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
