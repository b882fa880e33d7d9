package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Artifact paths. Each pipeline stage reads the previous stage's output.
	RawCSVPath      string
	CleanedCSVPath  string
	FeaturesCSVPath string
	ModelPath       string

	// Scraping
	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	PagesToScrape  int
	ChromeBin      string

	// Reference year for car_age. Defaults to the wall-clock year so a retrain
	// picks it up automatically; pin via env for reproducible runs.
	CurrentYear int

	// Prediction API
	APIAddr string

	// Optional PostgreSQL sink for cleaned listings.
	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		RawCSVPath:      getEnv("RAW_CSV_PATH", "./data/raw/olx_cars.csv"),
		CleanedCSVPath:  getEnv("CLEANED_CSV_PATH", "./data/processed/olx_cars_cleaned.csv"),
		FeaturesCSVPath: getEnv("FEATURES_CSV_PATH", "./data/features/olx_cars_features_v1.csv"),
		ModelPath:       getEnv("MODEL_PATH", "./models/price_predictor.gob"),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 2000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		PagesToScrape:  getEnvInt("PAGES_TO_SCRAPE", 100),
		ChromeBin:      getEnv("CHROME_BIN", ""),

		CurrentYear: getEnvInt("CURRENT_YEAR", time.Now().Year()),

		APIAddr: getEnv("API_ADDR", ":8000"),

		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "cars_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
