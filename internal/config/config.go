package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	DBUrl  string
	DBNs   string
	DBDb   string
	DBUser string
	DBPass string

	// HTTPAddr is the bind address of the conversation API.
	HTTPAddr string

	// PageSize is the default history page size.
	PageSize int
}

// New loads configuration from environment variables.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		DBUrl:    os.Getenv("SURREAL_URL"),
		DBUser:   os.Getenv("SURREAL_USER"),
		DBPass:   os.Getenv("SURREAL_PASS"),
		DBNs:     os.Getenv("SURREAL_NS"),
		DBDb:     os.Getenv("SURREAL_DB"),
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),
		PageSize: envIntOr("PAGE_SIZE", 50),
	}

	if cfg.DBUrl == "" || cfg.DBNs == "" || cfg.DBDb == "" {
		log.Fatal("Required environment variables SURREAL_URL, SURREAL_NS, or SURREAL_DB are not set.")
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
