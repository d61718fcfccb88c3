package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	JWTSecret    string

	CashfreeBaseURL    string
	CashfreeClientID   string
	CashfreeSecret     string
	CashfreeAPIVersion string
	CashfreeReturnURL  string

	PokemonBaseURL  string
	ScryfallBaseURL string
	YugiohBaseURL   string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:     os.Getenv("HTTP_ADDR"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: []string{os.Getenv("KAFKA_BROKER")},
		JWTSecret:    os.Getenv("JWT_SECRET"),

		CashfreeBaseURL:    os.Getenv("CASHFREE_API_BASE_URL"),
		CashfreeClientID:   os.Getenv("CASHFREE_CLIENT_ID"),
		CashfreeSecret:     os.Getenv("CASHFREE_CLIENT_SECRET"),
		CashfreeAPIVersion: os.Getenv("CASHFREE_API_VERSION"),
		CashfreeReturnURL:  os.Getenv("CASHFREE_RETURN_URL"),

		PokemonBaseURL:  os.Getenv("POKEMON_API_BASE_URL"),
		ScryfallBaseURL: os.Getenv("SCRYFALL_API_BASE_URL"),
		YugiohBaseURL:   os.Getenv("YGOPRODECK_API_BASE_URL"),
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=ripvault sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 1 && cfg.KafkaBrokers[0] == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "supersecret"
	}

	slog.Info("config loaded", "http_addr", cfg.HTTPAddr, "postgres_dsn", cfg.PostgresDSN, "redis_addr", cfg.RedisAddr, "kafka_brokers", cfg.KafkaBrokers)
	return cfg
}
