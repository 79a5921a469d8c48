package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string
	JWTSecret   string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	// Embeddings backend: "siliconflow" (OpenAI-compatible) or "gemini".
	EmbedProvider  string
	EmbedAPIKey    string
	EmbedBaseURL   string
	EmbedBatchSize int
	EmbedMaxTokens int
	EmbedTimeout   time.Duration
	EmbedRetries   int

	GeminiAPIKey string
	GenModel     string

	SearchLimit     int
	ScoreThreshold  float64
	IngestWorkers   int
	IngestQueueSize int
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "knowbase-docs"),

		EmbedProvider:  getEnv("EMBED_PROVIDER", "siliconflow"),
		EmbedAPIKey:    getEnv("EMBED_API_KEY", ""),
		EmbedBaseURL:   getEnv("EMBED_BASE_URL", "https://api.siliconflow.cn/v1"),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 32),
		EmbedMaxTokens: getEnvInt("EMBED_MAX_TOKENS", 512),
		EmbedTimeout:   time.Duration(getEnvInt("EMBED_TIMEOUT_SECONDS", 30)) * time.Second,
		EmbedRetries:   getEnvInt("EMBED_RETRIES", 2),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),

		SearchLimit:     getEnvInt("SEARCH_LIMIT", 10),
		ScoreThreshold:  getEnvFloat("SCORE_THRESHOLD", 0.35),
		IngestWorkers:   getEnvInt("INGEST_WORKERS", 2),
		IngestQueueSize: getEnvInt("INGEST_QUEUE_SIZE", 64),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %f", key, v, def)
		return def
	}
	return f
}
