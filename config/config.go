package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string

	JWTSecret         string
	AdminUsername     string
	AdminPasswordHash string

	// scheduler
	DataDir             string
	MaxWorkers          int
	PollIntervalSeconds int
	TasksFile           string

	// storage backends
	MongoDBURI      string
	MongoDBDatabase string
	DBHost          string
	DBPort          string
	DBUser          string
	DBPassword      string
	DBName          string
	DBSSLMode       string

	// data sources
	FredAPIKey string
}

var AppConfig *Config

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		JWTSecret:         getEnv("JWT_SECRET", "your-secret-key"),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		DataDir:             getEnv("DATA_DIR", "data"),
		MaxWorkers:          getEnvInt("MAX_WORKERS", 4),
		PollIntervalSeconds: getEnvInt("POLL_INTERVAL_SECONDS", 5),
		TasksFile:           getEnv("TASKS_FILE", "data/tasks.json"),

		MongoDBURI:      getEnv("MONGODB_URI", ""),
		MongoDBDatabase: getEnv("MONGODB_DATABASE", "marketsync"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBName:          getEnv("DB_NAME", "marketsync"),
		DBSSLMode:       getEnv("DB_SSLMODE", "disable"),

		FredAPIKey: getEnv("FRED_API_KEY", ""),
	}

	AppConfig = config
	return config, nil
}

// LogSummary logs the effective configuration with hosts masked
func (c *Config) LogSummary() {
	log.Printf("Config: port=%s env=%s data_dir=%s workers=%d poll=%ds",
		c.Port, c.Environment, c.DataDir, c.MaxWorkers, c.PollIntervalSeconds)
	if c.MongoDBURI != "" {
		log.Printf("Config: mongodb=%s db=%s", maskHost(c.MongoDBURI), c.MongoDBDatabase)
	}
	log.Printf("Config: postgres host=%s port=%s dbname=%s", maskHost(c.DBHost), c.DBPort, c.DBName)
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("⚠️ Invalid integer for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}
