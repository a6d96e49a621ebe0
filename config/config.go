package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort          string
	AppMode          string
	JWTSecret        string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	DBHost           string
	DBPort           string
	DBUser           string
	DBPassword       string
	DBName           string
	MediaAppID       string
	TokenServiceURL  string
	TokenTTLSeconds  int
	CallRecordTTLHrs int
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:          getEnv("APP_PORT", "8080"),
		AppMode:          getEnv("APP_MODE", "development"),
		JWTSecret:        getEnv("JWT_SECRET", "change-me"),
		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvAsInt("REDIS_DB", 0),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", "postgres"),
		DBName:           getEnv("DB_NAME", "carelink"),
		MediaAppID:       getEnv("MEDIA_APP_ID", ""),
		TokenServiceURL:  getEnv("TOKEN_SERVICE_URL", "http://localhost:8081"),
		TokenTTLSeconds:  getEnvAsInt("TOKEN_TTL_SECONDS", 3600),
		CallRecordTTLHrs: getEnvAsInt("CALL_RECORD_TTL_HOURS", 24),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
