package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	LLMProvider  string // "gemini" or "groq"
	GeminiAPIKey string
	GroqAPIKey   string
	// Groq serves no embeddings endpoint, so with LLM_PROVIDER=groq the
	// embedding side points at a separate OpenAI-compatible service.
	EmbeddingAPIKey  string
	EmbeddingBaseURL string
	EmbeddingModel   string
	DatabaseURL      string
	HTTPPort         string
	LogLevel         string
	JWTSecret        string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		LLMProvider:      getEnv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GroqAPIKey:       getEnv("GROQ_API_KEY", ""),
		EmbeddingAPIKey:  getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingBaseURL: getEnv("EMBEDDING_BASE_URL", ""),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", ""),
		DatabaseURL:      getEnv("DATABASE_URL", "memchat.db"),
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
	}

	switch AppConfig.LLMProvider {
	case "gemini":
		if AppConfig.GeminiAPIKey == "" {
			log.Fatal("GEMINI_API_KEY environment variable is required when LLM_PROVIDER=gemini")
		}
	case "groq":
		if AppConfig.GroqAPIKey == "" {
			log.Fatal("GROQ_API_KEY environment variable is required when LLM_PROVIDER=groq")
		}
		if AppConfig.EmbeddingAPIKey == "" {
			log.Fatal("EMBEDDING_API_KEY environment variable is required when LLM_PROVIDER=groq")
		}
	default:
		log.Fatalf("Unknown LLM_PROVIDER %q (expected \"gemini\" or \"groq\")", AppConfig.LLMProvider)
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
