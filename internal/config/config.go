package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey         string
	GeminiModel          string
	GeminiEmbeddingModel string
	LLMMaxTokens         int
	LLMTemperature       float64

	DatabaseURL string
	HTTPPort    string
	LogLevel    string
	JWTSecret   string

	AdminUser     string
	AdminPassword string

	SessionExpireAfter     int
	SessionTranscriptLimit int
	SessionIdleMinutes     int

	ImageMatchThreshold float64
	ImageSearchK        int

	IndexBackend           string // "memory" or "qdrant"
	QdrantURL              string
	QdrantAPIKey           string
	QdrantCollectionPrefix string
	ImageEmbedderURL       string

	PersonaFile string

	FBVerifyToken     string
	FBPageAccessToken string
	FBAppSecret       string
	FBGraphURL        string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		GeminiEmbeddingModel: getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		LLMMaxTokens:         getEnvAsInt("LLM_MAX_TOKENS", 300),
		LLMTemperature:       getEnvAsFloat("LLM_TEMPERATURE", 0.7),

		DatabaseURL: getEnv("DATABASE_URL", "smart_rag.db"),
		HTTPPort:    getEnv("HTTP_PORT", "8000"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		AdminUser:     getEnv("ADMIN_USER", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		SessionExpireAfter:     getEnvAsInt("SESSION_EXPIRE_AFTER", 20),
		SessionTranscriptLimit: getEnvAsInt("SESSION_TRANSCRIPT_LIMIT", 10),
		SessionIdleMinutes:     getEnvAsInt("SESSION_IDLE_MINUTES", 24*60),

		ImageMatchThreshold: getEnvAsFloat("IMAGE_MATCH_THRESHOLD", 0.8),
		ImageSearchK:        getEnvAsInt("IMAGE_SEARCH_K", 1),

		IndexBackend:           getEnv("INDEX_BACKEND", "memory"),
		QdrantURL:              getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:           getEnv("QDRANT_API_KEY", ""),
		QdrantCollectionPrefix: getEnv("QDRANT_COLLECTION_PREFIX", "smart_rag"),
		ImageEmbedderURL:       getEnv("IMAGE_EMBEDDER_URL", "http://localhost:9000"),

		PersonaFile: getEnv("PERSONA_FILE", "persona.yaml"),

		FBVerifyToken:     getEnv("FB_VERIFY_TOKEN", ""),
		FBPageAccessToken: getEnv("FB_PAGE_ACCESS_TOKEN", ""),
		FBAppSecret:       getEnv("FB_APP_SECRET", ""),
		FBGraphURL:        getEnv("FB_GRAPH_URL", "https://graph.facebook.com/v21.0/me/messages"),
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
