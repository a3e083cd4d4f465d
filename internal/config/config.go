package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
	StorePgVector = "pgvector"
	StoreQdrant   = "qdrant"
	StorePinecone = "pinecone"

	IDStrategySequential = "sequential"
	IDStrategyContent    = "content"

	DefaultNamespace = "pdf-qa"
)

type Config struct {
	LLMProvider         string  `yaml:"llm_provider"`
	OpenAIAPIKey        string  `yaml:"openai_api_key"`
	OpenAIBaseURL       string  `yaml:"openai_base_url"`
	GeminiAPIKey        string  `yaml:"gemini_api_key"`
	EmbeddingModel      string  `yaml:"embedding_model"`
	ChatModel           string  `yaml:"chat_model"`
	EmbeddingDimensions int     `yaml:"embedding_dimensions"`
	EmbedRatePerSec     float64 `yaml:"embed_rate_per_sec"`
	EmbedWorkers        int     `yaml:"embed_workers"`
	EmbedBatchSize      int     `yaml:"embed_batch_size"`

	VectorStore      string `yaml:"vector_store"`
	DatabaseURL      string `yaml:"database_url"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantAPIKey     string `yaml:"qdrant_api_key"`
	QdrantCollection string `yaml:"qdrant_collection"`
	PineconeHost     string `yaml:"pinecone_host"`
	PineconeAPIKey   string `yaml:"pinecone_api_key"`
	Namespace        string `yaml:"namespace"`
	ChunkIDStrategy  string `yaml:"chunk_id_strategy"`

	ChunkSize   int `yaml:"chunk_size"`
	TopK        int `yaml:"top_k"`
	MaxUploadMB int `yaml:"max_upload_mb"`

	HTTPPort           string `yaml:"http_port"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
	LogLevel           string `yaml:"log_level"`
}

var AppConfig Config

// LoadConfig populates AppConfig and exits the process if the configuration
// is unusable.
func LoadConfig() {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	AppConfig = cfg
}

// Load reads .env (if present), then the optional YAML file named by
// CONFIG_FILE, then the environment. Later sources win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	// File values are decoded over the defaults, so an explicit zero in the
	// file (embed_rate_per_sec: 0 turns throttling off) is kept.
	cfg := defaults()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.LLMProvider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLMProvider))
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.EmbeddingModel = getEnv("EMBEDDING_MODEL", orDefault(cfg.EmbeddingModel, defaultEmbeddingModel(cfg.LLMProvider)))
	cfg.ChatModel = getEnv("CHAT_MODEL", orDefault(cfg.ChatModel, defaultChatModel(cfg.LLMProvider)))
	cfg.EmbeddingDimensions = getEnvAsInt("EMBEDDING_DIMENSIONS", orDefaultInt(cfg.EmbeddingDimensions, defaultDimensions(cfg.LLMProvider)))
	cfg.EmbedRatePerSec = getEnvAsFloat("EMBED_RATE_PER_SEC", cfg.EmbedRatePerSec)
	cfg.EmbedWorkers = getEnvAsInt("EMBED_WORKERS", cfg.EmbedWorkers)
	cfg.EmbedBatchSize = getEnvAsInt("EMBED_BATCH_SIZE", cfg.EmbedBatchSize)

	cfg.VectorStore = strings.ToLower(getEnv("VECTOR_STORE", cfg.VectorStore))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.QdrantURL = getEnv("QDRANT_URL", cfg.QdrantURL)
	cfg.QdrantAPIKey = getEnv("QDRANT_API_KEY", cfg.QdrantAPIKey)
	cfg.QdrantCollection = getEnv("QDRANT_COLLECTION", cfg.QdrantCollection)
	cfg.PineconeHost = getEnv("PINECONE_HOST", cfg.PineconeHost)
	cfg.PineconeAPIKey = getEnv("PINECONE_API_KEY", cfg.PineconeAPIKey)
	cfg.Namespace = getEnv("VECTOR_NAMESPACE", cfg.Namespace)
	cfg.ChunkIDStrategy = strings.ToLower(getEnv("CHUNK_ID_STRATEGY", cfg.ChunkIDStrategy))

	cfg.ChunkSize = getEnvAsInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.TopK = getEnvAsInt("TOP_K", cfg.TopK)
	cfg.MaxUploadMB = getEnvAsInt("MAX_UPLOAD_MB", cfg.MaxUploadMB)

	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.CORSAllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)
	cfg.LogLevel = strings.ToUpper(getEnv("LOG_LEVEL", cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// defaults holds every setting that does not depend on the LLM provider.
func defaults() Config {
	return Config{
		LLMProvider:        ProviderOpenAI,
		OpenAIBaseURL:      "https://api.openai.com/v1",
		EmbedRatePerSec:    25,
		EmbedWorkers:       1,
		EmbedBatchSize:     1,
		VectorStore:        StoreSQLite,
		DatabaseURL:        "pdf_qa.db",
		QdrantURL:          "http://localhost:6333",
		QdrantCollection:   "pdf_chunks",
		Namespace:          DefaultNamespace,
		ChunkIDStrategy:    IDStrategySequential,
		ChunkSize:          1000,
		TopK:               5,
		MaxUploadMB:        20,
		HTTPPort:           "8080",
		CORSAllowedOrigins: "*",
		LogLevel:           "INFO",
	}
}

// Validate reports the first missing or inconsistent setting.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY environment variable is required")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.VectorStore {
	case StoreSQLite, StoreMemory:
	case StorePgVector:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the pgvector store")
		}
	case StoreQdrant:
		if c.QdrantURL == "" || c.QdrantCollection == "" {
			return errors.New("QDRANT_URL and QDRANT_COLLECTION are required for the qdrant store")
		}
	case StorePinecone:
		if c.PineconeHost == "" || c.PineconeAPIKey == "" {
			return errors.New("PINECONE_HOST and PINECONE_API_KEY are required for the pinecone store")
		}
	default:
		return fmt.Errorf("unknown VECTOR_STORE %q", c.VectorStore)
	}

	if c.ChunkIDStrategy != IDStrategySequential && c.ChunkIDStrategy != IDStrategyContent {
		return fmt.Errorf("unknown CHUNK_ID_STRATEGY %q", c.ChunkIDStrategy)
	}
	if c.ChunkSize <= 0 || c.TopK <= 0 || c.MaxUploadMB <= 0 {
		return errors.New("CHUNK_SIZE, TOP_K and MAX_UPLOAD_MB must be positive")
	}
	if c.EmbeddingDimensions <= 0 {
		return errors.New("EMBEDDING_DIMENSIONS must be positive")
	}
	if c.EmbedWorkers < 1 || c.EmbedBatchSize < 1 {
		return errors.New("EMBED_WORKERS and EMBED_BATCH_SIZE must be at least 1")
	}
	return nil
}

func (c Config) Debug() bool {
	return c.LogLevel == "DEBUG"
}

// MaxUploadBytes is the request body limit for document uploads.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func defaultEmbeddingModel(provider string) string {
	if provider == ProviderGemini {
		return "text-embedding-004"
	}
	return "text-embedding-ada-002"
}

func defaultChatModel(provider string) string {
	if provider == ProviderGemini {
		return "gemini-1.5-flash-latest"
	}
	return "gpt-4o-mini"
}

func defaultDimensions(provider string) int {
	if provider == ProviderGemini {
		return 768
	}
	return 1536
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

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func orDefaultInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}
