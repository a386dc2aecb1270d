// Package config loads process settings from the environment, with .env
// support for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds every tunable the process reads at startup.
type Settings struct {
	// HTTP
	Addr           string
	AllowedOrigins []string

	// LLM provider selection
	Provider       string // openai, anthropic, gemini
	OpenAIAPIKey   string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	GeminiAPIKey   string
	GeminiModel    string

	// Speech synthesis
	TTSProvider     string // cartesia, openai
	CartesiaAPIKey  string
	CartesiaVoiceID string
	OpenAIVoice     string

	// Shopify catalog
	ShopifyStoreURL    string
	ShopifyAccessToken string
	ShopifyAPIVersion  string

	// Session persistence
	SessionStore  string // memory, redis, postgres, mongo
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresHost  string
	PostgresPort  int
	PostgresUser  string
	PostgresPass  string
	PostgresDB    string
	MongoURI      string
	MongoDatabase string

	// Turn handling
	TurnTimeout   time.Duration
	TurnQueueSize int
	AssistantName string
	StoreName     string
}

// Load reads settings from the environment. A .env file in the working
// directory is merged in first; real environment variables win.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{
		Addr:           envString("VOICECART_ADDR", ":8080"),
		AllowedOrigins: envList("VOICECART_ALLOWED_ORIGINS", []string{"*"}),

		Provider:       envString("VOICECART_PROVIDER", "openai"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    envString("VOICECART_OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel: envString("VOICECART_ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    envString("VOICECART_GEMINI_MODEL", "gemini-2.0-flash"),

		TTSProvider:     envString("VOICECART_TTS_PROVIDER", "cartesia"),
		CartesiaAPIKey:  os.Getenv("CARTESIA_API_KEY"),
		CartesiaVoiceID: os.Getenv("CARTESIA_VOICE_ID"),
		OpenAIVoice:     envString("VOICECART_OPENAI_VOICE", "alloy"),

		ShopifyStoreURL:    os.Getenv("SHOPIFY_STORE_URL"),
		ShopifyAccessToken: os.Getenv("SHOPIFY_ACCESS_TOKEN"),
		ShopifyAPIVersion:  envString("SHOPIFY_API_VERSION", "2024-01"),

		SessionStore:  envString("VOICECART_SESSION_STORE", "memory"),
		RedisAddr:     envString("VOICECART_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("VOICECART_REDIS_PASSWORD"),
		RedisDB:       envInt("VOICECART_REDIS_DB", 0),
		PostgresHost:  envString("VOICECART_POSTGRES_HOST", "localhost"),
		PostgresPort:  envInt("VOICECART_POSTGRES_PORT", 5432),
		PostgresUser:  envString("VOICECART_POSTGRES_USER", "postgres"),
		PostgresPass:  os.Getenv("VOICECART_POSTGRES_PASSWORD"),
		PostgresDB:    envString("VOICECART_POSTGRES_DB", "voicecart"),
		MongoURI:      envString("VOICECART_MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: envString("VOICECART_MONGO_DB", "voicecart"),

		TurnTimeout:   envDuration("VOICECART_TURN_TIMEOUT", 60*time.Second),
		TurnQueueSize: envInt("VOICECART_TURN_QUEUE", 4),
		AssistantName: envString("VOICECART_ASSISTANT_NAME", "Vera"),
		StoreName:     envString("VOICECART_STORE_NAME", "our online store"),
	}

	return s, s.Validate()
}

// Validate checks the loaded settings.
func (s *Settings) Validate() error {
	v := NewValidator()

	v.RequireNonEmpty("SHOPIFY_STORE_URL", s.ShopifyStoreURL)
	v.RequireNonEmpty("SHOPIFY_ACCESS_TOKEN", s.ShopifyAccessToken)
	v.ValidateOneOf("VOICECART_PROVIDER", s.Provider, "openai", "anthropic", "gemini")
	v.ValidateOneOf("VOICECART_TTS_PROVIDER", s.TTSProvider, "cartesia", "openai")
	v.ValidateOneOf("VOICECART_SESSION_STORE", s.SessionStore, "memory", "redis", "postgres", "mongo")
	v.RequirePositive("VOICECART_TURN_QUEUE", s.TurnQueueSize)

	switch s.Provider {
	case "openai":
		v.RequireNonEmpty("OPENAI_API_KEY", s.OpenAIAPIKey)
	case "anthropic":
		v.RequireNonEmpty("ANTHROPIC_API_KEY", s.AnthropicKey)
	case "gemini":
		v.RequireNonEmpty("GEMINI_API_KEY", s.GeminiAPIKey)
	}
	if s.TTSProvider == "cartesia" {
		v.RequireNonEmpty("CARTESIA_API_KEY", s.CartesiaAPIKey)
	}
	if s.TTSProvider == "openai" {
		v.RequireNonEmpty("OPENAI_API_KEY", s.OpenAIAPIKey)
	}

	return v.Error()
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
