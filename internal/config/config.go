package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	// Oracle
	LLMProvider         string
	LLMFallbackProvider string
	LLMModel            string
	LLMTemperature      float64
	LLMTopP             float64
	LLMMaxTokens        int
	LLMTimeout          time.Duration
	OllamaHost          string
	OllamaModel         string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	GroqAPIKey          string
	GroqBaseURL         string
	GroqModel           string
	GeminiAPIKey        string
	BedrockModelID      string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Sessions
	SessionBackend  string
	SessionCapacity int
	SessionTTL      time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool

	// Extraction
	ExtractionProfilePath   string
	ExtractionReferenceDate string
	Timezone                string
	GenerateConfirmation    bool

	// Booking delivery
	DatabaseURL         string
	BookingsQueueURL    string
	SendGridAPIKey      string
	SendGridFromEmail   string
	SendGridFromName    string
	BookingsNotifyEmail string

	// HTTP surface
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	OperatorJWTSecret  string

	// Advisory search
	SearchBaseURL    string
	SearchMaxResults int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "ollama"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		LLMModel:            getEnv("LLM_MODEL", ""),
		LLMTemperature:      getEnvAsFloat("LLM_TEMPERATURE", 0.7),
		LLMTopP:             getEnvAsFloat("LLM_TOP_P", 0.9),
		LLMMaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 1024),
		LLMTimeout:          getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		OllamaHost:          getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:         getEnv("OLLAMA_MODEL", "mistral"),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
		GroqAPIKey:          getEnv("GROQ_API_KEY", getEnv("VITE_GROQ_API_KEY", "")),
		GroqBaseURL:         getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqModel:           getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		SessionBackend:  strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		SessionCapacity: getEnvAsInt("SESSION_CAPACITY", 10000),
		SessionTTL:      getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),

		ExtractionProfilePath:   getEnv("EXTRACTION_PROFILE_PATH", ""),
		ExtractionReferenceDate: getEnv("EXTRACTION_REFERENCE_DATE", ""),
		Timezone:                getEnv("TIMEZONE", "UTC"),
		GenerateConfirmation:    getEnvAsBool("GENERATE_CONFIRMATION", true),

		DatabaseURL:         getEnv("DATABASE_URL", ""),
		BookingsQueueURL:    getEnv("BOOKINGS_QUEUE_URL", ""),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", "Intake Agent"),
		BookingsNotifyEmail: getEnv("BOOKINGS_NOTIFY_EMAIL", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
		OperatorJWTSecret:  getEnv("OPERATOR_JWT_SECRET", ""),

		SearchBaseURL:    getEnv("SEARCH_BASE_URL", "https://html.duckduckgo.com/html/"),
		SearchMaxResults: getEnvAsInt("SEARCH_MAX_RESULTS", 10),
	}
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	if c == nil || strings.TrimSpace(c.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
