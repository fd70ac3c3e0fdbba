package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Universal shared endpoint. Calls/messages to this number stay
	// unresolved until the bot asks the customer to pick a café.
	UniversalNumber string
	DefaultLanguage string
	SessionTTL      time.Duration

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioBaseURL    string
	VonageAPIKey     string
	VonageAPISecret  string
	VonageBaseURL    string
	CarrierTimeout   time.Duration
	SimulationMode   bool

	// Regional provider priority, e.g. {"+371":["vonage","twilio"]}.
	RegionalPriorityJSON string
	ForwardingReceivers  map[string]string

	BedrockModelID string
	GeminiAPIKey   string
	GeminiModelID  string
	GroqAPIKey     string
	GroqModelID    string
	GroqBaseURL    string
	BackendTimeout time.Duration

	AWSRegion           string
	AWSEndpointOverride string

	// AdminToken guards the operator number-management endpoints.
	AdminToken         string
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		UniversalNumber: getEnv("UNIVERSAL_BOT_NUMBER", ""),
		DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "en"),
		SessionTTL:      getEnvAsDuration("SESSION_TTL", 24*time.Hour),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioBaseURL:    getEnv("TWILIO_BASE_URL", ""),
		VonageAPIKey:     getEnv("VONAGE_API_KEY", ""),
		VonageAPISecret:  getEnv("VONAGE_API_SECRET", ""),
		VonageBaseURL:    getEnv("VONAGE_BASE_URL", ""),
		CarrierTimeout:   getEnvAsDuration("CARRIER_TIMEOUT", 10*time.Second),
		SimulationMode:   getEnvAsBool("CARRIER_SIMULATION_MODE", false),

		RegionalPriorityJSON: getEnv("REGIONAL_PROVIDER_PRIORITY", ""),
		ForwardingReceivers:  parseReceiverMap(getEnv("FORWARDING_RECEIVERS", "")),

		BedrockModelID: getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-sonnet-20240229-v1:0"),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-1.5-pro"),
		GroqAPIKey:     getEnv("GROQ_API_KEY", ""),
		GroqModelID:    getEnv("GROQ_MODEL_ID", "mixtral-8x7b-32768"),
		GroqBaseURL:    getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		BackendTimeout: getEnvAsDuration("BACKEND_TIMEOUT", 20*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AdminToken:         getEnv("ADMIN_TOKEN", ""),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

// RegionalPriority decodes REGIONAL_PROVIDER_PRIORITY into an immutable
// region -> ordered provider names table. Invalid JSON yields an empty
// table; the orchestrator falls back to its default order.
func (c *Config) RegionalPriority() map[string][]string {
	if strings.TrimSpace(c.RegionalPriorityJSON) == "" {
		return nil
	}
	table := map[string][]string{}
	if err := json.Unmarshal([]byte(c.RegionalPriorityJSON), &table); err != nil {
		return nil
	}
	return table
}

// parseReceiverMap parses "region=number" comma pairs, e.g.
// "+371=+37255550000,+372=+37255550000".
func parseReceiverMap(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return out
}

func splitCSV(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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
