package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers        []string
	KafkaDiagnosisTopic string

	// Identity provider (ABHA-style authorization server)
	ProviderBaseURL    string
	ClientID           string
	ClientSecret       string
	LoginRedirectURL   string
	ConsentRedirectURL string
	TokenSecret        string
	ExchangeTimeout    time.Duration

	// Front-end redirect targets after a completed flow
	DashboardURL      string
	ConsentSuccessURL string

	// Session
	SessionSecret string
	SessionTTL    time.Duration

	// External clinical record sink
	SinkEndpoint string
	SinkTimeout  time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:       getEnv("POSTGRES_DB", "accura_terminology"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:        getStringSliceEnv("KAFKA_BROKERS", nil),
		KafkaDiagnosisTopic: getEnv("KAFKA_DIAGNOSIS_TOPIC", "diagnosis.confirmed"),

		ProviderBaseURL:    getEnv("PROVIDER_BASE_URL", "http://127.0.0.1:8001"),
		ClientID:           getEnv("OAUTH_CLIENT_ID", "accura_emr_client"),
		ClientSecret:       getEnv("OAUTH_CLIENT_SECRET", "accura_emr_secret"),
		LoginRedirectURL:   getEnv("LOGIN_REDIRECT_URL", "http://localhost:8080/auth/callback"),
		ConsentRedirectURL: getEnv("CONSENT_REDIRECT_URL", "http://localhost:8080/consent/callback"),
		TokenSecret:        getEnv("TOKEN_SECRET", ""),
		ExchangeTimeout:    getDuration("EXCHANGE_TIMEOUT", 10*time.Second),

		DashboardURL:      getEnv("DASHBOARD_URL", "http://localhost:5173/dashboard"),
		ConsentSuccessURL: getEnv("CONSENT_SUCCESS_URL", "http://localhost:5173/add-patient/success"),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getDuration("SESSION_TTL", 12*time.Hour),

		SinkEndpoint: getEnv("SINK_ENDPOINT", "http://127.0.0.1:8001/fhir/bundle"),
		SinkTimeout:  getDuration("SINK_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
