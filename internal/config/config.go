package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	DynamoDB  DynamoDBConfig
	Redis     RedisConfig
	Token     TokenConfig
	Ephemeral EphemeralConfig
	SMTP      SMTPConfig
	Client    ClientConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

// TokenConfig carries the two flavor secrets. They must differ so that an
// access token can never be replayed as a refresh token and vice versa.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type EphemeralConfig struct {
	TTL       time.Duration
	KeyLength int
	PinLength int
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// ClientConfig holds the public address of the front-end, used to build the
// password reset link placed in emails.
type ClientConfig struct {
	Address string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "DarimTable"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Token: TokenConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 30*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 30*24*time.Hour),
		},
		Ephemeral: EphemeralConfig{
			TTL:       getEnvAsDuration("EPHEMERAL_TOKEN_TTL", 3*time.Minute),
			KeyLength: getEnvAsInt("EPHEMERAL_KEY_LENGTH", 32),
			PinLength: getEnvAsInt("SIGN_UP_PIN_LENGTH", 8),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@darim.app"),
		},
		Client: ClientConfig{
			Address: getEnv("CLIENT_ADDRESS", "http://localhost:3000"),
		},
	}

	if cfg.Token.AccessSecret == "" || cfg.Token.RefreshSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET environment variables are required")
	}

	if len(cfg.Token.AccessSecret) < 32 || len(cfg.Token.RefreshSecret) < 32 {
		return nil, fmt.Errorf("token secrets must be at least 32 bytes (256 bits)")
	}

	if cfg.Token.AccessSecret == cfg.Token.RefreshSecret {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
