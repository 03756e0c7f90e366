package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv  string
	Port     string
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Delivery DeliveryConfig
	Chain    ChainConfig
	SMTP     SMTPConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string // postgres or memory
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// ServerConfig describes how this delivery service presents itself
type ServerConfig struct {
	Name              string // delivery service identity, e.g. ds.example.eth
	URL               string // public base URL advertised in the service profile
	KeyFile           string
	SigningKey        string // base64 ed25519 private key
	EncryptionKey     string // base64 x25519 private key
	ProfilesFile      string // known delivery-service profiles
	CORSOrigins       []string
	ReadHeaderTimeout time.Duration
}

// AuthConfig holds token settings
type AuthConfig struct {
	JWTSecret           string
	TokenTTL            time.Duration
	DisableSessionCheck bool
}

// DeliveryConfig holds envelope ingestion limits
type DeliveryConfig struct {
	SizeLimit  int
	FetchLimit int
}

// ChainConfig points the spam filter at an Ethereum JSON-RPC endpoint
type ChainConfig struct {
	RPCURL  string
	Timeout time.Duration
}

// SMTPConfig configures the email notification channel
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Enabled reports whether enough SMTP settings are present to send mail
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	port := getEnv("PORT", "8083")

	return &Config{
		NodeEnv: getEnv("NODE_ENV", "development"),
		Port:    port,
		Database: DatabaseConfig{
			Driver:   getEnv("STORE_DRIVER", "postgres"),
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "dsrelay"),
			Alter:    getBoolEnv("DB_ALTER", false),
		},
		Server: ServerConfig{
			Name:              getEnv("DS_NAME", "ds.localhost"),
			URL:               getEnv("DS_URL", "http://localhost:"+port),
			KeyFile:           getEnv("SERVICE_KEY_FILE", ".dsrelay/service_keys.json"),
			SigningKey:        os.Getenv("SERVICE_SIGNING_KEY"),
			EncryptionKey:     os.Getenv("SERVICE_ENCRYPTION_KEY"),
			ProfilesFile:      os.Getenv("DS_PROFILES_FILE"),
			CORSOrigins:       getListEnv("CORS_ORIGINS"),
			ReadHeaderTimeout: getDurationEnv("READ_HEADER_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:           jwtSecret,
			TokenTTL:            getDurationEnv("TOKEN_TTL", time.Hour),
			DisableSessionCheck: getBoolEnv("DISABLE_SESSION_CHECK", false),
		},
		Delivery: DeliveryConfig{
			SizeLimit:  getIntEnv("MESSAGE_SIZE_LIMIT", 100000),
			FetchLimit: getIntEnv("MESSAGE_FETCH_LIMIT", 100),
		},
		Chain: ChainConfig{
			RPCURL:  os.Getenv("CHAIN_RPC_URL"),
			Timeout: getDurationEnv("CHAIN_TIMEOUT", 5*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
