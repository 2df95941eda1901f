package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig
	TLS    TLSConfig
	Logs   LogsConfig
}

type ServerConfig struct {
	Addr        string
	Development bool
}

type TLSConfig struct {
	CertFile     string
	KeyFile      string
	ClientCAFile string
}

// LogsConfig configures the encrypted chat log store. Key holds the AES key
// as base64; it is decoded and validated by the store at startup.
type LogsConfig struct {
	Key     string
	DataDir string
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Addr:        getEnvOrDefault("CHAT_ADDR", ":8443"),
			Development: os.Getenv("DEVELOPMENT") == "true",
		},
		TLS: TLSConfig{
			CertFile:     getEnvOrDefault("TLS_CERT_FILE", "certs/server-cert.pem"),
			KeyFile:      getEnvOrDefault("TLS_KEY_FILE", "certs/server-key.pem"),
			ClientCAFile: getEnvOrDefault("TLS_CLIENT_CA_FILE", "certs/client-ca.pem"),
		},
		Logs: LogsConfig{
			Key:     getEnvOrFatal("CHAT_LOG_AES_KEY"),
			DataDir: os.Getenv("CHAT_DATA_DIR"),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrFatal(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s environment variable is required", key)
	}
	return value
}
