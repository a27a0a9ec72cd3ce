package config

import (
	"os"
	"strconv"
)

// LoadFromEnv overrides configuration from ATTESTOR_* environment variables.
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("ATTESTOR_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if level := os.Getenv("ATTESTOR_LOG_LEVEL"); level != "" {
		cfg.Server.LogLevel = level
	}

	// Database
	cfg.Database.Host = GetEnvOrDefault("ATTESTOR_DB_HOST", cfg.Database.Host)
	if port := os.Getenv("ATTESTOR_DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Database.Port = p
		}
	}
	cfg.Database.Name = GetEnvOrDefault("ATTESTOR_DB_NAME", cfg.Database.Name)
	cfg.Database.User = GetEnvOrDefault("ATTESTOR_DB_USER", cfg.Database.User)
	cfg.Database.Password = GetEnvOrDefault("ATTESTOR_DB_PASSWORD", cfg.Database.Password)
	cfg.Database.SSLMode = GetEnvOrDefault("ATTESTOR_DB_SSLMODE", cfg.Database.SSLMode)

	// Evidence backend
	cfg.Evidence.Backend = GetEnvOrDefault("ATTESTOR_EVIDENCE_BACKEND", cfg.Evidence.Backend)
	cfg.Evidence.S3.Endpoint = GetEnvOrDefault("ATTESTOR_S3_ENDPOINT", cfg.Evidence.S3.Endpoint)
	cfg.Evidence.S3.AccessKey = GetEnvOrDefault("ATTESTOR_S3_ACCESS_KEY", cfg.Evidence.S3.AccessKey)
	cfg.Evidence.S3.SecretKey = GetEnvOrDefault("ATTESTOR_S3_SECRET_KEY", cfg.Evidence.S3.SecretKey)
	cfg.Evidence.S3.Region = GetEnvOrDefault("ATTESTOR_S3_REGION", cfg.Evidence.S3.Region)
	cfg.Evidence.S3.Bucket = GetEnvOrDefault("ATTESTOR_S3_BUCKET", cfg.Evidence.S3.Bucket)
	if pathStyle := os.Getenv("ATTESTOR_S3_PATH_STYLE"); pathStyle != "" {
		cfg.Evidence.S3.UsePathStyle = pathStyle == "true" || pathStyle == "1"
	}
	cfg.Evidence.Local.Path = GetEnvOrDefault("ATTESTOR_LOCAL_PATH", cfg.Evidence.Local.Path)
	cfg.Evidence.Local.BaseURL = GetEnvOrDefault("ATTESTOR_LOCAL_BASE_URL", cfg.Evidence.Local.BaseURL)
	cfg.Evidence.Local.Secret = GetEnvOrDefault("ATTESTOR_LOCAL_SECRET", cfg.Evidence.Local.Secret)

	// Notification sink
	cfg.Webhook.URL = GetEnvOrDefault("ATTESTOR_WEBHOOK_URL", cfg.Webhook.URL)
	cfg.Webhook.Secret = GetEnvOrDefault("ATTESTOR_WEBHOOK_SECRET", cfg.Webhook.Secret)
	cfg.Webhook.Events = GetEnvOrDefault("ATTESTOR_WEBHOOK_EVENTS", cfg.Webhook.Events)
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
