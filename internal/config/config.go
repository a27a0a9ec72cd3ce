package config

import "strings"

// Config is the top-level service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Evidence EvidenceConfig `yaml:"evidence"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

type ServerConfig struct {
	Port     int    `yaml:"port" default:"8080"`
	LogLevel string `yaml:"log_level" default:"info"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	Name     string `yaml:"name" default:"attestor"`
	User     string `yaml:"user" default:"attestor"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`
}

// EvidenceConfig selects the evidence storage backend. An empty Backend
// means uploads are disabled.
type EvidenceConfig struct {
	Backend string      `yaml:"backend"` // "s3", "local", or ""
	S3      S3Config    `yaml:"s3"`
	Local   LocalConfig `yaml:"local"`
}

type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Region       string `yaml:"region" default:"us-east-1"`
	Bucket       string `yaml:"bucket"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type LocalConfig struct {
	Path    string `yaml:"path" default:"/var/lib/attestor/evidence"`
	BaseURL string `yaml:"base_url" default:"http://localhost:8080"`
	Secret  string `yaml:"secret"`
}

// WebhookConfig configures the optional assessment-updated notification sink.
// Events is a comma-separated list of subscribed event types; empty means all.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
	Events string `yaml:"events"`
}

// EventList splits the subscribed event types, dropping empty entries.
func (w WebhookConfig) EventList() []string {
	var out []string
	for _, e := range strings.Split(w.Events, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Default returns a Config with development defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			Name:    "attestor",
			User:    "attestor",
			SSLMode: "disable",
		},
		Evidence: EvidenceConfig{
			S3: S3Config{
				Region: "us-east-1",
			},
			Local: LocalConfig{
				Path:    "/var/lib/attestor/evidence",
				BaseURL: "http://localhost:8080",
			},
		},
	}
}
