package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Live      LiveConfig      `yaml:"live"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Storage   StorageConfig   `yaml:"storage"`
	Inference InferenceConfig `yaml:"inference"`
	Database  DatabaseConfig  `yaml:"database"`
	Relay     RelayConfig     `yaml:"relay"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	Debug          bool     `yaml:"debug"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Origins returns AllowedOrigins as full origins. A bare host such as
// "neurobot.example" allows both its http and https origins.
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range s.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "" || o == "*":
		case strings.Contains(o, "://"):
			out = append(out, o)
		default:
			out = append(out, "http://"+o, "https://"+o)
		}
	}
	return out
}

// LiveConfig tunes the WebSocket live feed.
type LiveConfig struct {
	// SendBuffer bounds the frames queued per session before new ones are dropped.
	SendBuffer      int           `yaml:"send_buffer"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	PongWait        time.Duration `yaml:"pong_wait"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

type IngestConfig struct {
	// RatePerSecond of 0 disables rate limiting.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int64   `yaml:"burst"`
	MaxBodyBytes  int64   `yaml:"max_body_bytes"`
}

type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Prefix          string `yaml:"prefix"`
}

// Enabled reports whether raw samples should be uploaded at all.
func (s StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

type InferenceConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
	APIKey    string        `yaml:"api_key"`
}

type DatabaseConfig struct {
	// URL is a Postgres DSN. Empty keeps records in memory.
	URL string `yaml:"url"`
}

type RelayConfig struct {
	// URL is an AMQP URI. Empty keeps fan-out inside this process.
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:  8000,
			Host:  "0.0.0.0",
			Debug: true,
		},
		Live: LiveConfig{
			SendBuffer:      1500,
			MaxMessageBytes: 64 * 1024,
			PingInterval:    54 * time.Second,
			PongWait:        60 * time.Second,
			WriteTimeout:    10 * time.Second,
		},
		Ingest: IngestConfig{
			RatePerSecond: 20,
			Burst:         40,
			MaxBodyBytes:  8 << 20,
		},
		Storage: StorageConfig{
			Endpoint: "s3.amazonaws.com",
			UseSSL:   true,
			Prefix:   "raw/",
		},
		Inference: InferenceConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-3.5-turbo",
			MaxTokens: 16,
			Timeout:   15 * time.Second,
		},
		Relay: RelayConfig{
			Exchange: "neurobot.live",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. A missing file is tolerated when allowMissing is set.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case allowMissing && errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set("AWS_S3_BUCKET", &c.Storage.Bucket)
	set("AWS_ACCESS_KEY_ID", &c.Storage.AccessKeyID)
	set("AWS_SECRET_ACCESS_KEY", &c.Storage.SecretAccessKey)
	set("AWS_REGION", &c.Storage.Region)
	set("S3_ENDPOINT", &c.Storage.Endpoint)
	set("OPENAI_API_KEY", &c.Inference.APIKey)
	set("DATABASE_URL", &c.Database.URL)
	set("AMQP_URL", &c.Relay.URL)
	set("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("DEBUG"); ok && v != "" {
		c.Server.Debug = v == "True" || v == "true" || v == "1"
	}
	if v, ok := lookup("ALLOWED_HOSTS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" && o != "*" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}
}
