package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		// TTL bounds how long the session checkpoint survives without a write.
		TTL string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Exam struct {
		CacheTTL     string `yaml:"cacheTTL"`
		MaxPackageMB int    `yaml:"maxPackageMB"`
		// Layout, when set, fixes the question count of each part.
		Layout struct {
			Prefix string `yaml:"prefix"`
			Counts []int  `yaml:"counts"`
		} `yaml:"layout"`
	} `yaml:"exam"`
	Blobs struct {
		Dir          string `yaml:"dir"`
		PublicPrefix string `yaml:"publicPrefix"`
	} `yaml:"blobs"`
	Broadcast struct {
		QueueSize  int  `yaml:"queueSize"`
		Disconnect bool `yaml:"disconnectSlowClients"`
	} `yaml:"broadcast"`
}

// Load reads YAML config from path, then applies .env and environment
// overrides. A missing file leaves the defaults in place.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	_ = godotenv.Load()
	applyEnv(&cfg)
	return cfg, nil
}

func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Redis.TTL = "24h"
	cfg.Exam.CacheTTL = "10m"
	cfg.Exam.MaxPackageMB = 512
	cfg.Blobs.Dir = "./uploads"
	cfg.Blobs.PublicPrefix = "/uploads"
	cfg.Broadcast.QueueSize = 16
	return cfg
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Postgres.URL, "POSTGRES_URL")
	setString(&cfg.Blobs.Dir, "BLOB_DIR")
	if v := os.Getenv("MAX_PACKAGE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Exam.MaxPackageMB = n
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = parseOrigins(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func parseOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// MaxPackageBytes converts the configured limit to bytes.
func (c Config) MaxPackageBytes() int64 {
	return int64(c.Exam.MaxPackageMB) << 20
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
