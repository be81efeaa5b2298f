package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the config file read when no path is given.
const ConfigPath = "docsign.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	APIBaseURL          string `yaml:"apiBaseURL"`
	LogLevel            string `yaml:"logLevel"`
	RequestTimeout      string `yaml:"requestTimeout"`
	SummaryPollInterval string `yaml:"summaryPollInterval"`
	StatusConcurrency   int    `yaml:"statusConcurrency"`

	SessionBackend  string `yaml:"sessionBackend"`
	SessionFile     string `yaml:"sessionFile"`
	SessionRedisKey string `yaml:"sessionRedisKey"`
	TrackerBackend  string `yaml:"trackerBackend"`
	TrackerTTL      string `yaml:"trackerTTL"`
	RedisAddr       string `yaml:"redisAddr"`
	RedisPassword   string `yaml:"redisPassword"`

	ArtifactBackend string `yaml:"artifactBackend"`
	ArtifactDir     string `yaml:"artifactDir"`
	MinioEndpoint   string `yaml:"minioEndpoint"`
	MinioAccessKey  string `yaml:"minioAccessKey"`
	MinioSecretKey  string `yaml:"minioSecretKey"`
	MinioBucket     string `yaml:"minioBucket"`
	MinioUseSSL     bool   `yaml:"minioUseSSL"`

	FakeAddr         string `yaml:"fakeAddr"`
	FakeFrontendURL  string `yaml:"fakeFrontendURL"`
	FakeSummaryDelay string `yaml:"fakeSummaryDelay"`
	FakeTokenTTL     string `yaml:"fakeTokenTTL"`
	FakeSecret       string `yaml:"fakeSecret"`
	FakeLoginLimit   int    `yaml:"fakeLoginLimit"`
	FakeLoginWindow  string `yaml:"fakeLoginWindow"`
}

func defaults() FileConfig {
	return FileConfig{
		APIBaseURL:          "http://localhost:8000",
		LogLevel:            "info",
		RequestTimeout:      "30s",
		SummaryPollInterval: "2s",
		StatusConcurrency:   4,
		SessionBackend:      "file",
		TrackerBackend:      "memory",
		TrackerTTL:          "720h",
		ArtifactBackend:     "local",
		ArtifactDir:         "docsign-artifacts",
		FakeAddr:            "127.0.0.1:8000",
		FakeFrontendURL:     "http://localhost:3000",
		FakeTokenTTL:        "1h",
		FakeLoginLimit:      10,
		FakeLoginWindow:     "1m",
	}
}

// Load reads config from path. When path is empty the default ConfigPath is
// used and a missing file falls back to defaults.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	explicit := path != ""
	if !explicit {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if v := os.Getenv("DOCSIGN_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("DOCSIGN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("DOCSIGN_REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = strings.TrimSpace(v)
	}
	if v := os.Getenv("DOCSIGN_SUMMARY_POLL_INTERVAL"); v != "" {
		cfg.SummaryPollInterval = strings.TrimSpace(v)
	}
	if v := os.Getenv("DOCSIGN_STATUS_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.StatusConcurrency = n
		}
	}
	if v := os.Getenv("DOCSIGN_SESSION_BACKEND"); v != "" {
		cfg.SessionBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("DOCSIGN_SESSION_FILE"); v != "" {
		cfg.SessionFile = strings.TrimSpace(v)
	}
	if v := os.Getenv("DOCSIGN_TRACKER_BACKEND"); v != "" {
		cfg.TrackerBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("DOCSIGN_FAKE_SECRET"); v != "" {
		cfg.FakeSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("DOCSIGN_ARTIFACT_BACKEND"); v != "" {
		cfg.ArtifactBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("DOCSIGN_ARTIFACT_DIR"); v != "" {
		cfg.ArtifactDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return errors.New("config: apiBaseURL is required (set in docsign.yaml or DOCSIGN_API_BASE_URL)")
	}
	if cfg.StatusConcurrency <= 0 {
		return errors.New("config: statusConcurrency must be > 0")
	}
	for name, value := range map[string]string{
		"requestTimeout":      cfg.RequestTimeout,
		"summaryPollInterval": cfg.SummaryPollInterval,
		"trackerTTL":          cfg.TrackerTTL,
		"fakeSummaryDelay":    cfg.FakeSummaryDelay,
		"fakeTokenTTL":        cfg.FakeTokenTTL,
		"fakeLoginWindow":     cfg.FakeLoginWindow,
	} {
		if _, err := ParseDuration(value); err != nil {
			return fmt.Errorf("config: invalid %s: %w", name, err)
		}
	}
	if cfg.FakeLoginLimit < 0 {
		return errors.New("config: fakeLoginLimit must be >= 0")
	}
	switch cfg.SessionBackend {
	case "file", "memory":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when sessionBackend is redis")
		}
	default:
		return fmt.Errorf("config: unknown sessionBackend %q", cfg.SessionBackend)
	}
	switch cfg.TrackerBackend {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when trackerBackend is redis")
		}
	default:
		return fmt.Errorf("config: unknown trackerBackend %q", cfg.TrackerBackend)
	}
	switch cfg.ArtifactBackend {
	case "none":
	case "local":
		if strings.TrimSpace(cfg.ArtifactDir) == "" {
			return errors.New("config: artifactDir is required when artifactBackend is local")
		}
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint and minioBucket are required when artifactBackend is minio")
		}
	default:
		return fmt.Errorf("config: unknown artifactBackend %q", cfg.ArtifactBackend)
	}
	return nil
}

// ParseDuration parses an optional duration string; empty means zero.
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if dur < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", value)
	}
	return dur, nil
}
