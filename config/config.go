package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	// Server
	ServerHost      string
	ServerPort      string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Data and model persistence
	DefaultDataset  string
	ModelArchiveDir string
	DatabaseURL     string
	TrainingSpec    string

	// AWS / S3-compatible storage
	AWSRegion        string
	S3Endpoint       string
	S3ForcePathStyle bool

	// Progress streaming
	StreamMode         string
	StreamPollInterval time.Duration
	StreamMaxWait      time.Duration
	StreamFlushDelay   time.Duration

	// Job retention
	JobRetentionMax  int
	JobRetentionTTL  time.Duration
	JobSweepInterval time.Duration

	// Inference
	PredictRateLimit float64
	PredictionUnit   string

	// Logging
	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"SERVER_HOST":             "",
	"SERVER_PORT":             "8080",
	"SERVER_SHUTDOWN_TIMEOUT": "10s",
	"CORS_ORIGINS":            "*",
	"DEFAULT_DATASET":         "Volve production data.csv",
	"MODEL_ARCHIVE_DIR":       "models",
	"DATABASE_URL":            "",
	"TRAINING_SPEC":           "",
	"AWS_REGION":              "us-east-1",
	"S3_ENDPOINT":             "",
	"S3_FORCE_PATH_STYLE":     false,
	"STREAM_MODE":             "notify",
	"STREAM_POLL_INTERVAL":    "500ms",
	"STREAM_MAX_WAIT":         "5m",
	"STREAM_FLUSH_DELAY":      "100ms",
	"JOB_RETENTION_MAX":       1000,
	"JOB_RETENTION_TTL":       "24h",
	"JOB_SWEEP_INTERVAL":      "1m",
	"PREDICT_RATE_LIMIT":      0.0,
	"PREDICTION_UNIT":         "т/сут",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "auto",
	"CONFIG_FILE":             "",
}

// Load loads configuration from an optional .env file, the environment and an
// optional CONFIG_FILE, in increasing order of precedence for the environment.
// A missing .env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ServerHost:         v.GetString("SERVER_HOST"),
		ServerPort:         v.GetString("SERVER_PORT"),
		ShutdownTimeout:    v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		CORSOrigins:        splitList(v.GetString("CORS_ORIGINS")),
		DefaultDataset:     v.GetString("DEFAULT_DATASET"),
		ModelArchiveDir:    v.GetString("MODEL_ARCHIVE_DIR"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		TrainingSpec:       v.GetString("TRAINING_SPEC"),
		AWSRegion:          v.GetString("AWS_REGION"),
		S3Endpoint:         v.GetString("S3_ENDPOINT"),
		S3ForcePathStyle:   v.GetBool("S3_FORCE_PATH_STYLE"),
		StreamMode:         strings.ToLower(v.GetString("STREAM_MODE")),
		StreamPollInterval: v.GetDuration("STREAM_POLL_INTERVAL"),
		StreamMaxWait:      v.GetDuration("STREAM_MAX_WAIT"),
		StreamFlushDelay:   v.GetDuration("STREAM_FLUSH_DELAY"),
		JobRetentionMax:    v.GetInt("JOB_RETENTION_MAX"),
		JobRetentionTTL:    v.GetDuration("JOB_RETENTION_TTL"),
		JobSweepInterval:   v.GetDuration("JOB_SWEEP_INTERVAL"),
		PredictRateLimit:   v.GetFloat64("PREDICT_RATE_LIMIT"),
		PredictionUnit:     v.GetString("PREDICTION_UNIT"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}
	if c.StreamMode != "notify" && c.StreamMode != "poll" {
		return fmt.Errorf("STREAM_MODE must be notify or poll, got %q", c.StreamMode)
	}
	if c.StreamPollInterval <= 0 {
		return fmt.Errorf("STREAM_POLL_INTERVAL must be positive")
	}
	if c.StreamMaxWait <= 0 {
		return fmt.Errorf("STREAM_MAX_WAIT must be positive")
	}
	if c.JobRetentionMax < 0 || c.JobRetentionTTL < 0 {
		return fmt.Errorf("job retention limits must not be negative")
	}
	if c.PredictRateLimit < 0 {
		return fmt.Errorf("PREDICT_RATE_LIMIT must not be negative")
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return c.ServerHost + ":" + c.ServerPort
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
