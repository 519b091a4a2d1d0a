// Package config loads the service and trainer configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"sbsk/ml"
)

// Config mirrors config.yaml.
type Config struct {
	Http struct {
		Port        int           `yaml:"port"`
		Timeout     time.Duration `yaml:"timeout"`
		MaxUploadMB int64         `yaml:"max_upload_mb"`
		UploadDir   string        `yaml:"upload_dir"`
	} `yaml:"http"`
	Log      LogConfig `yaml:"log"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	ML MLConfig `yaml:"ml"`
}

// LogConfig configures the zap logger and optional rotated file output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type MLConfig struct {
	ModelPath     string            `yaml:"model_path"`
	DatasetPath   string            `yaml:"dataset_path"`
	Sheet         string            `yaml:"sheet"`
	Encoding      string            `yaml:"encoding"`
	Neighbors     int               `yaml:"neighbors"`
	Weights       string            `yaml:"weights"`
	TestRatio     float64           `yaml:"test_ratio"`
	Seed          int64             `yaml:"seed"`
	CacheSize     int               `yaml:"cache_size"`
	WatchModel    bool              `yaml:"watch_model"`
	TrainSchedule string            `yaml:"train_schedule"`
	ColumnRenames map[string]string `yaml:"column_renames"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Http.Port = 5000
	cfg.Http.Timeout = 30 * time.Second
	cfg.Http.MaxUploadMB = 16
	cfg.Http.UploadDir = "uploads"
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 28
	cfg.Database.Path = "sbsk.db"
	cfg.ML.ModelPath = "ml_pipeline.gob"
	cfg.ML.Neighbors = ml.DefaultNeighbors
	cfg.ML.Weights = string(ml.UniformWeights)
	cfg.ML.TestRatio = ml.DefaultTestRatio
	cfg.ML.Seed = ml.DefaultSeed
	cfg.ML.CacheSize = ml.DefaultCacheSize
	return cfg
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("SBSK_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SBSK_PORT: %w", err)
		}
		cfg.Http.Port = port
	}
	cfg.Log.Level = getEnv("SBSK_LOG_LEVEL", cfg.Log.Level)
	cfg.ML.ModelPath = getEnv("SBSK_MODEL_PATH", cfg.ML.ModelPath)
	cfg.ML.DatasetPath = getEnv("SBSK_DATASET_PATH", cfg.ML.DatasetPath)
	cfg.Database.Path = getEnv("SBSK_DB_PATH", cfg.Database.Path)
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.Http.Port)
	}
	if c.Http.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	if c.Http.MaxUploadMB <= 0 {
		return errors.New("http.max_upload_mb must be positive")
	}
	if c.ML.ModelPath == "" {
		return errors.New("ml.model_path is required")
	}
	if c.ML.Neighbors <= 0 {
		return fmt.Errorf("ml.neighbors must be positive: %d", c.ML.Neighbors)
	}
	if _, err := ml.ParseWeighting(c.ML.Weights); err != nil {
		return fmt.Errorf("ml.weights: %w", err)
	}
	if c.ML.TestRatio <= 0 || c.ML.TestRatio >= 1 {
		return fmt.Errorf("ml.test_ratio must be in (0, 1): %v", c.ML.TestRatio)
	}
	if c.ML.CacheSize < 0 {
		return errors.New("ml.cache_size must not be negative")
	}
	if c.ML.TrainSchedule != "" && c.ML.DatasetPath == "" {
		return errors.New("ml.train_schedule needs ml.dataset_path")
	}
	return nil
}

// TrainConfig converts the ml section for the pipeline builder.
func (c *Config) TrainConfig() ml.TrainConfig {
	weights, _ := ml.ParseWeighting(c.ML.Weights)
	return ml.TrainConfig{
		TestRatio: c.ML.TestRatio,
		Seed:      c.ML.Seed,
		Neighbors: c.ML.Neighbors,
		Weights:   weights,
	}
}
