package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type SpeechConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	DefaultVoice   string `yaml:"default_voice"`
	SampleRate     int    `yaml:"sample_rate"`
	BytesPerSample int    `yaml:"bytes_per_sample"`
	HeaderBytes    int    `yaml:"header_bytes"`
}

type AvatarConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// RenderFarmConfig describes the optional compositing provider.
// Configured is an explicit capability flag set at load time; nothing
// else in the code sniffs for presence.
type RenderFarmConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Configured bool   `yaml:"-"`
}

type StorageConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	AccessKey    string        `yaml:"access_key"`
	SecretKey    string        `yaml:"secret_key"`
	UseSSL       bool          `yaml:"use_ssl"`
	Bucket       string        `yaml:"bucket"`
	SignedURLTTL time.Duration `yaml:"signed_url_ttl"`
}

type PipelineConfig struct {
	AdvanceTimeout   time.Duration `yaml:"advance_timeout"`   // synthesis/submission path
	CompositeTimeout time.Duration `yaml:"composite_timeout"` // compositing path
	SubmitPerMinute  int           `yaml:"submit_per_minute"` // 0 disables the redis limiter
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Speech     SpeechConfig     `yaml:"speech"`
	Avatar     AvatarConfig     `yaml:"avatar"`
	RenderFarm RenderFarmConfig `yaml:"renderfarm"`
	Storage    StorageConfig    `yaml:"storage"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 5 * time.Minute
	}
	if cfg.Speech.DefaultVoice == "" {
		cfg.Speech.DefaultVoice = "narrator-1"
	}
	if cfg.Speech.SampleRate <= 0 {
		cfg.Speech.SampleRate = 44100
	}
	if cfg.Speech.BytesPerSample <= 0 {
		cfg.Speech.BytesPerSample = 2
	}
	if cfg.Speech.HeaderBytes <= 0 {
		cfg.Speech.HeaderBytes = 44 // standard WAV header
	}
	if cfg.Storage.SignedURLTTL <= 0 {
		cfg.Storage.SignedURLTTL = 6 * 24 * time.Hour
	}
	if cfg.Pipeline.AdvanceTimeout <= 0 {
		cfg.Pipeline.AdvanceTimeout = 120 * time.Second
	}
	if cfg.Pipeline.CompositeTimeout <= 0 {
		cfg.Pipeline.CompositeTimeout = 300 * time.Second
	}

	cfg.RenderFarm.Configured = cfg.RenderFarm.BaseURL != "" && cfg.RenderFarm.APIKey != ""

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Speech.BaseURL == "" || cfg.Speech.APIKey == "" {
		return nil, errors.New("speech.base_url and speech.api_key are required")
	}
	if cfg.Avatar.BaseURL == "" || cfg.Avatar.APIKey == "" {
		return nil, errors.New("avatar.base_url and avatar.api_key are required")
	}
	if cfg.Storage.Endpoint == "" || cfg.Storage.Bucket == "" {
		return nil, errors.New("storage.endpoint and storage.bucket are required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
