package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/draftline/draftline/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Auth      AuthConfig      `yaml:"auth"`
	Generator GeneratorConfig `yaml:"generator"`
	Images    ImageConfig     `yaml:"images"`
	Assets    AssetConfig     `yaml:"assets"`
	Publisher PublisherConfig `yaml:"publisher"`
	Worker    WorkerConfig    `yaml:"worker"`
}

type ServerConfig struct {
	Port         int      `yaml:"port"`
	Host         string   `yaml:"host"`
	Mode         string   `yaml:"mode"`
	CertFile     string   `yaml:"cert_file"`
	KeyFile      string   `yaml:"key_file"`
	AllowOrigins []string `yaml:"allow_origins"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type AuthConfig struct {
	// JWTSecret verifies dashboard-issued bearer tokens. Tokens are never
	// minted here; the dashboard's identity provider owns that.
	JWTSecret string `yaml:"jwt_secret"`
}

type GeneratorConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
}

type ImageConfig struct {
	BaseURL     string `yaml:"base_url"`
	Token       string `yaml:"token"`
	Timeout     string `yaml:"timeout"`
	Style       string `yaml:"style"`
	AspectRatio string `yaml:"aspect_ratio"`
}

type AssetConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

type PublisherConfig struct {
	Platforms map[string]PlatformConfig `yaml:"platforms"`
}

type PlatformConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	Enabled  bool   `yaml:"enabled"`
}

type WorkerConfig struct {
	Interval    string `yaml:"interval"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	// Disabled turns the embedded worker off for deployments that run a
	// dedicated worker process against the same database.
	Disabled bool `yaml:"disabled"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5560
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Generator.Timeout == "" {
		cfg.Generator.Timeout = "120s"
	}
	if cfg.Images.Timeout == "" {
		cfg.Images.Timeout = "30s"
	}
	if cfg.Worker.Interval == "" {
		cfg.Worker.Interval = "15s"
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 10
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 4
	}

	return cfg, nil
}
