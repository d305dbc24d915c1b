package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int      `json:"port"`
	JWTSecret   string   `json:"jwt_secret"`
	JWTTTLHours int      `json:"jwt_ttl_hours"`
	CORSOrigins []string `json:"cors_origins"`
	// SendIntervalMs is the minimum gap between two sends by the same user
	// on the same chat. Zero turns the limiter off.
	SendIntervalMs int              `json:"send_interval_ms"`
	LogConfig      logger.LogConfig `json:"log_config"`
	Storage        StorageConfig    `json:"storage"`
	Database       DatabaseConfig   `json:"database"`
	AI             AIConfig         `json:"ai"`
	Index          IndexConfig      `json:"index"`
	EmbedCache     EmbedCacheConfig `json:"embed_cache"`
	Schedule       ScheduleConfig   `json:"schedule"`
}

type StorageConfig struct {
	// Type is "postgres" or "memory".
	Type string `json:"type"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type AIProviderConfig struct {
	Name     string      `json:"name"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Generators   []AIProviderConfig `json:"generators"`
	Embedders    []AIProviderConfig `json:"embedders"`
	DefaultModel string             `json:"default_model"`
	DefaultAgent string             `json:"default_agent"`
	Timeout      int                `json:"timeout"`
	HistoryTail  int                `json:"history_tail"`
}

type IndexConfig struct {
	TimeoutMs    int     `json:"timeout_ms"`
	DefaultLimit int     `json:"default_limit"`
	MaxLimit     int     `json:"max_limit"`
	MinScore     float32 `json:"min_score"`
}

type EmbedCacheConfig struct {
	LRUSize       int  `json:"lru_size"`
	LRUTTLMinutes int  `json:"lru_ttl_minutes"`
	EnableDB      bool `json:"enable_db"`
	DBKeepDays    int  `json:"db_keep_days"`
}

type ScheduleConfig struct {
	ReconcileSpec    string `json:"reconcile_spec"`
	CacheCleanupSpec string `json:"cache_cleanup_spec"`
}

const (
	StorageTypePostgres = "postgres"
	StorageTypeMemory   = "memory"
)

// envOverrides lets secrets stay out of the config file.
var envOverrides = map[string]func(cfg *Config, value string){
	"CHATCTX_JWT_SECRET": func(cfg *Config, value string) { cfg.JWTSecret = value },
	"CHATCTX_DB_DSN":     func(cfg *Config, value string) { cfg.Database.DSN = value },
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// a missing .env is the normal case
	_ = godotenv.Load()
	for key, apply := range envOverrides {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			apply(&cfg, strings.TrimSpace(value))
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.SendIntervalMs < 0 {
		return fmt.Errorf("send_interval_ms must not be negative")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = StorageTypePostgres
	}
	switch cfg.Storage.Type {
	case StorageTypePostgres:
		if cfg.Database.DSN == "" && cfg.Database.Host == "" {
			return fmt.Errorf("database.dsn or database.host is required for postgres storage")
		}
		if cfg.Database.Port == 0 {
			cfg.Database.Port = 5432
		}
	case StorageTypeMemory:
	default:
		return fmt.Errorf("storage.type must be postgres or memory")
	}
	if len(cfg.AI.Generators) == 0 {
		return fmt.Errorf("ai.generators requires at least one provider")
	}
	if len(cfg.AI.Embedders) == 0 {
		return fmt.Errorf("ai.embedders requires at least one provider")
	}
	for i, item := range cfg.AI.Embedders {
		if item.Provider == "" {
			return fmt.Errorf("ai.embedders[%d].provider is required", i)
		}
	}
	for i, item := range cfg.AI.Generators {
		if item.Provider == "" {
			return fmt.Errorf("ai.generators[%d].provider is required", i)
		}
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-oss:20b"
	}
	if cfg.AI.DefaultAgent == "" {
		cfg.AI.DefaultAgent = "assistant"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.Index.TimeoutMs <= 0 {
		cfg.Index.TimeoutMs = 3000
	}
	if cfg.Index.DefaultLimit <= 0 {
		cfg.Index.DefaultLimit = 5
	}
	if cfg.Index.MaxLimit <= 0 {
		cfg.Index.MaxLimit = 50
	}
	if cfg.Index.DefaultLimit > cfg.Index.MaxLimit {
		return fmt.Errorf("index.default_limit must not exceed index.max_limit")
	}
	if cfg.EmbedCache.LRUSize == 0 {
		cfg.EmbedCache.LRUSize = 10000
	}
	if cfg.EmbedCache.LRUTTLMinutes == 0 {
		cfg.EmbedCache.LRUTTLMinutes = 120
	}
	if cfg.EmbedCache.DBKeepDays <= 0 {
		cfg.EmbedCache.DBKeepDays = 30
	}
	if cfg.Schedule.ReconcileSpec == "" {
		cfg.Schedule.ReconcileSpec = "*/30 * * * *"
	}
	if cfg.Schedule.CacheCleanupSpec == "" {
		cfg.Schedule.CacheCleanupSpec = "0 3 * * *"
	}
	return nil
}
