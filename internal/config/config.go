package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken string         `yaml:"discord_token"`
	LogLevel     string         `yaml:"log_level"`
	Redis        RedisConfig    `yaml:"redis"`
	Health       HealthConfig   `yaml:"health"`
	Giveaways    GiveawayConfig `yaml:"giveaways"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type GiveawayConfig struct {
	SweepIntervalSeconds int         `yaml:"sweep_interval_seconds"`
	DMWinners            bool        `yaml:"dm_winners"`
	EmbedColors          EmbedColors `yaml:"embed_colors"`
}

type EmbedColors struct {
	Active int `yaml:"active"`
	Ended  int `yaml:"ended"`
	Error  int `yaml:"error"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Health:   HealthConfig{Enabled: false, Addr: ":8080"},
		Giveaways: GiveawayConfig{
			SweepIntervalSeconds: 15,
			DMWinners:            true,
			EmbedColors: EmbedColors{
				Active: 0x5865F2,
				Ended:  0x57F287,
				Error:  0xED4245,
			},
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	if cfg.Giveaways.SweepIntervalSeconds < 1 {
		cfg.Giveaways.SweepIntervalSeconds = 15
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Redis.Addr = envString("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envString("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envInt("REDIS_DB", cfg.Redis.DB)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Giveaways.SweepIntervalSeconds = envInt("SWEEP_INTERVAL_SECONDS", cfg.Giveaways.SweepIntervalSeconds)
	cfg.Giveaways.DMWinners = envBool("DM_WINNERS", cfg.Giveaways.DMWinners)
	cfg.Giveaways.EmbedColors.Active = envInt("EMBED_COLOR_ACTIVE", cfg.Giveaways.EmbedColors.Active)
	cfg.Giveaways.EmbedColors.Ended = envInt("EMBED_COLOR_ENDED", cfg.Giveaways.EmbedColors.Ended)
	cfg.Giveaways.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.Giveaways.EmbedColors.Error)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
