// Package config loads the walletd daemon configuration. Values come
// from an optional yaml file, then environment overrides, then whatever
// flags the caller applies on top.
package config

import (
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	RPCAddr  string
	DataDir  string
	LogLevel slog.Level
}

type fileConfig struct {
	Server  serverSection  `yaml:"server"`
	Storage storageSection `yaml:"storage"`
	Logging loggingSection `yaml:"logging"`
}

type serverSection struct {
	RPCAddr string `yaml:"rpcAddr"`
}

type storageSection struct {
	DataDir string `yaml:"dataDir"`
}

type loggingSection struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		RPCAddr:  "127.0.0.1:8799",
		DataDir:  "",
		LogLevel: slog.LevelInfo,
	}
}

func LoadFromPath(configPath string) Config {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"go-core/configs/config.yaml",
			"configs/config.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}

		merged := cfg
		Merge(&merged, parsed)
		ApplyEnvOverrides(&merged)
		return merged
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

func Merge(dst *Config, src fileConfig) {
	if src.Server.RPCAddr != "" {
		dst.RPCAddr = src.Server.RPCAddr
	}
	if src.Storage.DataDir != "" {
		dst.DataDir = src.Storage.DataDir
	}
	if level, ok := parseLevel(src.Logging.Level); ok {
		dst.LogLevel = level
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if addr := strings.TrimSpace(os.Getenv("LUMEN_RPC_ADDR")); addr != "" {
		cfg.RPCAddr = addr
	}
	if dir := strings.TrimSpace(os.Getenv("LUMEN_DATA_DIR")); dir != "" {
		cfg.DataDir = dir
	}
	if level, ok := parseLevel(os.Getenv("LUMEN_LOG_LEVEL")); ok {
		cfg.LogLevel = level
	}
}

func parseLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
