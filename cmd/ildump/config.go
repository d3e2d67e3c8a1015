package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/EWSoftware/SHFB-sub006/gac"
	"github.com/EWSoftware/SHFB-sub006/metadata"
	"github.com/EWSoftware/SHFB-sub006/specialize"
	"github.com/EWSoftware/SHFB-sub006/unstack"
)

// config is the optional YAML file named by --config.
type config struct {
	LogLevel       string   `yaml:"log_level"`
	GenericsTarget *bool    `yaml:"generics_target"`
	SearchDirs     []string `yaml:"search_dirs"`
}

const defaultLogLevel = "warn"

func loadConfig(path string) (*config, error) {
	cfg := &config{LogLevel: defaultLogLevel}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if _, err := zap.ParseAtomicLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Verbose output uses the development
// encoder at debug level.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopmentConfig().Build()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.Sampling = nil
	return cfg.Build()
}

func installLogger(l *zap.Logger) {
	metadata.SetLogger(l)
	specialize.SetLogger(l)
	unstack.SetLogger(l)
	gac.SetLogger(l)
}
