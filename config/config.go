// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"pvb-go/utils"
)

// Config is everything the bot reads from its environment.
type Config struct {
	BotToken   string `env:"BOT_TOKEN,required"`
	BackendURL string `env:"BACKEND_URL" envDefault:"http://localhost:8081"`

	// DatabaseURL is optional; without it analytics recording is off.
	DatabaseURL   string `env:"DATABASE_URL"`
	DashboardAddr string `env:"DASHBOARD_ADDR" envDefault:":8080"`

	IdleTimeout     time.Duration `env:"SESSION_IDLE_TIMEOUT"`
	HardTimeout     time.Duration `env:"SESSION_HARD_TIMEOUT"`
	ChallengeWindow time.Duration `env:"CHALLENGE_WINDOW"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = utils.DefaultIdleTimeout
	}
	if cfg.HardTimeout <= 0 {
		cfg.HardTimeout = utils.DefaultHardTimeout
	}
	if cfg.ChallengeWindow <= 0 {
		cfg.ChallengeWindow = utils.ChallengeWindow
	}
	if cfg.IdleTimeout > cfg.HardTimeout {
		return nil, fmt.Errorf("idle timeout %s exceeds hard timeout %s", cfg.IdleTimeout, cfg.HardTimeout)
	}

	return cfg, nil
}
