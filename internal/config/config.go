// Package config loads the service configuration from the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every knob of the service. All values come from the
// environment with sensible defaults; per-job store credentials arrive with
// each request and are never part of the service config.
type Config struct {
	Port          string
	TempDir       string
	BatchSize     int
	FetchTimeout  time.Duration
	UploadTimeout time.Duration
	SweepInterval time.Duration
	SweepMaxAge   time.Duration
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("temp_dir", os.TempDir())
	v.SetDefault("batch_size", 5)
	v.SetDefault("fetch_timeout", "60s")
	v.SetDefault("upload_timeout", "120s")
	v.SetDefault("sweep_interval", "30m")
	v.SetDefault("sweep_max_age", "1h")

	return &Config{
		Port:          v.GetString("port"),
		TempDir:       v.GetString("temp_dir"),
		BatchSize:     v.GetInt("batch_size"),
		FetchTimeout:  v.GetDuration("fetch_timeout"),
		UploadTimeout: v.GetDuration("upload_timeout"),
		SweepInterval: v.GetDuration("sweep_interval"),
		SweepMaxAge:   v.GetDuration("sweep_max_age"),
	}, nil
}
