package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Redis struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"redis"`
	Server struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"server"`
	Sync struct {
		BatchSize     int           `mapstructure:"batch_size"`
		Concurrency   int           `mapstructure:"concurrency"`
		ReaderTimeout time.Duration `mapstructure:"reader_timeout"`
		RetryAttempts int           `mapstructure:"retry_attempts"`
		RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
		LockTTL       time.Duration `mapstructure:"lock_ttl"`
	} `mapstructure:"sync"`
	Scheduler struct {
		Enabled  bool          `mapstructure:"enabled"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"scheduler"`
	// Environments keys are environment ids.
	Environments map[string]Environment `mapstructure:"environments"`
	Targets      []Target               `mapstructure:"targets"`
}

// Environment describes one runtime environment and its repository
// checkout.
type Environment struct {
	// Class is "full" or "observational".
	Class       string `mapstructure:"class"`
	TrackedPath string `mapstructure:"tracked_path"`
	RuntimeURL  string `mapstructure:"runtime_url"`
	APIKey      string `mapstructure:"api_key"`
}

// Target is a (tenant, environment) pair the scheduler keeps in sync.
type Target struct {
	TenantID      string `mapstructure:"tenant_id"`
	EnvironmentID string `mapstructure:"environment_id"`
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("CANONSYNC")
	viper.AutomaticEnv()

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("sync.batch_size", 50)
	viper.SetDefault("sync.concurrency", 8)
	viper.SetDefault("sync.reader_timeout", 30*time.Second)
	viper.SetDefault("sync.retry_attempts", 3)
	viper.SetDefault("sync.retry_backoff", 500*time.Millisecond)
	viper.SetDefault("sync.lock_ttl", 10*time.Minute)
	viper.SetDefault("scheduler.interval", 5*time.Minute)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	for id, env := range config.Environments {
		if env.Class != "" && env.Class != "full" && env.Class != "observational" {
			return nil, fmt.Errorf("environment %s: invalid class %q", id, env.Class)
		}
	}

	return &config, nil
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.DB.Host, c.DB.User, c.DB.Password, c.DB.Name, c.DB.Port, c.DB.SSLMode)
}
