package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application. It is passed
// explicitly into every component; nothing reads it from ambient state.
type Config struct {
	GitHubToken string
	GitHubOrg   string
	SonarOrg    string
	SonarToken  string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	HTTPAddr        string
	LogLevel        string
	DetailBatchSize int
	BatchDelay      time.Duration
	// SyncSchedule is a cron expression for the automated sync trigger.
	// Empty disables scheduled syncs.
	SyncSchedule string
}

// NewConfig creates a new Config instance
func NewConfig() *Config {
	return &Config{}
}

// Load loads configuration from environment variables
func (c *Config) Load() error {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Read .env file if it exists; environment variables alone are fine.
	_ = viper.ReadInConfig()

	// Required fields
	c.GitHubToken = viper.GetString("GITHUB_TOKEN")
	if c.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}

	c.GitHubOrg = viper.GetString("GITHUB_ORG")
	if c.GitHubOrg == "" {
		return fmt.Errorf("GITHUB_ORG is required")
	}

	c.SonarOrg = viper.GetString("SONAR_ORG")
	if c.SonarOrg == "" {
		return fmt.Errorf("SONAR_ORG is required")
	}

	// Optional fields with defaults
	c.SonarToken = viper.GetString("SONAR_TOKEN")

	c.PostgresHost = viper.GetString("POSTGRES_HOST")
	c.PostgresPort = viper.GetString("POSTGRES_PORT")
	c.PostgresUser = viper.GetString("POSTGRES_USER")
	c.PostgresPassword = viper.GetString("POSTGRES_PASSWORD")
	c.PostgresDB = viper.GetString("POSTGRES_DB")

	c.HTTPAddr = viper.GetString("HTTP_ADDR")
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}

	c.LogLevel = viper.GetString("LOG_LEVEL")
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	c.DetailBatchSize = viper.GetInt("DETAIL_BATCH_SIZE")
	if c.DetailBatchSize <= 0 {
		c.DetailBatchSize = 5
	}

	c.BatchDelay = viper.GetDuration("BATCH_DELAY")
	if c.BatchDelay == 0 {
		c.BatchDelay = 2 * time.Second
	}

	c.SyncSchedule = viper.GetString("SYNC_SCHEDULE")

	return nil
}
