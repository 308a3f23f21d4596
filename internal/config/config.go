package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type FetchConfig struct {
	UserAgent    string        `yaml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRedirects int           `yaml:"max_redirects"`
	Concurrency  int           `yaml:"concurrency"`
}

type RefreshConfig struct {
	Interval      time.Duration `yaml:"interval"`
	FeedCooldown  time.Duration `yaml:"feed_cooldown"`
	ImageCooldown time.Duration `yaml:"image_cooldown"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "feedkeeper"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "entries"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "feed_entries"
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "feedkeeper/1.0"
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxRedirects == 0 {
		c.Fetch.MaxRedirects = 5
	}
	if c.Fetch.Concurrency == 0 {
		c.Fetch.Concurrency = 8
	}
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = 15 * time.Minute
	}
	if c.Refresh.FeedCooldown == 0 {
		c.Refresh.FeedCooldown = 10 * time.Minute
	}
	if c.Refresh.ImageCooldown == 0 {
		c.Refresh.ImageCooldown = 24 * time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
