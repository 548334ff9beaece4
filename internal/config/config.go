package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config хранит все параметры приложения
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Kitchen  KitchenConfig  `yaml:"kitchen"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	UseTLS   bool   `yaml:"use_tls"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// KitchenConfig tunes admission and queue draining.
type KitchenConfig struct {
	DefaultMaxCooking int           `yaml:"default_max_cooking"`
	DrainBatch        int           `yaml:"drain_batch"`
	DrainWait         time.Duration `yaml:"drain_wait"`
	DrainRounds       int           `yaml:"drain_rounds"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	Prefetch          int           `yaml:"prefetch"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Port: 5432, SSLMode: "disable", MaxConns: 10},
		RabbitMQ: RabbitMQConfig{Port: 5672, VHost: "/"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		HTTP:     HTTPConfig{Port: 3000},
		Kitchen: KitchenConfig{
			DefaultMaxCooking: 5,
			DrainBatch:        10,
			DrainWait:         2 * time.Second,
			DrainRounds:       5,
			Heartbeat:         30 * time.Second,
			Prefetch:          1,
		},
	}
}

// LoadConfig reads the YAML file at path, applies .env and environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldnt open the file for the configuration: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}

	// .env необязателен: в контейнере всё приходит из окружения
	_ = godotenv.Load()
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default.
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("error reading config yaml: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	setStr := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setStr(&c.Database.Host, "DATABASE_HOST")
	setInt(&c.Database.Port, "DATABASE_PORT")
	setStr(&c.Database.User, "DATABASE_USER")
	setStr(&c.Database.Password, "DATABASE_PASSWORD")
	setStr(&c.Database.Database, "DATABASE_NAME")
	setStr(&c.RabbitMQ.Host, "RABBITMQ_HOST")
	setStr(&c.RabbitMQ.User, "RABBITMQ_USER")
	setStr(&c.RabbitMQ.Password, "RABBITMQ_PASSWORD")
	setStr(&c.Redis.Addr, "REDIS_ADDR")
	setStr(&c.Redis.Password, "REDIS_PASSWORD")
	setStr(&c.Auth.JWTSecret, "JWT_SECRET")
	setInt(&c.HTTP.Port, "HTTP_PORT")
}

// Validate reports the first missing mandatory field.
func (c *Config) Validate() error {
	switch {
	case c.Database.Host == "":
		return errors.New("invalid config: database.host is required")
	case c.Database.User == "":
		return errors.New("invalid config: database.user is required")
	case c.Database.Database == "":
		return errors.New("invalid config: database.database is required")
	case c.RabbitMQ.Host == "":
		return errors.New("invalid config: rabbitmq.host is required")
	case c.RabbitMQ.User == "":
		return errors.New("invalid config: rabbitmq.user is required")
	case c.Kitchen.DefaultMaxCooking <= 0:
		return errors.New("invalid config: kitchen.default_max_cooking must be positive")
	case c.Kitchen.DrainBatch <= 0:
		return errors.New("invalid config: kitchen.drain_batch must be positive")
	}
	return nil
}

func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
