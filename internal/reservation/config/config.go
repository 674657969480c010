// Package config loads the reservation engine's YAML configuration and
// layers environment-variable overrides on top, the way the rest of the
// platform's services do.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for the reservation engine.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Mongo       MongoConfig       `yaml:"mongo"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Allocator   AllocatorConfig   `yaml:"allocator"`
	Expiry      ExpiryConfig      `yaml:"expiry"`
	Cache       CacheConfig       `yaml:"cache"`
	Availability AvailabilityConfig `yaml:"availability"`
	JWT         JWTConfig         `yaml:"jwt"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

type DatabaseConfig struct {
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	Host     string        `yaml:"host"`
	Port     string        `yaml:"port"`
	Name     string        `yaml:"name"`
	MaxIdle  int           `yaml:"maxIdleConnections"`
	MaxOpen  int           `yaml:"maxOpenConnections"`
	MaxLife  time.Duration `yaml:"maxLifetime"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type KafkaConfig struct {
	Brokers              []string `yaml:"brokers"`
	RequestTopic         string   `yaml:"request_topic"`
	DeadLetterTopic      string   `yaml:"dead_letter_topic"`
	ReservationEventTopic string  `yaml:"reservation_event_topic"`
	PartitionCount       int      `yaml:"partition_count"`
	ArchiveConsumerGroup string   `yaml:"archive_consumer_group"`
}

// AllocatorConfig tunes the Batch Allocator's admission window (spec §4.3).
type AllocatorConfig struct {
	BatchSize           int `yaml:"batch_size"`
	BatchMaxWaitMillis  int `yaml:"batch_max_wait_ms"`
	HoldDurationSeconds int `yaml:"hold_duration_seconds"`
	MaxApplyRetries     int `yaml:"max_apply_retries"`
}

// ExpiryConfig tunes the Expiry Reconciler's sweep cadence (spec §4.5).
type ExpiryConfig struct {
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	SweepBatchSize       int `yaml:"sweep_batch_size"`
}

// CacheConfig tunes the Coordination Cache's per-key TTLs (spec §4.7).
type CacheConfig struct {
	StockTTLSeconds             int `yaml:"stock_ttl_seconds"`
	ActiveReservationTTLSeconds int `yaml:"active_reservation_ttl_seconds"`
	PurchasedTTLSeconds         int `yaml:"purchased_ttl_seconds"`
	RejectionTTLSeconds         int `yaml:"rejection_ttl_seconds"`
}

type AvailabilityConfig struct {
	LowStockThreshold int `yaml:"low_stock_threshold"`
}

type JWTConfig struct {
	SecretKey            string        `yaml:"secret_key"`
	AccessTokenDuration   time.Duration `yaml:"access_token_duration"`
	RefreshTokenDuration  time.Duration `yaml:"refresh_token_duration"`
	Issuer                string        `yaml:"issuer"`
}

// LoadConfig loads configuration from a YAML file, then applies
// environment-variable overrides on top of whatever the file set.
func LoadConfig(configPath string) (*Config, error) {
	cfg := defaultConfig()

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	overrideWithEnv(cfg)

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      "0.0.0.0:8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			User: "root", Password: "pass", Host: "localhost", Port: "3306",
			Name: "reservation_engine", MaxIdle: 25, MaxOpen: 25, MaxLife: 5 * time.Minute,
		},
		Redis: RedisConfig{Address: "localhost:6379", DB: 0},
		Mongo: MongoConfig{URI: "mongodb://localhost:27017", Database: "reservation_archive"},
		Kafka: KafkaConfig{
			Brokers:               []string{"localhost:9092"},
			RequestTopic:          "reservation_requests",
			DeadLetterTopic:       "reservation_requests_dlq",
			ReservationEventTopic: "reservation_events",
			PartitionCount:        8,
			ArchiveConsumerGroup:  "reservation_archive",
		},
		Allocator: AllocatorConfig{
			BatchSize: 50, BatchMaxWaitMillis: 200, HoldDurationSeconds: 600, MaxApplyRetries: 5,
		},
		Expiry: ExpiryConfig{SweepIntervalSeconds: 10, SweepBatchSize: 100},
		Cache: CacheConfig{
			StockTTLSeconds: 300, ActiveReservationTTLSeconds: 900,
			PurchasedTTLSeconds: 86400, RejectionTTLSeconds: 180,
		},
		Availability: AvailabilityConfig{LowStockThreshold: 10},
		JWT: JWTConfig{
			SecretKey: "change-me", AccessTokenDuration: 15 * time.Minute,
			RefreshTokenDuration: 7 * 24 * time.Hour, Issuer: "reservation-engine",
		},
	}
}

// overrideWithEnv layers environment variables over the loaded file, unlike
// the commented-out equivalent elsewhere in the platform's services — this
// one is actually wired in, since the engine runs as containers where env
// vars are the deployment-time knob.
func overrideWithEnv(c *Config) {
	if v := os.Getenv("RESERVATION_SERVER_ADDR"); v != "" {
		c.Server.Address = v
	}

	if v := os.Getenv("RESERVATION_DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("RESERVATION_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("RESERVATION_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("RESERVATION_DB_PORT"); v != "" {
		c.Database.Port = v
	}
	if v := os.Getenv("RESERVATION_DB_NAME"); v != "" {
		c.Database.Name = v
	}

	if v := os.Getenv("RESERVATION_REDIS_ADDR"); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv("RESERVATION_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}

	if v := os.Getenv("RESERVATION_MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("RESERVATION_MONGO_DATABASE"); v != "" {
		c.Mongo.Database = v
	}

	if v := os.Getenv("RESERVATION_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := envInt("RESERVATION_PARTITION_COUNT"); v != nil {
		c.Kafka.PartitionCount = *v
	}

	if v := envInt("RESERVATION_BATCH_SIZE"); v != nil {
		c.Allocator.BatchSize = *v
	}
	if v := envInt("RESERVATION_BATCH_MAX_WAIT_MS"); v != nil {
		c.Allocator.BatchMaxWaitMillis = *v
	}
	if v := envInt("RESERVATION_HOLD_DURATION_SECONDS"); v != nil {
		c.Allocator.HoldDurationSeconds = *v
	}

	if v := envInt("RESERVATION_EXPIRY_SWEEP_INTERVAL_S"); v != nil {
		c.Expiry.SweepIntervalSeconds = *v
	}
	if v := envInt("RESERVATION_EXPIRY_SWEEP_BATCH"); v != nil {
		c.Expiry.SweepBatchSize = *v
	}

	if v := envInt("RESERVATION_CACHE_STOCK_TTL_S"); v != nil {
		c.Cache.StockTTLSeconds = *v
	}
	if v := envInt("RESERVATION_CACHE_REJECTION_TTL_S"); v != nil {
		c.Cache.RejectionTTLSeconds = *v
	}

	if v := os.Getenv("RESERVATION_JWT_SECRET"); v != "" {
		c.JWT.SecretKey = v
	}
}

func envInt(key string) *int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}
