package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	API      APIConfig      `yaml:"api"`
	Evidence EvidenceConfig `yaml:"evidence"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString builds the pgx DSN, sslmode defaults to disable.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	EventsTopicName        string `yaml:"events_topic_name"`
	NotificationsTopicName string `yaml:"notifications_topic_name"`
	ConsumerGroup          string `yaml:"consumer_group"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // "postgres" | "mongo" | "memory"
}

type APIConfig struct {
	HTTPAddr                string   `yaml:"http_addr"`
	CORSAllowedOrigins      []string `yaml:"cors_allowed_origins"`
	// Прокси, чьему X-Forwarded-For верим при лимитировании (CIDR или адрес).
	TrustedProxies          []string `yaml:"trusted_proxies"`
	MutationsPerMinute      int      `yaml:"mutations_per_minute"`
	SnapshotTTLSeconds      int      `yaml:"snapshot_ttl_seconds"`
	RequireDeliveryEvidence bool     `yaml:"require_delivery_evidence"`
	PublicTrackingBaseURL   string   `yaml:"public_tracking_base_url"`
	NotificationsEnabled    bool     `yaml:"notifications_enabled"`
}

type EvidenceConfig struct {
	Mode    string `yaml:"mode"` // "inline" | "mediahttp"
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type WorkerConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	// Retry schedule for infrastructure errors, defaults 5/15/30/60 seconds.
	Backoff1Seconds int `yaml:"backoff_1_seconds"`
	Backoff2Seconds int `yaml:"backoff_2_seconds"`
	Backoff3Seconds int `yaml:"backoff_3_seconds"`
	Backoff4Seconds int `yaml:"backoff_4_seconds"`
	MaxAttempts     int `yaml:"max_attempts"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
