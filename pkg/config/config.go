// Package config loads and validates application configuration from YAML files
// with .env and environment-variable overrides. It provides typed structs for
// every subsystem (Server, Engine, Classifier, TextGen, Postgres, Kafka, Redis,
// Gateway, etc.).
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Engine     EngineConfig     `yaml:"engine"`
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Classifier ClassifierConfig `yaml:"classifier"`
	TextGen    TextGenConfig    `yaml:"textgen"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP and RPC server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RPCPort         int           `yaml:"rpcPort"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// EngineConfig controls the confidence gate and candidate count.
type EngineConfig struct {
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
	TopN                int     `yaml:"topN"`
}

// VocabularyConfig points at the symptom/disease mappings file.
type VocabularyConfig struct {
	Path string `yaml:"path"`
}

// ClassifierConfig holds the remote model endpoint and prediction cache
// settings.
type ClassifierConfig struct {
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retryAttempts"`
	CacheSize     int           `yaml:"cacheSize"`
	CacheTTL      time.Duration `yaml:"cacheTTL"`
}

// TextGenConfig selects and tunes the narrative text generator.
type TextGenConfig struct {
	Provider         string        `yaml:"provider"`
	Model            string        `yaml:"model"`
	APIKey           string        `yaml:"apiKey"`
	// BaseURL overrides the provider endpoint; empty uses the provider's own.
	BaseURL          string        `yaml:"baseURL"`
	Timeout          time.Duration `yaml:"timeout"`
	Temperature      float32       `yaml:"temperature"`
	MaxTokens        int           `yaml:"maxTokens"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DiagnosticEvents string `yaml:"diagnosticEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// GatewayConfig controls the HTTP edge: CORS origins, per-client rate limit
// and request body size. X-Forwarded-For is only read when the socket peer
// is one of TrustedProxies (IPs or CIDRs).
type GatewayConfig struct {
	AllowOrigins   []string `yaml:"allowOrigins"`
	RateLimit      int      `yaml:"rateLimit"`
	MaxBodyBytes   int64    `yaml:"maxBodyBytes"`
	TrustedProxies []string `yaml:"trustedProxies"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), loads a .env file when one is
// present, and applies environment-variable overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrConfiguration, 500, "reading config file %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Newf(apperrors.ErrConfiguration, 500, "parsing config file %s: %v", path, err)
		}
	}
	_ = godotenv.Load()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	if c.Engine.ConfidenceThreshold < 0 || c.Engine.ConfidenceThreshold > 100 {
		return apperrors.Newf(apperrors.ErrConfiguration, 500, "engine.confidenceThreshold must be within [0,100], got %v", c.Engine.ConfidenceThreshold)
	}
	if c.Engine.TopN < 1 {
		return apperrors.Newf(apperrors.ErrConfiguration, 500, "engine.topN must be at least 1, got %d", c.Engine.TopN)
	}
	if strings.TrimSpace(c.Vocabulary.Path) == "" {
		return apperrors.New(apperrors.ErrConfiguration, 500, "vocabulary.path is required")
	}
	switch c.TextGen.Provider {
	case "groq", "gemini", "none":
	default:
		return apperrors.Newf(apperrors.ErrConfiguration, 500, "textgen.provider must be groq, gemini or none, got %q", c.TextGen.Provider)
	}
	for _, p := range c.Gateway.TrustedProxies {
		if !validProxy(p) {
			return apperrors.Newf(apperrors.ErrConfiguration, 500, "gateway.trustedProxies entry %q is not an IP or CIDR", p)
		}
	}
	return nil
}

func validProxy(s string) bool {
	s = strings.TrimSpace(s)
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			RPCPort:         9000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Engine: EngineConfig{
			ConfidenceThreshold: 70,
			TopN:                3,
		},
		Vocabulary: VocabularyConfig{
			Path: "configs/mappings.yaml",
		},
		Classifier: ClassifierConfig{
			URL:           "http://localhost:8001",
			Timeout:       5 * time.Second,
			RetryAttempts: 2,
			CacheSize:     4096,
			CacheTTL:      10 * time.Minute,
		},
		TextGen: TextGenConfig{
			Provider:         "groq",
			Model:            "llama-3.3-70b-versatile",
			Timeout:          20 * time.Second,
			Temperature:      0.5,
			MaxTokens:        1024,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "diagnosis",
			User:            "diagnosis",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       true,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "diagnosis-analytics",
			Topics: KafkaTopics{
				DiagnosticEvents: "diagnostic-events",
			},
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Gateway: GatewayConfig{
			AllowOrigins: []string{"http://localhost:3000"},
			RateLimit:    120,
			MaxBodyBytes: 1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SD_* environment variables (plus the provider API key
// variables) and overrides the corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SD_SERVER_RPC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.RPCPort = port
		}
	}
	if v := os.Getenv("SD_ENGINE_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.ConfidenceThreshold = threshold
		}
	}
	if v := os.Getenv("SD_VOCABULARY_PATH"); v != "" {
		cfg.Vocabulary.Path = v
	}
	if v := os.Getenv("SD_CLASSIFIER_URL"); v != "" {
		cfg.Classifier.URL = v
	}
	if v := os.Getenv("SD_TEXTGEN_PROVIDER"); v != "" {
		cfg.TextGen.Provider = v
	}
	if v := os.Getenv("SD_TEXTGEN_MODEL"); v != "" {
		cfg.TextGen.Model = v
	}
	if cfg.TextGen.APIKey == "" {
		switch cfg.TextGen.Provider {
		case "groq":
			cfg.TextGen.APIKey = os.Getenv("GROQ_API_KEY")
		case "gemini":
			cfg.TextGen.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if v := os.Getenv("SD_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SD_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SD_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SD_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SD_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SD_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SD_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SD_GATEWAY_ALLOW_ORIGINS"); v != "" {
		cfg.Gateway.AllowOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SD_GATEWAY_TRUSTED_PROXIES"); v != "" {
		cfg.Gateway.TrustedProxies = strings.Split(v, ",")
	}
	if v := os.Getenv("SD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
