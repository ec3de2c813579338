package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the KYC risk service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Screening ScreeningConfig `mapstructure:"screening"`
	RefData   RefDataConfig   `mapstructure:"refdata"`
	Narrative NarrativeConfig `mapstructure:"narrative"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRequestSize  string        `mapstructure:"max_request_size"` // echo body limit, e.g. "8M"
}

// DatabaseConfig holds batch result store configuration
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the data source name for the configured driver
func (c DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.SQLitePath
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Password          string        `mapstructure:"password"`
	DB                int           `mapstructure:"db"`
	PoolSize          int           `mapstructure:"pool_size"`
	MinIdleConns      int           `mapstructure:"min_idle_conns"`
	MaxRetries        int           `mapstructure:"max_retries"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	KeyPrefix         string        `mapstructure:"key_prefix"`
	SanctionsCacheTTL time.Duration `mapstructure:"sanctions_cache_ttl"`
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	ClientID    string   `mapstructure:"client_id"`
	AlertsTopic string   `mapstructure:"alerts_topic"`
	AuditTopic  string   `mapstructure:"audit_topic"`
	MaxRetries  int      `mapstructure:"max_retries"`
}

// ScreeningConfig holds scoring and matching configuration
type ScreeningConfig struct {
	MatchThreshold     float64       `mapstructure:"match_threshold"`
	CandidateFloor     float64       `mapstructure:"candidate_floor"`
	NameWeight         float64       `mapstructure:"name_weight"`
	BirthDateWeight    float64       `mapstructure:"birth_date_weight"`
	BirthCountryWeight float64       `mapstructure:"birth_country_weight"`
	TopK               int           `mapstructure:"top_k"`
	Workers            int           `mapstructure:"workers"`
	TopDrivers         int           `mapstructure:"top_drivers"`
	ConfidencePenalty  float64       `mapstructure:"confidence_penalty"`
	MaxBatchSize       int           `mapstructure:"max_batch_size"`
	MaxBatchLatency    time.Duration `mapstructure:"max_batch_latency"`
}

// RefDataConfig points at optional reference data files
type RefDataConfig struct {
	TablesPath    string `mapstructure:"tables_path"`    // YAML override of the built-in tables
	SanctionsPath string `mapstructure:"sanctions_path"` // JSON sanctions list
}

// NarrativeConfig holds the optional language-model explainer configuration
type NarrativeConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoint        string        `mapstructure:"endpoint"`
	Model           string        `mapstructure:"model"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Concurrency     int           `mapstructure:"concurrency"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName    string  `mapstructure:"service_name"`
	Environment    string  `mapstructure:"environment"`
	Debug          bool    `mapstructure:"debug"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	SamplingRatio  float64 `mapstructure:"sampling_ratio"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	JWTSecret      string   `mapstructure:"jwt_secret"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load loads configuration from environment and config files
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("KYC_RISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/kyc-risk-service")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, use defaults + env
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Screening.Workers <= 0 {
		cfg.Screening.Workers = runtime.NumCPU()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	var errs []error
	s := c.Screening

	if s.MatchThreshold <= 0 || s.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("screening.match_threshold must be in (0,1], got %v", s.MatchThreshold))
	}
	if s.CandidateFloor < 0 || s.CandidateFloor >= s.MatchThreshold {
		errs = append(errs, fmt.Errorf("screening.candidate_floor must be in [0,match_threshold), got %v", s.CandidateFloor))
	}
	for name, w := range map[string]float64{
		"name_weight":          s.NameWeight,
		"birth_date_weight":    s.BirthDateWeight,
		"birth_country_weight": s.BirthCountryWeight,
	} {
		if w < 0 || w > 1 {
			errs = append(errs, fmt.Errorf("screening.%s must be in [0,1], got %v", name, w))
		}
	}
	if s.TopK < 0 {
		errs = append(errs, fmt.Errorf("screening.top_k must not be negative, got %d", s.TopK))
	}
	if s.TopDrivers < 0 {
		errs = append(errs, fmt.Errorf("screening.top_drivers must not be negative, got %d", s.TopDrivers))
	}
	if s.ConfidencePenalty < 0 || s.ConfidencePenalty > 0.45 {
		errs = append(errs, fmt.Errorf("screening.confidence_penalty must be in [0,0.45], got %v", s.ConfidencePenalty))
	}
	if s.MaxBatchSize < 0 {
		errs = append(errs, fmt.Errorf("screening.max_batch_size must not be negative, got %d", s.MaxBatchSize))
	}

	if c.Database.Enabled && c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers must not be empty when kafka is enabled"))
	}
	if c.Narrative.Enabled && c.Narrative.Endpoint == "" {
		errs = append(errs, errors.New("narrative.endpoint must be set when narrative is enabled"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_request_size", "8M")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "kyc_risk_db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite_path", "kyc_risk.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "1s")
	v.SetDefault("redis.write_timeout", "1s")
	v.SetDefault("redis.key_prefix", "kyc:")
	v.SetDefault("redis.sanctions_cache_ttl", "24h")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.client_id", "kyc-risk-service")
	v.SetDefault("kafka.alerts_topic", "banking.kyc.alerts")
	v.SetDefault("kafka.audit_topic", "banking.audit.logs")
	v.SetDefault("kafka.max_retries", 3)

	// Screening defaults
	v.SetDefault("screening.match_threshold", 0.8)
	v.SetDefault("screening.candidate_floor", 0.1)
	v.SetDefault("screening.name_weight", 0.4)
	v.SetDefault("screening.birth_date_weight", 0.4)
	v.SetDefault("screening.birth_country_weight", 0.3)
	v.SetDefault("screening.top_k", 5)
	v.SetDefault("screening.workers", 0) // 0 = runtime.NumCPU()
	v.SetDefault("screening.top_drivers", 5)
	// 0.15 rather than 0.05: a record missing email, device, IP data and birth date must land on the 0.5 floor
	v.SetDefault("screening.confidence_penalty", 0.15)
	v.SetDefault("screening.max_batch_size", 10000)
	v.SetDefault("screening.max_batch_latency", "30s")

	// Reference data defaults (empty = built-in tables, no sanctions list)
	v.SetDefault("refdata.tables_path", "")
	v.SetDefault("refdata.sanctions_path", "")

	// Narrative defaults
	v.SetDefault("narrative.enabled", false)
	v.SetDefault("narrative.endpoint", "http://localhost:11434")
	v.SetDefault("narrative.model", "llama3")
	v.SetDefault("narrative.timeout", "20s")
	v.SetDefault("narrative.concurrency", 4)
	v.SetDefault("narrative.breaker_failures", 5)
	v.SetDefault("narrative.breaker_timeout", "60s")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "kyc-risk-service")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.debug", false)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 0.1)

	// Security defaults
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.allowed_origins", []string{"*"})
}

// Default returns the configuration built from defaults only
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	if cfg.Screening.Workers <= 0 {
		cfg.Screening.Workers = runtime.NumCPU()
	}
	return &cfg
}
