package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type httpConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	TrustProxy     bool          `mapstructure:"trust_proxy"`
	StrictSessions bool          `mapstructure:"strict_sessions"`
	MetricsPath    string        `mapstructure:"metrics_path"`
}

type redisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type dynamoConfig struct {
	Region      string `mapstructure:"region"`
	Endpoint    string `mapstructure:"endpoint"`
	AccessKeyID string `mapstructure:"access_key_id"`
	SecretKey   string `mapstructure:"secret_key"`
	TablePrefix string `mapstructure:"table_prefix"`
	Bootstrap   bool   `mapstructure:"bootstrap"`
}

type jwtConfig struct {
	Method        string        `mapstructure:"method"`
	Secret        string        `mapstructure:"secret"`
	PublicKeyFile string        `mapstructure:"public_key_file"`
	Issuer        string        `mapstructure:"issuer"`
	Audience      string        `mapstructure:"audience"`
	Leeway        time.Duration `mapstructure:"leeway"`
}

type kafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

type twoFactorConfig struct {
	Issuer       string        `mapstructure:"issuer"`
	RejectReplay bool          `mapstructure:"reject_replay"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
}

type config struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	// Backend is one of memory, redis or dynamodb.
	Backend             string          `mapstructure:"backend"`
	HTTP                httpConfig      `mapstructure:"http"`
	Redis               redisConfig     `mapstructure:"redis"`
	Dynamo              dynamoConfig    `mapstructure:"dynamodb"`
	JWT                 jwtConfig       `mapstructure:"jwt"`
	GeoIPPath           string          `mapstructure:"geoip_path"`
	AuditStdout         bool            `mapstructure:"audit_stdout"`
	Kafka               kafkaConfig     `mapstructure:"kafka"`
	TwoFactor           twoFactorConfig `mapstructure:"two_factor"`
	MaintenanceInterval time.Duration   `mapstructure:"maintenance_interval"`
}

// loadConfig reads .env (if present), then the optional YAML file at path,
// then GOGUARD_* environment variables, later sources winning.
func loadConfig(path string) (*config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("GOGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("backend", "memory")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "5s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("http.strict_sessions", true)
	v.SetDefault("http.metrics_path", "/metrics")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "gg")
	v.SetDefault("dynamodb.region", "us-east-1")
	v.SetDefault("dynamodb.endpoint", "")
	v.SetDefault("dynamodb.access_key_id", "")
	v.SetDefault("dynamodb.secret_key", "")
	v.SetDefault("dynamodb.table_prefix", "goguard_")
	v.SetDefault("dynamodb.bootstrap", false)
	v.SetDefault("jwt.method", "hs256")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.public_key_file", "")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.audience", "")
	v.SetDefault("jwt.leeway", "30s")
	v.SetDefault("geoip_path", "")
	v.SetDefault("audit_stdout", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "goguard.security-events")
	v.SetDefault("kafka.client_id", "goguard")
	v.SetDefault("two_factor.issuer", "goGuard")
	v.SetDefault("two_factor.reject_replay", true)
	v.SetDefault("two_factor.max_attempts", 5)
	v.SetDefault("two_factor.cooldown", "15m")
	v.SetDefault("maintenance_interval", "1h")
}

func (c *config) validate() error {
	switch c.Backend {
	case "memory", "redis", "dynamodb":
	default:
		return fmt.Errorf("backend must be memory, redis or dynamodb, got %q", c.Backend)
	}
	switch c.JWT.Method {
	case "hs256":
		if c.JWT.Secret == "" {
			return errors.New("GOGUARD_JWT_SECRET must be set for hs256")
		}
	case "ed25519":
		if c.JWT.PublicKeyFile == "" {
			return errors.New("GOGUARD_JWT_PUBLIC_KEY_FILE must be set for ed25519")
		}
	default:
		return fmt.Errorf("jwt.method must be hs256 or ed25519, got %q", c.JWT.Method)
	}
	if c.MaintenanceInterval < 0 {
		return errors.New("maintenance_interval must be >= 0")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic must be set when brokers are configured")
	}
	return nil
}
