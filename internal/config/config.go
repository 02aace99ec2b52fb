package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Security      SecurityConfig      `json:"security"`
	Logging       LoggingConfig       `json:"logging"`
	Ledger        LedgerConfig        `json:"ledger"`
	Assets        AssetsConfig        `json:"assets"`
	AWS           AWSConfig           `json:"aws"`
	Notifications NotificationsConfig `json:"notifications"`
	RateLimit     RateLimitConfig     `json:"rate_limit"`
	Rendering     RenderingConfig     `json:"rendering"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	AutoMigrate    bool          `json:"auto_migrate"`
}

// SecurityConfig holds the bearer token settings
type SecurityConfig struct {
	JWTSecret   string `json:"jwt_secret"`
	JWTIssuer   string `json:"jwt_issuer"`
	JWTAudience string `json:"jwt_audience"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Ledger backends
const (
	LedgerPostgres = "postgres"
	LedgerDynamoDB = "dynamodb"
)

// LedgerConfig selects where issued certificates are recorded
type LedgerConfig struct {
	Backend        string `json:"backend"`
	SerialPrefix   string `json:"serial_prefix"`
	DynamoTable    string `json:"dynamo_table"`
	DynamoSeqTable string `json:"dynamo_sequence_table"`
}

// AssetsConfig controls background image retrieval
type AssetsConfig struct {
	FetchTimeout time.Duration `json:"fetch_timeout"`
	MaxBytes     int64         `json:"max_bytes"`
	CacheDir     string        `json:"cache_dir"`
}

// AWSConfig
type AWSConfig struct {
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// NotificationsConfig. An empty topic disables issuance events.
type NotificationsConfig struct {
	SNSTopicARN string `json:"sns_topic_arn"`
}

// RateLimitConfig. An empty Redis address disables rate limiting.
type RateLimitConfig struct {
	RedisAddr string        `json:"redis_addr"`
	Limit     int64         `json:"limit"`
	Window    time.Duration `json:"window"`
}

// RenderingConfig
type RenderingConfig struct {
	IssuerName    string `json:"issuer_name"`
	FallbackTitle string `json:"fallback_title"`
	Compress      bool   `json:"compress"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "lms_kerjabaik",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    30 * time.Minute,
			ConnectTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Ledger: LedgerConfig{
			Backend:        LedgerPostgres,
			SerialPrefix:   "KB",
			DynamoTable:    "certificates",
			DynamoSeqTable: "certificate_sequences",
		},
		Assets: AssetsConfig{
			FetchTimeout: 5 * time.Second,
			MaxBytes:     10 << 20,
		},
		AWS: AWSConfig{
			Region: "ap-southeast-1",
		},
		RateLimit: RateLimitConfig{
			Limit:  30,
			Window: time.Minute,
		},
		Rendering: RenderingConfig{
			IssuerName:    "LMS Kerja Baik",
			FallbackTitle: "SERTIFIKAT PENYELESAIAN",
			Compress:      true,
		},
	}
}

// LoadConfig loads configuration from defaults, an optional JSON file, a .env
// file and environment variables, in that order of precedence.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideWithEnv(config *Config) {
	setString(&config.Server.Host, "SERVER_HOST")
	setInt(&config.Server.Port, "SERVER_PORT")
	setDuration(&config.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")

	setString(&config.Database.Host, "DATABASE_HOST")
	setInt(&config.Database.Port, "DATABASE_PORT")
	setString(&config.Database.User, "DATABASE_USER")
	setString(&config.Database.Password, "DATABASE_PASSWORD")
	setString(&config.Database.DBName, "DATABASE_DBNAME")
	setString(&config.Database.SSLMode, "DATABASE_SSLMODE")
	setBool(&config.Database.AutoMigrate, "DATABASE_AUTO_MIGRATE")

	setString(&config.Security.JWTSecret, "JWT_SECRET")
	setString(&config.Security.JWTIssuer, "JWT_ISSUER")
	setString(&config.Security.JWTAudience, "JWT_AUDIENCE")

	setString(&config.Logging.Level, "LOG_LEVEL")
	setBool(&config.Logging.Development, "LOG_DEVELOPMENT")

	setString(&config.Ledger.Backend, "LEDGER_BACKEND")
	setString(&config.Ledger.SerialPrefix, "LEDGER_SERIAL_PREFIX")
	setString(&config.Ledger.DynamoTable, "LEDGER_DYNAMO_TABLE")
	setString(&config.Ledger.DynamoSeqTable, "LEDGER_DYNAMO_SEQUENCE_TABLE")

	setDuration(&config.Assets.FetchTimeout, "ASSETS_FETCH_TIMEOUT")
	setInt64(&config.Assets.MaxBytes, "ASSETS_MAX_BYTES")
	setString(&config.Assets.CacheDir, "ASSETS_CACHE_DIR")

	setString(&config.AWS.Region, "AWS_REGION")
	setString(&config.AWS.Endpoint, "AWS_ENDPOINT_URL")
	setString(&config.AWS.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&config.AWS.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")

	setString(&config.Notifications.SNSTopicARN, "SNS_TOPIC_ARN")

	setString(&config.RateLimit.RedisAddr, "REDIS_ADDR")
	setInt64(&config.RateLimit.Limit, "RATE_LIMIT")
	setDuration(&config.RateLimit.Window, "RATE_LIMIT_WINDOW")

	setString(&config.Rendering.IssuerName, "CERTIFICATE_ISSUER_NAME")
	setString(&config.Rendering.FallbackTitle, "CERTIFICATE_FALLBACK_TITLE")
	setBool(&config.Rendering.Compress, "CERTIFICATE_COMPRESS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate checks settings the service cannot start without
func (c *Config) Validate() error {
	if c.Security.JWTSecret == "" {
		return errors.New("security.jwt_secret is required")
	}
	switch c.Ledger.Backend {
	case LedgerPostgres:
	case LedgerDynamoDB:
		if c.Ledger.DynamoTable == "" || c.Ledger.DynamoSeqTable == "" {
			return errors.New("ledger.dynamo_table and ledger.dynamo_sequence_table are required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Ledger.SerialPrefix == "" {
		return errors.New("ledger.serial_prefix is required")
	}
	if c.Assets.FetchTimeout <= 0 {
		return errors.New("assets.fetch_timeout must be positive")
	}
	return nil
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
