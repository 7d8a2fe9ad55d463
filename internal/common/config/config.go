// internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// IsProduction reports whether the service runs with production settings.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(a.Environment), "production")
}

type ServerConfig struct {
	Port            int    `mapstructure:"port"`
	CORSOrigins     string `mapstructure:"cors_origins"` // comma separated
	RoutePrefix     string `mapstructure:"route_prefix"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// AllowedOrigins splits CORSOrigins into trimmed, non-empty entries.
func (s ServerConfig) AllowedOrigins() []string {
	parts := strings.Split(s.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SMTPConfig carries the process-wide mail transport settings.
type SMTPConfig struct {
	Provider           string `mapstructure:"provider"` // smtp | ses
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Secure             bool   `mapstructure:"secure"` // implicit TLS
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	FromName           string `mapstructure:"from_name"`
	FromEmail          string `mapstructure:"from_email"`
	InsecureSkipVerify bool   `mapstructure:"tls_insecure_skip_verify"`
	MinTLSVersion      string `mapstructure:"min_tls_version"`
	Timeout            int    `mapstructure:"timeout"` // milliseconds
	SESRegion          string `mapstructure:"ses_region"`
}

type StorageConfig struct {
	SubmissionsDir string   `mapstructure:"submissions_dir"`
	S3             S3Config `mapstructure:"s3"`
}

// S3Config configures the bucket used by the provisioning tool and the
// optional fallback mirror.
type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Prefix          string `mapstructure:"prefix"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimitConfig throttles submissions per client IP.
type RateLimitConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Requests int  `mapstructure:"requests"`
	Window   int  `mapstructure:"window"` // milliseconds
}

type AlertsConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
