// internal/common/config/loader.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envAliases binds the flat variable names the deployment already uses onto
// config keys. Keys not listed here are reachable as SECTION_KEY.
var envAliases = map[string][]string{
	"app.environment":              {"APP_ENVIRONMENT", "NODE_ENV"},
	"server.port":                  {"PORT"},
	"server.cors_origins":          {"CORS_ORIGINS"},
	"smtp.host":                    {"SMTP_HOST"},
	"smtp.port":                    {"SMTP_PORT"},
	"smtp.secure":                  {"SMTP_SECURE"},
	"smtp.username":                {"SMTP_USER"},
	"smtp.password":                {"SMTP_PASS", "SMTP_PASSWORD"},
	"smtp.from_name":               {"SMTP_FROM_NAME"},
	"smtp.from_email":              {"SMTP_FROM_EMAIL", "SMTP_FROM"},
	"storage.s3.bucket":            {"STORAGE_BUCKET"},
	"storage.s3.region":            {"STORAGE_REGION"},
	"storage.s3.endpoint":          {"STORAGE_ENDPOINT"},
	"storage.s3.access_key_id":     {"STORAGE_ACCESS_KEY_ID"},
	"storage.s3.secret_access_key": {"STORAGE_SECRET_ACCESS_KEY"},
}

// Load reads configs/config.yaml, the environment overlay
// config.<APP_ENVIRONMENT>.yaml, .env and the process environment.
func Load() (*Config, error) {
	return load(true)
}

// LoadUnchecked is Load without validation, for tools that only use a
// subset of the settings.
func LoadUnchecked() (*Config, error) {
	return load(false)
}

func load(validate bool) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = os.Getenv("NODE_ENV")
	}
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // overlay is optional

	return unmarshal(v, validate)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return unmarshal(v, true)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

func unmarshal(v *viper.Viper, validate bool) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if !validate {
		return &cfg, nil
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up to the module root.
func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in YAML string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok || !strings.Contains(strVal, "$") {
			continue
		}
		if expanded := os.ExpandEnv(strVal); expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "form-relay")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.port", 3001)
	v.SetDefault("server.cors_origins", "")
	v.SetDefault("server.route_prefix", "")
	v.SetDefault("server.read_timeout", 15000)
	v.SetDefault("server.write_timeout", 60000)
	v.SetDefault("server.shutdown_timeout", 10000)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("smtp.provider", "smtp")
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.secure", false)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from_name", "")
	v.SetDefault("smtp.from_email", "")
	v.SetDefault("smtp.tls_insecure_skip_verify", true)
	v.SetDefault("smtp.min_tls_version", "TLSv1.2")
	v.SetDefault("smtp.timeout", 30000)
	v.SetDefault("smtp.ses_region", "")

	v.SetDefault("storage.submissions_dir", "submissions")
	v.SetDefault("storage.s3.enabled", false)
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.prefix", "submissions/")
	v.SetDefault("storage.s3.force_path_style", false)

	v.SetDefault("database.postgres.enabled", false)
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.elasticsearch.enabled", false)
	v.SetDefault("database.elasticsearch.addresses", []string{})
	v.SetDefault("database.elasticsearch.index", "relay-audit")
	v.SetDefault("database.redis.address", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests", 5)
	v.SetDefault("rate_limit.window", 60000)

	v.SetDefault("alerts.sns.enabled", false)
	v.SetDefault("alerts.sns.region", "")
	v.SetDefault("alerts.sns.topic_arn", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// applyDefaults fills values that the YAML may have zeroed explicitly.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	cfg.SMTP.Provider = strings.ToLower(strings.TrimSpace(cfg.SMTP.Provider))
	if cfg.SMTP.Provider == "" {
		cfg.SMTP.Provider = "smtp"
	}
	if cfg.SMTP.MinTLSVersion == "" {
		cfg.SMTP.MinTLSVersion = "TLSv1.2"
	}
	if cfg.SMTP.Timeout == 0 {
		cfg.SMTP.Timeout = 30000
	}
	if cfg.SMTP.SESRegion == "" {
		cfg.SMTP.SESRegion = cfg.Storage.S3.Region
	}
	if cfg.Storage.SubmissionsDir == "" {
		cfg.Storage.SubmissionsDir = "submissions"
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 5
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "relay-audit"
	}
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 5
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = 60000
	}
	if cfg.Alerts.SNS.Region == "" {
		cfg.Alerts.SNS.Region = cfg.SMTP.SESRegion
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch cfg.SMTP.Provider {
	case "smtp":
		if cfg.SMTP.Host == "" {
			return fmt.Errorf("smtp.host is required")
		}
		if cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535 {
			return fmt.Errorf("smtp.port must be between 1 and 65535")
		}
	case "ses":
		if cfg.SMTP.SESRegion == "" {
			return fmt.Errorf("smtp.ses_region is required for the ses provider")
		}
	default:
		return fmt.Errorf("smtp.provider %q is not supported", cfg.SMTP.Provider)
	}
	if cfg.SMTP.FromEmail == "" {
		return fmt.Errorf("smtp.from_email is required")
	}

	if cfg.Storage.S3.Enabled && (cfg.Storage.S3.Bucket == "" || cfg.Storage.S3.Region == "") {
		return fmt.Errorf("storage.s3.bucket and storage.s3.region are required when the mirror is enabled")
	}
	if cfg.Database.Postgres.Enabled && (cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.Database == "") {
		return fmt.Errorf("database.postgres.host and database.postgres.database are required")
	}
	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required")
	}
	if cfg.RateLimit.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when rate_limit is enabled")
	}
	if cfg.Alerts.SNS.Enabled && cfg.Alerts.SNS.TopicARN == "" {
		return fmt.Errorf("alerts.sns.topic_arn is required")
	}
	return nil
}
