package dispatch

import (
	"crypto/tls"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"form-relay/internal/common/config"
	"form-relay/internal/common/validation"
)

const (
	ProviderSMTP = "smtp"
	ProviderSES  = "ses"
)

// Config holds the process-wide mail settings.
type Config struct {
	Provider           string
	Host               string
	Port               int
	Secure             bool // implicit TLS; otherwise STARTTLS when offered
	Username           string
	Password           string
	FromName           string
	FromEmail          string
	InsecureSkipVerify bool
	MinTLSVersion      uint16
	Timeout            time.Duration
	SESRegion          string
}

func DefaultConfig() Config {
	return Config{
		Provider:           ProviderSMTP,
		Port:               587,
		InsecureSkipVerify: true,
		MinTLSVersion:      tls.VersionTLS12,
		Timeout:            30 * time.Second,
	}
}

// FromSettings converts the loaded smtp section.
func FromSettings(s config.SMTPConfig) (Config, error) {
	version, err := parseTLSVersion(s.MinTLSVersion)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Provider:           strings.ToLower(s.Provider),
		Host:               s.Host,
		Port:               s.Port,
		Secure:             s.Secure,
		Username:           s.Username,
		Password:           s.Password,
		FromName:           s.FromName,
		FromEmail:          s.FromEmail,
		InsecureSkipVerify: s.InsecureSkipVerify,
		MinTLSVersion:      version,
		Timeout:            config.GetDuration(s.Timeout),
		SESRegion:          s.SESRegion,
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderSMTP
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Provider {
	case ProviderSMTP:
		if c.Host == "" {
			return fmt.Errorf("smtp host is required")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("smtp port must be between 1 and 65535")
		}
	case ProviderSES:
		if c.SESRegion == "" {
			return fmt.Errorf("ses region is required")
		}
	default:
		return fmt.Errorf("mail provider %q not supported", c.Provider)
	}
	if c.FromEmail == "" {
		return fmt.Errorf("from email is required")
	}
	if !validation.ValidateEmail(c.FromEmail) {
		return fmt.Errorf("from email %q is not a valid address", c.FromEmail)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// Addr is host:port of the SMTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FromHeader renders the configured sender as "Name" <address>.
func (c Config) FromHeader() string {
	return (&mail.Address{Name: c.FromName, Address: c.FromEmail}).String()
}

func (c Config) tlsConfig() *tls.Config {
	minVersion := c.MinTLSVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}
	return &tls.Config{
		ServerName:         c.Host,
		InsecureSkipVerify: c.InsecureSkipVerify,
		MinVersion:         minVersion,
	}
}

func parseTLSVersion(v string) (uint16, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "", "TLSV1.2", "1.2":
		return tls.VersionTLS12, nil
	case "TLSV1.3", "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported minimum TLS version %q", v)
	}
}
