package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultHostname = "localhost"

// Config holds the settings shared by the batch tool's commands.
type Config struct {
	// Localpart prefixes generated Message-IDs, e.g. "civimail".
	Localpart     string `env:"FLEXMAILER_LOCALPART"`
	EmailDomain   string `env:"FLEXMAILER_EMAIL_DOMAIN"`
	VERPSeparator string `env:"FLEXMAILER_VERP_SEPARATOR" envDefault:"."`
	SpoolDir      string `env:"FLEXMAILER_SPOOL_DIR" envDefault:"./data/spool"`
	LogLevel      string `env:"FLEXMAILER_LOG_LEVEL" envDefault:"info"`
	LogDest       string `env:"FLEXMAILER_LOG_DEST" envDefault:"stderr"`

	DKIM DKIM `envPrefix:"FLEXMAILER_DKIM_"`
}

// DKIM holds the signing settings for spooled previews.
type DKIM struct {
	Selector string `env:"SELECTOR"`
	// Domain overrides the domain taken from the mailing's from address.
	Domain     string `env:"DOMAIN"`
	KeyPath    string `env:"KEY_PATH"`
	PrivateKey string `env:"PRIVATE_KEY"`
}

// Configured reports whether any signing setting is present.
func (d DKIM) Configured() bool {
	return d.Selector != "" || d.Domain != "" || d.KeyPath != "" || strings.TrimSpace(d.PrivateKey) != ""
}

// Load reads configuration from the environment. When envFile is non-empty
// it is loaded first; variables already set in the environment take
// precedence over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if strings.TrimSpace(cfg.EmailDomain) == "" {
		cfg.EmailDomain = Hostname()
	}
	cfg.DKIM.Selector = strings.TrimSpace(cfg.DKIM.Selector)
	cfg.DKIM.Domain = strings.TrimSpace(cfg.DKIM.Domain)
	cfg.DKIM.KeyPath = strings.TrimSpace(cfg.DKIM.KeyPath)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.EmailDomain) == "" {
		return errors.New("email domain must not be empty")
	}
	if strings.ContainsAny(c.EmailDomain, " \t\r\n@<>") {
		return fmt.Errorf("invalid email domain %q", c.EmailDomain)
	}
	if strings.ContainsAny(c.Localpart, " \t\r\n@<>") {
		return fmt.Errorf("invalid localpart %q", c.Localpart)
	}
	if len(c.VERPSeparator) != 1 || strings.ContainsAny(c.VERPSeparator, " \t\r\n@<>") {
		return fmt.Errorf("VERP separator must be a single printable character, got %q", c.VERPSeparator)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return nil
}

// Hostname returns the default mail domain.
// Preference order: system hostname, fallback.
func Hostname() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultHostname
}
