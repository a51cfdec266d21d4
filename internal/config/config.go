// ABOUTME: Configuration loading and parsing for perimeter
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding keys are absent.
const (
	DefaultTokenDuration = 7 * 24 * time.Hour
	DefaultNonceWindow   = 30 * time.Second
	DefaultOTPHash       = "sha256"
)

// Config represents the complete perimeter configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	Signature SignatureConfig `yaml:"signature"`
	OTP       OTPConfig       `yaml:"otp"`
}

// JWTConfig holds key material and token settings. Exactly one of RSAPEM,
// RSADER or Secret must resolve; preference order is PEM, DER, secret.
type JWTConfig struct {
	Algorithm string        `yaml:"algorithm"`
	Secret    string        `yaml:"secret"`
	RSAPEM    KeyPair       `yaml:"rsa_pem"`
	RSADER    KeyPair       `yaml:"rsa_der"`
	Duration  time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	DurationRaw string `yaml:"duration"`
}

// KeyPair holds file paths to an asymmetric key pair.
type KeyPair struct {
	Private string `yaml:"private"`
	Public  string `yaml:"public"`
}

// SignatureConfig holds signature challenge settings.
type SignatureConfig struct {
	NonceWindow time.Duration `yaml:"-"`

	NonceWindowRaw string `yaml:"nonce_window"`
}

// OTPConfig holds one-time password settings.
type OTPConfig struct {
	HashAlgorithm string `yaml:"hash_algorithm"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment
// variable values. Unset variables are replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Key material is resolved and fully validated by the keys package; here
	// we only require that some key configuration exists at all.
	jwt := c.Auth.JWT
	if jwt.Secret == "" && jwt.RSAPEM.Private == "" && jwt.RSADER.Private == "" {
		return fmt.Errorf("auth.jwt requires one of: secret, rsa_pem, rsa_der")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.JWT.DurationRaw != "" {
		cfg.Auth.JWT.Duration, err = time.ParseDuration(cfg.Auth.JWT.DurationRaw)
		if err != nil {
			return fmt.Errorf("parsing auth.jwt.duration %q: %w", cfg.Auth.JWT.DurationRaw, err)
		}
	}

	if cfg.Auth.Signature.NonceWindowRaw != "" {
		cfg.Auth.Signature.NonceWindow, err = time.ParseDuration(cfg.Auth.Signature.NonceWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing auth.signature.nonce_window %q: %w", cfg.Auth.Signature.NonceWindowRaw, err)
		}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Auth.JWT.Duration == 0 {
		cfg.Auth.JWT.Duration = DefaultTokenDuration
	}
	if cfg.Auth.Signature.NonceWindow == 0 {
		cfg.Auth.Signature.NonceWindow = DefaultNonceWindow
	}
	if cfg.Auth.OTP.HashAlgorithm == "" {
		cfg.Auth.OTP.HashAlgorithm = DefaultOTPHash
	}
}
