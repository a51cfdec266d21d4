// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults and duration parsing

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt:
    algorithm: "HS512"
    secret: "super-secret"
    duration: "24h"
  signature:
    nonce_window: "45s"
  otp:
    hash_algorithm: "sha512"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.JWT.Algorithm != "HS512" {
		t.Errorf("JWT.Algorithm = %q, want %q", cfg.Auth.JWT.Algorithm, "HS512")
	}
	if cfg.Auth.JWT.Duration != 24*time.Hour {
		t.Errorf("JWT.Duration = %v, want %v", cfg.Auth.JWT.Duration, 24*time.Hour)
	}
	if cfg.Auth.Signature.NonceWindow != 45*time.Second {
		t.Errorf("NonceWindow = %v, want %v", cfg.Auth.Signature.NonceWindow, 45*time.Second)
	}
	if cfg.Auth.OTP.HashAlgorithm != "sha512" {
		t.Errorf("OTP.HashAlgorithm = %q, want %q", cfg.Auth.OTP.HashAlgorithm, "sha512")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "./test.db"
auth:
  jwt:
    secret: "super-secret"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWT.Duration != DefaultTokenDuration {
		t.Errorf("JWT.Duration = %v, want default %v", cfg.Auth.JWT.Duration, DefaultTokenDuration)
	}
	if cfg.Auth.Signature.NonceWindow != DefaultNonceWindow {
		t.Errorf("NonceWindow = %v, want default %v", cfg.Auth.Signature.NonceWindow, DefaultNonceWindow)
	}
	if cfg.Auth.OTP.HashAlgorithm != DefaultOTPHash {
		t.Errorf("OTP.HashAlgorithm = %q, want default %q", cfg.Auth.OTP.HashAlgorithm, DefaultOTPHash)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("PERIMETER_TEST_SECRET", "from-env")

	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "./test.db"
auth:
  jwt:
    secret: "${PERIMETER_TEST_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWT.Secret != "from-env" {
		t.Errorf("JWT.Secret = %q, want %q", cfg.Auth.JWT.Secret, "from-env")
	}
}

func TestLoad_MissingKeyMaterial(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "./test.db"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Load() should fail without any jwt key configuration")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load() should fail for missing file")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "./test.db"
auth:
  jwt:
    secret: "s"
    duration: "not-a-duration"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Load() should fail for invalid duration")
	}
}
