// ABOUTME: Entry point for the perimeter credential service
// ABOUTME: Serves the HTTP API plus operator commands for setup and enrollment

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/perimeterhq/perimeter/internal/config"
	"github.com/perimeterhq/perimeter/internal/server"
	"github.com/perimeterhq/perimeter/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 _                _
 _ __   ___ _ __(_)_ __ ___   ___| |_ ___ _ __
| '_ \ / _ \ '__| | '_ ' _ \ / _ \ __/ _ \ '__|
| |_) |  __/ |  | | | | | | |  __/ ||  __/ |
| .__/ \___|_|  |_|_| |_| |_|\___|\__\___|_|
|_|
`

// getConfigPath returns the path to the config file.
// Priority: PERIMETER_CONFIG env var > XDG_CONFIG_HOME/perimeter/perimeter.yaml > ~/.config/perimeter/perimeter.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PERIMETER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "perimeter.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "perimeter", "perimeter.yaml")
}

// getDataPath returns the path to the perimeter data directory.
// Priority: XDG_DATA_HOME/perimeter > ~/.local/share/perimeter
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "perimeter")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: perimeter <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                     Start the credential service")
		fmt.Println("  init                      Create a starter config file")
		fmt.Println("  account --name NAME       Create an account (with --key and/or --otp)")
		fmt.Println("  revoke --session ID       Disable a session")
		fmt.Println("  health                    Check service health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "account":
		err = runAccount(ctx)
	case "revoke":
		err = runRevoke(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	fmt.Println()

	logger.Info("starting perimeter",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// runInit writes a starter config with a freshly generated JWT secret.
func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generating secret: %w", err)
	}

	dataPath := getDataPath()
	if err := os.MkdirAll(dataPath, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	contents := fmt.Sprintf(`server:
  http_addr: "127.0.0.1:8080"

database:
  path: %q

auth:
  jwt:
    secret: %q
    duration: 168h
  signature:
    nonce_window: 30s
  otp:
    hash_algorithm: sha256

logging:
  level: info
  format: text
`, filepath.Join(dataPath, "perimeter.db"), base64.StdEncoding.EncodeToString(secret))

	if err := os.WriteFile(configPath, []byte(contents), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Config written to %s\n", configPath)
	return nil
}

// accountFlags holds parsed arguments for the account command.
type accountFlags struct {
	name    string
	keyPath string
	otp     bool
}

// parseAccountFlags parses "--flag value" and "--flag=value" forms.
func parseAccountFlags(args []string) (*accountFlags, error) {
	var flags accountFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--name requires a value")
			}
			flags.name = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			flags.name = strings.TrimPrefix(arg, "--name=")
		case arg == "--key" || arg == "-k":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--key requires a value")
			}
			flags.keyPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--key="):
			flags.keyPath = strings.TrimPrefix(arg, "--key=")
		case arg == "--otp":
			flags.otp = true
		case strings.HasPrefix(arg, "-"):
			return nil, fmt.Errorf("unknown flag: %s", arg)
		default:
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	flags.name = strings.TrimSpace(flags.name)
	if flags.name == "" {
		return nil, fmt.Errorf("--name flag is required")
	}
	if flags.keyPath == "" && !flags.otp {
		return nil, fmt.Errorf("at least one of --key or --otp is required")
	}
	return &flags, nil
}

// runAccount creates an account and enrolls its credentials:
// a PEM public key from --key, and/or a generated OTP secret with --otp.
// The OTP secret is printed once and never shown again.
func runAccount(ctx context.Context) error {
	flags, err := parseAccountFlags(os.Args[2:])
	if err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	account := &store.Account{
		ID:       uuid.New().String(),
		Username: flags.name,
	}
	if err := st.CreateAccount(ctx, account); err != nil {
		return fmt.Errorf("creating account: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	green.Print("✓ ")
	fmt.Print("Account created: ")
	cyan.Println(account.ID)

	if flags.keyPath != "" {
		keyPEM, err := os.ReadFile(flags.keyPath)
		if err != nil {
			return fmt.Errorf("reading public key: %w", err)
		}
		key := &store.PublicKey{
			ID:       uuid.New().String(),
			Key:      string(keyPEM),
			Validity: store.ValidityPermanent,
		}
		if err := st.AddPublicKey(ctx, account.ID, key); err != nil {
			return fmt.Errorf("adding public key: %w", err)
		}
		green.Print("✓ ")
		fmt.Print("Public key enrolled: ")
		cyan.Println(key.ID)
	}

	if flags.otp {
		secret := make([]byte, 20)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generating OTP secret: %w", err)
		}
		encoded := base64.StdEncoding.EncodeToString(secret)
		if err := st.SetOTPSecret(ctx, account.ID, &store.OTPSecret{
			Secret:   encoded,
			IssuedAt: time.Now().Unix(),
		}); err != nil {
			return fmt.Errorf("storing OTP secret: %w", err)
		}
		green.Print("✓ ")
		fmt.Println("OTP secret enrolled. Save it now - it will not be shown again:")
		fmt.Printf("  %s\n", encoded)
	}

	return nil
}

// runRevoke disables a session so its token stops authorizing requests.
func runRevoke(ctx context.Context) error {
	var sessionID string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--session" || arg == "-s":
			if i+1 >= len(args) {
				return fmt.Errorf("--session requires a value")
			}
			sessionID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--session="):
			sessionID = strings.TrimPrefix(arg, "--session=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	if sessionID == "" {
		return fmt.Errorf("--session flag is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if err := st.DisableSession(ctx, sessionID, time.Now().Unix()); err != nil {
		return fmt.Errorf("disabling session: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Session %s disabled\n", sessionID)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
