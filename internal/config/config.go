package config

import (
	"fmt"
	"os"
	"strings"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL        string
	Port               string
	NWCConnection      string
	VerifySecrets      map[string]string
	LegacyCodesEnabled bool
	AdminJWTSecret     string
	LogLevel           string
	DevMode            bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:               "8080", // default port
		LogLevel:           "info",
		LegacyCodesEnabled: true,
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	// NWC_CONNECTION is the wallet connection string (nostr+walletconnect://...).
	// Its shape is validated on each wallet call, not here, so a bad value
	// degrades reward payment rather than blocking startup.
	nwc := os.Getenv("NWC_CONNECTION")
	if nwc == "" {
		return nil, fmt.Errorf("NWC_CONNECTION environment variable is required")
	}
	cfg.NWCConnection = nwc

	secrets, err := parseVerifySecrets(os.Getenv("VERIFY_SECRETS"))
	if err != nil {
		return nil, err
	}
	cfg.VerifySecrets = secrets

	adminSecret := os.Getenv("ADMIN_JWT_SECRET")
	if adminSecret == "" {
		return nil, fmt.Errorf("ADMIN_JWT_SECRET environment variable is required")
	}
	cfg.AdminJWTSecret = adminSecret

	if v := os.Getenv("LEGACY_CODES_ENABLED"); v != "" {
		cfg.LegacyCodesEnabled = v == "true"
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	return cfg, nil
}

// parseVerifySecrets parses the VERIFY_SECRETS variable into an immutable
// version -> secret map. Format: "1:secret,2:secret". The map is loaded once
// at startup and never mutated.
func parseVerifySecrets(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("VERIFY_SECRETS environment variable is required")
	}

	secrets := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, ":")
		if idx <= 0 || idx == len(pair)-1 {
			return nil, fmt.Errorf("VERIFY_SECRETS entry %q must be version:secret", pair)
		}
		version := strings.TrimSpace(pair[:idx])
		secret := strings.TrimSpace(pair[idx+1:])
		if _, dup := secrets[version]; dup {
			return nil, fmt.Errorf("VERIFY_SECRETS has duplicate version %q", version)
		}
		secrets[version] = secret
	}
	if len(secrets) == 0 {
		return nil, fmt.Errorf("VERIFY_SECRETS must contain at least one version:secret pair")
	}
	return secrets, nil
}
