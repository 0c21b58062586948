package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	AppName     = "visual-tagger"
	EnvFileName = "config.env"
)

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	configPath := filepath.Join(configBase, AppName, EnvFileName)
	_ = godotenv.Load(configPath)
}

// Config holds the settings for one run of the tagger.
type Config struct {
	// ServiceURL is the base URL of the analysis service.
	ServiceURL string
	// Backend selects the analyzer implementation: "http" or "gemini".
	Backend string
	// Concurrency bounds the number of in-flight analyses.
	Concurrency int
	// MaxAttempts is the per-item attempt budget, including the first try.
	MaxAttempts int
	// BaseDelay is the backoff after the first failed attempt.
	BaseDelay time.Duration
	// DBPath locates the SQLite database for the tag cache and credentials.
	DBPath string
	// CacheEnabled toggles the content-addressed tag cache.
	CacheEnabled bool
	// CredentialKey is the passphrase the credential store key is derived from.
	CredentialKey string
}

// FromEnv assembles the configuration from environment variables, falling
// back to defaults for anything unset or unparseable.
func FromEnv() Config {
	cfg := Config{
		ServiceURL:    envOr("TAGGER_SERVICE_URL", "http://localhost:8000"),
		Backend:       envOr("TAGGER_BACKEND", "http"),
		Concurrency:   envInt("TAGGER_CONCURRENCY", 3),
		MaxAttempts:   envInt("TAGGER_MAX_ATTEMPTS", 4),
		BaseDelay:     envDuration("TAGGER_BASE_DELAY", 1*time.Second),
		DBPath:        envOr("TAGGER_DB_PATH", "visual-tagger.db"),
		CacheEnabled:  envBool("TAGGER_CACHE", true),
		CredentialKey: os.Getenv("TAGGER_CREDENTIAL_KEY"),
	}
	return cfg
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		log.Warn().Str("var", name).Str("value", v).Msg("invalid integer, using default")
		return fallback
	}
	return n
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn().Str("var", name).Str("value", v).Msg("invalid duration, using default")
		return fallback
	}
	return d
}

func envBool(name string, fallback bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("var", name).Str("value", v).Msg("invalid boolean, using default")
		return fallback
	}
	return b
}
