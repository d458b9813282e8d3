package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken string
	MySQLDSN string

	// Seed admins. Users in this list are marked is_admin on first contact
	// and cannot be demoted through the admin surface.
	AdminIDs []int64

	DefaultLanguage string

	// Free trial granted once at first contact.
	TrialRequests int
	TrialDays     int

	AIGatewayURL   string
	RequestTimeout time.Duration

	PlisioAPIKey   string
	PlisioBaseURL  string
	WalletCurrency string

	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string

	BroadcastWorkers int

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// AttachmentsEnabled reports whether attachment storage is configured.
// Without a bucket the bot rejects image inputs instead of failing uploads.
func (c Config) AttachmentsEnabled() bool {
	return c.S3Bucket != ""
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		DefaultLanguage:  getEnv("DEFAULT_LANGUAGE", "en"),
		TrialRequests:    getInt("TRIAL_REQUESTS", 50),
		TrialDays:        getInt("TRIAL_DAYS", 7),
		AIGatewayURL:     getEnv("AI_GATEWAY_URL", ""),
		RequestTimeout:   time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 120)),
		PlisioBaseURL:    getEnv("PLISIO_BASE_URL", "https://plisio.net/api/v1"),
		WalletCurrency:   getEnv("WALLET_CURRENCY", "XTR"),
		AdminListenAddr:  getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:    getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:    getEnv("ADMIN_PASSWORD", "change-me"),
		BroadcastWorkers: getInt("BROADCAST_WORKERS", 8),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3Region:         os.Getenv("S3_REGION"),
		S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:  os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:   getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:         getEnv("S3_PREFIX", "attachments"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.PlisioAPIKey = os.Getenv("PLISIO_API_KEY")

	ids, err := parseAdminIDs(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return Config{}, err
	}
	cfg.AdminIDs = ids

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.AIGatewayURL == "" {
		missing = append(missing, "AI_GATEWAY_URL")
	}
	if len(cfg.AdminIDs) == 0 {
		missing = append(missing, "ADMIN_IDS")
	}
	if cfg.AttachmentsEnabled() {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if cfg.TrialRequests < 0 {
		return Config{}, fmt.Errorf("TRIAL_REQUESTS must not be negative")
	}
	if cfg.TrialDays <= 0 {
		return Config{}, fmt.Errorf("TRIAL_DAYS must be positive")
	}
	if cfg.BroadcastWorkers <= 0 {
		cfg.BroadcastWorkers = 8
	}

	return cfg, nil
}

func parseAdminIDs(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse ADMIN_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely off the environment is fine.
	return nil
}
