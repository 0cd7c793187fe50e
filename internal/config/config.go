package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type SMTP struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

type Config struct {
	EnvFilePath string
	HTTPPort    string
	// DatabaseURL is a PostgreSQL DSN, "sqlite:<path>", or empty for ./data.db.
	DatabaseURL     string
	JWTSecret       string
	JWTIssuer       string
	AdminPassword   string
	AdminAllowedIPs []string
	AdminTOTPSecret string
	PrizeCacheTTL   time.Duration
	OTPTTL          time.Duration
	OTPPruneTick    time.Duration
	// RedemptionTTL of zero means vouchers never expire.
	RedemptionTTL time.Duration
	NotifyTimeout time.Duration
	AppBaseURL    string

	SMTP SMTP
}

func Load() (*Config, error) {
	envPath := resolveEnvPath()
	// a missing file is fine; the process environment still applies
	_ = godotenv.Load(envPath)

	cfg := &Config{
		EnvFilePath:     envPath,
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTIssuer:       getEnv("JWT_ISSUER", "spin-rewards"),
		AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
		AdminAllowedIPs: splitCSV(os.Getenv("ADMIN_ALLOWED_IPS")),
		AdminTOTPSecret: os.Getenv("ADMIN_TOTP_SECRET"),
		PrizeCacheTTL:   getDuration("PRIZE_CACHE_TTL", 30*time.Second),
		OTPTTL:          getDuration("OTP_TTL", 10*time.Minute),
		OTPPruneTick:    getDuration("OTP_PRUNE_TICK", time.Minute),
		RedemptionTTL:   getDuration("REDEMPTION_TTL", 0),
		NotifyTimeout:   getDuration("NOTIFY_TIMEOUT", 10*time.Second),
		AppBaseURL:      getEnv("APP_BASE_URL", "http://localhost:5173"),
		SMTP: SMTP{
			Host: os.Getenv("SMTP_HOST"),
			Port: getInt("SMTP_PORT", 587),
			User: os.Getenv("SMTP_USER"),
			Pass: os.Getenv("SMTP_PASS"),
			From: os.Getenv("SMTP_FROM"),
		},
	}

	if cfg.OTPPruneTick <= 0 {
		cfg.OTPPruneTick = time.Minute
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate reports every missing or out-of-range setting at once.
func (c *Config) validate() error {
	var errs []error
	required := []struct{ key, value string }{
		{"JWT_SECRET", c.JWTSecret},
		{"ADMIN_PASSWORD", c.AdminPassword},
		{"ADMIN_TOTP_SECRET", c.AdminTOTPSecret},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}
	if c.OTPTTL < time.Minute {
		errs = append(errs, errors.New("OTP_TTL must be at least 1m"))
	}
	if c.RedemptionTTL < 0 {
		errs = append(errs, errors.New("REDEMPTION_TTL must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getDuration accepts Go durations ("90s", "1h") or a bare number of seconds.
func getDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return time.Duration(v) * time.Second
	}
	return def
}

// resolveEnvPath picks ENV_FILE_PATH, else the first existing candidate, else ".env"
// so the admin settings editor has a file to create.
func resolveEnvPath() string {
	if path := os.Getenv("ENV_FILE_PATH"); path != "" {
		return path
	}
	for _, path := range []string{".env", "config/.env"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ".env"
}
