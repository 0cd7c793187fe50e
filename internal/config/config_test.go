package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE_PATH", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("ADMIN_PASSWORD", "pw")
	t.Setenv("ADMIN_TOTP_SECRET", "JBSWY3DPEHPK3PXP")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	for _, key := range []string{"DATABASE_URL", "REDEMPTION_TTL", "OTP_TTL", "SMTP_PORT", "PRIZE_CACHE_TTL", "HTTP_PORT"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPPort != "8080" || cfg.DatabaseURL != "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.PrizeCacheTTL != 30*time.Second || cfg.OTPTTL != 10*time.Minute || cfg.RedemptionTTL != 0 {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
	if cfg.SMTP.Port != 587 {
		t.Fatalf("smtp port = %d, want 587", cfg.SMTP.Port)
	}
}

func TestLoadOverridesAndDurations(t *testing.T) {
	setRequired(t)
	t.Setenv("REDEMPTION_TTL", "72h")
	t.Setenv("NOTIFY_TIMEOUT", "15")
	t.Setenv("ADMIN_ALLOWED_IPS", " 10.0.0.1, ,192.168.0.0/16 ")
	t.Setenv("SMTP_PORT", "2525")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RedemptionTTL != 72*time.Hour {
		t.Fatalf("redemption ttl = %v", cfg.RedemptionTTL)
	}
	if cfg.NotifyTimeout != 15*time.Second {
		t.Fatalf("bare numbers are seconds, got %v", cfg.NotifyTimeout)
	}
	if len(cfg.AdminAllowedIPs) != 2 || cfg.AdminAllowedIPs[1] != "192.168.0.0/16" {
		t.Fatalf("allowed ips = %v", cfg.AdminAllowedIPs)
	}
	if cfg.SMTP.Port != 2525 {
		t.Fatalf("smtp port = %d", cfg.SMTP.Port)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("APP_BASE_URL=https://spin.example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE_PATH", path)
	t.Setenv("APP_BASE_URL", "")
	os.Unsetenv("APP_BASE_URL")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AppBaseURL != "https://spin.example.com" || cfg.EnvFilePath != path {
		t.Fatalf("env file not applied: %+v", cfg)
	}
}

func TestLoadRequiredKeys(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"jwt secret", "JWT_SECRET"},
		{"admin password", "ADMIN_PASSWORD"},
		{"admin totp", "ADMIN_TOTP_SECRET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.unset, "")
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.unset+" is required") {
				t.Fatalf("err = %v, want %s is required", err, tt.unset)
			}
		})
	}
}

func TestLoadRejectsShortOTPTTL(t *testing.T) {
	setRequired(t)
	t.Setenv("OTP_TTL", "10s")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for OTP_TTL below 1m")
	}
}
