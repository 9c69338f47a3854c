package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.JWTIssuer != "reservo-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "reservo-auth")
	}
	if cfg.JWTAudience != "reservo-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "reservo-api")
	}
	if cfg.AccessTokenTTL != "15m" {
		t.Errorf("AccessTokenTTL = %q, want %q", cfg.AccessTokenTTL, "15m")
	}
	if cfg.RefreshTokenTTL != "720h" {
		t.Errorf("RefreshTokenTTL = %q, want %q", cfg.RefreshTokenTTL, "720h")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.LockoutThreshold != 5 {
		t.Errorf("LockoutThreshold = %d, want 5", cfg.LockoutThreshold)
	}
	if cfg.LockoutWindow() != 2*time.Hour {
		t.Errorf("LockoutWindow = %v, want 2h", cfg.LockoutWindow())
	}
	if cfg.KafkaTopic != "reservo-auth-events" {
		t.Errorf("KafkaTopic = %q, want default", cfg.KafkaTopic)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")
	os.Setenv("LOCKOUT_THRESHOLD", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if cfg.LockoutThreshold != 3 {
		t.Errorf("LockoutThreshold = %d, want 3", cfg.LockoutThreshold)
	}
}

func TestLoad_BcryptCostRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"valid middle", "12", 12, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false}, // defaults to 12
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("HTTP_ADDR", ":8080")
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_LockoutThresholdRequired(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("LOCKOUT_THRESHOLD", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject non-positive LOCKOUT_THRESHOLD")
	}
}

func TestDurationAccessors(t *testing.T) {
	testCases := []struct {
		name string
		env  string
		val  string
		get  func(*Config) time.Duration
		want time.Duration
	}{
		{"access valid", "ACCESS_TOKEN_TTL", "30m", (*Config).AccessTTL, 30 * time.Minute},
		{"access invalid", "ACCESS_TOKEN_TTL", "invalid", (*Config).AccessTTL, 15 * time.Minute},
		{"access negative", "ACCESS_TOKEN_TTL", "-5m", (*Config).AccessTTL, 15 * time.Minute},
		{"refresh valid", "REFRESH_TOKEN_TTL", "336h", (*Config).RefreshTTL, 336 * time.Hour},
		{"refresh zero", "REFRESH_TOKEN_TTL", "0", (*Config).RefreshTTL, 720 * time.Hour},
		{"lockout valid", "LOCKOUT_DURATION", "30m", (*Config).LockoutWindow, 30 * time.Minute},
		{"lockout invalid", "LOCKOUT_DURATION", "soon", (*Config).LockoutWindow, 2 * time.Hour},
		{"grace valid", "LEDGER_GRACE_WINDOW", "24h", (*Config).GraceWindow, 24 * time.Hour},
		{"rate window valid", "LOGIN_RATE_WINDOW", "30s", (*Config).RateWindow, 30 * time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("HTTP_ADDR", ":8080")
			os.Setenv(tc.env, tc.val)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := tc.get(cfg); got != tc.want {
				t.Errorf("%s = %v, want %v", tc.env, got, tc.want)
			}
		})
	}
}

func TestKafkaBrokersList(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("KAFKA_BROKERS", "localhost:9092, broker2:9092 ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	brokers := cfg.KafkaBrokersList()
	if len(brokers) != 2 {
		t.Fatalf("brokers = %v, want 2 entries", brokers)
	}
	if brokers[0] != "localhost:9092" || brokers[1] != "broker2:9092" {
		t.Errorf("brokers = %v", brokers)
	}

	var nilCfg *Config
	if nilCfg.KafkaBrokersList() != nil {
		t.Error("nil config should return nil broker list")
	}
}
