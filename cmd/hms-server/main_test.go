package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/notification"
	"github.com/hms/hms/migrations"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{
		Port:                   "8000",
		Env:                    "production",
		AuthMode:               "jwt",
		LogLevel:               "warn",
		JWTSecret:              testSecret,
		JWTIssuer:              "hms",
		CORSOrigins:            []string{"http://localhost:3000"},
		RateLimitRPS:           100,
		RateLimitBurst:         100,
		RequestTimeout:         5 * time.Second,
		BodyLimit:              "1M",
		DefaultConsultationFee: 500,
		OutboxBatchSize:        10,
		OutboxMaxAttempts:      3,
	}
}

func TestEnabledChannels(t *testing.T) {
	cfg := testConfig()
	if got := enabledChannels(cfg); len(got) != 0 {
		t.Errorf("expected no optional channels, got %v", got)
	}

	cfg.SMTPHost = "smtp.example.com"
	cfg.KafkaBrokers = []string{"localhost:9092"}
	got := enabledChannels(cfg)
	if len(got) != 2 || got[0] != notification.ChannelEmail || got[1] != notification.ChannelEvent {
		t.Errorf("unexpected channels %v", got)
	}
}

func TestMigrationsFS_FallsBackToEmbedded(t *testing.T) {
	if got := migrationsFS(""); got != migrations.Files {
		t.Error("empty dir should use embedded migrations")
	}
	if got := migrationsFS("/does/not/exist"); got != migrations.Files {
		t.Error("missing dir should use embedded migrations")
	}
	if got := migrationsFS(t.TempDir()); got == migrations.Files {
		t.Error("existing dir should be used")
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "core", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "appointments"},
	})
	out := buf.String()
	if !strings.Contains(out, "2024-01-08 09:00:00") || !strings.Contains(out, "pending") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestNewLogger_Level(t *testing.T) {
	cfg := testConfig()
	if got := newLogger(cfg).GetLevel(); got != zerolog.WarnLevel {
		t.Errorf("expected warn level, got %s", got)
	}
	cfg.LogLevel = "nonsense"
	if got := newLogger(cfg).GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("expected info fallback, got %s", got)
	}
}

func TestHospitalZone(t *testing.T) {
	if got := hospitalZone(&config.Config{Timezone: "Asia/Kolkata"}, zerolog.Nop()); got.String() != "Asia/Kolkata" {
		t.Errorf("expected Asia/Kolkata, got %s", got)
	}
	if got := hospitalZone(&config.Config{Timezone: "Nowhere/Special"}, zerolog.Nop()); got != time.Local {
		t.Errorf("expected host zone fallback, got %s", got)
	}
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("JWT_ISSUER", "hms")

	cmd := tokenCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--sub", "8c1a4a5e-2f61-4a55-9a1e-0d5f3b0e6c11", "--role", "doctor"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}

	claims, err := auth.ParseToken(auth.JWTConfig{Issuer: "hms", SigningKey: []byte(testSecret)}, strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != auth.RoleDoctor || claims.Subject != "8c1a4a5e-2f61-4a55-9a1e-0d5f3b0e6c11" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestRouter(t *testing.T) {
	a := newApp(testConfig(), nil, zerolog.Nop())
	defer a.close()
	e := a.router()

	tests := []struct {
		name   string
		method string
		path   string
		header map[string]string
		want   int
	}{
		{"health", http.MethodGet, "/health", nil, http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", nil, http.StatusOK},
		{"api requires token", http.MethodGet, "/api/admin/appointments", nil, http.StatusUnauthorized},
		{"dev headers ignored in jwt mode", http.MethodGet, "/api/admin/audit",
			map[string]string{auth.DevRoleHeader: "admin"}, http.StatusUnauthorized},
		{"unknown route", http.MethodGet, "/nope", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRouter_ForbiddenRole(t *testing.T) {
	cfg := testConfig()
	a := newApp(cfg, nil, zerolog.Nop())
	defer a.close()
	e := a.router()

	tok, err := auth.IssueToken(a.jwtConfig(), "8c1a4a5e-2f61-4a55-9a1e-0d5f3b0e6c11", auth.RolePatient, "Pat", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/audit", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"message"`) {
		t.Errorf("expected message body, got %s", rec.Body.String())
	}
}
