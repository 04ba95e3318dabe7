package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/sqlite"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 8640 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8640)
	}
	if cfg.Lock.Backend != "local" {
		t.Errorf("Lock.Backend = %q, want local", cfg.Lock.Backend)
	}
	if cfg.Import.BatchSize != 350 {
		t.Errorf("Import.BatchSize = %d, want 350", cfg.Import.BatchSize)
	}
	if cfg.Institution.BalanceForwardType != "Balance Brought Forward" {
		t.Errorf("BalanceForwardType = %q", cfg.Institution.BalanceForwardType)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	src := `
[server]
port = 9000

[lock]
backend = "redis"
redis_addr = "redis:6379"

[institution]
school_name = "Test Polytechnic"
default_semester = "FIRST"

[[institution.honours]]
name = "Distinction"
lower = 3.5
upper = 4.0

[[institution.honours]]
name = "Credit"
lower = 2.5
upper = 3.49
`
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	t.Setenv(EnvPrefix+"PORT", "9100")
	t.Setenv(EnvPrefix+"IMPORT_ENABLED", "false")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want default kept", cfg.Server.Host)
	}
	if cfg.Lock.Backend != "redis" || cfg.Lock.RedisAddr != "redis:6379" {
		t.Errorf("Lock = %+v", cfg.Lock)
	}
	if cfg.Import.Enabled {
		t.Error("Import.Enabled should be overridden to false")
	}

	inst := cfg.Institution.Resolve()
	if inst.SchoolName != "Test Polytechnic" || inst.DefaultSemesterCode != "first" {
		t.Errorf("institution = %+v", inst)
	}
	if len(inst.Honours) != 2 || inst.Honours[0].Name != "Distinction" {
		t.Errorf("honours = %+v", inst.Honours)
	}
	if len(inst.Grading.Bands) != len(domain.DefaultGradingScheme().Bands) {
		t.Error("grading should fall back to the built-in scheme")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Server.Port != DefaultConfig().Server.Port {
		t.Errorf("Port = %d, want default", cfg.Server.Port)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port", "PORT", "eighty"},
		{"flag", "METRICS_ENABLED", "sometimes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			env := map[string]string{EnvPrefix + tt.key: tt.val}
			err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
			if err == nil {
				t.Errorf("applyEnv(%s=%s) should fail", tt.key, tt.val)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"backend", func(c *Config) { c.Lock.Backend = "etcd" }},
		{"interval", func(c *Config) { c.Import.Interval = "soon" }},
		{"honours", func(c *Config) {
			c.Institution.Honours = []domain.HonourBand{{Name: "Upside Down", Lower: 4, Upper: 3}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestResolveInstitution(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	inst, err := ResolveInstitution(ctx, db, DefaultConfig().Institution)
	if err != nil {
		t.Fatalf("ResolveInstitution() error: %v", err)
	}
	if inst.DefaultSemesterID != 0 {
		t.Errorf("DefaultSemesterID = %d, want 0 before the semester exists", inst.DefaultSemesterID)
	}

	sem := domain.Semester{Code: "1st", Sequence: 1}
	if err := db.CreateSemester(ctx, &sem); err != nil {
		t.Fatalf("CreateSemester() error: %v", err)
	}
	inst, err = ResolveInstitution(ctx, db, DefaultConfig().Institution)
	if err != nil {
		t.Fatalf("ResolveInstitution() error: %v", err)
	}
	if inst.DefaultSemesterID != sem.ID {
		t.Errorf("DefaultSemesterID = %d, want %d", inst.DefaultSemesterID, sem.ID)
	}
}

func TestNew_WiresServices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Dir = t.TempDir()
	d, err := New(context.Background(), cfg, os.Stderr)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer d.Close()
	if d.Ledger == nil || d.Importer == nil || d.Executor == nil || d.Tracer == nil {
		t.Error("services not wired")
	}
	if d.Server("test").Handler() == nil {
		t.Error("Handler() returned nil")
	}
}

func TestNew_RejectsBadDurations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"interval", func(c *Config) { c.Import.Interval = "soon" }},
		{"row timeout", func(c *Config) { c.Import.RowTimeout = "-5s" }},
		{"request timeout", func(c *Config) { c.Server.RequestTimeout = "1 minute" }},
		{"lock ttl", func(c *Config) {
			c.Lock.Backend = "redis"
			c.Lock.TTL = "forever"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Storage.Dir = t.TempDir()
			tt.mutate(&cfg)
			d, err := New(context.Background(), cfg, io.Discard)
			if err == nil {
				d.Close()
				t.Fatal("New() should fail")
			}
		})
	}
}
