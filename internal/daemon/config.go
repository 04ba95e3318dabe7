// Package daemon loads configuration and wires the QuickLedger services.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "QUICKLEDGER_"

// Config is the full daemon configuration, read from config.toml.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Institution InstitutionConfig `toml:"institution"`
	Lock        LockConfig        `toml:"lock"`
	Import      ImportConfig      `toml:"import"`
	Log         logging.Config    `toml:"log"`
	Metrics     MetricsConfig     `toml:"metrics"`
	Tracer      TracerConfig      `toml:"tracer"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	RequestTimeout string `toml:"request_timeout"`
}

// Addr is host:port.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// InstitutionConfig is the injected institution context.
type InstitutionConfig struct {
	SchoolName          string              `toml:"school_name"`
	Currency            string              `toml:"currency"`
	BalanceForwardType  string              `toml:"balance_forward_type"`
	DefaultSemesterCode string              `toml:"default_semester"`
	Grading             []domain.Grade      `toml:"grading"`
	Honours             []domain.HonourBand `toml:"honours"`
}

// LockConfig selects the ledger locker.
type LockConfig struct {
	Backend       string `toml:"backend"` // local or redis
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTL           string `toml:"ttl"`
}

// ImportConfig configures the import executor.
type ImportConfig struct {
	Enabled    bool   `toml:"enabled"`
	Workers    int    `toml:"workers"`
	BatchSize  int    `toml:"batch_size"`
	Interval   string `toml:"interval"`
	RowTimeout string `toml:"row_timeout"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// TracerConfig configures the in-process operation tracer.
type TracerConfig struct {
	Enabled bool `toml:"enabled"`
	MaxOps  int  `toml:"max_ops"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	inst := domain.DefaultInstitution()
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8640,
			RequestTimeout: "1m",
		},
		Storage: StorageConfig{Dir: defaultDataDir()},
		Institution: InstitutionConfig{
			SchoolName:          inst.SchoolName,
			Currency:            inst.Currency,
			BalanceForwardType:  inst.BalanceForwardType,
			DefaultSemesterCode: inst.DefaultSemesterCode,
		},
		Lock: LockConfig{
			Backend:   "local",
			RedisAddr: "127.0.0.1:6379",
			TTL:       "30s",
		},
		Import: ImportConfig{
			Enabled:    true,
			Workers:    4,
			BatchSize:  350,
			Interval:   "1m",
			RowTimeout: "30s",
		},
		Log:     logging.DefaultConfig(),
		Metrics: MetricsConfig{Enabled: true},
		Tracer:  TracerConfig{Enabled: true, MaxOps: 1000},
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".quickledger")
	}
	return ".quickledger"
}

// LoadConfig reads path over the defaults, then applies a .env file next
// to the working directory and QUICKLEDGER_* variables. A missing file at
// path is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overlays environment variables found by lookup.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}
	flag := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("HOST", &c.Server.Host)
	str("DATA_DIR", &c.Storage.Dir)
	str("SCHOOL_NAME", &c.Institution.SchoolName)
	str("DEFAULT_SEMESTER", &c.Institution.DefaultSemesterCode)
	str("LOCK_BACKEND", &c.Lock.Backend)
	str("REDIS_ADDR", &c.Lock.RedisAddr)
	str("REDIS_PASSWORD", &c.Lock.RedisPassword)
	str("IMPORT_INTERVAL", &c.Import.Interval)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	for name, dst := range map[string]*int{
		"PORT":              &c.Server.Port,
		"REDIS_DB":          &c.Lock.RedisDB,
		"IMPORT_WORKERS":    &c.Import.Workers,
		"IMPORT_BATCH_SIZE": &c.Import.BatchSize,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	for name, dst := range map[string]*bool{
		"IMPORT_ENABLED":  &c.Import.Enabled,
		"METRICS_ENABLED": &c.Metrics.Enabled,
	} {
		if err := flag(name, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Lock.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("lock.backend %q: want local or redis", c.Lock.Backend)
	}
	for name, v := range map[string]string{
		"server.request_timeout": c.Server.RequestTimeout,
		"lock.ttl":               c.Lock.TTL,
		"import.interval":        c.Import.Interval,
		"import.row_timeout":     c.Import.RowTimeout,
	} {
		if _, err := parseDuration(v, 0); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	inst := c.Institution.Resolve()
	for _, h := range inst.Honours {
		if h.Lower > h.Upper {
			return fmt.Errorf("honours band %q: lower %.2f above upper %.2f", h.Name, h.Lower, h.Upper)
		}
	}
	for _, g := range inst.Grading.Bands {
		if g.Min > g.Max {
			return fmt.Errorf("grade %q: min %.2f above max %.2f", g.Name, g.Min, g.Max)
		}
	}
	return nil
}

// Resolve builds the institution context. Empty grading or honours fall
// back to the built-in schemes.
func (ic InstitutionConfig) Resolve() domain.Institution {
	inst := domain.DefaultInstitution()
	if ic.SchoolName != "" {
		inst.SchoolName = ic.SchoolName
	}
	if ic.Currency != "" {
		inst.Currency = ic.Currency
	}
	if ic.BalanceForwardType != "" {
		inst.BalanceForwardType = ic.BalanceForwardType
	}
	if ic.DefaultSemesterCode != "" {
		inst.DefaultSemesterCode = strings.ToLower(strings.TrimSpace(ic.DefaultSemesterCode))
	}
	if len(ic.Grading) > 0 {
		inst.Grading = domain.GradingScheme{Name: "configured", Bands: ic.Grading}
	}
	if len(ic.Honours) > 0 {
		inst.Honours = ic.Honours
	}
	return inst
}

// parseDuration parses s, returning def when s is empty.
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// WriteDefault writes the default configuration to path unless a file is
// already there.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(DefaultConfig())
}
