package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"

	"github.com/quickledger/quickledger/internal/api"
	"github.com/quickledger/quickledger/internal/app/catalog"
	"github.com/quickledger/quickledger/internal/app/executor"
	"github.com/quickledger/quickledger/internal/app/importer"
	"github.com/quickledger/quickledger/internal/app/ledger"
	"github.com/quickledger/quickledger/internal/app/registration"
	"github.com/quickledger/quickledger/internal/app/results"
	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/lock"
	"github.com/quickledger/quickledger/internal/infra/logging"
	"github.com/quickledger/quickledger/internal/infra/observability"
	"github.com/quickledger/quickledger/internal/infra/sqlite"
)

// Daemon owns the store and every service built on it.
type Daemon struct {
	Config      Config
	Logger      log.Logger
	DB          *sqlite.DB
	Institution domain.Institution
	Locker      domain.LedgerLocker
	Tracer      *observability.Tracer

	Catalog       *catalog.Service
	Ledger        *ledger.Service
	Registrations *registration.Service
	Results       *results.Service
	Importer      *importer.Service
	Executor      *executor.Executor

	redis          *redis.Client
	requestTimeout time.Duration
}

// New opens storage and builds the services. Output goes to w.
func New(ctx context.Context, cfg Config, w io.Writer) (*Daemon, error) {
	logger, err := logging.New(w, cfg.Log)
	if err != nil {
		return nil, err
	}
	d := &Daemon{Config: cfg, Logger: logger}

	interval, err := parseDuration(cfg.Import.Interval, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("import.interval: %w", err)
	}
	rowTimeout, err := parseDuration(cfg.Import.RowTimeout, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("import.row_timeout: %w", err)
	}
	if d.requestTimeout, err = parseDuration(cfg.Server.RequestTimeout, time.Minute); err != nil {
		return nil, fmt.Errorf("server.request_timeout: %w", err)
	}

	d.DB, err = sqlite.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	d.Institution, err = ResolveInstitution(ctx, d.DB, cfg.Institution)
	if err != nil {
		d.DB.Close()
		return nil, err
	}
	if d.Locker, err = d.buildLocker(ctx); err != nil {
		d.DB.Close()
		return nil, err
	}
	if cfg.Tracer.Enabled {
		d.Tracer = observability.NewTracer(observability.TracerConfig{Enabled: true, MaxOps: cfg.Tracer.MaxOps})
	}

	d.Catalog = catalog.New(d.DB, logger)
	d.Ledger = ledger.New(d.DB, d.Locker, d.Institution, logger, ledger.WithTracer(d.Tracer))
	d.Registrations = registration.New(d.DB, d.Institution, logger, registration.WithTracer(d.Tracer))
	d.Results = results.New(d.DB, d.Institution, logger)
	d.Importer = importer.New(d.DB, d.Locker, d.Institution, logger)

	d.Executor = executor.New(executor.Config{
		Workers:    cfg.Import.Workers,
		BatchSize:  cfg.Import.BatchSize,
		Interval:   interval,
		RowTimeout: rowTimeout,
	}, d.Importer, logger)

	level.Info(logging.Component(logger, "daemon")).Log("msg", "services ready", "storage", d.DB.Path(),
		"lock", cfg.Lock.Backend, "school", d.Institution.SchoolName)
	return d, nil
}

// ResolveInstitution builds the institution context and looks up the
// default semester once. A semester that does not exist yet is left
// unresolved; registrations then look it up by code.
func ResolveInstitution(ctx context.Context, cs domain.CatalogStore, ic InstitutionConfig) (domain.Institution, error) {
	inst := ic.Resolve()
	sem, err := cs.FindSemester(ctx, inst.DefaultSemesterCode)
	switch {
	case err == nil:
		inst.DefaultSemesterID = sem.ID
	case !errors.Is(err, domain.ErrNotFound):
		return inst, fmt.Errorf("resolve default semester: %w", err)
	}
	return inst, nil
}

func (d *Daemon) buildLocker(ctx context.Context) (domain.LedgerLocker, error) {
	if d.Config.Lock.Backend != "redis" {
		return lock.NewLocal(), nil
	}
	rc := lock.DefaultRedisConfig()
	ttl, err := parseDuration(d.Config.Lock.TTL, rc.TTL)
	if err != nil {
		return nil, fmt.Errorf("lock.ttl: %w", err)
	}
	rc.TTL = ttl
	client, err := lock.Dial(ctx, d.Config.Lock.RedisAddr, d.Config.Lock.RedisPassword, d.Config.Lock.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("redis lock: %w", err)
	}
	d.redis = client
	return lock.NewRedis(client, rc, d.Logger), nil
}

// Server builds the API server over the daemon's services.
func (d *Daemon) Server(version string) *api.Server {
	srv := api.NewServer(api.Services{
		Store:         d.DB,
		Catalog:       d.Catalog,
		Ledger:        d.Ledger,
		Registrations: d.Registrations,
		Results:       d.Results,
		Importer:      d.Importer,
		Executor:      d.Executor,
		Tracer:        d.Tracer,
	}, d.Logger, version)
	if d.Config.Metrics.Enabled {
		srv.EnableMetrics()
	}
	if d.requestTimeout > 0 {
		srv.SetTimeout(d.requestTimeout)
	}
	return srv
}

// Serve runs the HTTP API and, when enabled, the import executor until ctx
// is done, then shuts down gracefully.
func (d *Daemon) Serve(ctx context.Context, version string) error {
	logger := logging.Component(d.Logger, "daemon")
	httpSrv := &http.Server{
		Addr:              d.Config.Server.Addr(),
		Handler:           d.Server(version).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		level.Info(logger).Log("msg", "listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	execCtx, cancelExec := context.WithCancel(ctx)
	defer cancelExec()
	if d.Config.Import.Enabled {
		go func() {
			if err := d.Executor.Run(execCtx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}
	cancelExec()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		level.Warn(logger).Log("msg", "shutdown", "err", err)
	}
	level.Info(logger).Log("msg", "stopped")
	return runErr
}

// Close releases storage and the Redis client.
func (d *Daemon) Close() error {
	var errs []error
	if d.redis != nil {
		errs = append(errs, d.redis.Close())
	}
	if d.DB != nil {
		errs = append(errs, d.DB.Close())
	}
	return errors.Join(errs...)
}
