package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/opencampus/campusd/db"
	"github.com/opencampus/campusd/internal/api"
	"github.com/opencampus/campusd/internal/app/dispatch"
	"github.com/opencampus/campusd/internal/app/logstream"
	"github.com/opencampus/campusd/internal/app/scheduling"
	"github.com/opencampus/campusd/internal/config"
	"github.com/opencampus/campusd/internal/domain/action"
	"github.com/opencampus/campusd/internal/domain/entity"
	entityPostgres "github.com/opencampus/campusd/internal/infra/storage/entity/postgres"
	journalFS "github.com/opencampus/campusd/internal/infra/storage/journal/fs"
	journalPostgres "github.com/opencampus/campusd/internal/infra/storage/journal/postgres"
	schedulePostgres "github.com/opencampus/campusd/internal/infra/storage/schedule/postgres"
	"github.com/opencampus/campusd/pkg/common/logger"
	"github.com/opencampus/campusd/pkg/common/otel"
)

const serviceType = "campusd"

func main() {
	_, _ = maxprocs.Set()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("CAMPUSD-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	log := logger.NewWithMetadata(os.Stdout, logger.LevelInfo, svcName, traceIDFn, logEvents, metadata)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	var tracer trace.Tracer = noop.NewTracerProvider().Tracer("")
	if cfg.Telemetry.Enabled {
		tp, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
			ServiceName:      svcName,
			ExporterEndpoint: cfg.Telemetry.ExporterAddr,
			ExcludedRoutes: map[string]struct{}{
				"/v1/health":    {},
				"/v1/readiness": {},
			},
			Probability: cfg.Telemetry.SampleRate,
			ResourceAttributes: map[string]string{
				"library.language": "go",
				"hostname":         hostname,
			},
			InsecureExporter: true,
		})
		if err != nil {
			log.Error(ctx, "failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		defer telemetryTeardown(ctx)
		tracer = tp.Tracer(svcName)
	}

	pool, err := connectDB(ctx, cfg)
	if err != nil {
		log.Error(ctx, "failed to open db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.RunMigrations(pool); err != nil {
		log.Error(ctx, "failed to run migrations", "error", err)
		os.Exit(1)
	}
	log.Info(ctx, "migrations applied")

	entities := entityPostgres.NewEntityStore(pool, tracer)
	locks := entityPostgres.NewLockStore(pool, tracer)
	history := entityPostgres.NewHistoryStore(pool, tracer)
	logs := journalPostgres.NewLogStore(pool, tracer)
	schedules := schedulePostgres.NewScheduleStore(pool, tracer)

	content, err := journalFS.NewContentStore(cfg.Logs.Dir)
	if err != nil {
		log.Error(ctx, "failed to open log content store", "error", err)
		os.Exit(1)
	}

	lockManager := dispatch.NewLockManager(locks, log)
	// Locks abandoned by a previous crash would block every future action.
	if err := lockManager.RecoverAbandoned(ctx); err != nil {
		log.Error(ctx, "failed to recover abandoned locks", "error", err)
		os.Exit(1)
	}

	registry := action.NewRegistry()
	registerBuiltinActions(registry)

	recorder := dispatch.NewHistoryRecorder(history)
	dispatcher := dispatch.NewDispatcher(entities, lockManager, recorder, logs, content, registry, log, tracer)

	engine := scheduling.NewEngine(schedules, entities, dispatcher, logs, content, log, tracer)
	if err := engine.Start(ctx); err != nil {
		log.Error(ctx, "failed to start schedule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Stop()

	admin := scheduling.NewAdmin(schedules, engine)
	streamer := logstream.NewStreamer(logs, content, log)

	server := api.NewServer(cfg, log, tracer, dispatcher, streamer, admin, entities, logs, pool)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		log.Info(ctx, "shutdown signal received", "signal", sig.String())
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server exited with error", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server failed", "error", err)
			os.Exit(1)
		}
	}
}

// connectDB opens the pgx pool with exponential backoff. Startup races with
// the database coming up in container environments.
func connectDB(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing db config: %w", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	var pool *pgxpool.Pool

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 2 * time.Minute
	expBackoff.InitialInterval = 2 * time.Second

	operation := func() error {
		var err error
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		return pool.Ping(ctx)
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("connecting to database after retries: %w", err)
	}
	return pool, nil
}

// registerBuiltinActions binds the actions available to every course type.
func registerBuiltinActions(registry *action.Registry) {
	registry.Register(action.WildcardCourseType, entity.KindCourseInstance, action.Func{
		ActionName: "assignUsername",
		Fn: func(ctx context.Context, ec *action.ExecContext) (json.RawMessage, error) {
			var params struct {
				Username string `json:"username"`
			}
			if len(ec.Params) > 0 {
				if err := json.Unmarshal(ec.Params, &params); err != nil {
					return nil, fmt.Errorf("parsing params: %w", err)
				}
			}
			if params.Username == "" {
				return nil, errors.New("username is required")
			}

			fmt.Fprintf(ec.Log, "assigning username %q to %s\n", params.Username, ec.Entity.Name())
			ec.Entity.SetAttr("username", params.Username)
			ec.Entity.SetAttr("status", "username_assigned")

			return json.Marshal(map[string]string{"username": params.Username})
		},
	})
}
