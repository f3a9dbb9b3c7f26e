package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/CarpseDeam/aura-backend/internal/bus"
	"github.com/CarpseDeam/aura-backend/internal/conductor"
	"github.com/CarpseDeam/aura-backend/internal/config"
	"github.com/CarpseDeam/aura-backend/internal/credentials"
	"github.com/CarpseDeam/aura-backend/internal/jobs"
	"github.com/CarpseDeam/aura-backend/internal/llmgateway"
	"github.com/CarpseDeam/aura-backend/internal/missionlog"
	"github.com/CarpseDeam/aura-backend/internal/observability"
	"github.com/CarpseDeam/aura-backend/internal/planner"
	"github.com/CarpseDeam/aura-backend/internal/scheduler"
	"github.com/CarpseDeam/aura-backend/internal/tools"
	"github.com/CarpseDeam/aura-backend/internal/workspace"
	"github.com/CarpseDeam/aura-backend/pkg/models"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Aura core: HTTP/WebSocket API, Conductor, and the stale-mission sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("AURA_CONFIG"), "path to aura.yaml (optional; environment variables override)")
	return cmd
}

// app bundles every long-lived collaborator the serve command wires
// together, so both the HTTP handlers and the background sweeper can reach
// them without a global.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	bus       *bus.Bus
	workspace *workspace.Manager
	store     missionlog.Store
	jobs      jobs.Store
	gateway   *llmgateway.Gateway
	planner   *planner.Pipeline
	tools     *tools.Registry
	conductor *conductor.Conductor
	sweeper   *scheduler.StaleSweeper
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: observability.LogLevelFromString(cfg.Observability.Logging.Level),
	})
	logger := slog.New(observability.NewRedactingHandler(jsonHandler))
	slog.SetDefault(logger)

	a, shutdownTracer, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	if err := a.sweeper.Start(sweepCtx, cfg.Cron.SweepInterval); err != nil {
		return fmt.Errorf("start stale-mission sweep: %w", err)
	}

	stopWatch, err := watchConfigFile(configPath, logger)
	if err != nil {
		logger.Warn("config file watch disabled", "error", err)
	} else {
		defer stopWatch()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler: a.router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("aura core listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.sweeper.Stop()
	return srv.Shutdown(shutdownCtx)
}

// buildApp wires the Mission Log, Notification Bus, LLM Gateway, Tool
// Runner, Planner Pipeline, Conductor, and the stale-mission sweeper
// together. Returns a shutdown func for the tracer provider.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, func(context.Context) error, error) {
	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Observability.Tracing.ServiceName,
		ServiceVersion: cfg.Observability.Tracing.ServiceVersion,
		Environment:    cfg.Observability.Tracing.Environment,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
	})

	credStore, err := credentials.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		return nil, shutdown, fmt.Errorf("open credential store: %w", err)
	}

	cipher, err := credentials.NewCipher(encryptionKey())
	if err != nil {
		return nil, shutdown, fmt.Errorf("build credential cipher: %w", err)
	}

	roleStore, err := credentials.NewRoleAssignments(ctx, credStore)
	if err != nil {
		return nil, shutdown, fmt.Errorf("open role assignment store: %w", err)
	}

	jobStore, err := jobs.NewCockroachStoreFromDSN(cfg.Database.URL, nil)
	if err != nil {
		return nil, shutdown, fmt.Errorf("open job store: %w", err)
	}

	gw := llmgateway.New(llmgateway.Config{
		BaseURL:     cfg.LLM.ServerURL,
		ResolveRole: credentials.Resolver(roleStore),
		Credentials: credentials.Lookup(credStore, cipher),
		HTTPClient:  &http.Client{Timeout: cfg.LLM.RequestTimeout},
	})

	notifyBus := bus.New(logger)
	wsManager := workspace.NewManager(cfg.Tools.WorkspaceRoot)

	store := missionlog.NewFileStore(wsManager.ProjectRoot, func(ctx context.Context, userID string, log *models.MissionLog) {
		notifyBus.BroadcastToUser(ctx, userID, &models.Event{
			Type:      models.EventMissionLogUpdated,
			Tasks:     log.Tasks,
			EmittedAt: time.Now(),
		})
	})

	registry := tools.NewRegistry()
	tools.RegisterRequiredTools(registry)

	pipeline := planner.New(gw)

	cond := &conductor.Conductor{
		Bus:      notifyBus,
		Store:    store,
		Tools:    registry,
		Planner:  pipeline,
		Gateway:  gw,
		Project:  wsManager,
		Metrics:  metrics,
		Tracer:   tracer,
		JobStore: jobStore,
	}

	sweep := scheduler.NewStaleSweeper(
		func() []scheduler.RunningMission {
			snapshot := notifyBus.RunningSnapshot()
			out := make([]scheduler.RunningMission, len(snapshot))
			for i, m := range snapshot {
				out[i] = scheduler.RunningMission{UserID: m.UserID, StartedAt: m.StartedAt, LastActivityAt: m.LastActivityAt}
			}
			return out
		},
		notifyBus.ForceStop,
		cfg.Cron.StaleAfter,
		logger,
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
		bus:       notifyBus,
		workspace: wsManager,
		store:     store,
		jobs:      jobStore,
		gateway:   gw,
		planner:   pipeline,
		tools:     registry,
		conductor: cond,
		sweeper:   sweep,
	}, shutdown, nil
}

// encryptionKey derives the credential cipher's 32-byte AES-256 key from
// AURA_ENCRYPTION_KEY by hashing it, so operators can supply a passphrase
// of any length rather than a raw 32-byte secret.
func encryptionKey() []byte {
	passphrase := os.Getenv("AURA_ENCRYPTION_KEY")
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:]
}

// watchConfigFile reloads the log level from configPath on every write,
// grounded on skills.Manager's fsnotify-driven StartWatching.
// Every other setting requires a restart; only the log level is safe to
// change live.
func watchConfigFile(configPath string, logger *slog.Logger) (func(), error) {
	if configPath == "" {
		return func() {}, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(configPath); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := config.Load(configPath)
				if err != nil {
					logger.Warn("config reload failed", "error", err)
					continue
				}
				logger.Info("config file changed, log level reloaded", "level", cfg.Observability.Logging.Level)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}

// metricsHandler exposes the process's Prometheus collectors.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
