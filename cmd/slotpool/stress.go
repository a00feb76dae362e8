package main

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/internal/stress"
	"github.com/ajitpratap0/slotpool/pkg/config"
	"github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/logger"
	"github.com/ajitpratap0/slotpool/pkg/metrics"
	"github.com/ajitpratap0/slotpool/pkg/observability"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

func newStressCmd() *cobra.Command {
	defaults := config.Default()
	var format string

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a concurrent allocate/free stress test",
		Long: `Run a concurrent stress test against a fresh pool. Workers allocate and free
at random, a shared ownership table detects any slot handed out twice, and
the pool's structural invariants are validated periodically and at the end.

Settings come from flags, SLOTPOOL_* environment variables and --config, in
that order of precedence.

Example:
  slotpool stress --capacity 4096 --workers 16 --duration 30s --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != stress.FormatText && format != stress.FormatJSON {
				return errors.Newf(errors.ErrorTypeValidation, "unknown format %q", format)
			}
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			return runStress(cmd, cfg, format)
		},
	}

	f := cmd.Flags()
	f.String("pool-name", defaults.Pool.Name, "Pool name used in logs and metrics")
	f.Uint32("capacity", defaults.Pool.Capacity, "Number of slots in the pool")
	f.Uint64("arena-limit", defaults.Pool.ArenaLimitBytes, "Maximum arena size in bytes (0 = unlimited)")
	f.Int("workers", defaults.Stress.Workers, "Number of concurrent workers")
	f.Duration("duration", defaults.Stress.Duration, "How long to run")
	f.Int64("seed", defaults.Stress.Seed, "Seed for the per-worker operation sequence")
	f.Float64("alloc-ratio", defaults.Stress.AllocRatio, "Probability that an operation allocates")
	f.Int("hold-max", defaults.Stress.HoldMax, "Most values a worker keeps live")
	f.Int("validate-every", defaults.Stress.ValidateEvery, "Validate invariants every N operations per worker (0 = only at the end)")
	f.Bool("trace", false, "Export OpenTelemetry spans to stderr")
	f.Float64("sample-ratio", defaults.Observability.SampleRatio, "Trace sampling ratio")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run (e.g. :9090)")
	f.StringVar(&format, "format", stress.FormatText, "Report format (text, json)")

	return cmd
}

func runStress(cmd *cobra.Command, cfg *config.Config, format string) error {
	if err := logger.Init(cfg.Log.Logger()); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = context.WithValue(ctx, logger.RunIDKey, newRunID())
	log := logger.WithContext(ctx).With(zap.String("command", "stress"))

	if cfg.Observability.Tracing {
		tc := observability.DefaultTracingConfig()
		tc.ServiceVersion = version
		tc.SamplingRate = cfg.Observability.SampleRatio
		tc.Writer = cmd.ErrOrStderr()
		shutdown, err := observability.InitTracing(tc)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Warn("failed to flush spans", zap.Error(err))
			}
		}()
	}

	p, err := pool.NewWithCapacity[stress.Payload](cfg.Pool.Capacity,
		pool.WithName(cfg.Pool.Name),
		pool.WithLogger(log),
		pool.WithArenaLimit(cfg.Pool.ArenaLimitBytes),
	)
	if err != nil {
		return err
	}
	defer p.Term()

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		stopMetrics, _, err := serveMetrics(addr, p, log)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	rep, runErr := stress.Run(ctx, p, cfg.Stress, log)
	if rep != nil {
		if err := rep.Write(cmd.OutOrStdout(), format); err != nil {
			return err
		}
	}
	return runErr
}

// newRunID returns a short id that tags every log line of one stress run.
func newRunID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

// serveMetrics exposes the pool collector and the default registry on
// addr/metrics until the returned function is called. It returns the bound
// address, which differs from addr when addr asks for port 0.
func serveMetrics(addr string, src metrics.StatsSource, log *zap.Logger) (func(), string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrorTypeConfig, "failed to listen for metrics").
			WithDetail("addr", addr)
	}

	collector := metrics.NewPoolCollector(src)
	if err := prometheus.Register(collector); err != nil {
		_ = ln.Close()
		return nil, "", errors.Wrap(err, errors.ErrorTypeConfig, "failed to register pool collector")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	bound := ln.Addr().String()
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.String("addr", bound), zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", bound))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		prometheus.Unregister(collector)
	}, bound, nil
}
