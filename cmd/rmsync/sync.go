package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Sternrassler/rickmorty-sync/internal/config"
	"github.com/Sternrassler/rickmorty-sync/pkg/client"
	"github.com/Sternrassler/rickmorty-sync/pkg/ledger"
	"github.com/Sternrassler/rickmorty-sync/pkg/logging"
	"github.com/Sternrassler/rickmorty-sync/pkg/metrics"
	"github.com/Sternrassler/rickmorty-sync/pkg/pipeline"
	"github.com/Sternrassler/rickmorty-sync/pkg/record"
	"github.com/Sternrassler/rickmorty-sync/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// syncFlags mirror config.Config; only flags set on the command line
// override the file and environment.
type syncFlags struct {
	output          string
	kinds           []string
	baseURL         string
	maxAttempts     int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	timeout         time.Duration
	rate            float64
	dryRun          bool
	concurrent      bool
	continueOnError bool
	redisAddr       string
	ledger          string
	metricsAddr     string
	report          bool
}

func newSyncCmd(gf *globalFlags) *cobra.Command {
	sf := &syncFlags{}
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch every page of the selected kinds and write one file per record",
		Long: `Fetch the character, location and episode collections page by page and
write each record to <output>/<kind>/<name>.json wrapped in an envelope
{"Id", "Metadata", "RawData"}.

Configuration precedence: defaults < --config file < RMSYNC_* environment
(.env files included) < flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, gf, sf)
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&sf.output, "output", "o", def.Output, "output root directory")
	f.StringSliceVarP(&sf.kinds, "kinds", "k", def.Kinds, "kinds to sync, in order")
	f.StringVar(&sf.baseURL, "base-url", def.BaseURL, "API base URL")
	f.IntVar(&sf.maxAttempts, "max-attempts", def.Fetch.MaxAttempts, "attempts per request, 0 retries until interrupted")
	f.DurationVar(&sf.initialBackoff, "initial-backoff", def.Fetch.InitialBackoff.Duration, "backoff ceiling after the first failure")
	f.DurationVar(&sf.maxBackoff, "max-backoff", def.Fetch.MaxBackoff.Duration, "maximum backoff ceiling")
	f.DurationVar(&sf.timeout, "timeout", def.Fetch.Timeout.Duration, "timeout per request attempt")
	f.Float64Var(&sf.rate, "rate", def.Fetch.Rate, "requests per second, 0 for unlimited")
	f.BoolVar(&sf.dryRun, "dry-run", def.DryRun, "fetch and validate without writing files")
	f.BoolVar(&sf.concurrent, "concurrent", def.Concurrent, "sync kinds in parallel")
	f.BoolVar(&sf.continueOnError, "continue-on-error", def.ContinueOnError, "skip records that cannot be written")
	f.StringVar(&sf.redisAddr, "redis-addr", def.Redis.Addr, "Redis address for the page cache (optional)")
	f.StringVar(&sf.ledger, "ledger", def.Ledger, "SQLite file recording sync runs (optional)")
	f.StringVar(&sf.metricsAddr, "metrics-addr", def.MetricsAddr, "serve Prometheus metrics on this address (optional)")
	f.BoolVar(&sf.report, "report", def.Report, "print records selected by the reporting filters")

	return cmd
}

// loadConfig layers defaults, file, environment and changed flags.
func loadConfig(cmd *cobra.Command, gf *globalFlags, sf *syncFlags) (config.Config, error) {
	cfg := config.Default()

	if gf.configFile != "" {
		if err := config.LoadFile(&cfg, gf.configFile); err != nil {
			return cfg, err
		}
	}

	config.LoadEnvFiles()
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}

	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		if fl == nil {
			fl = cmd.InheritedFlags().Lookup(name)
		}
		return fl != nil && fl.Changed
	}

	if changed("output") {
		cfg.Output = sf.output
	}
	if changed("kinds") {
		cfg.Kinds = sf.kinds
	}
	if changed("base-url") {
		cfg.BaseURL = sf.baseURL
	}
	if changed("max-attempts") {
		cfg.Fetch.MaxAttempts = sf.maxAttempts
	}
	if changed("initial-backoff") {
		cfg.Fetch.InitialBackoff = config.Duration{Duration: sf.initialBackoff}
	}
	if changed("max-backoff") {
		cfg.Fetch.MaxBackoff = config.Duration{Duration: sf.maxBackoff}
	}
	if changed("timeout") {
		cfg.Fetch.Timeout = config.Duration{Duration: sf.timeout}
	}
	if changed("rate") {
		cfg.Fetch.Rate = sf.rate
	}
	if changed("dry-run") {
		cfg.DryRun = sf.dryRun
	}
	if changed("concurrent") {
		cfg.Concurrent = sf.concurrent
	}
	if changed("continue-on-error") {
		cfg.ContinueOnError = sf.continueOnError
	}
	if changed("redis-addr") {
		cfg.Redis.Addr = sf.redisAddr
	}
	if changed("ledger") {
		cfg.Ledger = sf.ledger
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = sf.metricsAddr
	}
	if changed("report") {
		cfg.Report = sf.report
	}
	if changed("log-level") {
		cfg.Log.Level = gf.logLevel
	}
	if changed("log-pretty") {
		cfg.Log.Pretty = gf.logPretty
	}

	return cfg, cfg.Validate()
}

// runSync wires the components and runs the pipeline.
func runSync(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	logCfg := cfg.LoggingConfig()
	logCfg.Output = stderr
	logger := logging.Setup(logCfg).With().Str("component", "rmsync").Logger()

	kinds, err := cfg.RecordKinds()
	if err != nil {
		return err
	}

	clientCfg := cfg.ClientConfig()
	if cfg.Redis.Addr != "" {
		rdb, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		clientCfg.Redis = rdb
	}

	fetcher, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer fetcher.Close()

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Listen(cfg.MetricsAddr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics shutdown failed")
			}
		}()
	}

	writer := storage.NewWriter(cfg.Output, storage.WithDryRun(cfg.DryRun))

	opts := []pipeline.Option{}
	if cfg.Ledger != "" {
		l, err := ledger.Open(cfg.Ledger)
		if err != nil {
			return err
		}
		defer l.Close()
		opts = append(opts, pipeline.WithRecorder(l))
	}
	if cfg.Report {
		opts = append(opts, pipeline.WithObservers(pipeline.DefaultObservers(newReporter(stdout).emit)))
	}

	driver := pipeline.New(pipeline.Config{
		BaseURL:              cfg.BaseURL,
		Kinds:                kinds,
		Concurrent:           cfg.Concurrent,
		ContinueOnWriteError: cfg.ContinueOnError,
	}, fetcher, writer, opts...)

	logger.Info().
		Str("output", cfg.Output).
		Strs("kinds", cfg.Kinds).
		Bool("dry_run", cfg.DryRun).
		Bool("concurrent", cfg.Concurrent).
		Msg("Sync starting")

	report, err := driver.Run(ctx)
	printSummary(stdout, report)
	return err
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// reporter prints records selected by the reporting filters, one per line.
type reporter struct {
	mu  sync.Mutex
	out io.Writer
}

func newReporter(out io.Writer) *reporter {
	return &reporter{out: out}
}

func (r *reporter) emit(rec record.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch v := rec.(type) {
	case record.Episode:
		fmt.Fprintf(r.out, "episode %d\t%s\t%s\t%s\n", v.ID, v.Episode, v.AirDate, v.Name)
	default:
		fmt.Fprintf(r.out, "%s %d\t%s\n", rec.RecordKind(), rec.RecordID(), rec.RecordName())
	}
}

func printSummary(out io.Writer, report pipeline.Report) {
	for _, k := range report.Kinds {
		status := "ok"
		if k.Err != nil {
			status = "failed"
		}
		fmt.Fprintf(out, "%-9s %-6s pages=%d written=%d skipped=%d matched=%d duration=%s\n",
			k.Kind, status, k.Pages, k.Written, k.Skipped, k.Matched, k.Duration.Round(time.Millisecond))
	}
}
