package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gustycube/certwatch/internal/api"
	"github.com/gustycube/certwatch/internal/check"
	"github.com/gustycube/certwatch/internal/circuitbreaker"
	"github.com/gustycube/certwatch/internal/config"
	"github.com/gustycube/certwatch/internal/ctlog"
	"github.com/gustycube/certwatch/internal/domains"
	"github.com/gustycube/certwatch/internal/health"
	"github.com/gustycube/certwatch/internal/httpclient"
	"github.com/gustycube/certwatch/internal/lock"
	"github.com/gustycube/certwatch/internal/logging"
	"github.com/gustycube/certwatch/internal/metrics"
	"github.com/gustycube/certwatch/internal/output"
	"github.com/gustycube/certwatch/internal/rate"
	"github.com/gustycube/certwatch/internal/report"
	"github.com/gustycube/certwatch/internal/results"
	"github.com/gustycube/certwatch/internal/scheduler"
	"github.com/gustycube/certwatch/internal/tracing"
	"github.com/gustycube/certwatch/internal/ui"
)

var version = "dev"

func main() {
	var configFile string
	var listenAddr string
	var metricsAddr string
	var domainsFile string
	var interval string
	var concurrency int
	var outputFormat string
	var logLevel string
	var once bool
	var debug bool
	var showVersion bool

	flag.StringVar(&configFile, "config", "", "path to config file (YAML or JSON)")
	flag.StringVar(&listenAddr, "listen", "", "HTTP listen addr for on-demand checks")
	flag.StringVar(&metricsAddr, "metrics_addr", "", "metrics and health listen addr")
	flag.StringVar(&domainsFile, "domains", "", "path to newline-separated domains for scheduled runs")
	flag.StringVar(&interval, "interval", "", "scheduled check interval (e.g. 24h, 0 to disable)")
	flag.IntVar(&concurrency, "concurrency", 0, "max domains checked at once in a batch (0 = all)")
	flag.StringVar(&outputFormat, "output_format", "", "output format for -once (json, jsonl, csv)")
	flag.StringVar(&logLevel, "log_level", "", "log level (debug, info, warn, error)")
	flag.BoolVar(&once, "once", false, "run one batch, print the results and exit")
	flag.BoolVar(&debug, "debug", false, "include error details in every HTTP error response")
	flag.BoolVar(&showVersion, "version", false, "show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "certwatch - SSL certificate expiry monitor backed by certificate transparency logs\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -config=config.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -domains=domains.txt -once -output_format=csv > report.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  TELEMETRY_ACCOUNT_ID  Event API account (alias NEW_RELIC_ACCOUNT_ID)\n")
		fmt.Fprintf(os.Stderr, "  TELEMETRY_API_KEY     Event API insert key (alias NEW_RELIC_API_KEY)\n")
		fmt.Fprintf(os.Stderr, "  REDIS_ADDR            Redis for the shared domain set and batch lease\n")
		fmt.Fprintf(os.Stderr, "  LOG_LEVEL             Log level (debug, info, warn, error)\n")
	}
	flag.Parse()

	if showVersion {
		fmt.Println("certwatch", version)
		fmt.Println("Built with Go", strings.TrimPrefix(runtime.Version(), "go"))
		os.Exit(0)
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "dotenv:", err)
		os.Exit(1)
	}

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	} else {
		cfg = &config.Config{}
	}
	cfg.LoadFromEnv()

	flags := make(map[string]interface{})
	if listenAddr != "" {
		flags["listen"] = listenAddr
	}
	if metricsAddr != "" {
		flags["metrics_addr"] = metricsAddr
	}
	if domainsFile != "" {
		flags["domains"] = domainsFile
	}
	if interval != "" {
		flags["interval"] = interval
	}
	if concurrency > 0 {
		flags["concurrency"] = concurrency
	}
	if outputFormat != "" {
		flags["output_format"] = outputFormat
	}
	if logLevel != "" {
		flags["log_level"] = logLevel
	}
	flags["debug"] = debug
	cfg.MergeWithFlags(flags)
	cfg.SetDefaults()

	log := logging.New(cfg.LogLevel)
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatalw("invalid configuration", "err", err)
	}
	checkInterval, _ := cfg.Interval()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.OTELEndpoint, cfg.OTELService, version, cfg.OTELInsecure)
	if err != nil {
		log.Warnw("otel init failed", "err", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	// Outbound HTTP
	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		log.Warnw("circuit breaker state changed", "upstream", name, "from", from.String(), "to", to.String())
	}
	breakers := circuitbreaker.NewSet(breakerCfg)
	hc := httpclient.Default(config.Seconds(cfg.HTTPTimeout))
	limiter := rate.New(cfg.CTLogRate, cfg.CTLogBurst)
	defer limiter.Close()

	ct := ctlog.NewClient(cfg.CTLogURL, httpclient.NewResilientClient(hc, breakers),
		ctlog.WithLimiter(limiter),
		ctlog.WithUserAgent(cfg.UA),
	)
	resolver := ctlog.NewResolver(ct)

	reporter := report.New(report.Config{
		Endpoint:  cfg.TelemetryURL,
		AccountID: cfg.AccountID,
		APIKey:    cfg.APIKey,
		SpoolDir:  cfg.SpoolDir,
	}, hc, log)
	if !reporter.Configured() {
		log.Warnw("telemetry credentials missing, events will not be delivered")
	}
	dispatcher := report.NewDispatcher(reporter, config.Seconds(cfg.ReportTimeout), log)

	// set before the -once batch starts, nil otherwise
	var bar *ui.Progress

	store := results.New(cfg.ResultsSize, config.Seconds(cfg.ResultsTTLSec))
	checker := check.New(resolver, reporter, dispatcher, log,
		check.WithResults(store),
		check.WithConcurrency(cfg.Concurrency),
		check.WithProgress(func(o check.Outcome) {
			if bar != nil {
				bar.Observe(o.Status == check.StatusSucceeded)
			}
		}),
	)

	// Domain sources and batch lease
	var sources domains.Multi
	if len(cfg.Domains) > 0 {
		sources = append(sources, domains.Static(cfg.Domains))
	}
	if cfg.DomainsFile != "" {
		sources = append(sources, domains.File{Path: cfg.DomainsFile})
	}

	var lease lock.Interface = lock.NewMemory()
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = domains.Connect(ctx, cfg.RedisAddr, 30*time.Second)
		if err != nil {
			log.Fatalw("redis init", "addr", cfg.RedisAddr, "err", err)
		}
		defer rdb.Close()
		sources = append(sources, domains.NewRedis(rdb, cfg.RedisDomainsKey))
		owner, _ := os.Hostname()
		lease = lock.NewRedis(rdb, "certwatch:", owner+"/"+uuid.NewString())
		log.Infow("redis enabled", "addr", cfg.RedisAddr, "key", cfg.RedisDomainsKey)
	}

	sched := scheduler.New(checkInterval, cfg.RunOnStart, sources, checker, lease, log)

	if once {
		list, err := sources.Domains(ctx)
		if err != nil {
			log.Fatalw("load domains", "err", err)
		}
		if ui.IsTerminal(os.Stderr) {
			bar = ui.NewProgress(os.Stderr, len(list))
		}
		os.Exit(runOnce(ctx, checker, list, bar, dispatcher, cfg, log, shutdownTracing))
	}

	// Health and metrics
	healthHandler := health.NewHandler(log)
	healthHandler.SetMetadata("version", version)
	healthHandler.SetMetadata("ctlog", ct.Host())
	var ping func(context.Context) error
	if rdb != nil {
		ping = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	healthHandler.RegisterChecker("redis", health.NewRedisChecker(ping))
	healthHandler.RegisterChecker("ctlog", health.NewBreakerChecker(breakers.Snapshot))
	healthHandler.RegisterChecker("reporter", health.NewReporterChecker(reporter.Configured))
	healthHandler.RegisterChecker("background_reports", health.NewBacklogChecker(dispatcher.InFlight, 1000))

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(healthHandler, store),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go metrics.ServeWithHealth(metricsSrv, log)
		log.Infow("metrics and health server started", "addr", cfg.MetricsAddr)
	}

	apiSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.New(checker, log, cfg.Debug).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * config.Seconds(cfg.HTTPTimeout),
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("http server stopped", "err", err)
			cancel()
		}
	}()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	log.Infow("starting certwatch",
		"version", version,
		"listen", cfg.ListenAddr,
		"interval", checkInterval,
		"ctlog", cfg.CTLogURL,
		"config_file", configFile,
	)
	healthHandler.SetReady(true)

	<-ctx.Done()
	log.Infow("shutting down")
	healthHandler.SetReady(false)

	shutdownCtx, stop := context.WithTimeout(context.Background(), config.Seconds(cfg.ShutdownTimeout))
	defer stop()

	<-schedDone
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "err", err)
	}
	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}
	if err := dispatcher.Drain(shutdownCtx); err != nil {
		log.Warnw("background reports abandoned", "err", err)
	}
	shutdownTracing(shutdownCtx)
	log.Infow("shutdown complete")
}

// runOnce runs a single batch and prints its outcomes. It returns the process exit code.
func runOnce(ctx context.Context, checker *check.Checker, list []string, bar *ui.Progress, dispatcher *report.Dispatcher, cfg *config.Config, log *logging.Logger, shutdownTracing tracing.ShutdownFunc) int {
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), config.Seconds(cfg.ShutdownTimeout))
		defer stop()
		dispatcher.Drain(shutdownCtx)
		shutdownTracing(shutdownCtx)
		log.Sync()
	}()

	res := checker.RunBatch(ctx, list)
	if bar != nil {
		bar.Finish()
	}

	w, err := output.NewStdoutWriter(cfg.OutputFormat)
	if err != nil {
		log.Errorw("output", "err", err)
		return 1
	}
	if err := w.WriteBatch(res); err != nil {
		log.Errorw("write results", "err", err)
		return 1
	}
	if err := w.Flush(); err != nil {
		log.Errorw("flush results", "err", err)
		return 1
	}
	if res.Summary.Failed > 0 {
		return 2
	}
	return 0
}
