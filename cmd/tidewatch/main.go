package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tidewatch-io/tidewatch/internal/api"
	"github.com/tidewatch-io/tidewatch/internal/broadcast"
	"github.com/tidewatch-io/tidewatch/internal/cache"
	"github.com/tidewatch-io/tidewatch/internal/circuitbreaker"
	"github.com/tidewatch-io/tidewatch/internal/config"
	"github.com/tidewatch-io/tidewatch/internal/metrics"
	"github.com/tidewatch-io/tidewatch/internal/query"
	"github.com/tidewatch-io/tidewatch/internal/scheduler"
	"github.com/tidewatch-io/tidewatch/internal/stats"
	"github.com/tidewatch-io/tidewatch/internal/store/postgres"
	"github.com/tidewatch-io/tidewatch/internal/transport/hub"
	"github.com/tidewatch-io/tidewatch/internal/transport/redispub"
	"github.com/tidewatch-io/tidewatch/internal/transport/ws"
	"github.com/tidewatch-io/tidewatch/internal/watchdog"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`tidewatch - SQL poll-and-broadcast engine

Usage:
  tidewatch <command>

Commands:
  serve      Start the scheduler and broadcast server
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  REDIS_ADDR                Redis address for cross-process broadcast (optional)
  REDIS_CHANNEL_PREFIX      Redis channel prefix (default: "tidewatch:")
  HTTP_ADDR                 HTTP server address (default: ":8080")

  QUERY_TIMEOUT             Per-execution query timeout (default: "30s")
  POLL_ROW_LIMIT            Max rows per scheduled poll (default: "50")
  TEST_ROW_LIMIT            Max rows for /sources/test (default: "10000")
  CACHE_MAX_BYTES           Cache entry size ceiling (default: "10485760")
  MAX_STAGGER_BUDGET        Startup stagger span bound (default: "10s")

  SLEEP_ENABLED             Suspend timers with no subscribers (default: "true")
  SLEEP_DELAY               Debounce before sleeping (default: "30s")
  WAKE_JITTER_MAX           Max per-source delay on wake (default: "2s")

  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")

  BREAKER_THRESHOLD         Failures before a source is paused; 0 disables (default: "0")
  BREAKER_COOLDOWN          Pause length once tripped (default: "2m")

  WATCHDOG_ENABLED          Enable stalled-execution watchdog (default: "false")
  WATCHDOG_INTERVAL         How often to scan for stalls (default: "1m")
  WATCHDOG_THRESHOLD        In-flight age counted as stalled (default: "5m")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("tidewatch: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db)
	executor := query.NewExecutor(db, cfg.QueryTimeout)
	resultCache := cache.New(cfg.CacheMaxBytes)
	registry := stats.NewRegistry(store)

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("tidewatch: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

		// Start metrics HTTP server on separate port
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("tidewatch: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("tidewatch: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("tidewatch: METRICS_ENABLED not set; metrics disabled")
	}

	// Broadcast transports: in-process hub always, Redis when configured.
	broadcastHub := hub.New()
	publishers := []broadcast.Publisher{broadcastHub}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		publishers = append(publishers, redispub.New(redisClient, redispub.WithPrefix(cfg.RedisChannelPrefix)))
		log.Printf("tidewatch: redis broadcast enabled (redis=%s, prefix=%s)", cfg.RedisAddr, cfg.RedisChannelPrefix)
	} else {
		log.Println("tidewatch: REDIS_ADDR not set; redis broadcast disabled")
	}

	sched := scheduler.New(
		scheduler.Config{
			PollRowLimit:     cfg.PollRowLimit,
			MaxStaggerBudget: cfg.MaxStaggerBudget,
			WakeJitterMax:    cfg.WakeJitterMax,
			SleepEnabled:     cfg.SleepEnabled,
			SleepDelay:       cfg.SleepDelay,
		},
		store,
		executor,
		resultCache,
		registry,
		broadcast.NewMultiPublisher(publishers...),
		broadcastHub,
	)
	if metricsSink != nil {
		sched = sched.WithMetrics(metricsSink)
	}
	if cfg.BreakerThreshold > 0 {
		sched = sched.WithBreaker(circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown))
		log.Printf("tidewatch: circuit breaker enabled (threshold=%d, cooldown=%s)", cfg.BreakerThreshold, cfg.BreakerCooldown)
	}

	// Every subscriber connect/disconnect re-evaluates sleep state.
	broadcastHub.OnCountChange(sched.CheckSleepMode)

	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	if err := sched.Start(schedulerCtx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start scheduler: %v\n", err)
		cancelScheduler()
		return exitRuntimeError
	}

	// Start watchdog if enabled
	var watchdogWg sync.WaitGroup
	var cancelWatchdog context.CancelFunc

	if cfg.WatchdogEnabled {
		var watchdogCtx context.Context
		watchdogCtx, cancelWatchdog = context.WithCancel(context.Background())
		wd := watchdog.New(
			watchdog.Config{
				Interval:  cfg.WatchdogInterval,
				Threshold: cfg.WatchdogThreshold,
			},
			sched,
		)
		if metricsSink != nil {
			wd = wd.WithMetrics(metricsSink)
		}
		watchdogWg.Add(1)
		go func() {
			defer watchdogWg.Done()
			wd.Run(watchdogCtx)
		}()
		log.Printf("tidewatch: watchdog enabled (interval=%s, threshold=%s)", cfg.WatchdogInterval, cfg.WatchdogThreshold)
	} else {
		log.Println("tidewatch: WATCHDOG_ENABLED not set; watchdog disabled")
	}

	// HTTP surface: admin API plus the WebSocket subscriber endpoint.
	apiHandler := api.NewHandler(store, sched, executor, broadcastHub, cfg.TestRowLimit).WithHealthChecker(db)
	wsHandler := ws.NewHandler(broadcastHub, sched)
	if metricsSink != nil {
		apiHandler = apiHandler.WithMetrics(metricsSink)
		wsHandler = wsHandler.WithMetrics(metricsSink)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.Handle("/", apiHandler)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("tidewatch: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("tidewatch: http server error: %v", err)
		}
	}()

	log.Printf("tidewatch: started (http=%s, sleep=%t)", cfg.HTTPAddr, cfg.SleepEnabled)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("tidewatch: received signal %v, shutting down", received)

	// Phase 1: Stop scheduler (no new executions; in-flight polls are
	// cancelled at the driver level by the context)
	log.Println("tidewatch: stopping scheduler...")
	sched.Stop()
	cancelScheduler()
	log.Println("tidewatch: scheduler stopped")

	// Phase 2: Stop watchdog
	if cancelWatchdog != nil {
		log.Println("tidewatch: stopping watchdog...")
		cancelWatchdog()
		watchdogWg.Wait()
		log.Println("tidewatch: watchdog stopped")
	}

	// Phase 3: Stop HTTP server with graceful shutdown
	log.Println("tidewatch: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("tidewatch: http server shutdown error: %v", err)
	}
	log.Println("tidewatch: http server stopped")

	// Phase 4: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Println("tidewatch: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("tidewatch: metrics server shutdown error: %v", err)
		}
		log.Println("tidewatch: metrics server stopped")
	}

	log.Println("tidewatch: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to render configuration: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("tidewatch %s (%s)\n", version, commit)
	return exitSuccess
}
