package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/config"
	"github.com/md-rashed-zaman/counselbook/libs/db"
	"github.com/md-rashed-zaman/counselbook/libs/grpcx"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/counselbook/libs/otel"
	"github.com/md-rashed-zaman/counselbook/libs/runtime"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/reclaim"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage/memstore"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if _, err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv load failed", "err", err)
		os.Exit(1)
	}
	cfg, err := loadSettings()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("booking service failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg settings, logger *slog.Logger) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	clk := clock.Real{}
	var checks []runtime.ReadyCheck

	var (
		store storage.Store
		pool  *db.Pool
		mem   *memstore.Store
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: int32(cfg.DBMaxConns)})
		if err != nil {
			return err
		}
		defer pool.Close()
		if cfg.MigrateOnStart {
			if _, err := db.Migrate(ctx, pool, migrations.FS, migrations.Dir, logger); err != nil {
				return err
			}
		}
		store = storage.NewPostgres(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		mem = memstore.New(clk.Now)
		store = mem
	}

	var (
		gateway payments.Gateway
		dev     *handlers.DevPaymentsHandler
	)
	if cfg.StripeSecretKey != "" {
		gateway, err = payments.NewStripeGateway(payments.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			Timeout:   cfg.PaymentTimeout,
		})
		if err != nil {
			return err
		}
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; using fake payment gateway")
		fake := payments.NewFakeGateway()
		gateway = fake
		dev = handlers.NewDevPaymentsHandler(fake)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewBookingMetrics(reg)

	engine := availability.NewEngine(store, clk)
	coord := booking.NewCoordinator(store, gateway, logger, booking.Config{
		ReservationWindow: cfg.ReservationWindow,
		Clock:             clk,
		Metrics:           m,
	})
	reclaimer := reclaim.NewReclaimer(store, gateway, logger, clk, m)
	scheduler, err := reclaim.NewScheduler(reclaimer, logger, reclaim.SchedulerConfig{
		Schedule:     cfg.ReclaimSchedule,
		GraceMinutes: cfg.GraceMinutes,
	})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	if len(cfg.KafkaBrokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	if pool != nil {
		publisher := outbox.NewPublisher(pool, logger, outbox.PublisherConfig{
			Brokers:     cfg.KafkaBrokers,
			PollEvery:   2 * time.Second,
			BatchSize:   50,
			OnPublished: m.ObserveOutboxPublished,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Run(ctx)
		}()
	} else {
		discarder := outbox.NewDiscarder(mem, logger, 5*time.Second)
		wg.Add(1)
		go func() {
			defer wg.Done()
			discarder.Run(ctx)
		}()
	}

	var rateLimit httpx.Middleware
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		rl := httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "rl:booking", httpx.ClientIP)
		rateLimit = rl.Middleware(logger, true)
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimitPerMinute, "redis_addr", cfg.RedisAddr)
	} else {
		rateLimit = httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute, httpx.ClientIP).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimitPerMinute)
	}

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set; trusting X-User-Id and X-Role headers")
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	handlers.Routes{
		Slots:        handlers.NewSlotsHandler(engine, logger, m),
		Booking:      handlers.NewBookingHandler(coord, logger),
		Appointments: handlers.NewAppointmentsHandler(store, coord, logger),
		Calendar:     handlers.NewCalendarHandler(store, logger, clk.Now),
		Admin:        handlers.NewAdminHandler(store, reclaimer, cfg.GraceMinutes, logger),
		DevPayments:  dev,
	}.Register(mux)

	httpHandler := httpx.Chain(httpx.RecordRoutePattern(mux),
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger, m.ObserveHTTP),
		httpx.WithCORS(httpx.DefaultCORSPolicy(cfg.CORSOrigins)),
		rateLimit,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(cfg.RequestTimeout),
		auth.Authenticate(cfg.JWTSecret),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		grpcx.MirrorReadiness(ctx, health, "counselbook.booking", 10*time.Second, checks...)
	}()
	go func() {
		defer wg.Done()
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			cancelRun()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	wg.Wait()
	logger.Info("booking service stopped")
	return nil
}
