package main

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/config"
	"github.com/md-rashed-zaman/counselbook/libs/kafkax"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/reclaim"
)

type settings struct {
	Service  string
	Port     string
	GRPCPort string
	LogLevel string

	DatabaseURL        string
	DBMaxConns         int
	MigrateOnStart     bool
	AllowInMemoryStore bool

	KafkaBrokers []string

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int

	StripeSecretKey   string
	AllowFakePayments bool
	PaymentTimeout    time.Duration

	RequestTimeout time.Duration

	ReservationWindow time.Duration
	GraceMinutes      int
	ReclaimSchedule   string

	JWTSecret   string
	CORSOrigins []string
}

func loadSettings() (settings, error) {
	s := settings{
		Service:            config.String("SERVICE_NAME", "booking-service"),
		LogLevel:           config.String("LOG_LEVEL", "info"),
		DatabaseURL:        config.String("DATABASE_URL", ""),
		MigrateOnStart:     config.Bool("MIGRATE_ON_START", false),
		AllowInMemoryStore: config.Bool("ALLOW_IN_MEMORY_STORE", false),
		KafkaBrokers:       kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")),
		RedisAddr:          config.String("REDIS_ADDR", ""),
		RedisPassword:      config.String("REDIS_PASSWORD", ""),
		StripeSecretKey:    config.String("STRIPE_SECRET_KEY", ""),
		AllowFakePayments:  config.Bool("ALLOW_FAKE_PAYMENTS", false),
		ReclaimSchedule:    config.String("RECLAIM_SCHEDULE", reclaim.DefaultSchedule),
		JWTSecret:          config.String("JWT_SECRET", ""),
		CORSOrigins:        config.List("CORS_ALLOWED_ORIGINS"),
	}

	var errs []error
	var err error
	if s.Port, err = config.Port("PORT", "8083"); err != nil {
		errs = append(errs, err)
	}
	if s.GRPCPort, err = config.Port("GRPC_PORT", "9093"); err != nil {
		errs = append(errs, err)
	}
	if s.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10); err != nil {
		errs = append(errs, err)
	}
	if s.RedisDB, err = config.Int("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	if s.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		errs = append(errs, err)
	}
	if s.PaymentTimeout, err = config.Duration("PAYMENT_TIMEOUT", 10*time.Second); err != nil {
		errs = append(errs, err)
	}
	if s.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 15*time.Second); err != nil {
		errs = append(errs, err)
	}
	if s.ReservationWindow, err = config.Duration("RESERVATION_WINDOW", booking.DefaultReservationWindow); err != nil {
		errs = append(errs, err)
	}
	if s.GraceMinutes, err = config.Int("RECLAIM_GRACE_MINUTES", reclaim.DefaultGraceMinutes); err != nil {
		errs = append(errs, err)
	} else if s.GraceMinutes < 0 {
		errs = append(errs, errors.New("RECLAIM_GRACE_MINUTES must not be negative"))
	}

	if s.DatabaseURL == "" && !s.AllowInMemoryStore {
		errs = append(errs, errors.New("DATABASE_URL is required unless ALLOW_IN_MEMORY_STORE is set"))
	}
	if s.StripeSecretKey == "" && !s.AllowFakePayments {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required unless ALLOW_FAKE_PAYMENTS is set"))
	}
	return s, errors.Join(errs...)
}
