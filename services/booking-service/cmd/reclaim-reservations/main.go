// Command reclaim-reservations deletes slot reservations whose hold window
// ended more than the grace period ago, then exits. It is the one-shot
// counterpart of the scheduler inside booking-service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/config"
	"github.com/md-rashed-zaman/counselbook/libs/db"
	"github.com/md-rashed-zaman/counselbook/libs/runtime"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/reclaim"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
)

func main() {
	_, _ = config.LoadDotEnv()

	var (
		grace    = flag.Int("grace-period-minutes", envInt("RECLAIM_GRACE_MINUTES", reclaim.DefaultGraceMinutes), "minutes past reserved_until before a reservation is deleted")
		dbURL    = flag.String("database-url", config.String("DATABASE_URL", ""), "postgres connection string")
		stripeSK = flag.String("stripe-secret-key", config.String("STRIPE_SECRET_KEY", ""), "used to look up hold status for the audit log (optional)")
		batch    = flag.Int("batch-size", envInt("RECLAIM_BATCH_SIZE", reclaim.DefaultBatchSize), "reservations deleted per transaction")
		timeout  = flag.Duration("timeout", 2*time.Minute, "overall run timeout")
		logLevel = flag.String("log-level", config.String("LOG_LEVEL", "info"), "log level")
	)
	flag.Parse()

	if *dbURL == "" {
		fatal("DATABASE_URL is required")
	}
	if *grace < 0 {
		fatal("grace-period-minutes must not be negative")
	}
	logger := runtime.NewLogger("reclaim-reservations", *logLevel)

	sigCtx, stop := runtime.SignalContext(context.Background())
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, *timeout)
	defer cancel()

	pool, err := db.Open(ctx, *dbURL, db.PoolConfig{MaxConns: 2})
	if err != nil {
		fatal(err.Error())
	}
	defer pool.Close()

	var gateway payments.Gateway
	if *stripeSK != "" {
		gateway, err = payments.NewStripeGateway(payments.StripeConfig{SecretKey: *stripeSK})
		if err != nil {
			fatal(err.Error())
		}
	}

	r := reclaim.NewReclaimer(storage.NewPostgres(pool), gateway, logger, clock.Real{}, nil)
	r.SetBatchSize(*batch)
	deleted, err := r.Reclaim(ctx, *grace)
	fmt.Printf("deleted=%d\n", deleted)
	if err != nil {
		fatal(err.Error())
	}
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(config.String(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func fatal(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
