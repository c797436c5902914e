package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/config"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/db"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/email"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/grpcx"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/httpx"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/kafkax"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/notify"
	otelx "github.com/kareemschultz/SYNERGY-GY-sub000/libs/otel"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/outbox"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/runtime"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/scheduler-service/internal/dispatch"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/scheduler-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8087")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	dispatchCfg, err := dispatchConfigFromEnv()
	if err != nil {
		panic(err)
	}
	requestedTTL := dispatchCfg.ClaimTTL
	dispatchCfg = dispatchCfg.WithDefaults()
	if requestedTTL > 0 && requestedTTL < dispatchCfg.ClaimTTL {
		logger.Warn("DISPATCH_CLAIM_TTL raised to cover a full sweep", "requested", requestedTTL, "claim_ttl", dispatchCfg.ClaimTTL)
	}
	loc, err := config.Location("SCHEDULING_TIMEZONE")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}

	var sender notify.Sender
	switch transport := strings.ToLower(config.String("NOTIFY_TRANSPORT", "kafka")); transport {
	case "kafka":
		if brokers == "" {
			panic("NOTIFY_TRANSPORT=kafka requires KAFKA_BROKERS")
		}
		writer := kafkax.NewWriter(brokers)
		defer func() { _ = writer.Close() }()
		sender = notify.NewKafkaSender(writer)
	case "smtp":
		mail := email.NewSMTPSender(
			config.String("SMTP_HOST", "mailpit"),
			config.String("SMTP_PORT", "1025"),
			config.String("SMTP_FROM", "no-reply@practice.local"),
		)
		sender = notify.NewEmailSender(mail, loc)
	default:
		panic(fmt.Sprintf("unknown NOTIFY_TRANSPORT %q", transport))
	}

	var lease dispatch.Lease
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			panic(err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		lease = dispatch.NewRedisLease(rdb, "lease:reminder-sweep", dispatchCfg.ClaimTTL)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	if addr := config.String("BOOKING_GRPC_ADDR", ""); addr != "" {
		conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{})
		if err != nil {
			logger.Warn("booking-service grpc dial failed", "addr", addr, "err", err)
		} else {
			defer func() { _ = conn.Close() }()
			checks = append(checks, runtime.ReadyCheck{Name: "booking", Check: grpcx.HealthReadyCheck(conn, "booking-service")})
		}
	}

	dispatcher := dispatch.New(storage.NewReminderStore(pool), sender, lease, logger, dispatchCfg)
	if err := dispatcher.Start(ctx); err != nil {
		panic(err)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "scheduler")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Error("dispatcher stop error", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func dispatchConfigFromEnv() (dispatch.Config, error) {
	cfg := dispatch.Config{Schedule: config.String("DISPATCH_SCHEDULE", "@every 5m")}
	var err error
	if cfg.BatchSize, err = config.Int("DISPATCH_BATCH_SIZE", 50); err != nil {
		return cfg, err
	}
	if cfg.Concurrency, err = config.Int("DISPATCH_CONCURRENCY", 4); err != nil {
		return cfg, err
	}
	if cfg.MaxAttempts, err = config.Int("DISPATCH_MAX_ATTEMPTS", 5); err != nil {
		return cfg, err
	}
	if cfg.SendTimeout, err = config.Duration("DISPATCH_SEND_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.Backoff, err = config.Duration("DISPATCH_BACKOFF", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.ClaimTTL, err = config.Duration("DISPATCH_CLAIM_TTL", 2*time.Minute); err != nil {
		return cfg, err
	}
	return cfg, nil
}
