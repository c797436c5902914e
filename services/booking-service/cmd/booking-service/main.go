package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/auth"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/config"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/db"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/grpcx"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/httpx"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/kafkax"
	otelx "github.com/kareemschultz/SYNERGY-GY-sub000/libs/otel"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/outbox"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/runtime"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/availability"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/booking"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/handlers"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/reminders"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
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
	loc, err := config.Location("SCHEDULING_TIMEZONE")
	if err != nil {
		panic(err)
	}
	offsets, err := config.Minutes(config.String("REMINDER_OFFSETS_MINUTES", "1440,60"))
	if err != nil {
		panic(err)
	}
	rateLimit, err := config.Int("PUBLIC_RATE_LIMIT", 60)
	if err != nil {
		panic(err)
	}
	rateWindow, err := config.Duration("PUBLIC_RATE_WINDOW", time.Minute)
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", false) {
		applied, err := db.NewMigrator(pool).Up(ctx)
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "count", applied)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	store := storage.NewStore(pool)
	resolver := availability.NewResolver(store, loc)
	manager := booking.NewManager(store, resolver, reminders.NewScheduler(offsets), logger, booking.ManagerConfig{})

	var jwks *auth.JWKSClient
	if url := config.String("JWKS_URL", ""); url != "" {
		jwks = auth.NewJWKSClient(url, 10*time.Minute)
	}
	verifier := auth.NewVerifier(config.String("JWT_SECRET", ""), jwks)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	publicLimit := httpx.NewRateLimiter(rateLimit, rateWindow).Middleware()
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			panic(err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		publicLimit = httpx.NewRedisRateLimiter(rdb, rateLimit, rateWindow, "rl:public").Middleware(logger, true)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewBookingHandler(manager, logger, loc).Register(mux, auth.RequireStaff(verifier), publicLimit)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(service)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
}
