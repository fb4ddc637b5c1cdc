package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/gurubook/libs/auth"
	"github.com/md-rashed-zaman/gurubook/libs/config"
	"github.com/md-rashed-zaman/gurubook/libs/db"
	"github.com/md-rashed-zaman/gurubook/libs/grpcx"
	"github.com/md-rashed-zaman/gurubook/libs/httpx"
	"github.com/md-rashed-zaman/gurubook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/gurubook/libs/otel"
	"github.com/md-rashed-zaman/gurubook/libs/runtime"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/availability"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/booking"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/clock"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/consumer"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/entitlements"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/handlers"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/holds"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/inbox"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/meeting"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/metrics"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/notify"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/outbox"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/payments"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/profiles"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/reminders"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/storage"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	var cfg Config
	if err := config.Load("", &cfg); err != nil {
		panic(err)
	}
	if _, err := config.Port("PORT", cfg.HTTPPort); err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName)
	defer func() { _ = logger.Sync() }()

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, cfg.ServiceName, cfg.Config)
	if err != nil {
		logger.Error("otel setup failed", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		logger.Fatal("db connection failed", zap.Error(err))
	}
	defer pool.Close()
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool, migrations.FS, "."); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	store := storage.NewPostgres(pool)
	clk := clock.System{}
	brokers := kafkax.SplitBrokers(cfg.KafkaBrokers)
	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	var (
		rdb     *redis.Client
		holder  holds.Holder = holds.Noop{}
		limiter httpx.Middleware
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()
		holder = holds.NewRedis(rdb, "consultation:hold")
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "consultation:rl").Middleware(logger, true)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: holds.ReadyCheck(rdb)})
	} else {
		logger.Warn("redis not configured; pending bookings are not held and rate limits are per process")
		limiter = httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware()
	}

	notifier := notify.NewNotifier(newDispatcher(cfg, logger), notify.NotifierOptions{
		PerSecond: cfg.NotifyRatePerSecond,
		Burst:     5,
	}, logger, m)
	sched := reminders.NewScheduler(store, notifier, reminders.Options{
		Lead:    cfg.ReminderLead,
		Logger:  logger,
		Metrics: m,
	})
	meetings := meeting.Allocator{BaseURL: cfg.MeetingBaseURL}

	if cfg.SecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set; paid bookings cannot be checked out")
	}
	gateway := payments.NewStripeGateway(cfg.StripeConfig, &http.Client{Timeout: cfg.GatewayTimeout + 5*time.Second})
	rec := payments.NewReconciler(payments.Deps{
		Store:     store,
		Gateway:   gateway,
		Holds:     holder,
		Reminders: sched,
		Meetings:  meetings,
		Notifier:  notifier,
		Clock:     clk,
		Logger:    logger,
		Metrics:   m,
	}, payments.Config{
		GatewayTimeout: cfg.GatewayTimeout,
		SuccessURL:     cfg.CheckoutSuccessURL,
		CancelURL:      cfg.CheckoutCancelURL,
	})

	resolver := availability.NewResolver(store, holder, clk,
		availability.WithMaxRangeDays(cfg.MaxRangeDays),
		availability.WithLogger(logger),
	)
	svc := booking.NewService(booking.Deps{
		Store:        store,
		Resolver:     resolver,
		Payments:     rec,
		Holds:        holder,
		Reminders:    sched,
		Meetings:     meetings,
		Entitlements: entitlements.NewChecker(store, cfg.RequiredTiers),
		Notifier:     notifier,
		Clock:        clk,
		Logger:       logger,
		Metrics:      m,
	}, booking.Config{PendingTTL: cfg.PendingTTL})

	var jwks *auth.JWKSClient
	if cfg.JWKSURL != "" {
		jwks = auth.NewJWKSClient(cfg.JWKSURL, 10*time.Minute)
	}
	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		HMACSecret: cfg.JWTSecret,
		JWKS:       jwks,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
	})
	if err != nil {
		logger.Fatal("auth setup failed", zap.Error(err))
	}

	publisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{Brokers: brokers})
	go publisher.Run(ctx)

	if len(brokers) > 0 {
		events := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topics:  append([]string{profiles.EventGuruProfileUpdated}, entitlements.Topics...),
		}, route(entitlements.NewProjector(store, logger), profiles.NewProjector(store, logger)))
		go events.Run(ctx)
	}

	healthChecks := make(map[string]func(context.Context) error, len(checks))
	for _, c := range checks {
		healthChecks[c.Name] = c.Check
	}
	go func() {
		if err := grpcx.NewHealthServer(logger, healthChecks).Serve(ctx, ":"+cfg.GRPCPort, 10*time.Second); err != nil {
			logger.Error("grpc health server error", zap.Error(err))
		}
	}()

	mux := runtime.NewBaseMux(runtime.BaseMuxOptions{Checks: checks, Gatherer: registry})
	handlers.Routes{
		Auth:     handlers.NewAuth(verifier),
		Slots:    handlers.NewSlotsHandler(resolver, logger),
		Bookings: handlers.NewBookingHandler(svc, clk, logger),
		Payments: handlers.NewPaymentHandler(rec, gateway, logger),
		Rules:    handlers.NewRulesHandler(availability.NewRules(store, clk), logger),
		Sweeps:   handlers.NewSweepHandler(svc, sched, clk, logger),
	}.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(cfg.CORSOrigins)),
		limiter,
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "consultation")
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}

func newDispatcher(cfg Config, logger *zap.Logger) notify.Dispatcher {
	switch {
	case cfg.Host != "":
		logger.Info("notifications via smtp", zap.String("host", cfg.Host))
		return notify.NewEmail(cfg.SMTPConfig)
	case cfg.NotifyWebhookURL != "":
		logger.Info("notifications via webhook")
		return notify.NewWebhook(cfg.NotifyWebhookURL, cfg.NotifyWebhookToken, &http.Client{Timeout: 10 * time.Second})
	default:
		logger.Warn("no notification channel configured; messages are dropped")
		return notify.Noop{}
	}
}

// route dispatches consumed events to their projection by topic.
func route(ent *entitlements.Projector, prof *profiles.Projector) consumer.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		switch kafkax.ExtractEventMeta(msg).EventType {
		case profiles.EventGuruProfileUpdated:
			return prof.Handle(ctx, msg)
		default:
			return ent.Handle(ctx, msg)
		}
	}
}
