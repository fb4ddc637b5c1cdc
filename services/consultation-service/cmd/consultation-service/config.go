package main

import (
	"time"

	otelx "github.com/md-rashed-zaman/gurubook/libs/otel"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/notify"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/payments"
)

// Config is loaded from the environment (and an optional .env file).
type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"consultation-service"`
	HTTPPort    string `envconfig:"PORT" default:"8090"`
	GRPCPort    string `envconfig:"GRPC_PORT" default:"9090"`

	DatabaseURL    string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns     int32  `envconfig:"DB_MAX_CONNS"`
	MigrateOnStart bool   `envconfig:"MIGRATE_ON_START" default:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	KafkaBrokers string `envconfig:"KAFKA_BROKERS"`
	KafkaGroupID string `envconfig:"KAFKA_GROUP_ID" default:"consultation-service"`

	JWTSecret   string `envconfig:"JWT_SECRET"`
	JWKSURL     string `envconfig:"JWKS_URL"`
	JWTIssuer   string `envconfig:"JWT_ISSUER"`
	JWTAudience string `envconfig:"JWT_AUDIENCE"`

	PendingTTL     time.Duration `envconfig:"PENDING_TTL" default:"15m"`
	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`
	ReminderLead   time.Duration `envconfig:"REMINDER_LEAD" default:"60m"`
	MaxRangeDays   int           `envconfig:"MAX_RANGE_DAYS" default:"62"`
	RequiredTiers  []string      `envconfig:"REQUIRED_TIERS"`

	CheckoutSuccessURL string `envconfig:"CHECKOUT_SUCCESS_URL" default:"http://localhost:3000/bookings/paid?session_id={CHECKOUT_SESSION_ID}"`
	CheckoutCancelURL  string `envconfig:"CHECKOUT_CANCEL_URL" default:"http://localhost:3000/bookings"`
	MeetingBaseURL     string `envconfig:"MEETING_BASE_URL" default:"https://meet.gurubook.local"`

	NotifyWebhookURL    string  `envconfig:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookToken  string  `envconfig:"NOTIFY_WEBHOOK_TOKEN"`
	NotifyRatePerSecond float64 `envconfig:"NOTIFY_RATE_PER_SECOND" default:"10"`

	CORSOrigins        []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	BodyLimitBytes     int64         `envconfig:"BODY_LIMIT_BYTES" default:"1048576"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	payments.StripeConfig
	notify.SMTPConfig
	otelx.Config
}
