package main

import (
	"net/http"
	"time"

	"github.com/md-rashed-zaman/gurubook/libs/config"
	"github.com/md-rashed-zaman/gurubook/libs/runtime"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/sweeper"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Config struct {
	ServiceName   string        `envconfig:"SERVICE_NAME" default:"consultation-sweeper"`
	TargetURL     string        `envconfig:"SWEEP_TARGET_URL" default:"http://localhost:8090"`
	JWTSecret     string        `envconfig:"JWT_SECRET" required:"true"`
	Timeout       time.Duration `envconfig:"SWEEP_TIMEOUT" default:"30s"`
	RemindersCron string        `envconfig:"SWEEP_REMINDERS_CRON" default:"@every 1m"`
	ExpireCron    string        `envconfig:"SWEEP_EXPIRE_CRON" default:"@every 1m"`
	CompleteCron  string        `envconfig:"SWEEP_COMPLETE_CRON" default:"*/5 * * * *"`
}

func main() {
	var cfg Config
	if err := config.Load("", &cfg); err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName)
	defer func() { _ = logger.Sync() }()

	ctx, stop := runtime.SignalContext()
	defer stop()

	trigger := sweeper.NewTrigger(sweeper.Config{
		BaseURL: cfg.TargetURL,
		Secret:  cfg.JWTSecret,
		Subject: cfg.ServiceName,
		Timeout: cfg.Timeout,
	}, &http.Client{}, logger)

	c := cron.New(cron.WithLocation(time.UTC))
	err := trigger.Schedule(ctx, c, []sweeper.Job{
		{Name: "reminders", Spec: cfg.RemindersCron},
		{Name: "expire", Spec: cfg.ExpireCron},
		{Name: "complete", Spec: cfg.CompleteCron},
	})
	if err != nil {
		logger.Fatal("invalid sweep schedule", zap.Error(err))
	}

	c.Start()
	logger.Info("sweeper started", zap.String("target", cfg.TargetURL))
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("sweeper stopped")
}
