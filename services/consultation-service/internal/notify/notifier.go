package notify

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Notifier throttles, logs and counts deliveries. Failures never propagate.
type Notifier struct {
	dispatcher Dispatcher
	limiter    *rate.Limiter
	timeout    time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

type NotifierOptions struct {
	// PerSecond caps dispatch rate; zero means unlimited.
	PerSecond float64
	Burst     int
	Timeout   time.Duration
}

func NewNotifier(d Dispatcher, opts NotifierOptions, logger *zap.Logger, m *metrics.Metrics) *Notifier {
	if d == nil {
		d = Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.PerSecond > 0 {
		limit = rate.Limit(opts.PerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Notifier{
		dispatcher: d,
		limiter:    rate.NewLimiter(limit, opts.Burst),
		timeout:    opts.Timeout,
		logger:     logger,
		metrics:    m,
	}
}

// Notify delivers msg and reports whether it went out.
func (n *Notifier) Notify(ctx context.Context, kind string, msg Message) bool {
	if msg.To == "" {
		n.metrics.IncNotification(kind, "skipped")
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.limiter.Wait(ctx); err != nil {
		n.logger.Warn("notification throttled", zap.String("kind", kind), zap.Error(err))
		n.metrics.IncNotification(kind, "throttled")
		return false
	}
	if err := n.dispatcher.Send(ctx, msg); err != nil {
		n.logger.Warn("notification failed",
			zap.String("kind", kind),
			zap.String("provider", n.dispatcher.ProviderID()),
			zap.Error(err),
		)
		n.metrics.IncNotification(kind, "failed")
		return false
	}
	n.logger.Debug("notification sent", zap.String("kind", kind), zap.String("provider", n.dispatcher.ProviderID()))
	n.metrics.IncNotification(kind, "sent")
	return true
}
