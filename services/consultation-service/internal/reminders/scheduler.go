// Package reminders schedules and sends the pre-session reminder of confirmed
// bookings.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/metrics"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/notify"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultLead      = 60 * time.Minute
	DefaultBatchSize = 100
)

type Notifier interface {
	Notify(ctx context.Context, kind string, msg notify.Message) bool
}

// Writer is the transactional surface Schedule writes through.
type Writer interface {
	InsertReminder(ctx context.Context, r model.Reminder) error
}

type Scheduler struct {
	store     storage.Store
	notifier  Notifier
	lead      time.Duration
	batchSize int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

type Options struct {
	Lead      time.Duration
	BatchSize int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

func NewScheduler(store storage.Store, n Notifier, opts Options) *Scheduler {
	if opts.Lead <= 0 {
		opts.Lead = DefaultLead
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{
		store:     store,
		notifier:  n,
		lead:      opts.Lead,
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

func (s *Scheduler) Lead() time.Duration { return s.lead }

// Schedule records the unsent reminder of b inside the caller's transaction.
func (s *Scheduler) Schedule(ctx context.Context, w Writer, b model.Booking) error {
	err := w.InsertReminder(ctx, model.Reminder{
		BookingID:   b.ID,
		Kind:        model.ReminderOneHourBefore,
		ScheduledAt: b.Start.Add(-s.lead),
	})
	if err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	return nil
}

// Sweep claims every reminder due at now and dispatches it. Claiming marks
// the reminder sent before delivery, so a reminder goes out at most once.
// It returns the number of reminders claimed.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (int, error) {
	started := time.Now()
	total := 0
	defer func() { s.metrics.ObserveSweep("reminders", started, total) }()

	for {
		var batch []model.DueReminder
		err := s.store.InTx(ctx, func(tx storage.Tx) error {
			var err error
			batch, err = tx.ClaimDueReminders(ctx, now, s.batchSize)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("claim reminders: %w", err)
		}
		total += len(batch)

		for _, due := range batch {
			s.dispatch(ctx, due)
		}
		if len(batch) < s.batchSize {
			return total, nil
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, due model.DueReminder) {
	failed := 0
	for _, msg := range notify.ReminderMessages(due.Booking, due.GuruEmail, s.lead) {
		if !s.notifier.Notify(ctx, notify.KindReminder, msg) {
			failed++
		}
	}
	if failed > 0 {
		s.logger.Warn("reminder delivery incomplete",
			zap.String("booking_id", due.BookingID),
			zap.Int("failed", failed),
		)
	}
}
