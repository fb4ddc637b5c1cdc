package reminders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/notify"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/storage"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/storage/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	ok   bool
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, msg notify.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.ok
}

var start = time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *memstore.Store, sched *Scheduler, b model.Booking) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		return sched.Schedule(ctx, tx, b)
	}))
}

func newStore() *memstore.Store {
	s := memstore.New()
	s.PutGuru(model.Guru{ID: "g1", Email: "guru@example.com", Timezone: "UTC"})
	return s
}

func TestSweepAtExactLeadDispatchesOnce(t *testing.T) {
	s := newStore()
	n := &recordingNotifier{ok: true}
	sched := NewScheduler(s, n, Options{})
	seed(t, s, sched, model.Booking{
		ID: "b1", GuruID: "g1", RequesterEmail: "client@example.com",
		Start: start, End: start.Add(time.Hour), Status: model.StatusConfirmed,
	})
	ctx := context.Background()

	count, err := sched.Sweep(ctx, start.Add(-61*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = sched.Sweep(ctx, start.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, n.sent, 2)

	count, err = sched.Sweep(ctx, start.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, n.sent, 2)

	reminders := s.Reminders()
	require.Len(t, reminders, 1)
	assert.True(t, reminders[0].Sent)
}

func TestFailedDispatchIsNotRetried(t *testing.T) {
	s := newStore()
	n := &recordingNotifier{ok: false}
	sched := NewScheduler(s, n, Options{})
	seed(t, s, sched, model.Booking{
		ID: "b1", GuruID: "g1", RequesterEmail: "client@example.com",
		Start: start, End: start.Add(time.Hour), Status: model.StatusConfirmed,
	})
	ctx := context.Background()

	count, err := sched.Sweep(ctx, start)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = sched.Sweep(ctx, start)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSweepSkipsBookingsNoLongerConfirmed(t *testing.T) {
	s := newStore()
	n := &recordingNotifier{ok: true}
	sched := NewScheduler(s, n, Options{})
	seed(t, s, sched, model.Booking{
		ID: "b1", GuruID: "g1", Start: start, End: start.Add(time.Hour), Status: model.StatusCancelled,
	})

	count, err := sched.Sweep(context.Background(), start)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, n.sent)
}

func TestSweepDrainsInBatches(t *testing.T) {
	s := newStore()
	n := &recordingNotifier{ok: true}
	sched := NewScheduler(s, n, Options{BatchSize: 2})
	for i := 0; i < 5; i++ {
		at := start.Add(time.Duration(i) * time.Hour)
		seed(t, s, sched, model.Booking{
			ID: "b" + at.Format("15"), GuruID: "g1", RequesterEmail: "client@example.com",
			Start: at, End: at.Add(30 * time.Minute), Status: model.StatusConfirmed,
		})
	}

	count, err := sched.Sweep(context.Background(), start.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Len(t, n.sent, 10)
}
