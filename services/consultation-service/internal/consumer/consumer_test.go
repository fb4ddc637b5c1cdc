package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/md-rashed-zaman/gurubook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memInbox struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memInbox) Record(_ context.Context, eventID, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

func (m *memInbox) Forget(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
	return nil
}

// queueReader serves queued messages and then blocks until ctx ends.
type queueReader struct {
	msgs   chan kafka.Message
	closed bool
}

func (q *queueReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-q.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (q *queueReader) Close() error {
	q.closed = true
	return nil
}

func message(id string) kafka.Message {
	return kafkax.NewMessage(context.Background(), id, "billing.subscription.activated.v1", "u1", []byte(`{}`))
}

func TestProcessSkipsDuplicates(t *testing.T) {
	in := &memInbox{seen: map[string]bool{}}
	calls := 0
	c := NewWithReader(nil, in, &queueReader{}, func(context.Context, kafka.Message) error {
		calls++
		return nil
	})

	c.Process(context.Background(), message("e1"))
	c.Process(context.Background(), message("e1"))
	c.Process(context.Background(), message("e2"))

	assert.Equal(t, 2, calls)
}

func TestProcessRetriesAfterHandlerFailure(t *testing.T) {
	in := &memInbox{seen: map[string]bool{}}
	calls := 0
	c := NewWithReader(nil, in, &queueReader{}, func(context.Context, kafka.Message) error {
		calls++
		if calls == 1 {
			return errors.New("db down")
		}
		return nil
	})

	c.Process(context.Background(), message("e1"))
	c.Process(context.Background(), message("e1"))
	c.Process(context.Background(), message("e1"))

	assert.Equal(t, 2, calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	in := &memInbox{seen: map[string]bool{}}
	reader := &queueReader{msgs: make(chan kafka.Message, 2)}
	reader.msgs <- message("e1")
	reader.msgs <- message("e2")

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	c := NewWithReader(nil, in, reader, func(_ context.Context, msg kafka.Message) error {
		got = append(got, kafkax.ExtractEventMeta(msg).EventID)
		if len(got) == 2 {
			cancel()
		}
		return nil
	})

	c.Run(ctx)

	require.Equal(t, []string{"e1", "e2"}, got)
	assert.True(t, reader.closed)
}
