// Package holds keeps short-lived provisional claims on slots while a paid
// booking waits for checkout.
package holds

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/redis/go-redis/v9"
)

// SlotStep is the granularity of a hold key.
const SlotStep = model.SlotMinutes * time.Minute

// Holder acquires and inspects provisional slot holds.
type Holder interface {
	// Acquire claims every slot of iv for owner. It returns model.ErrSlotTaken
	// when any slot is already held by someone else.
	Acquire(ctx context.Context, guruID string, iv interval.Interval, owner string, ttl time.Duration) error
	Release(ctx context.Context, guruID string, iv interval.Interval, owner string) error
	// Held returns the subset of slots currently held.
	Held(ctx context.Context, guruID string, slots []interval.Interval) ([]interval.Interval, error)
}

// Noop never holds anything; without Redis, pending bookings do not block
// the slot and the confirm-time overlap check decides.
type Noop struct{}

func (Noop) Acquire(context.Context, string, interval.Interval, string, time.Duration) error {
	return nil
}

func (Noop) Release(context.Context, string, interval.Interval, string) error { return nil }

func (Noop) Held(context.Context, string, []interval.Interval) ([]interval.Interval, error) {
	return nil, nil
}

type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "hold"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

var releaseScript = redis.NewScript(`
local n = 0
for i, key in ipairs(KEYS) do
  if redis.call("GET", key) == ARGV[1] then
    n = n + redis.call("DEL", key)
  end
end
return n
`)

func (h *Redis) key(guruID string, start time.Time) string {
	return h.prefix + ":" + guruID + ":" + strconv.FormatInt(start.Unix(), 10)
}

func (h *Redis) keys(guruID string, iv interval.Interval) []string {
	slots := interval.Slice(iv, SlotStep)
	keys := make([]string, 0, len(slots))
	for _, s := range slots {
		keys = append(keys, h.key(guruID, s.Start))
	}
	return keys
}

func (h *Redis) Acquire(ctx context.Context, guruID string, iv interval.Interval, owner string, ttl time.Duration) error {
	keys := h.keys(guruID, iv)
	if len(keys) == 0 {
		return fmt.Errorf("hold %s: %w", iv, model.ErrInvalidInput)
	}
	var acquired []string
	for _, k := range keys {
		ok, err := h.rdb.SetNX(ctx, k, owner, ttl).Result()
		if err == nil && !ok {
			// Re-acquiring our own hold refreshes it.
			cur, getErr := h.rdb.Get(ctx, k).Result()
			if getErr == nil && cur == owner {
				ok = true
				err = h.rdb.PExpire(ctx, k, ttl).Err()
			}
		}
		if err != nil || !ok {
			_ = h.releaseKeys(context.WithoutCancel(ctx), acquired, owner)
			if err != nil {
				return fmt.Errorf("acquire hold: %w", err)
			}
			return fmt.Errorf("slot %s held: %w", k, model.ErrSlotTaken)
		}
		acquired = append(acquired, k)
	}
	return nil
}

func (h *Redis) Release(ctx context.Context, guruID string, iv interval.Interval, owner string) error {
	return h.releaseKeys(ctx, h.keys(guruID, iv), owner)
}

func (h *Redis) releaseKeys(ctx context.Context, keys []string, owner string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := releaseScript.Run(ctx, h.rdb, keys, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release hold: %w", err)
	}
	return nil
}

func (h *Redis) Held(ctx context.Context, guruID string, slots []interval.Interval) ([]interval.Interval, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	keys := make([]string, len(slots))
	for i, s := range slots {
		keys[i] = h.key(guruID, s.Start)
	}
	vals, err := h.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read holds: %w", err)
	}
	var held []interval.Interval
	for i, v := range vals {
		if v != nil {
			held = append(held, slots[i])
		}
	}
	return held, nil
}

// ReadyCheck pings Redis.
func ReadyCheck(rdb redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
