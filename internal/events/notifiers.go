package events

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/resilience"
)

// LogNotifier writes every event to the structured log at debug level.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	n.Logger.Debug().
		Str("event_id", ev.ID).
		Str("topic", ev.Topic).
		Str("session_id", ev.AggregateID).
		RawJSON("payload", ev.Payload).
		Msg("cart_event")
	return nil
}

// MetricsNotifier records cart mutations in Prometheus.
type MetricsNotifier struct {
	Metrics *obs.CartMetrics
}

// Notify implements Notifier.
func (n MetricsNotifier) Notify(_ context.Context, ev Event) error {
	if n.Metrics == nil {
		return nil
	}
	changed, ok := ev.Data.(CartChanged)
	if !ok {
		return nil
	}
	result := "applied"
	if changed.Noop {
		result = "noop"
	}
	n.Metrics.Mutations.WithLabelValues(changed.Op, result).Inc()
	if changed.Noop {
		return nil
	}
	if adjusted, err := decimal.NewFromString(changed.AdjustedTotalPrice); err == nil {
		n.Metrics.AdjustedTotal.Observe(adjusted.InexactFloat64())
	}
	return nil
}

// RedisStream appends applied cart events to a Redis stream for downstream consumers.
type RedisStream struct {
	Client  *redis.Client
	Stream  string
	MaxLen  int64
	Timeout time.Duration
}

// Notify implements Notifier.
func (s RedisStream) Notify(ctx context.Context, ev Event) error {
	if s.Client == nil || s.Stream == "" {
		return nil
	}
	changed, isCart := ev.Data.(CartChanged)
	if isCart && changed.Noop {
		return nil
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	values := map[string]any{
		"id":           ev.ID,
		"topic":        ev.Topic,
		"aggregate_id": ev.AggregateID,
		"payload":      string(ev.Payload),
		"occurred_at":  ev.OccurredAt.Format(time.RFC3339Nano),
	}
	if isCart {
		values["seq"] = strconv.FormatUint(changed.Seq, 10)
	}
	args := &redis.XAddArgs{Stream: s.Stream, Values: values}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	if err := s.Client.XAdd(ctx, args).Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.New("events: redis stream append timed out")
		}
		return err
	}
	return nil
}

// Guarded routes a notifier through a circuit breaker so a failing sink is skipped
// until it recovers.
type Guarded struct {
	Notifier Notifier
	Breaker  *resilience.Breaker
}

// Notify implements Notifier.
func (g Guarded) Notify(ctx context.Context, ev Event) error {
	if g.Notifier == nil {
		return nil
	}
	if g.Breaker == nil {
		return g.Notifier.Notify(ctx, ev)
	}
	return g.Breaker.Do(ctx, func(ctx context.Context) error {
		return g.Notifier.Notify(ctx, ev)
	})
}
