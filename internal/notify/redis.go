package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RedisDispatcher publishes notifications to a Redis pub/sub topic so
// out-of-process consumers can observe reminders. Outbound publishes are
// rate limited; a blocked limiter respects ctx cancellation.
type RedisDispatcher struct {
	client  *redis.Client
	topic   string
	limiter *rate.Limiter
}

func NewRedisDispatcher(client *redis.Client, topic string, perSecond float64) *RedisDispatcher {
	if perSecond <= 0 {
		perSecond = 50
	}
	return &RedisDispatcher{
		client:  client,
		topic:   topic,
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)),
	}
}

func (d *RedisDispatcher) Send(ctx context.Context, message string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(Notification{Message: message, Time: time.Now()})
	if err != nil {
		return err
	}
	if err := d.client.Publish(ctx, d.topic, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", d.topic, err)
	}
	return nil
}
