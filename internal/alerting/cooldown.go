package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"vault-monitor/internal/alertlog"
)

const defaultCooldownPrefix = "vaultwatch:alert"

// CooldownSink suppresses repeats of the same (network, type, subject) alert for a TTL.
// Dedup state lives in Redis so that restarts and replicas share it.
type CooldownSink struct {
	next   Sink
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger zerolog.Logger
}

// NewCooldownSink wraps next. A zero ttl disables suppression.
func NewCooldownSink(next Sink, rdb redis.UniversalClient, ttl time.Duration, prefix string, logger zerolog.Logger) *CooldownSink {
	if prefix == "" {
		prefix = defaultCooldownPrefix
	}
	return &CooldownSink{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		prefix: prefix,
		logger: logger.With().Str("component", "alert_cooldown").Logger(),
	}
}

// NewRedisClient parses url and verifies connectivity.
func NewRedisClient(ctx context.Context, url, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Key returns the dedup key for entry, scoped by network when the payload names one.
func (c *CooldownSink) Key(entry alertlog.Entry) string {
	network := "-"
	if v, ok := entry.Data["network"]; ok && v != nil {
		if s := fmt.Sprint(v); s != "" {
			network = s
		}
	}
	return fmt.Sprintf("%s:%s:%s:%s", c.prefix, network, entry.Type, subject(entry))
}

// Publish forwards entry unless an identical alert was forwarded within the TTL.
// Redis failures let the alert through.
func (c *CooldownSink) Publish(ctx context.Context, entry alertlog.Entry) error {
	if c.ttl <= 0 || c.rdb == nil {
		return c.next.Publish(ctx, entry)
	}

	key := c.Key(entry)
	fresh, err := c.rdb.SetNX(ctx, key, entry.ID, c.ttl).Result()
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cooldown check failed, delivering anyway")
		return c.next.Publish(ctx, entry)
	}
	if !fresh {
		c.logger.Debug().Str("key", key).Msg("alert suppressed by cooldown")
		return nil
	}

	if err := c.next.Publish(ctx, entry); err != nil {
		// Let the next pass retry delivery.
		c.rdb.Del(ctx, key) //nolint:errcheck
		return err
	}
	return nil
}

var _ Sink = (*CooldownSink)(nil)
