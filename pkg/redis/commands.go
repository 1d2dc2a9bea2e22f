package redis

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	keyNamespace      = "of"
	idempotencyPrefix = "idempotency"
	sequencePrefix    = "seq"
)

// Get returns the value at key, or redis.Nil when it is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", errNotInitialized
	}
	return c.store.Get(ctx, key).Result()
}

// SetNX writes value only when key is absent and reports whether it won.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return errNotInitialized
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Del(ctx, keys...).Err()
}

// IncrWithTTL bumps a window counter. The TTL is applied with EXPIRE NX on
// every call, so a counter whose first EXPIRE was lost still ages out.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c.store == nil {
		return 0, errNotInitialized
	}
	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl > 0 {
		if err := c.store.ExpireNX(ctx, key, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// NextSequence hands out the next value of a never-expiring counter. INCR is
// atomic server-side, so concurrent api replicas never share a value.
func (c *Client) NextSequence(ctx context.Context, scope string) (int64, error) {
	if strings.TrimSpace(scope) == "" {
		return 0, errors.New("sequence scope required")
	}
	if c.store == nil {
		return 0, errNotInitialized
	}
	return c.store.Incr(ctx, c.SequenceKey(scope)).Result()
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(idempotencyPrefix, scope, id)
}

func (c *Client) SequenceKey(scope string) string {
	return buildKey(sequencePrefix, scope)
}

func buildKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
