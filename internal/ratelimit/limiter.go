// Copyright 2025 James Ross
// Package ratelimit provides a Redis-backed token bucket used to throttle
// ingress into the queue, independent of the per-tenant dequeue rate limit
// enforced by the orchestrator's Lua scripts.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config defines a single token bucket's shape.
type Config struct {
	RatePerSecond int64
	BurstSize     int64
	KeyTTL        time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		RatePerSecond: 100,
		BurstSize:     200,
		KeyTTL:        1 * time.Hour,
	}
}

// Limiter is a token bucket rate limiter backed by a Redis hash per scope.
type Limiter struct {
	redis  *redis.Client
	logger *zap.Logger
	config Config

	consumeScript *redis.Script
}

// NewLimiter creates a Limiter. A zero Config falls back to DefaultConfig.
func NewLimiter(rdb *redis.Client, logger *zap.Logger, cfg Config) *Limiter {
	if cfg.RatePerSecond <= 0 {
		cfg = DefaultConfig()
	}
	return &Limiter{
		redis:  rdb,
		logger: logger,
		config: cfg,
		consumeScript: redis.NewScript(`
			local key = KEYS[1]
			local requested = tonumber(ARGV[1])
			local capacity = tonumber(ARGV[2])
			local refill_rate = tonumber(ARGV[3])
			local now = tonumber(ARGV[4])
			local ttl = tonumber(ARGV[5])

			local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
			local tokens = tonumber(bucket[1]) or capacity
			local last_refill = tonumber(bucket[2]) or now

			local elapsed = now - last_refill
			local refilled = math.floor(elapsed * refill_rate / 1000)
			tokens = math.min(capacity, tokens + refilled)

			local allowed = tokens >= requested
			local remaining = tokens
			if allowed then
				remaining = tokens - requested
				redis.call('HSET', key, 'tokens', remaining, 'last_refill', now)
				redis.call('EXPIRE', key, ttl)
			end

			local retry_after_ms = 0
			if not allowed then
				local deficit = requested - tokens
				retry_after_ms = math.ceil(deficit * 1000 / refill_rate)
			end

			return {allowed and 1 or 0, remaining, retry_after_ms}
		`),
	}
}

// ConsumeResult reports the outcome of a token request.
type ConsumeResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Consume attempts to take tokens tokens from scope's bucket.
func (l *Limiter) Consume(ctx context.Context, scope string, tokens int64) (ConsumeResult, error) {
	key := l.keyForScope(scope)
	now := time.Now().UnixMilli()

	res, err := l.consumeScript.Run(ctx, l.redis, []string{key},
		tokens,
		l.config.BurstSize,
		l.config.RatePerSecond,
		now,
		int64(l.config.KeyTTL.Seconds()),
	).Result()
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("ratelimit consume: %w", err)
	}

	vals := res.([]interface{})
	out := ConsumeResult{
		Allowed:    vals[0].(int64) == 1,
		Remaining:  vals[1].(int64),
		RetryAfter: time.Duration(vals[2].(int64)) * time.Millisecond,
	}
	l.logger.Debug("ratelimit decision",
		zap.String("scope", scope),
		zap.Bool("allowed", out.Allowed),
		zap.Int64("remaining", out.Remaining))
	return out, nil
}

// Wait blocks until scope has tokens available, respecting ctx cancellation.
func (l *Limiter) Wait(ctx context.Context, scope string, tokens int64) error {
	for {
		res, err := l.Consume(ctx, scope, tokens)
		if err != nil {
			return err
		}
		if res.Allowed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(res.RetryAfter):
		}
	}
}

// Reset clears scope's bucket state.
func (l *Limiter) Reset(ctx context.Context, scope string) error {
	return l.redis.Del(ctx, l.keyForScope(scope)).Err()
}

func (l *Limiter) keyForScope(scope string) string {
	return "ratelimit:" + scope
}
