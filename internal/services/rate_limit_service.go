package services

import (
	"context"
	"fmt"
	"time"

	"github.com/festpass/registration-backend/internal/config"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const rateLimitKeyPrefix = "ratelimit:"

// WindowCounter increments a counter that lives for one window and reports
// the new value and the time left until it resets
type WindowCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisWindowCounter is a fixed-window counter on INCR + EXPIRE NX.
// Windows have whole second resolution.
type RedisWindowCounter struct {
	client *redis.Client
}

// NewRedisWindowCounter parses a redis:// URL and pings the server
func NewRedisWindowCounter(ctx context.Context, redisURL string) (*RedisWindowCounter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisWindowCounter{client: client}, nil
}

// Incr bumps the window counter, starting the window on the first hit
func (c *RedisWindowCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window < time.Second {
		window = time.Second
	}
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return incr.Val(), ttl.Val(), nil
}

// Close releases the redis connection pool
func (c *RedisWindowCounter) Close() error {
	return c.client.Close()
}

// RateLimitService throttles order creation per client IP.
// A nil counter disables limiting.
type RateLimitService struct {
	counter WindowCounter
	config  config.RateLimitConfig
	logger  *logrus.Logger
}

// NewRateLimitService creates a rate limiter over the given counter
func NewRateLimitService(counter WindowCounter, cfg config.RateLimitConfig, logger *logrus.Logger) *RateLimitService {
	return &RateLimitService{
		counter: counter,
		config:  cfg,
		logger:  logger,
	}
}

// Enabled reports whether a counter backs the limiter
func (s *RateLimitService) Enabled() bool {
	return s != nil && s.counter != nil && s.config.OrderRequests > 0
}

// CheckOrderLimit counts one create-order attempt from ip and rejects it once
// the window allowance is spent. Counter failures let the request through.
func (s *RateLimitService) CheckOrderLimit(ctx context.Context, ip string) error {
	if !s.Enabled() || ip == "" {
		return nil
	}

	count, ttl, err := s.counter.Incr(ctx, rateLimitKeyPrefix+"order:"+ip, s.config.OrderWindow)
	if err != nil {
		s.logger.WithError(err).WithField("ip", ip).Warn("Rate limit counter unavailable, allowing request")
		return nil
	}

	if count > int64(s.config.OrderRequests) {
		if ttl <= 0 {
			ttl = s.config.OrderWindow
		}
		s.logger.WithFields(logrus.Fields{
			"ip":          ip,
			"count":       count,
			"retry_after": ttl.Round(time.Second).String(),
		}).Warn("Order rate limit exceeded")

		return models.NewAppError(models.KindRateLimited,
			fmt.Sprintf("Too many payment attempts. Please try again in %s", ttl.Round(time.Second)), nil)
	}

	return nil
}
