package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

const keyPrefix = "surgecast:signal:"

// Redis is a Store backed by Redis. Each signal is a JSON value under
// "surgecast:signal:<date>" and expires after ttl (zero keeps it forever).
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("signals: connect to redis %s: %w", opts.Addr, err)
	}
	return &Redis{client: client, ttl: opts.TTL}, nil
}

// Get loads the signal for date.
func (r *Redis) Get(ctx context.Context, date string) (*types.EnvironmentalSignal, error) {
	data, err := r.client.Get(ctx, signalKey(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fault.MissingSignal(date)
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, err, "load signal %s", date)
	}
	return decodeSignal(data)
}

// Put validates and stores s.
func (r *Redis) Put(ctx context.Context, s *types.EnvironmentalSignal) error {
	if err := Validate(s); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("signals: marshal: %w", err)
	}
	if err := r.client.Set(ctx, signalKey(s.Date), data, r.ttl).Err(); err != nil {
		return fault.Wrap(fault.KindStorage, err, "store signal %s", s.Date)
	}
	return nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func signalKey(date string) string {
	return keyPrefix + date
}

func decodeSignal(data []byte) (*types.EnvironmentalSignal, error) {
	var s types.EnvironmentalSignal
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fault.Wrap(fault.KindStorage, err, "decode signal")
	}
	return &s, nil
}
