package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"txn-ingest/pkg/cache"

	"github.com/redis/rueidis"
)

// RedisCache is the shared cache layer backed by Redis through rueidis.
// Values are stored as raw bytes under KeyPrefix+key.
type RedisCache struct {
	client rueidis.Client
	name   string
	config RedisCacheConfig
}

type RedisCacheConfig struct {
	Name string
	// Addr is the Redis server address for single node/sentinel mode.
	// For cluster mode, use ClusterAddrs instead.
	Addr string
	// ClusterAddrs is a list of Redis cluster node addresses.
	// If set, cluster mode is enabled automatically.
	ClusterAddrs []string
	Username     string
	Password     string
	// DB is the Redis database number. Cluster mode only supports DB 0.
	DB           int
	KeyPrefix    string
	DefaultTTL   time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// SentinelAddrs enables sentinel mode when set.
	SentinelAddrs     []string
	SentinelMasterSet string
	// DisableCache turns off rueidis client-side caching, which needs
	// CLIENT TRACKING on the server.
	DisableCache bool
	// AlwaysRESP2 skips the RESP3 HELLO handshake.
	AlwaysRESP2 bool
}

func DefaultRedisCacheConfig() RedisCacheConfig {
	return RedisCacheConfig{
		Name:         "redis",
		Addr:         "localhost:6379",
		KeyPrefix:    "txn:",
		DefaultTTL:   5 * time.Minute,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func NewRedisCache(config RedisCacheConfig) (*RedisCache, error) {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	var initAddress []string
	switch {
	case len(config.ClusterAddrs) > 0:
		initAddress = config.ClusterAddrs
	case len(config.SentinelAddrs) > 0:
		initAddress = config.SentinelAddrs
	case config.Addr != "":
		initAddress = []string{config.Addr}
	default:
		return nil, fmt.Errorf("redis: no addresses configured (set Addr, ClusterAddrs, or SentinelAddrs)")
	}

	clientOpts := rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
		MaxFlushDelay:    100 * time.Microsecond,
		DisableCache:     config.DisableCache,
		AlwaysRESP2:      config.AlwaysRESP2,
	}

	if len(config.SentinelAddrs) > 0 {
		clientOpts.Sentinel = rueidis.SentinelOption{
			MasterSet: config.SentinelMasterSet,
		}
	}

	client, err := rueidis.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &RedisCache{
		client: client,
		name:   config.Name,
		config: config,
	}, nil
}

func (r *RedisCache) fullKey(key string) string {
	return r.config.KeyPrefix + key
}

// Get implements cache.Layer.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	resp := r.client.Do(ctx, r.client.B().Get().Key(r.fullKey(key)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, cache.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("redis get: failed to read response: %w", err)
	}

	return data, nil
}

// Set implements cache.Layer. A zero ttl uses DefaultTTL.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		return cache.ErrInvalidValue
	}
	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}

	cmd := r.client.B().Set().Key(r.fullKey(key)).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete implements cache.Layer.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	if err := r.client.Do(ctx, r.client.B().Del().Key(r.fullKey(key)).Build()).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}

	return nil
}

// Incr atomically increments the integer at key and returns the new value.
// The counter never expires.
func (r *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	resp := r.client.Do(ctx, r.client.B().Incr().Key(r.fullKey(key)).Build())
	n, err := resp.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

// Counter returns the integer stored at key, or 0 when it does not exist.
func (r *RedisCache) Counter(ctx context.Context, key string) (int64, error) {
	resp := r.client.Do(ctx, r.client.B().Get().Key(r.fullKey(key)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis counter: %w", err)
	}

	s, err := resp.ToString()
	if err != nil {
		return 0, fmt.Errorf("redis counter: failed to read response: %w", err)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis counter: %w", err)
	}
	return n, nil
}

// TTL returns the remaining lifetime of key, -1 when it has no expiry.
func (r *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	resp := r.client.Do(ctx, r.client.B().Ttl().Key(r.fullKey(key)).Build())
	seconds, err := resp.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}

	switch seconds {
	case -2:
		return 0, cache.ErrKeyNotFound
	case -1:
		return -1, nil
	}
	return time.Duration(seconds) * time.Second, nil
}

// Ping checks connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Name implements cache.Layer.
func (r *RedisCache) Name() string {
	return r.name
}

// Close implements cache.Layer.
func (r *RedisCache) Close() error {
	r.client.Close()
	return nil
}
