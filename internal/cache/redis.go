package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/entitycache/internal/entity"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig es la configuración mínima de conexión.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix para todas las keys (permite compartir instancia con otros usos).
	Prefix string
}

// RedisBackend guarda las entradas como blobs JSON en redis. Las keys son
// "<prefix>:<tenant>/<tipo>/<id>"; la invalidación bulk barre con SCAN por
// prefijo de tenant, que es O(keys del tenant) sin bloquear el server.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedis crea el backend y verifica la conexión.
func NewRedis(cfg RedisConfig) (*RedisBackend, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis ping: %v", ErrBackendUnavailable, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ec"
	}
	return &RedisBackend{client: rdb, prefix: prefix}, nil
}

func (b *RedisBackend) key(k Key) string {
	return b.prefix + ":" + k.String()
}

func (b *RedisBackend) Get(ctx context.Context, key Key) (*Entry, error) {
	raw, err := b.client.Get(ctx, b.key(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get: %v", ErrBackendUnavailable, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// Blob roto: tratar como miss, la entrada se repondrá en el próximo put.
		return nil, nil
	}
	return &e, nil
}

func (b *RedisBackend) Put(ctx context.Context, key Key, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: marshal entry: %w", err)
	}
	if err := b.client.Set(ctx, b.key(key), raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key Key) error {
	if err := b.client.Del(ctx, b.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: redis del: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (b *RedisBackend) InvalidateTenant(ctx context.Context, tenant uuid.UUID) (uint64, error) {
	return b.deleteMatch(ctx, b.prefix+":"+TenantPrefix(tenant)+"*")
}

func (b *RedisBackend) InvalidateEntityType(ctx context.Context, tenant uuid.UUID, et entity.Type) (uint64, error) {
	return b.deleteMatch(ctx, b.prefix+":"+TenantTypePrefix(tenant, et)+"*")
}

func (b *RedisBackend) deleteMatch(ctx context.Context, pattern string) (uint64, error) {
	var (
		cursor  uint64
		removed uint64
	)
	for {
		keys, next, err := b.client.Scan(ctx, cursor, pattern, 512).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: redis scan: %v", ErrBackendUnavailable, err)
		}
		if len(keys) > 0 {
			n, err := b.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("%w: redis del: %v", ErrBackendUnavailable, err)
			}
			removed += uint64(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (b *RedisBackend) Stats(ctx context.Context) (Stats, error) {
	keys, err := b.client.DBSize(ctx).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("%w: redis dbsize: %v", ErrBackendUnavailable, err)
	}

	stats := Stats{Driver: "redis", EntryCount: uint64(keys)}

	// keyspace_hits/misses y used_memory desde INFO, como expone redis.
	if info, err := b.client.Info(ctx, "stats").Result(); err == nil {
		for _, line := range strings.Split(info, "\r\n") {
			if v, ok := strings.CutPrefix(line, "keyspace_hits:"); ok {
				stats.Hits, _ = strconv.ParseUint(v, 10, 64)
			}
			if v, ok := strings.CutPrefix(line, "keyspace_misses:"); ok {
				stats.Misses, _ = strconv.ParseUint(v, 10, 64)
			}
			if v, ok := strings.CutPrefix(line, "evicted_keys:"); ok {
				stats.Evictions, _ = strconv.ParseUint(v, 10, 64)
			}
		}
	}
	if info, err := b.client.Info(ctx, "memory").Result(); err == nil {
		for _, line := range strings.Split(info, "\r\n") {
			if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
				stats.MemoryBytes, _ = strconv.ParseUint(v, 10, 64)
			}
		}
	}
	return stats, nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
