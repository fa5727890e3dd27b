// Package cache puts a Redis read-through layer in front of the shipping repository.
// Redis failures degrade to direct repository reads, they never fail a lookup.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/nikolayk812/shipstock/internal/port"
	"github.com/redis/go-redis/v9"
)

type shippingCache struct {
	next   port.ShippingRepository
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewShipping(next port.ShippingRepository, rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) (port.ShippingRepository, error) {
	if next == nil {
		return nil, errors.New("next is nil")
	}
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	if ttl <= 0 {
		ttl = TTLShipping
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &shippingCache{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (c *shippingCache) FindZoneByCountry(ctx context.Context, country string) (domain.ShippingZone, error) {
	key := fmt.Sprintf(KeyZoneByCountry, domain.NormalizeCountry(country))

	var dto zoneDTO
	if c.get(ctx, key, &dto) {
		return dto.toDomain(), nil
	}

	zone, err := c.next.FindZoneByCountry(ctx, country)
	if err != nil {
		return zone, err
	}

	c.set(ctx, key, toZoneDTO(zone))

	return zone, nil
}

func (c *shippingCache) GetZone(ctx context.Context, zoneID uuid.UUID) (domain.ShippingZone, error) {
	key := fmt.Sprintf(KeyZone, zoneID)

	var dto zoneDTO
	if c.get(ctx, key, &dto) {
		return dto.toDomain(), nil
	}

	zone, err := c.next.GetZone(ctx, zoneID)
	if err != nil {
		return zone, err
	}

	c.set(ctx, key, toZoneDTO(zone))

	return zone, nil
}

func (c *shippingCache) ListMethods(ctx context.Context, zoneID uuid.UUID) ([]domain.ShippingMethod, error) {
	key := fmt.Sprintf(KeyZoneMethods, zoneID)

	var dtos []methodDTO
	if c.get(ctx, key, &dtos) {
		methods, err := methodsFromDTOs(dtos)
		if err == nil {
			return methods, nil
		}
		c.logger.Warn("cached methods are corrupt", "method", "shippingCache.ListMethods", "key", key, "error", err)
	}

	methods, err := c.next.ListMethods(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	dtos = make([]methodDTO, 0, len(methods))
	for _, m := range methods {
		dtos = append(dtos, toMethodDTO(m))
	}
	c.set(ctx, key, dtos)

	return methods, nil
}

func (c *shippingCache) GetMethod(ctx context.Context, methodID uuid.UUID) (domain.ShippingMethod, error) {
	key := fmt.Sprintf(KeyMethod, methodID)

	var dto methodDTO
	if c.get(ctx, key, &dto) {
		method, err := dto.toDomain()
		if err == nil {
			return method, nil
		}
		c.logger.Warn("cached method is corrupt", "method", "shippingCache.GetMethod", "key", key, "error", err)
	}

	method, err := c.next.GetMethod(ctx, methodID)
	if err != nil {
		return method, err
	}

	c.set(ctx, key, toMethodDTO(method))

	return method, nil
}

func (c *shippingCache) SaveZone(ctx context.Context, zone domain.ShippingZone) error {
	if err := c.next.SaveZone(ctx, zone); err != nil {
		return err
	}

	c.invalidate(ctx)

	return nil
}

func (c *shippingCache) SaveMethod(ctx context.Context, method domain.ShippingMethod) error {
	if err := c.next.SaveMethod(ctx, method); err != nil {
		return err
	}

	c.invalidate(ctx)

	return nil
}

// WithinTx hands fn the uncached repository bound to the transaction and drops the cache afterwards.
func (c *shippingCache) WithinTx(ctx context.Context, fn func(repo port.ShippingRepository) error) error {
	err := c.next.WithinTx(ctx, fn)

	c.invalidate(ctx)

	return err
}

// get reports a hit only when the key exists and decodes cleanly.
func (c *shippingCache) get(ctx context.Context, key string, out any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", "method", "shippingCache.get", "key", key, "error", err)
		}
		return false
	}

	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("cached value is corrupt", "method", "shippingCache.get", "key", key, "error", err)
		return false
	}

	return true
}

func (c *shippingCache) set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("json.Marshal", "method", "shippingCache.set", "key", key, "error", err)
		return
	}

	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", "method", "shippingCache.set", "key", key, "error", err)
	}
}

// invalidate drops every shipping key. Zone and method writes can change the
// answer of any lookup, so a narrower invalidation is not safe.
func (c *shippingCache) invalidate(ctx context.Context) {
	var cursor uint64

	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, keyShippingPattern, 100).Result()
		if err != nil {
			c.logger.Warn("redis scan failed", "method", "shippingCache.invalidate", "error", err)
			return
		}

		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn("redis del failed", "method", "shippingCache.invalidate", "error", err)
				return
			}
		}

		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func methodsFromDTOs(dtos []methodDTO) ([]domain.ShippingMethod, error) {
	methods := make([]domain.ShippingMethod, 0, len(dtos))
	for _, d := range dtos {
		m, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, nil
}
