// Package memory holds in-process implementations of the repository ports.
// Every store serializes access with a mutex.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/nikolayk812/shipstock/internal/port"
	"github.com/samber/lo"
)

type shippingRepository struct {
	txMu    sync.Mutex // serializes WithinTx
	mu      sync.RWMutex
	zones   map[uuid.UUID]domain.ShippingZone
	methods map[uuid.UUID]domain.ShippingMethod
	seq     map[uuid.UUID]int // insertion order of methods
	nextSeq int
}

func NewShipping() port.ShippingRepository {
	return &shippingRepository{
		zones:   make(map[uuid.UUID]domain.ShippingZone),
		methods: make(map[uuid.UUID]domain.ShippingMethod),
		seq:     make(map[uuid.UUID]int),
	}
}

func (r *shippingRepository) FindZoneByCountry(_ context.Context, country string) (domain.ShippingZone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	country = domain.NormalizeCountry(country)
	for _, zone := range r.zones {
		if zone.Active && zone.Contains(country) {
			return cloneZone(zone), nil
		}
	}

	return domain.ShippingZone{}, fmt.Errorf("zone for country[%s]: %w", country, port.ErrNotFound)
}

func (r *shippingRepository) GetZone(_ context.Context, zoneID uuid.UUID) (domain.ShippingZone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zone, ok := r.zones[zoneID]
	if !ok {
		return domain.ShippingZone{}, fmt.Errorf("zone[%s]: %w", zoneID, port.ErrNotFound)
	}

	return cloneZone(zone), nil
}

func (r *shippingRepository) ListMethods(_ context.Context, zoneID uuid.UUID) ([]domain.ShippingMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := lo.Filter(lo.Values(r.methods), func(m domain.ShippingMethod, _ int) bool {
		return m.ZoneID == zoneID
	})

	slices.SortFunc(methods, func(a, b domain.ShippingMethod) int {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder - b.SortOrder
		}
		return r.seq[a.ID] - r.seq[b.ID]
	})

	return lo.Map(methods, func(m domain.ShippingMethod, _ int) domain.ShippingMethod {
		return cloneMethod(m)
	}), nil
}

func (r *shippingRepository) GetMethod(_ context.Context, methodID uuid.UUID) (domain.ShippingMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	method, ok := r.methods[methodID]
	if !ok {
		return domain.ShippingMethod{}, fmt.Errorf("method[%s]: %w", methodID, port.ErrNotFound)
	}

	return cloneMethod(method), nil
}

func (r *shippingRepository) SaveZone(_ context.Context, zone domain.ShippingZone) error {
	zone = zone.Normalized()
	if err := zone.Validate(); err != nil {
		return fmt.Errorf("zone.Validate: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if zone.Active {
		for _, other := range r.zones {
			if other.ID == zone.ID || !other.Active {
				continue
			}
			if shared := lo.Intersect(other.Countries, zone.Countries); len(shared) > 0 {
				return fmt.Errorf("countries %v already served by zone[%s]: %w", shared, other.Name, port.ErrConflict)
			}
		}
	}

	now := time.Now().UTC()
	if existing, ok := r.zones[zone.ID]; ok {
		zone.CreatedAt = existing.CreatedAt
	} else {
		zone.CreatedAt = now
	}
	zone.UpdatedAt = now

	r.zones[zone.ID] = cloneZone(zone)

	return nil
}

func (r *shippingRepository) SaveMethod(_ context.Context, method domain.ShippingMethod) error {
	if err := method.Validate(); err != nil {
		return fmt.Errorf("method.Validate: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.zones[method.ZoneID]; !ok {
		return fmt.Errorf("zone[%s]: %w", method.ZoneID, port.ErrNotFound)
	}

	now := time.Now().UTC()
	if existing, ok := r.methods[method.ID]; ok {
		method.CreatedAt = existing.CreatedAt
	} else {
		method.CreatedAt = now
		r.seq[method.ID] = r.nextSeq
		r.nextSeq++
	}
	method.UpdatedAt = now

	r.methods[method.ID] = cloneMethod(method)

	return nil
}

// WithinTx restores a snapshot of the store when fn fails.
func (r *shippingRepository) WithinTx(ctx context.Context, fn func(repo port.ShippingRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	zones, methods, seq, nextSeq := maps.Clone(r.zones), maps.Clone(r.methods), maps.Clone(r.seq), r.nextSeq
	r.mu.RUnlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.zones, r.methods, r.seq, r.nextSeq = zones, methods, seq, nextSeq
		r.mu.Unlock()

		return err
	}

	return nil
}

func cloneZone(z domain.ShippingZone) domain.ShippingZone {
	z.Countries = slices.Clone(z.Countries)
	return z
}

func cloneMethod(m domain.ShippingMethod) domain.ShippingMethod {
	m.Brackets = slices.Clone(m.Brackets)
	return m
}
