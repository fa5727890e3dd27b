package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/nikolayk812/shipstock/internal/port"
	"github.com/samber/lo"
)

type orderRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]domain.Order
}

func NewOrder() port.OrderRepository {
	return &orderRepository{
		orders: make(map[uuid.UUID]domain.Order),
	}
}

func (r *orderRepository) GetOrder(_ context.Context, orderID uuid.UUID) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("order[%s]: %w", orderID, port.ErrNotFound)
	}

	return cloneOrder(order), nil
}

func (r *orderRepository) SearchOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter.Validate: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if matches(filter, order) {
			result = append(result, cloneOrder(order))
		}
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return result, nil
}

func (r *orderRepository) InsertOrder(_ context.Context, order domain.Order) error {
	if err := order.Validate(); err != nil {
		return fmt.Errorf("order.Validate: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return fmt.Errorf("order[%s]: %w", order.ID, port.ErrConflict)
	}
	for _, other := range r.orders {
		if other.OrderNumber == order.OrderNumber {
			return fmt.Errorf("order number[%s]: %w", order.OrderNumber, port.ErrConflict)
		}
	}

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	r.orders[order.ID] = cloneOrder(order)

	return nil
}

func (r *orderRepository) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return fmt.Errorf("order[%s]: %w", orderID, port.ErrNotFound)
	}

	if order.Status != from {
		return fmt.Errorf("order[%s] is %s, not %s: %w", orderID, order.Status, from, port.ErrConflict)
	}

	order.Status = to
	order.UpdatedAt = time.Now().UTC()
	r.orders[orderID] = order

	return nil
}

func matches(f domain.OrderFilter, o domain.Order) bool {
	if len(f.IDs) > 0 && !lo.Contains(f.IDs, o.ID) {
		return false
	}
	if len(f.OrderNumbers) > 0 && !lo.Contains(f.OrderNumbers, o.OrderNumber) {
		return false
	}
	if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, o.Status) {
		return false
	}
	if f.CreatedAt != nil && !f.CreatedAt.Contains(o.CreatedAt) {
		return false
	}
	return true
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	return o
}
