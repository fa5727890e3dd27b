package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
)

type OrderRepository interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error)

	SearchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)

	// InsertOrder returns ErrConflict on a duplicate id or order number.
	InsertOrder(ctx context.Context, order domain.Order) error

	// UpdateOrderStatus moves the order only if it is still in status from, ErrConflict otherwise.
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error
}
