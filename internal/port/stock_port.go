package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
)

type StockRepository interface {
	UpsertProduct(ctx context.Context, product domain.Product) error
	GetProduct(ctx context.Context, productID uuid.UUID) (domain.Product, error)

	// WithinTx runs fn in one transaction, any error from fn rolls every change back.
	WithinTx(ctx context.Context, fn func(tx StockTx) error) error
}

type StockTx interface {
	// LockStock locks the product rows and returns their stock, ErrNotFound if any is missing.
	LockStock(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int, error)
	AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error

	// CreateReservation returns false when the order already has a reservation.
	CreateReservation(ctx context.Context, orderID uuid.UUID, items []domain.StockItem) (bool, error)
	// LockReservation returns ErrNotFound when the order was never reserved.
	LockReservation(ctx context.Context, orderID uuid.UUID) (domain.Reservation, error)
	MarkRestored(ctx context.Context, orderID uuid.UUID) error
	// DeleteReservation drops the reservation with its items, ErrNotFound when there is none.
	DeleteReservation(ctx context.Context, orderID uuid.UUID) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.StockEvent) error
}
