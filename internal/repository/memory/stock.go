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
)

// stockRepository holds its mutex for the whole transaction, so transactions
// are serialized and staged writes become visible only on commit.
type stockRepository struct {
	mu           sync.Mutex
	products     map[uuid.UUID]domain.Product
	reservations map[uuid.UUID]domain.Reservation
}

func NewStock() port.StockRepository {
	return &stockRepository{
		products:     make(map[uuid.UUID]domain.Product),
		reservations: make(map[uuid.UUID]domain.Reservation),
	}
}

func (r *stockRepository) UpsertProduct(_ context.Context, product domain.Product) error {
	if err := product.Validate(); err != nil {
		return fmt.Errorf("product.Validate: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.products[product.ID]; ok {
		product.CreatedAt = existing.CreatedAt
	} else {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	r.products[product.ID] = product

	return nil
}

func (r *stockRepository) GetProduct(_ context.Context, productID uuid.UUID) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, fmt.Errorf("product[%s]: %w", productID, port.ErrNotFound)
	}

	return product, nil
}

func (r *stockRepository) WithinTx(ctx context.Context, fn func(tx port.StockTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &stockTx{
		repo:         r,
		deltas:       make(map[uuid.UUID]int),
		reservations: make(map[uuid.UUID]domain.Reservation),
		deleted:      make(map[uuid.UUID]bool),
	}

	if err := fn(tx); err != nil {
		return err
	}

	tx.commit()

	return nil
}

type stockTx struct {
	repo         *stockRepository
	deltas       map[uuid.UUID]int
	reservations map[uuid.UUID]domain.Reservation
	deleted      map[uuid.UUID]bool
}

func (tx *stockTx) LockStock(_ context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	result := make(map[uuid.UUID]int, len(productIDs))

	for _, id := range productIDs {
		product, ok := tx.repo.products[id]
		if !ok {
			return nil, fmt.Errorf("product[%s]: %w", id, port.ErrNotFound)
		}
		result[id] = product.Stock + tx.deltas[id]
	}

	return result, nil
}

func (tx *stockTx) AdjustStock(_ context.Context, productID uuid.UUID, delta int) error {
	product, ok := tx.repo.products[productID]
	if !ok {
		return fmt.Errorf("product[%s]: %w", productID, port.ErrNotFound)
	}

	if product.Stock+tx.deltas[productID]+delta < 0 {
		return fmt.Errorf("product[%s]: stock would become negative", productID)
	}

	tx.deltas[productID] += delta

	return nil
}

func (tx *stockTx) CreateReservation(_ context.Context, orderID uuid.UUID, items []domain.StockItem) (bool, error) {
	if _, ok := tx.repo.reservations[orderID]; ok && !tx.deleted[orderID] {
		return false, nil
	}
	if _, ok := tx.reservations[orderID]; ok {
		return false, nil
	}

	tx.reservations[orderID] = domain.Reservation{
		OrderID:    orderID,
		Items:      slices.Clone(items),
		ReservedAt: time.Now().UTC(),
	}

	return true, nil
}

func (tx *stockTx) LockReservation(_ context.Context, orderID uuid.UUID) (domain.Reservation, error) {
	if reservation, ok := tx.reservations[orderID]; ok {
		return reservation, nil
	}

	reservation, ok := tx.repo.reservations[orderID]
	if !ok || tx.deleted[orderID] {
		return domain.Reservation{}, fmt.Errorf("reservation[%s]: %w", orderID, port.ErrNotFound)
	}

	reservation.Items = slices.Clone(reservation.Items)

	return reservation, nil
}

func (tx *stockTx) MarkRestored(ctx context.Context, orderID uuid.UUID) error {
	reservation, err := tx.LockReservation(ctx, orderID)
	if err != nil {
		return err
	}

	if reservation.Restored {
		return fmt.Errorf("reservation[%s]: already restored: %w", orderID, port.ErrConflict)
	}

	now := time.Now().UTC()
	reservation.Restored = true
	reservation.RestoredAt = &now
	tx.reservations[orderID] = reservation

	return nil
}

func (tx *stockTx) DeleteReservation(_ context.Context, orderID uuid.UUID) error {
	_, staged := tx.reservations[orderID]
	_, stored := tx.repo.reservations[orderID]
	stored = stored && !tx.deleted[orderID]
	if !staged && !stored {
		return fmt.Errorf("reservation[%s]: %w", orderID, port.ErrNotFound)
	}

	delete(tx.reservations, orderID)
	if stored {
		tx.deleted[orderID] = true
	}

	return nil
}

func (tx *stockTx) commit() {
	now := time.Now().UTC()

	for id, delta := range tx.deltas {
		product := tx.repo.products[id]
		product.Stock += delta
		product.UpdatedAt = now
		tx.repo.products[id] = product
	}

	for id := range tx.deleted {
		delete(tx.repo.reservations, id)
	}
	for id, reservation := range tx.reservations {
		tx.repo.reservations[id] = reservation
	}
}
