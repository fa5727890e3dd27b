// Package stock keeps product stock in line with committed order demand:
// it reserves stock when an order is created and restores it, exactly once,
// when the order is cancelled.
package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/nikolayk812/shipstock/internal/port"
	"github.com/samber/lo"
)

var (
	ErrInvalidItems       = errors.New("invalid items")
	ErrInvariantViolation = errors.New("stock invariant violation")
)

// errShortage only carries the rollback out of the transaction.
var errShortage = errors.New("insufficient stock")

type SkipReason string

const (
	SkipNotReserved     SkipReason = "not_reserved"
	SkipAlreadyRestored SkipReason = "already_restored"
)

// ReserveOutcome is Reserved=true when every item was decremented.
// Otherwise nothing changed: Shortages lists the products that could not be
// covered, or Duplicate reports that the order already holds a reservation.
type ReserveOutcome struct {
	Reserved  bool
	Duplicate bool
	Shortages []domain.Shortage
}

type RestoreOutcome struct {
	Restored   bool
	Items      []domain.StockItem
	SkipReason SkipReason
}

type Ledger struct {
	repo      port.StockRepository
	publisher port.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Ledger)

func WithPublisher(p port.EventPublisher) Option {
	return func(l *Ledger) {
		l.publisher = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func NewLedger(repo port.StockRepository, opts ...Option) (*Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("repo is nil")
	}

	l := &Ledger{
		repo:   repo,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// ReserveForOrder decrements stock for all items or for none of them.
// Calling it again for the same order is a no-op reported as Duplicate.
func (l *Ledger) ReserveForOrder(ctx context.Context, orderID uuid.UUID, items []domain.StockItem) (ReserveOutcome, error) {
	if orderID == uuid.Nil {
		return ReserveOutcome{}, fmt.Errorf("%w: orderID is empty", ErrInvalidItems)
	}

	items, err := normalizeItems(items)
	if err != nil {
		return ReserveOutcome{}, err
	}

	var outcome ReserveOutcome

	err = l.repo.WithinTx(ctx, func(tx port.StockTx) error {
		created, err := tx.CreateReservation(ctx, orderID, items)
		if err != nil {
			return fmt.Errorf("tx.CreateReservation: %w", err)
		}
		if !created {
			outcome.Duplicate = true
			return nil
		}

		ids := lo.Map(items, func(item domain.StockItem, _ int) uuid.UUID { return item.ProductID })

		stock, err := tx.LockStock(ctx, ids)
		if err != nil {
			return fmt.Errorf("tx.LockStock: %w", err)
		}

		for _, item := range items {
			if available := stock[item.ProductID]; available < item.Quantity {
				outcome.Shortages = append(outcome.Shortages, domain.Shortage{
					ProductID: item.ProductID,
					Requested: item.Quantity,
					Available: available,
				})
			}
		}
		if len(outcome.Shortages) > 0 {
			// rolls back the reservation row as well
			return errShortage
		}

		for _, item := range items {
			if err := tx.AdjustStock(ctx, item.ProductID, -item.Quantity); err != nil {
				return l.invariantViolation("Ledger.ReserveForOrder", orderID, item.ProductID, err)
			}
		}

		outcome.Reserved = true
		return nil
	})

	if errors.Is(err, errShortage) {
		l.publish(ctx, domain.StockEvent{
			Type:      domain.StockEventRejected,
			OrderID:   orderID,
			Items:     items,
			Shortages: outcome.Shortages,
		})
		return ReserveOutcome{Shortages: outcome.Shortages}, nil
	}
	if err != nil {
		return ReserveOutcome{}, fmt.Errorf("repo.WithinTx: %w", err)
	}

	if outcome.Duplicate {
		l.logger.Warn("Order already holds a stock reservation",
			"method", "Ledger.ReserveForOrder",
			"order_id", orderID)
		return outcome, nil
	}

	l.publish(ctx, domain.StockEvent{
		Type:    domain.StockEventReserved,
		OrderID: orderID,
		Items:   items,
	})

	return outcome, nil
}

// RestoreForOrder gives the reserved quantities of order back to stock.
// A second call, or a call for an order that was never reserved, changes nothing.
func (l *Ledger) RestoreForOrder(ctx context.Context, order domain.Order) (RestoreOutcome, error) {
	return l.restore(ctx, order, false)
}

// ReleaseForOrder undoes the reservation of an order that was never persisted:
// the stock goes back and the reservation is dropped, so the order id can be
// reserved again.
func (l *Ledger) ReleaseForOrder(ctx context.Context, order domain.Order) (RestoreOutcome, error) {
	return l.restore(ctx, order, true)
}

func (l *Ledger) restore(ctx context.Context, order domain.Order, release bool) (RestoreOutcome, error) {
	method := "Ledger.RestoreForOrder"
	if release {
		method = "Ledger.ReleaseForOrder"
	}

	if order.ID == uuid.Nil {
		return RestoreOutcome{}, fmt.Errorf("%w: orderID is empty", ErrInvalidItems)
	}

	var outcome RestoreOutcome

	err := l.repo.WithinTx(ctx, func(tx port.StockTx) error {
		reservation, err := tx.LockReservation(ctx, order.ID)
		if err != nil {
			if errors.Is(err, port.ErrNotFound) {
				outcome.SkipReason = SkipNotReserved
				return nil
			}
			return fmt.Errorf("tx.LockReservation: %w", err)
		}

		if reservation.Restored {
			outcome.SkipReason = SkipAlreadyRestored
		} else {
			l.checkOrderMatchesReservation(order, reservation)

			ids := lo.Map(reservation.Items, func(item domain.StockItem, _ int) uuid.UUID { return item.ProductID })
			slices.SortFunc(ids, compareIDs)

			if _, err := tx.LockStock(ctx, ids); err != nil {
				if errors.Is(err, port.ErrNotFound) {
					return l.invariantViolation(method, order.ID, uuid.Nil, err)
				}
				return fmt.Errorf("tx.LockStock: %w", err)
			}

			for _, item := range reservation.Items {
				if err := tx.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
					return l.invariantViolation(method, order.ID, item.ProductID, err)
				}
			}

			outcome.Restored = true
			outcome.Items = reservation.Items
		}

		if release {
			if err := tx.DeleteReservation(ctx, order.ID); err != nil {
				return fmt.Errorf("tx.DeleteReservation: %w", err)
			}
			return nil
		}

		if outcome.Restored {
			if err := tx.MarkRestored(ctx, order.ID); err != nil {
				return fmt.Errorf("tx.MarkRestored: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return RestoreOutcome{}, fmt.Errorf("repo.WithinTx: %w", err)
	}

	if !outcome.Restored {
		l.logger.Info("Stock restoration skipped",
			"method", method,
			"order_id", order.ID,
			"reason", outcome.SkipReason)
		return outcome, nil
	}

	l.publish(ctx, domain.StockEvent{
		Type:    domain.StockEventRestored,
		OrderID: order.ID,
		Items:   outcome.Items,
	})

	return outcome, nil
}

// checkOrderMatchesReservation logs when the order lines drifted from what was
// reserved. The reservation stays the source of truth for the restored quantities.
func (l *Ledger) checkOrderMatchesReservation(order domain.Order, reservation domain.Reservation) {
	if len(order.Items) == 0 {
		return
	}

	want := lo.SliceToMap(reservation.Items, func(item domain.StockItem) (uuid.UUID, int) {
		return item.ProductID, item.Quantity
	})
	got := lo.SliceToMap(order.StockItems(), func(item domain.StockItem) (uuid.UUID, int) {
		return item.ProductID, item.Quantity
	})

	if len(want) != len(got) || lo.SomeBy(lo.Keys(want), func(id uuid.UUID) bool { return want[id] != got[id] }) {
		l.logger.Error("Order items differ from the stock reservation",
			"method", "Ledger.RestoreForOrder",
			"order_id", order.ID)
	}
}

func (l *Ledger) invariantViolation(method string, orderID, productID uuid.UUID, err error) error {
	l.logger.Error("Stock invariant violated",
		"method", method,
		"order_id", orderID,
		"product_id", productID,
		"error", err)

	return fmt.Errorf("%w: product[%s]: %w", ErrInvariantViolation, productID, err)
}

func (l *Ledger) publish(ctx context.Context, event domain.StockEvent) {
	if l.publisher == nil {
		return
	}

	event.OccurredAt = l.now()

	if err := l.publisher.Publish(ctx, event); err != nil {
		l.logger.Warn("Failed to publish stock event",
			"method", "Ledger.publish",
			"order_id", event.OrderID,
			"event_type", event.Type,
			"error", err)
	}
}

// normalizeItems validates items, merges repeated products and sorts by
// product id so concurrent transactions lock rows in the same order.
func normalizeItems(items []domain.StockItem) ([]domain.StockItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidItems)
	}

	quantities := make(map[uuid.UUID]int, len(items))
	for i, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, fmt.Errorf("%w: items[%d]: productID is empty", ErrInvalidItems, i)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: items[%d]: quantity must be positive", ErrInvalidItems, i)
		}
		// stored as INT, a merged total must stay within it
		if item.Quantity > math.MaxInt32-quantities[item.ProductID] {
			return nil, fmt.Errorf("%w: items[%d]: quantity of product[%s] is too large", ErrInvalidItems, i, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	result := lo.MapToSlice(quantities, func(id uuid.UUID, qty int) domain.StockItem {
		return domain.StockItem{ProductID: id, Quantity: qty}
	})
	slices.SortFunc(result, func(a, b domain.StockItem) int {
		return compareIDs(a.ProductID, b.ProductID)
	})

	return result, nil
}

func compareIDs(a, b uuid.UUID) int {
	return slices.Compare(a[:], b[:])
}
