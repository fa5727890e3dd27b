// Package order drives the order status state machine and applies the stock
// side effects of order creation and cancellation exactly once.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/nikolayk812/shipstock/internal/port"
	"github.com/nikolayk812/shipstock/internal/stock"
)

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type StockLedger interface {
	ReserveForOrder(ctx context.Context, orderID uuid.UUID, items []domain.StockItem) (stock.ReserveOutcome, error)
	RestoreForOrder(ctx context.Context, order domain.Order) (stock.RestoreOutcome, error)
	ReleaseForOrder(ctx context.Context, order domain.Order) (stock.RestoreOutcome, error)
}

// PlaceResult is Placed=true when stock was reserved and the order persisted.
type PlaceResult struct {
	Order     domain.Order
	Placed    bool
	Duplicate bool
	Shortages []domain.Shortage
}

type TransitionResult struct {
	Order         domain.Order
	From          domain.OrderStatus
	StockRestored bool
	SkipReason    stock.SkipReason
}

type Service struct {
	orders port.OrderRepository
	ledger StockLedger
	logger *slog.Logger
}

func NewService(orders port.OrderRepository, ledger StockLedger, logger *slog.Logger) (*Service, error) {
	if orders == nil {
		return nil, fmt.Errorf("orders is nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		orders: orders,
		ledger: ledger,
		logger: logger,
	}, nil
}

// PlaceOrder reserves stock for the order and persists it as pending.
// An empty ID or order number is generated.
func (s *Service) PlaceOrder(ctx context.Context, order domain.Order) (PlaceResult, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		order.OrderNumber = newOrderNumber(order.ID)
	}
	order.Status = domain.OrderStatusPending

	if err := order.Validate(); err != nil {
		return PlaceResult{}, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}

	outcome, err := s.ledger.ReserveForOrder(ctx, order.ID, order.StockItems())
	if err != nil {
		return PlaceResult{}, fmt.Errorf("ledger.ReserveForOrder: %w", err)
	}

	if outcome.Duplicate {
		return PlaceResult{Order: order, Duplicate: true}, nil
	}
	if !outcome.Reserved {
		return PlaceResult{Order: order, Shortages: outcome.Shortages}, nil
	}

	if err := s.orders.InsertOrder(ctx, order); err != nil {
		insertErr := fmt.Errorf("orders.InsertOrder: %w", err)

		if _, releaseErr := s.ledger.ReleaseForOrder(ctx, order); releaseErr != nil {
			s.logger.Error("Failed to release stock of an order that was not persisted",
				"method", "Service.PlaceOrder",
				"order_id", order.ID,
				"error", releaseErr)
			return PlaceResult{}, errors.Join(insertErr, fmt.Errorf("ledger.ReleaseForOrder: %w", releaseErr))
		}

		return PlaceResult{}, insertErr
	}

	persisted, err := s.orders.GetOrder(ctx, order.ID)
	if err != nil {
		return PlaceResult{}, fmt.Errorf("orders.GetOrder: %w", err)
	}

	return PlaceResult{Order: persisted, Placed: true}, nil
}

// ChangeStatus moves the order along the transition table. Moving an active
// order to cancelled restores its stock.
func (s *Service) ChangeStatus(ctx context.Context, orderID uuid.UUID, to domain.OrderStatus) (TransitionResult, error) {
	if orderID == uuid.Nil {
		return TransitionResult{}, fmt.Errorf("orderID is empty")
	}
	if _, err := domain.ToOrderStatus(string(to)); err != nil {
		return TransitionResult{}, fmt.Errorf("domain.ToOrderStatus[%s]: %w", to, err)
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("orders.GetOrder: %w", err)
	}

	from := order.Status
	if !domain.CanTransition(from, to) {
		return TransitionResult{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if err := s.orders.UpdateOrderStatus(ctx, orderID, from, to); err != nil {
		return TransitionResult{}, fmt.Errorf("orders.UpdateOrderStatus: %w", err)
	}
	order.Status = to

	result := TransitionResult{Order: order, From: from}

	if domain.RestoresStock(from, to) {
		outcome, err := s.ledger.RestoreForOrder(ctx, order)
		if err != nil {
			return TransitionResult{}, fmt.Errorf("ledger.RestoreForOrder: %w", err)
		}

		result.StockRestored = outcome.Restored
		result.SkipReason = outcome.SkipReason
	}

	return result, nil
}

// Cancel cancels the order. On an order that is already cancelled it retries
// the restoration, which is a no-op once the stock went back.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID) (TransitionResult, error) {
	result, err := s.ChangeStatus(ctx, orderID, domain.OrderStatusCancelled)
	if err == nil || !errors.Is(err, ErrInvalidTransition) {
		return result, err
	}

	order, getErr := s.orders.GetOrder(ctx, orderID)
	if getErr != nil {
		return TransitionResult{}, fmt.Errorf("orders.GetOrder: %w", getErr)
	}
	if order.Status != domain.OrderStatusCancelled {
		return TransitionResult{}, err
	}

	outcome, restoreErr := s.ledger.RestoreForOrder(ctx, order)
	if restoreErr != nil {
		return TransitionResult{}, fmt.Errorf("ledger.RestoreForOrder: %w", restoreErr)
	}

	if outcome.Restored {
		s.logger.Warn("Completed an interrupted cancellation",
			"method", "Service.Cancel",
			"order_id", orderID)
	}

	return TransitionResult{
		Order:         order,
		From:          order.Status,
		StockRestored: outcome.Restored,
		SkipReason:    outcome.SkipReason,
	}, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders.GetOrder: %w", err)
	}

	return order, nil
}

func (s *Service) SearchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	orders, err := s.orders.SearchOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("orders.SearchOrders: %w", err)
	}

	return orders, nil
}

func newOrderNumber(id uuid.UUID) string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
}
