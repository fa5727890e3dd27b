package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/nikolayk812/shipstock/internal/port"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type orderRepository struct {
	db DBTX
}

func NewOrder(pool *pgxpool.Pool) port.OrderRepository {
	return &orderRepository{db: pool}
}

func NewOrderWithTx(tx pgx.Tx) port.OrderRepository {
	return &orderRepository{db: tx}
}

func (r *orderRepository) GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	var o domain.Order

	order, err := withTx(ctx, r.db, func(q DBTX) (domain.Order, error) {
		var status string

		err := q.QueryRow(ctx, `
			SELECT id, order_number, status, created_at, updated_at
			FROM orders
			WHERE id = $1`, orderID).
			Scan(&o.ID, &o.OrderNumber, &status, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return o, fmt.Errorf("q.GetOrder: %w", port.ErrNotFound)
			}
			return o, fmt.Errorf("q.GetOrder: %w", err)
		}

		o.Status, err = domain.ToOrderStatus(status)
		if err != nil {
			return o, fmt.Errorf("domain.ToOrderStatus[%s]: %w", status, err)
		}

		items, err := getOrderItems(ctx, q, []uuid.UUID{orderID})
		if err != nil {
			return o, fmt.Errorf("getOrderItems: %w", err)
		}
		o.Items = items[orderID]

		return o, nil
	})
	if err != nil {
		return o, fmt.Errorf("r.withTx: %w", err)
	}

	return order, nil
}

func (r *orderRepository) SearchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter.Validate: %w", err)
	}

	var createdAfter, createdBefore *time.Time
	if filter.CreatedAt != nil {
		createdAfter = filter.CreatedAt.After
		createdBefore = filter.CreatedAt.Before
	}

	statuses := lo.Map(filter.Statuses, func(s domain.OrderStatus, _ int) string { return string(s) })

	return withTx(ctx, r.db, func(q DBTX) ([]domain.Order, error) {
		rows, err := q.Query(ctx, `
			SELECT id, order_number, status, created_at, updated_at
			FROM orders
			WHERE ($1::UUID[] IS NULL OR id = ANY($1))
			  AND ($2::TEXT[] IS NULL OR order_number = ANY($2))
			  AND ($3::TEXT[] IS NULL OR status = ANY($3))
			  AND ($4::TIMESTAMPTZ IS NULL OR created_at > $4)
			  AND ($5::TIMESTAMPTZ IS NULL OR created_at < $5)
			ORDER BY created_at, id`,
			nilSliceIfEmpty(filter.IDs), nilSliceIfEmpty(filter.OrderNumbers), nilSliceIfEmpty(statuses),
			createdAfter, createdBefore)
		if err != nil {
			return nil, fmt.Errorf("q.SearchOrders: %w", err)
		}

		orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
			var (
				o      domain.Order
				status string
			)
			if err := row.Scan(&o.ID, &o.OrderNumber, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
				return o, err
			}

			var err error
			o.Status, err = domain.ToOrderStatus(status)
			if err != nil {
				return o, fmt.Errorf("domain.ToOrderStatus[%s]: %w", status, err)
			}

			return o, nil
		})
		if err != nil {
			return nil, fmt.Errorf("pgx.CollectRows: %w", err)
		}

		items, err := getOrderItems(ctx, q, lo.Map(orders, func(o domain.Order, _ int) uuid.UUID { return o.ID }))
		if err != nil {
			return nil, fmt.Errorf("getOrderItems: %w", err)
		}

		for i := range orders {
			orders[i].Items = items[orders[i].ID]
		}

		return orders, nil
	})
}

func (r *orderRepository) InsertOrder(ctx context.Context, order domain.Order) error {
	if err := order.Validate(); err != nil {
		return fmt.Errorf("order.Validate: %w", err)
	}

	if err := withTxNoResult(ctx, r.db, func(q DBTX) error {
		if _, err := q.Exec(ctx, `
			INSERT INTO orders (id, order_number, status)
			VALUES ($1, $2, $3)`, order.ID, order.OrderNumber, string(order.Status)); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("q.InsertOrder[%s]: %w", order.OrderNumber, port.ErrConflict)
			}
			return fmt.Errorf("q.InsertOrder: %w", err)
		}

		for _, item := range order.Items {
			if _, err := q.Exec(ctx, `
				INSERT INTO order_items (order_id, product_id, quantity, price_amount, price_currency)
				VALUES ($1, $2, $3, $4, $5)`,
				order.ID, item.ProductID, item.Quantity, item.UnitPrice.Amount, item.UnitPrice.Currency.String()); err != nil {
				return fmt.Errorf("q.InsertOrderItem: %w", err)
			}
		}

		return nil
	}); err != nil {
		return fmt.Errorf("r.withTx: %w", err)
	}

	return nil
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("orderID is empty")
	}
	if to == "" {
		return fmt.Errorf("status is empty")
	}

	cmdTag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, orderID, string(from), string(to))
	if err != nil {
		return fmt.Errorf("q.UpdateOrderStatus: %w", err)
	}

	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	var current string
	if err := r.db.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("q.UpdateOrderStatus: %w", port.ErrNotFound)
		}
		return fmt.Errorf("q.GetOrderStatus: %w", err)
	}

	return fmt.Errorf("order[%s] is %s, not %s: %w", orderID, current, from, port.ErrConflict)
}

func getOrderItems(ctx context.Context, q DBTX, orderIDs []uuid.UUID) (map[uuid.UUID][]domain.OrderItem, error) {
	result := make(map[uuid.UUID][]domain.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, quantity, price_amount, price_currency
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, product_id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("q.GetOrderItems: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID      uuid.UUID
			item         domain.OrderItem
			amount       decimal.Decimal
			currencyCode string
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity, &amount, &currencyCode); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}

		parsedCurrency, err := currency.ParseISO(currencyCode)
		if err != nil {
			return nil, fmt.Errorf("currency[%s] is not valid: %w", currencyCode, err)
		}
		item.UnitPrice = domain.Money{Amount: amount, Currency: parsedCurrency}

		result[orderID] = append(result[orderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return result, nil
}

func nilSliceIfEmpty[T any](slice []T) []T {
	if len(slice) == 0 {
		return nil
	}
	return slice
}
