package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/nikolayk812/shipstock/internal/port"
	"github.com/samber/lo"
	"golang.org/x/text/currency"
)

type stockRepository struct {
	db DBTX
}

func NewStock(pool *pgxpool.Pool) port.StockRepository {
	return &stockRepository{db: pool}
}

func NewStockWithTx(tx pgx.Tx) port.StockRepository {
	return &stockRepository{db: tx}
}

func (r *stockRepository) UpsertProduct(ctx context.Context, product domain.Product) error {
	if err := product.Validate(); err != nil {
		return fmt.Errorf("product.Validate: %w", err)
	}

	if _, err := r.db.Exec(ctx, `
		INSERT INTO products (id, name, price_amount, price_currency, stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price_amount = EXCLUDED.price_amount,
			price_currency = EXCLUDED.price_currency,
			stock = EXCLUDED.stock,
			updated_at = NOW()`,
		product.ID, product.Name, product.Price.Amount, product.Price.Currency.String(), product.Stock,
	); err != nil {
		return fmt.Errorf("q.UpsertProduct: %w", err)
	}

	return nil
}

func (r *stockRepository) GetProduct(ctx context.Context, productID uuid.UUID) (domain.Product, error) {
	var (
		p            domain.Product
		currencyCode string
	)

	err := r.db.QueryRow(ctx, `
		SELECT id, name, price_amount, price_currency, stock, created_at, updated_at
		FROM products
		WHERE id = $1`, productID).
		Scan(&p.ID, &p.Name, &p.Price.Amount, &currencyCode, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, fmt.Errorf("q.GetProduct[%s]: %w", productID, port.ErrNotFound)
		}
		return p, fmt.Errorf("q.GetProduct: %w", err)
	}

	parsedCurrency, err := currency.ParseISO(currencyCode)
	if err != nil {
		return domain.Product{}, fmt.Errorf("currency[%s] is not valid: %w", currencyCode, err)
	}
	p.Price.Currency = parsedCurrency

	return p, nil
}

func (r *stockRepository) WithinTx(ctx context.Context, fn func(tx port.StockTx) error) error {
	return withTxNoResult(ctx, r.db, func(q DBTX) error {
		return fn(&stockTx{q: q})
	})
}

type stockTx struct {
	q DBTX
}

// LockStock takes the row locks in ascending id order, so two transactions
// touching overlapping products cannot deadlock.
func (tx *stockTx) LockStock(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := tx.q.Query(ctx, `
		SELECT id, stock
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("q.LockStock: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID]int, len(productIDs))
	for rows.Next() {
		var (
			id    uuid.UUID
			stock int
		)
		if err := rows.Scan(&id, &stock); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		result[id] = stock
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	for _, id := range productIDs {
		if _, ok := result[id]; !ok {
			return nil, fmt.Errorf("product[%s]: %w", id, port.ErrNotFound)
		}
	}

	return result, nil
}

func (tx *stockTx) AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error {
	cmdTag, err := tx.q.Exec(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1 AND stock + $2 >= 0`, productID, delta)
	if err != nil {
		return fmt.Errorf("q.AdjustStock: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		var exists bool
		if err := tx.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
			return fmt.Errorf("q.ProductExists: %w", err)
		}
		if !exists {
			return fmt.Errorf("product[%s]: %w", productID, port.ErrNotFound)
		}
		return fmt.Errorf("product[%s]: stock would become negative", productID)
	}

	return nil
}

func (tx *stockTx) CreateReservation(ctx context.Context, orderID uuid.UUID, items []domain.StockItem) (bool, error) {
	cmdTag, err := tx.q.Exec(ctx, `
		INSERT INTO stock_reservations (order_id)
		VALUES ($1)
		ON CONFLICT (order_id) DO NOTHING`, orderID)
	if err != nil {
		return false, fmt.Errorf("q.InsertReservation: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return false, nil
	}

	productIDs := lo.Map(items, func(item domain.StockItem, _ int) uuid.UUID { return item.ProductID })
	quantities := lo.Map(items, func(item domain.StockItem, _ int) int32 { return int32(item.Quantity) })

	if _, err := tx.q.Exec(ctx, `
		INSERT INTO stock_reservation_items (order_id, product_id, quantity)
		SELECT $1, UNNEST($2::UUID[]), UNNEST($3::INT[])`, orderID, productIDs, quantities); err != nil {
		return false, fmt.Errorf("q.InsertReservationItems: %w", err)
	}

	return true, nil
}

func (tx *stockTx) LockReservation(ctx context.Context, orderID uuid.UUID) (domain.Reservation, error) {
	var reservation domain.Reservation

	err := tx.q.QueryRow(ctx, `
		SELECT order_id, restored, reserved_at, restored_at
		FROM stock_reservations
		WHERE order_id = $1
		FOR UPDATE`, orderID).
		Scan(&reservation.OrderID, &reservation.Restored, &reservation.ReservedAt, &reservation.RestoredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return reservation, fmt.Errorf("reservation[%s]: %w", orderID, port.ErrNotFound)
		}
		return reservation, fmt.Errorf("q.LockReservation: %w", err)
	}

	rows, err := tx.q.Query(ctx, `
		SELECT product_id, quantity
		FROM stock_reservation_items
		WHERE order_id = $1
		ORDER BY product_id`, orderID)
	if err != nil {
		return reservation, fmt.Errorf("q.GetReservationItems: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StockItem, error) {
		var item domain.StockItem
		err := row.Scan(&item.ProductID, &item.Quantity)
		return item, err
	})
	if err != nil {
		return reservation, fmt.Errorf("pgx.CollectRows: %w", err)
	}
	reservation.Items = items

	return reservation, nil
}

func (tx *stockTx) MarkRestored(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := tx.q.Exec(ctx, `
		UPDATE stock_reservations
		SET restored = TRUE, restored_at = NOW()
		WHERE order_id = $1 AND NOT restored`, orderID)
	if err != nil {
		return fmt.Errorf("q.MarkRestored: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("reservation[%s]: already restored: %w", orderID, port.ErrConflict)
	}

	return nil
}

func (tx *stockTx) DeleteReservation(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := tx.q.Exec(ctx, `DELETE FROM stock_reservations WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("q.DeleteReservation: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("reservation[%s]: %w", orderID, port.ErrNotFound)
	}

	return nil
}
