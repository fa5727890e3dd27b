package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Order struct {
	ID          uuid.UUID
	OrderNumber string
	Status      OrderStatus
	Items       []OrderItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is immutable once the order is created, Quantity is exactly what
// a cancellation gives back to stock.
type OrderItem struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice Money
}

func (o Order) Validate() error {
	if len(o.Items) == 0 {
		return errors.New("no items in order")
	}

	seen := make(map[uuid.UUID]struct{}, len(o.Items))
	for i, item := range o.Items {
		if item.ProductID == uuid.Nil {
			return fmt.Errorf("items[%d]: productID is empty", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("items[%d]: quantity must be positive", i)
		}
		if item.UnitPrice.Amount.IsNegative() {
			return fmt.Errorf("items[%d]: unit price is negative", i)
		}
		if _, ok := seen[item.ProductID]; ok {
			return fmt.Errorf("items[%d]: duplicate product %s", i, item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}

	return nil
}

// StockItems projects the order lines onto the quantities the ledger works with.
func (o Order) StockItems() []StockItem {
	items := make([]StockItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, StockItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return items
}
