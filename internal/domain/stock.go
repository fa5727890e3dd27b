package domain

import (
	"time"

	"github.com/google/uuid"
)

type StockItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// Shortage names a product whose stock cannot cover the requested quantity.
type Shortage struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

type Reservation struct {
	OrderID    uuid.UUID
	Items      []StockItem
	Restored   bool
	ReservedAt time.Time
	RestoredAt *time.Time
}

type StockEventType string

const (
	StockEventReserved StockEventType = "StockReserved"
	StockEventRejected StockEventType = "StockRejected"
	StockEventRestored StockEventType = "StockRestored"
)

type StockEvent struct {
	Type       StockEventType
	OrderID    uuid.UUID
	Items      []StockItem
	Shortages  []Shortage
	OccurredAt time.Time
}
