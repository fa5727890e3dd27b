package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID    uuid.UUID
	Name  string
	Price Money
	Stock int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Product) Validate() error {
	if p.ID == uuid.Nil {
		return errors.New("id is empty")
	}
	if p.Stock < 0 {
		return errors.New("stock is negative")
	}
	if p.Price.Amount.IsNegative() {
		return errors.New("price is negative")
	}
	return nil
}
