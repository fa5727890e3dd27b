package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// ShippingMethod prices a delivery option of one zone.
// When Brackets is not empty it supersedes BaseCost and CostPerKg.
type ShippingMethod struct {
	ID                    uuid.UUID
	ZoneID                uuid.UUID
	Name                  string
	Currency              currency.Unit
	BaseCost              decimal.Decimal
	CostPerKg             decimal.Decimal
	FreeShippingThreshold *decimal.Decimal
	MinWeight             *decimal.Decimal
	MaxWeight             *decimal.Decimal
	Brackets              []WeightBracket
	DeliveryEstimate      string
	SortOrder             int
	Active                bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// WeightBracket covers [MinWeight, MaxWeight), a nil MaxWeight has no upper bound.
type WeightBracket struct {
	MinWeight decimal.Decimal
	MaxWeight *decimal.Decimal
	Cost      decimal.Decimal
}

func (b WeightBracket) Contains(weight decimal.Decimal) bool {
	if weight.LessThan(b.MinWeight) {
		return false
	}
	return b.MaxWeight == nil || weight.LessThan(*b.MaxWeight)
}

// Validate is the configuration write-time check. A method that passes it never
// produces a negative cost or a bracket gap inside its weight limits.
func (m ShippingMethod) Validate() error {
	if m.ID == uuid.Nil {
		return errors.New("id is empty")
	}
	if m.ZoneID == uuid.Nil {
		return errors.New("zoneID is empty")
	}
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("name is empty")
	}
	if m.Currency == (currency.Unit{}) {
		return errors.New("currency is empty")
	}
	if m.BaseCost.IsNegative() {
		return errors.New("base cost is negative")
	}
	if m.CostPerKg.IsNegative() {
		return errors.New("cost per kg is negative")
	}
	if m.FreeShippingThreshold != nil && m.FreeShippingThreshold.IsNegative() {
		return errors.New("free shipping threshold is negative")
	}
	if m.MinWeight != nil && m.MinWeight.IsNegative() {
		return errors.New("min weight is negative")
	}
	if m.MaxWeight != nil && m.MaxWeight.IsNegative() {
		return errors.New("max weight is negative")
	}

	amounts := []struct {
		name  string
		value *decimal.Decimal
	}{
		{"base cost", &m.BaseCost},
		{"cost per kg", &m.CostPerKg},
		{"free shipping threshold", m.FreeShippingThreshold},
		{"min weight", m.MinWeight},
		{"max weight", m.MaxWeight},
	}
	for _, a := range amounts {
		if a.value != nil && !fitsStorage(*a.value) {
			return fmt.Errorf("%s %s %s", a.name, a.value.String(), errOutOfStorageRange)
		}
	}

	if m.MinWeight != nil && m.MaxWeight != nil && m.MinWeight.GreaterThan(*m.MaxWeight) {
		return errors.New("min weight is greater than max weight")
	}

	if err := validateBrackets(m.Brackets, m.MaxWeight); err != nil {
		return fmt.Errorf("brackets: %w", err)
	}

	return nil
}

func validateBrackets(brackets []WeightBracket, maxWeight *decimal.Decimal) error {
	if len(brackets) == 0 {
		return nil
	}

	if !brackets[0].MinWeight.IsZero() {
		return errors.New("first bracket must start at 0")
	}

	for i, b := range brackets {
		if b.Cost.IsNegative() {
			return fmt.Errorf("[%d]: cost is negative", i)
		}
		if !fitsStorage(b.Cost) || !fitsStorage(b.MinWeight) || (b.MaxWeight != nil && !fitsStorage(*b.MaxWeight)) {
			return fmt.Errorf("[%d]: %s", i, errOutOfStorageRange)
		}

		if b.MaxWeight == nil {
			if i != len(brackets)-1 {
				return fmt.Errorf("[%d]: only the last bracket may be unbounded", i)
			}
			continue
		}

		if !b.MaxWeight.GreaterThan(b.MinWeight) {
			return fmt.Errorf("[%d]: max weight must be greater than min weight", i)
		}

		if i+1 < len(brackets) && !brackets[i+1].MinWeight.Equal(*b.MaxWeight) {
			if brackets[i+1].MinWeight.LessThan(*b.MaxWeight) {
				return fmt.Errorf("[%d]: overlaps with the next bracket", i)
			}
			return fmt.Errorf("[%d]: gap before the next bracket", i)
		}
	}

	last := brackets[len(brackets)-1]
	if last.MaxWeight != nil {
		if maxWeight == nil {
			return errors.New("last bracket is bounded but the method has no max weight")
		}
		// the method max is inclusive while the bracket max is exclusive
		if !last.MaxWeight.GreaterThan(*maxWeight) {
			return errors.New("brackets do not cover the max weight")
		}
	}

	return nil
}

// amounts and weights are stored as NUMERIC(12, 4)
const (
	storageScale         = 4
	errOutOfStorageRange = "has more than 4 decimal places or 8 integer digits"
)

var storageLimit = decimal.New(1, 12-storageScale)

func fitsStorage(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(storageScale)) && d.Abs().LessThan(storageLimit)
}

// FindBracket returns the bracket containing weight.
// Brackets must be sorted by MinWeight, which Validate guarantees.
func (m ShippingMethod) FindBracket(weight decimal.Decimal) (WeightBracket, bool) {
	// first bracket starting above weight, the candidate is the one before it
	idx := sort.Search(len(m.Brackets), func(i int) bool {
		return m.Brackets[i].MinWeight.GreaterThan(weight)
	})
	if idx == 0 {
		return WeightBracket{}, false
	}

	b := m.Brackets[idx-1]
	if !b.Contains(weight) {
		return WeightBracket{}, false
	}

	return b, true
}
