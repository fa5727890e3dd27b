package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type zoneDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Countries []string  `json:"countries"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type bracketDTO struct {
	MinWeight decimal.Decimal  `json:"min_weight"`
	MaxWeight *decimal.Decimal `json:"max_weight,omitempty"`
	Cost      decimal.Decimal  `json:"cost"`
}

// methodDTO exists because currency.Unit has no JSON form.
type methodDTO struct {
	ID                    uuid.UUID        `json:"id"`
	ZoneID                uuid.UUID        `json:"zone_id"`
	Name                  string           `json:"name"`
	Currency              string           `json:"currency"`
	BaseCost              decimal.Decimal  `json:"base_cost"`
	CostPerKg             decimal.Decimal  `json:"cost_per_kg"`
	FreeShippingThreshold *decimal.Decimal `json:"free_shipping_threshold,omitempty"`
	MinWeight             *decimal.Decimal `json:"min_weight,omitempty"`
	MaxWeight             *decimal.Decimal `json:"max_weight,omitempty"`
	Brackets              []bracketDTO     `json:"brackets,omitempty"`
	DeliveryEstimate      string           `json:"delivery_estimate"`
	SortOrder             int              `json:"sort_order"`
	Active                bool             `json:"active"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

func toZoneDTO(z domain.ShippingZone) zoneDTO {
	return zoneDTO{
		ID:        z.ID,
		Name:      z.Name,
		Countries: z.Countries,
		Active:    z.Active,
		CreatedAt: z.CreatedAt,
		UpdatedAt: z.UpdatedAt,
	}
}

func (d zoneDTO) toDomain() domain.ShippingZone {
	return domain.ShippingZone{
		ID:        d.ID,
		Name:      d.Name,
		Countries: d.Countries,
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func toMethodDTO(m domain.ShippingMethod) methodDTO {
	return methodDTO{
		ID:                    m.ID,
		ZoneID:                m.ZoneID,
		Name:                  m.Name,
		Currency:              m.Currency.String(),
		BaseCost:              m.BaseCost,
		CostPerKg:             m.CostPerKg,
		FreeShippingThreshold: m.FreeShippingThreshold,
		MinWeight:             m.MinWeight,
		MaxWeight:             m.MaxWeight,
		Brackets: lo.Map(m.Brackets, func(b domain.WeightBracket, _ int) bracketDTO {
			return bracketDTO(b)
		}),
		DeliveryEstimate: m.DeliveryEstimate,
		SortOrder:        m.SortOrder,
		Active:           m.Active,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func (d methodDTO) toDomain() (domain.ShippingMethod, error) {
	unit, err := currency.ParseISO(d.Currency)
	if err != nil {
		return domain.ShippingMethod{}, fmt.Errorf("currency[%s] is not valid: %w", d.Currency, err)
	}

	var brackets []domain.WeightBracket
	if len(d.Brackets) > 0 {
		brackets = lo.Map(d.Brackets, func(b bracketDTO, _ int) domain.WeightBracket {
			return domain.WeightBracket(b)
		})
	}

	return domain.ShippingMethod{
		ID:                    d.ID,
		ZoneID:                d.ZoneID,
		Name:                  d.Name,
		Currency:              unit,
		BaseCost:              d.BaseCost,
		CostPerKg:             d.CostPerKg,
		FreeShippingThreshold: d.FreeShippingThreshold,
		MinWeight:             d.MinWeight,
		MaxWeight:             d.MaxWeight,
		Brackets:              brackets,
		DeliveryEstimate:      d.DeliveryEstimate,
		SortOrder:             d.SortOrder,
		Active:                d.Active,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}, nil
}
