package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

func TestShippingMethodValidate(t *testing.T) {
	tests := []struct {
		name       string
		methodFunc func() domain.ShippingMethod
		wantError  string
	}{
		{
			name:       "flat method: ok",
			methodFunc: validMethod,
		},
		{
			name: "bracketed method with unbounded top: ok",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.Brackets = threeBrackets()
				return m
			},
		},
		{
			name: "bounded brackets covering max weight: ok",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.MaxWeight = dec("10")
				m.Brackets = []domain.WeightBracket{
					{MinWeight: decimal.Zero, MaxWeight: dec("5"), Cost: decimal.RequireFromString("8")},
					{MinWeight: decimal.RequireFromString("5"), MaxWeight: dec("10.001"), Cost: decimal.RequireFromString("12")},
				}
				return m
			},
		},
		{
			name: "empty id: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.ID = uuid.Nil
				return m
			},
			wantError: "id is empty",
		},
		{
			name: "empty currency: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.Currency = currency.Unit{}
				return m
			},
			wantError: "currency is empty",
		},
		{
			name: "negative base cost: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.BaseCost = decimal.RequireFromString("-1")
				return m
			},
			wantError: "base cost is negative",
		},
		{
			name: "negative per kg: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.CostPerKg = decimal.RequireFromString("-0.01")
				return m
			},
			wantError: "cost per kg is negative",
		},
		{
			name: "min above max: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.MinWeight = dec("5")
				m.MaxWeight = dec("1")
				return m
			},
			wantError: "min weight is greater than max weight",
		},
		{
			name: "first bracket not at zero: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.Brackets = []domain.WeightBracket{
					{MinWeight: decimal.RequireFromString("1"), Cost: decimal.RequireFromString("8")},
				}
				return m
			},
			wantError: "brackets: first bracket must start at 0",
		},
		{
			name: "overlapping brackets: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.Brackets = []domain.WeightBracket{
					{MinWeight: decimal.Zero, MaxWeight: dec("2"), Cost: decimal.RequireFromString("8")},
					{MinWeight: decimal.RequireFromString("1"), Cost: decimal.RequireFromString("15")},
				}
				return m
			},
			wantError: "brackets: [0]: overlaps with the next bracket",
		},
		{
			name: "gap between brackets: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.Brackets = []domain.WeightBracket{
					{MinWeight: decimal.Zero, MaxWeight: dec("1"), Cost: decimal.RequireFromString("8")},
					{MinWeight: decimal.RequireFromString("2"), Cost: decimal.RequireFromString("15")},
				}
				return m
			},
			wantError: "brackets: [0]: gap before the next bracket",
		},
		{
			name: "unbounded bracket in the middle: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.Brackets = []domain.WeightBracket{
					{MinWeight: decimal.Zero, Cost: decimal.RequireFromString("8")},
					{MinWeight: decimal.RequireFromString("1"), Cost: decimal.RequireFromString("15")},
				}
				return m
			},
			wantError: "brackets: [0]: only the last bracket may be unbounded",
		},
		{
			name: "bounded top without method max: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.Brackets = []domain.WeightBracket{
					{MinWeight: decimal.Zero, MaxWeight: dec("1"), Cost: decimal.RequireFromString("8")},
				}
				return m
			},
			wantError: "brackets: last bracket is bounded but the method has no max weight",
		},
		{
			name: "bounded top below method max: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.MaxWeight = dec("10")
				m.Brackets = []domain.WeightBracket{
					{MinWeight: decimal.Zero, MaxWeight: dec("10"), Cost: decimal.RequireFromString("8")},
				}
				return m
			},
			wantError: "brackets: brackets do not cover the max weight",
		},
		{
			name: "negative bracket cost: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.Brackets = []domain.WeightBracket{
					{MinWeight: decimal.Zero, Cost: decimal.RequireFromString("-8")},
				}
				return m
			},
			wantError: "brackets: [0]: cost is negative",
		},
		{
			name: "trailing zeros beyond storage scale: ok",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.BaseCost = decimal.RequireFromString("4.500000")
				return m
			},
		},
		{
			name: "base cost beyond storage scale: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.BaseCost = decimal.RequireFromString("4.99999")
				return m
			},
			wantError: "base cost 4.99999 has more than 4 decimal places or 8 integer digits",
		},
		{
			name: "max weight above storage range: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.MaxWeight = dec("100000000")
				return m
			},
			wantError: "max weight 100000000 has more than 4 decimal places or 8 integer digits",
		},
		{
			name: "bracket bounds differing past storage scale: fail",
			methodFunc: func() domain.ShippingMethod {
				m := validMethod()
				m.Brackets = []domain.WeightBracket{
					{MinWeight: decimal.Zero, MaxWeight: dec("2.00001"), Cost: decimal.RequireFromString("8")},
					{MinWeight: decimal.RequireFromString("2.00001"), Cost: decimal.RequireFromString("15")},
				}
				return m
			},
			wantError: "brackets: [0]: has more than 4 decimal places or 8 integer digits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.methodFunc().Validate()
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestShippingMethodFindBracket(t *testing.T) {
	m := validMethod()
	m.Brackets = threeBrackets()

	tests := []struct {
		weight    string
		wantCost  string
		wantFound bool
	}{
		{weight: "0", wantCost: "8", wantFound: true},
		{weight: "0.5", wantCost: "8", wantFound: true},
		{weight: "0.999", wantCost: "8", wantFound: true},
		{weight: "1", wantCost: "15", wantFound: true},
		{weight: "3", wantCost: "15", wantFound: true},
		{weight: "5", wantCost: "25", wantFound: true},
		{weight: "10", wantCost: "25", wantFound: true},
		{weight: "-1", wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.weight, func(t *testing.T) {
			b, found := m.FindBracket(decimal.RequireFromString(tt.weight))
			require.Equal(t, tt.wantFound, found)
			if found {
				assert.True(t, b.Cost.Equal(decimal.RequireFromString(tt.wantCost)), "got %s", b.Cost)
			}
		})
	}
}

func TestShippingZoneValidate(t *testing.T) {
	zone := domain.ShippingZone{
		ID:        uuid.New(),
		Name:      "EU",
		Countries: []string{" de", "FR", "fr"},
		Active:    true,
	}

	require.EqualError(t, zone.Validate(), "country[ de] is not valid")

	normalized := zone.Normalized()
	require.NoError(t, normalized.Validate())
	assert.Equal(t, []string{"DE", "FR"}, normalized.Countries)
	assert.True(t, normalized.Contains("de"))
	assert.False(t, normalized.Contains("US"))
}

func validMethod() domain.ShippingMethod {
	return domain.ShippingMethod{
		ID:        uuid.New(),
		ZoneID:    uuid.New(),
		Name:      "Standard",
		Currency:  currency.EUR,
		BaseCost:  decimal.RequireFromString("5.00"),
		CostPerKg: decimal.RequireFromString("2.50"),
		Active:    true,
	}
}

func threeBrackets() []domain.WeightBracket {
	return []domain.WeightBracket{
		{MinWeight: decimal.Zero, MaxWeight: dec("1"), Cost: decimal.RequireFromString("8")},
		{MinWeight: decimal.RequireFromString("1"), MaxWeight: dec("5"), Cost: decimal.RequireFromString("15")},
		{MinWeight: decimal.RequireFromString("5"), Cost: decimal.RequireFromString("25")},
	}
}

func dec(s string) *decimal.Decimal {
	return lo.ToPtr(decimal.RequireFromString(s))
}
