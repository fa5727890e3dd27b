// Package shipping resolves which shipping methods can serve a destination,
// weight and order amount, and what each of them costs.
//
// Costs are rounded to two decimal places half up.
package shipping

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/shopspring/decimal"
)

const costPlaces = 2

const (
	ReasonInvalidInput        = "invalid input"
	ReasonMisconfigured       = "method is misconfigured"
	ReasonBelowMinWeight      = "weight is below the method minimum"
	ReasonAboveMaxWeight      = "weight is above the method maximum"
	ReasonNoBracket           = "no weight bracket covers the weight"
	ReasonMethodNotFound      = "shipping method not found"
	ReasonMethodInactive      = "shipping method is not active"
	ReasonNoShippingAvailable = "no shipping available"
)

// CostResult is the outcome of pricing one method.
// A method that cannot serve the request is Success=false with a Reason, not an error.
type CostResult struct {
	Success      bool         `json:"success"`
	Cost         domain.Money `json:"cost"`
	FreeShipping bool         `json:"free_shipping"`
	Reason       string       `json:"reason,omitempty"`
}

func failure(reason string) CostResult {
	return CostResult{Reason: reason}
}

// Calculate prices method for weight (kg) and orderAmount.
// Weight limits are checked before the free shipping threshold.
func Calculate(method domain.ShippingMethod, weight, orderAmount decimal.Decimal) CostResult {
	if weight.IsNegative() || orderAmount.IsNegative() {
		return failure(ReasonInvalidInput)
	}

	if err := method.Validate(); err != nil {
		return failure(fmt.Sprintf("%s: %v", ReasonMisconfigured, err))
	}

	if method.MinWeight != nil && weight.LessThan(*method.MinWeight) {
		return failure(ReasonBelowMinWeight)
	}
	if method.MaxWeight != nil && weight.GreaterThan(*method.MaxWeight) {
		return failure(ReasonAboveMaxWeight)
	}

	if method.FreeShippingThreshold != nil && orderAmount.GreaterThanOrEqual(*method.FreeShippingThreshold) {
		return CostResult{
			Success:      true,
			Cost:         money(method, decimal.Zero),
			FreeShipping: true,
		}
	}

	if len(method.Brackets) > 0 {
		bracket, ok := method.FindBracket(weight)
		if !ok {
			return failure(ReasonNoBracket)
		}
		return CostResult{Success: true, Cost: money(method, bracket.Cost)}
	}

	cost := method.BaseCost.Add(weight.Mul(method.CostPerKg))

	return CostResult{Success: true, Cost: money(method, cost)}
}

// RoundCost rounds half up for the non-negative amounts Validate allows.
func RoundCost(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(costPlaces)
}

func money(method domain.ShippingMethod, amount decimal.Decimal) domain.Money {
	return domain.Money{
		Amount:   RoundCost(amount),
		Currency: method.Currency,
	}
}

// Quote is one shipping option offered at checkout.
type Quote struct {
	MethodID         uuid.UUID    `json:"method_id"`
	Name             string       `json:"name"`
	Cost             domain.Money `json:"cost"`
	FreeShipping     bool         `json:"free_shipping"`
	DeliveryEstimate string       `json:"delivery_estimate"`
}

// Availability lists the methods able to serve a checkout, cheapest first.
type Availability struct {
	Success bool    `json:"success"`
	Methods []Quote `json:"methods"`
	Reason  string  `json:"reason,omitempty"`
}
