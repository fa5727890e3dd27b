package shipping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/nikolayk812/shipstock/internal/port"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type Resolver struct {
	repo   port.ShippingReader
	logger *slog.Logger
}

func NewResolver(repo port.ShippingReader, logger *slog.Logger) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("repo is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		repo:   repo,
		logger: logger,
	}, nil
}

// AvailableMethods returns every active method of the zone serving country that
// accepts weight, sorted by cost. Ties keep the repository order.
func (r *Resolver) AvailableMethods(ctx context.Context, country string, weight, orderAmount decimal.Decimal) (Availability, error) {
	if weight.IsNegative() || orderAmount.IsNegative() {
		return Availability{Methods: []Quote{}, Reason: ReasonInvalidInput}, nil
	}

	country = domain.NormalizeCountry(country)

	zone, err := r.repo.FindZoneByCountry(ctx, country)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return Availability{
				Methods: []Quote{},
				Reason:  fmt.Sprintf("%s for country %s", ReasonNoShippingAvailable, country),
			}, nil
		}
		return Availability{}, fmt.Errorf("repo.FindZoneByCountry[%s]: %w", country, err)
	}

	methods, err := r.repo.ListMethods(ctx, zone.ID)
	if err != nil {
		return Availability{}, fmt.Errorf("repo.ListMethods[%s]: %w", zone.ID, err)
	}

	quotes := make([]Quote, 0, len(methods))
	var rejected []string

	for _, method := range lo.Filter(methods, func(m domain.ShippingMethod, _ int) bool { return m.Active }) {
		result := r.calculate(method, weight, orderAmount)
		if !result.Success {
			rejected = append(rejected, method.Name+": "+result.Reason)
			continue
		}

		quotes = append(quotes, Quote{
			MethodID:         method.ID,
			Name:             method.Name,
			Cost:             result.Cost,
			FreeShipping:     result.FreeShipping,
			DeliveryEstimate: method.DeliveryEstimate,
		})
	}

	if len(quotes) == 0 {
		reason := fmt.Sprintf("%s for weight %s in zone %s", ReasonNoShippingAvailable, weight.String(), zone.Name)
		if len(rejected) > 0 {
			reason += " (" + strings.Join(rejected, "; ") + ")"
		}
		return Availability{Methods: []Quote{}, Reason: reason}, nil
	}

	slices.SortStableFunc(quotes, func(a, b Quote) int {
		return a.Cost.Amount.Cmp(b.Cost.Amount)
	})

	return Availability{Success: true, Methods: quotes}, nil
}

// CalculateCost prices a single method by id. The method and its zone must be active.
func (r *Resolver) CalculateCost(ctx context.Context, methodID uuid.UUID, weight, orderAmount decimal.Decimal) (CostResult, error) {
	method, err := r.repo.GetMethod(ctx, methodID)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return failure(ReasonMethodNotFound), nil
		}
		return CostResult{}, fmt.Errorf("repo.GetMethod[%s]: %w", methodID, err)
	}

	if !method.Active {
		return failure(ReasonMethodInactive), nil
	}

	zone, err := r.repo.GetZone(ctx, method.ZoneID)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return failure(ReasonMethodInactive), nil
		}
		return CostResult{}, fmt.Errorf("repo.GetZone[%s]: %w", method.ZoneID, err)
	}
	if !zone.Active {
		return failure(ReasonMethodInactive), nil
	}

	return r.calculate(method, weight, orderAmount), nil
}

func (r *Resolver) calculate(method domain.ShippingMethod, weight, orderAmount decimal.Decimal) CostResult {
	result := Calculate(method, weight, orderAmount)

	if !result.Success && strings.HasPrefix(result.Reason, ReasonMisconfigured) {
		r.logger.Error("Misconfigured shipping method reached calculation",
			"method", "Resolver.calculate",
			"shipping_method_id", method.ID,
			"reason", result.Reason)
	}

	return result
}
