package shippingconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/nikolayk812/shipstock/internal/port"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// namespace for ids derived from names, so re-importing a file updates rows in place
var idNamespace = uuid.MustParse("5b7c54c1-0f1e-4d0e-9a47-6f3f1e0c2a11")

type Result struct {
	Zones   int
	Methods int
}

// ToDomain converts and validates the whole file before anything is written.
func ToDomain(f *File) ([]domain.ShippingZone, []domain.ShippingMethod, error) {
	var (
		zones   []domain.ShippingZone
		methods []domain.ShippingMethod
	)

	zoneNames := make(map[string]struct{}, len(f.Zones))

	for i, z := range f.Zones {
		zone, err := toZone(z)
		if err != nil {
			return nil, nil, fmt.Errorf("zones[%d]: %w", i, err)
		}

		key := strings.ToLower(zone.Name)
		if _, ok := zoneNames[key]; ok {
			return nil, nil, fmt.Errorf("zones[%d]: duplicate zone name %s", i, zone.Name)
		}
		zoneNames[key] = struct{}{}

		if zone.Active {
			for _, other := range zones {
				if shared := lo.Intersect(other.Countries, zone.Countries); other.Active && len(shared) > 0 {
					return nil, nil, fmt.Errorf("zones[%d]: countries %v already listed by active zone %s", i, shared, other.Name)
				}
			}
		}

		methodNames := make(map[string]struct{}, len(z.Methods))
		for j, m := range z.Methods {
			method, err := toMethod(zone, m)
			if err != nil {
				return nil, nil, fmt.Errorf("zones[%d].methods[%d]: %w", i, j, err)
			}

			key := strings.ToLower(method.Name)
			if _, ok := methodNames[key]; ok {
				return nil, nil, fmt.Errorf("zones[%d].methods[%d]: duplicate method name %s", i, j, method.Name)
			}
			methodNames[key] = struct{}{}

			methods = append(methods, method)
		}

		zones = append(zones, zone)
	}

	return zones, methods, nil
}

// Apply writes the whole file in one transaction: a failure leaves the store untouched.
// The zones of the file are first parked inactive, so countries can move between
// them regardless of their order in the file. Zones go before methods because
// methods reference them.
func Apply(ctx context.Context, repo port.ShippingRepository, f *File) (Result, error) {
	zones, methods, err := ToDomain(f)
	if err != nil {
		return Result{}, fmt.Errorf("ToDomain: %w", err)
	}

	var result Result

	err = repo.WithinTx(ctx, func(tx port.ShippingRepository) error {
		for _, zone := range zones {
			parked := zone
			parked.Active = false
			if err := tx.SaveZone(ctx, parked); err != nil {
				return fmt.Errorf("tx.SaveZone[%s]: %w", zone.Name, err)
			}
		}

		for _, zone := range zones {
			if err := tx.SaveZone(ctx, zone); err != nil {
				return fmt.Errorf("tx.SaveZone[%s]: %w", zone.Name, err)
			}
			result.Zones++
		}

		for _, method := range methods {
			if err := tx.SaveMethod(ctx, method); err != nil {
				return fmt.Errorf("tx.SaveMethod[%s]: %w", method.Name, err)
			}
			result.Methods++
		}

		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("repo.WithinTx: %w", err)
	}

	return result, nil
}

func toZone(z Zone) (domain.ShippingZone, error) {
	id, err := parseOrDeriveID(z.ID, "zone:"+strings.ToLower(strings.TrimSpace(z.Name)))
	if err != nil {
		return domain.ShippingZone{}, err
	}

	zone := domain.ShippingZone{
		ID:        id,
		Name:      strings.TrimSpace(z.Name),
		Countries: z.Countries,
		Active:    lo.FromPtrOr(z.Active, true),
	}.Normalized()

	if err := zone.Validate(); err != nil {
		return domain.ShippingZone{}, err
	}

	return zone, nil
}

func toMethod(zone domain.ShippingZone, m Method) (domain.ShippingMethod, error) {
	name := strings.TrimSpace(m.Name)

	id, err := parseOrDeriveID(m.ID, "method:"+zone.ID.String()+":"+strings.ToLower(name))
	if err != nil {
		return domain.ShippingMethod{}, err
	}

	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return domain.ShippingMethod{}, fmt.Errorf("currency[%s] is not valid: %w", m.Currency, err)
	}

	method := domain.ShippingMethod{
		ID:               id,
		ZoneID:           zone.ID,
		Name:             name,
		Currency:         unit,
		DeliveryEstimate: m.DeliveryEstimate,
		SortOrder:        m.SortOrder,
		Active:           lo.FromPtrOr(m.Active, true),
	}

	if method.BaseCost, err = parseDecimal("base_cost", m.BaseCost); err != nil {
		return domain.ShippingMethod{}, err
	}
	if method.CostPerKg, err = parseDecimal("cost_per_kg", m.CostPerKg); err != nil {
		return domain.ShippingMethod{}, err
	}
	if method.FreeShippingThreshold, err = parseOptionalDecimal("free_shipping_threshold", m.FreeShippingThreshold); err != nil {
		return domain.ShippingMethod{}, err
	}
	if method.MinWeight, err = parseOptionalDecimal("min_weight", m.MinWeight); err != nil {
		return domain.ShippingMethod{}, err
	}
	if method.MaxWeight, err = parseOptionalDecimal("max_weight", m.MaxWeight); err != nil {
		return domain.ShippingMethod{}, err
	}

	for i, b := range m.Brackets {
		bracket, err := toBracket(b)
		if err != nil {
			return domain.ShippingMethod{}, fmt.Errorf("brackets[%d]: %w", i, err)
		}
		method.Brackets = append(method.Brackets, bracket)
	}

	if err := method.Validate(); err != nil {
		return domain.ShippingMethod{}, err
	}

	return method, nil
}

func toBracket(b Bracket) (domain.WeightBracket, error) {
	minWeight, err := parseDecimal("min", b.Min)
	if err != nil {
		return domain.WeightBracket{}, err
	}

	maxWeight, err := parseOptionalDecimal("max", b.Max)
	if err != nil {
		return domain.WeightBracket{}, err
	}

	cost, err := parseDecimal("cost", b.Cost)
	if err != nil {
		return domain.WeightBracket{}, err
	}

	return domain.WeightBracket{MinWeight: minWeight, MaxWeight: maxWeight, Cost: cost}, nil
}

func parseOrDeriveID(raw, name string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.NewSHA1(idNamespace, []byte(name)), nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("id[%s] is not valid: %w", raw, err)
	}

	return id, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s[%s] is not a number", field, raw)
	}
	return d, nil
}

func parseOptionalDecimal(field, raw string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	d, err := parseDecimal(field, raw)
	if err != nil {
		return nil, err
	}

	return &d, nil
}
