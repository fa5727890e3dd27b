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
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type shippingRepository struct {
	db DBTX
}

func NewShipping(pool *pgxpool.Pool) port.ShippingRepository {
	return &shippingRepository{db: pool}
}

func NewShippingWithTx(tx pgx.Tx) port.ShippingRepository {
	return &shippingRepository{db: tx}
}

const selectZone = `
	SELECT z.id, z.name, z.active, z.created_at, z.updated_at,
	       COALESCE(ARRAY_AGG(c.country ORDER BY c.country) FILTER (WHERE c.country IS NOT NULL), '{}')
	FROM shipping_zones z
	LEFT JOIN shipping_zone_countries c ON c.zone_id = z.id`

func (r *shippingRepository) FindZoneByCountry(ctx context.Context, country string) (domain.ShippingZone, error) {
	country = domain.NormalizeCountry(country)

	row := r.db.QueryRow(ctx, selectZone+`
		WHERE z.active AND z.id IN (SELECT zone_id FROM shipping_zone_countries WHERE country = $1)
		GROUP BY z.id
		LIMIT 1`, country)

	zone, err := scanZone(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zone, fmt.Errorf("q.FindZoneByCountry[%s]: %w", country, port.ErrNotFound)
		}
		return zone, fmt.Errorf("q.FindZoneByCountry: %w", err)
	}

	return zone, nil
}

func (r *shippingRepository) GetZone(ctx context.Context, zoneID uuid.UUID) (domain.ShippingZone, error) {
	row := r.db.QueryRow(ctx, selectZone+`
		WHERE z.id = $1
		GROUP BY z.id`, zoneID)

	zone, err := scanZone(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zone, fmt.Errorf("q.GetZone: %w", port.ErrNotFound)
		}
		return zone, fmt.Errorf("q.GetZone: %w", err)
	}

	return zone, nil
}

const selectMethod = `
	SELECT id, zone_id, name, currency, base_cost, cost_per_kg, free_shipping_threshold,
	       min_weight, max_weight, delivery_estimate, sort_order, active, created_at, updated_at
	FROM shipping_methods`

func (r *shippingRepository) ListMethods(ctx context.Context, zoneID uuid.UUID) ([]domain.ShippingMethod, error) {
	return withTx(ctx, r.db, func(q DBTX) ([]domain.ShippingMethod, error) {
		rows, err := q.Query(ctx, selectMethod+`
			WHERE zone_id = $1
			ORDER BY sort_order, created_at, id`, zoneID)
		if err != nil {
			return nil, fmt.Errorf("q.ListMethods: %w", err)
		}

		methods, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ShippingMethod, error) {
			return scanMethod(row)
		})
		if err != nil {
			return nil, fmt.Errorf("pgx.CollectRows: %w", err)
		}

		brackets, err := getBrackets(ctx, q, lo.Map(methods, func(m domain.ShippingMethod, _ int) uuid.UUID { return m.ID }))
		if err != nil {
			return nil, fmt.Errorf("getBrackets: %w", err)
		}

		for i := range methods {
			methods[i].Brackets = brackets[methods[i].ID]
		}

		return methods, nil
	})
}

func (r *shippingRepository) GetMethod(ctx context.Context, methodID uuid.UUID) (domain.ShippingMethod, error) {
	return withTx(ctx, r.db, func(q DBTX) (domain.ShippingMethod, error) {
		method, err := scanMethod(q.QueryRow(ctx, selectMethod+` WHERE id = $1`, methodID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return method, fmt.Errorf("q.GetMethod: %w", port.ErrNotFound)
			}
			return method, fmt.Errorf("q.GetMethod: %w", err)
		}

		brackets, err := getBrackets(ctx, q, []uuid.UUID{methodID})
		if err != nil {
			return method, fmt.Errorf("getBrackets: %w", err)
		}
		method.Brackets = brackets[methodID]

		return method, nil
	})
}

func (r *shippingRepository) SaveZone(ctx context.Context, zone domain.ShippingZone) error {
	zone = zone.Normalized()
	if err := zone.Validate(); err != nil {
		return fmt.Errorf("zone.Validate: %w", err)
	}

	if err := withTxNoResult(ctx, r.db, func(q DBTX) error {
		// serializes concurrent zone writes so the one-active-zone-per-country check holds
		if _, err := q.Exec(ctx, `LOCK TABLE shipping_zone_countries IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("q.LockZoneCountries: %w", err)
		}

		if zone.Active {
			var conflicting []string
			err := q.QueryRow(ctx, `
				SELECT COALESCE(ARRAY_AGG(DISTINCT c.country), '{}')
				FROM shipping_zone_countries c
				JOIN shipping_zones z ON z.id = c.zone_id
				WHERE z.active AND z.id <> $1 AND c.country = ANY($2)`, zone.ID, zone.Countries).Scan(&conflicting)
			if err != nil {
				return fmt.Errorf("q.FindConflictingCountries: %w", err)
			}
			if len(conflicting) > 0 {
				return fmt.Errorf("countries %v already served by another active zone: %w", conflicting, port.ErrConflict)
			}
		}

		if _, err := q.Exec(ctx, `
			INSERT INTO shipping_zones (id, name, active)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active, updated_at = NOW()`,
			zone.ID, zone.Name, zone.Active); err != nil {
			return fmt.Errorf("q.UpsertZone: %w", err)
		}

		if _, err := q.Exec(ctx, `DELETE FROM shipping_zone_countries WHERE zone_id = $1`, zone.ID); err != nil {
			return fmt.Errorf("q.DeleteZoneCountries: %w", err)
		}

		if _, err := q.Exec(ctx, `
			INSERT INTO shipping_zone_countries (zone_id, country)
			SELECT $1, UNNEST($2::TEXT[])`, zone.ID, zone.Countries); err != nil {
			return fmt.Errorf("q.InsertZoneCountries: %w", err)
		}

		return nil
	}); err != nil {
		return fmt.Errorf("r.withTx: %w", err)
	}

	return nil
}

func (r *shippingRepository) WithinTx(ctx context.Context, fn func(repo port.ShippingRepository) error) error {
	if err := withTxNoResult(ctx, r.db, func(q DBTX) error {
		return fn(&shippingRepository{db: q})
	}); err != nil {
		return fmt.Errorf("r.withTx: %w", err)
	}

	return nil
}

func (r *shippingRepository) SaveMethod(ctx context.Context, method domain.ShippingMethod) error {
	if err := method.Validate(); err != nil {
		return fmt.Errorf("method.Validate: %w", err)
	}

	if err := withTxNoResult(ctx, r.db, func(q DBTX) error {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shipping_zones WHERE id = $1)`, method.ZoneID).Scan(&exists); err != nil {
			return fmt.Errorf("q.ZoneExists: %w", err)
		}
		if !exists {
			return fmt.Errorf("zone[%s]: %w", method.ZoneID, port.ErrNotFound)
		}

		if _, err := q.Exec(ctx, `
			INSERT INTO shipping_methods (id, zone_id, name, currency, base_cost, cost_per_kg, free_shipping_threshold,
			                              min_weight, max_weight, delivery_estimate, sort_order, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				zone_id = EXCLUDED.zone_id,
				name = EXCLUDED.name,
				currency = EXCLUDED.currency,
				base_cost = EXCLUDED.base_cost,
				cost_per_kg = EXCLUDED.cost_per_kg,
				free_shipping_threshold = EXCLUDED.free_shipping_threshold,
				min_weight = EXCLUDED.min_weight,
				max_weight = EXCLUDED.max_weight,
				delivery_estimate = EXCLUDED.delivery_estimate,
				sort_order = EXCLUDED.sort_order,
				active = EXCLUDED.active,
				updated_at = NOW()`,
			method.ID, method.ZoneID, method.Name, method.Currency.String(),
			method.BaseCost, method.CostPerKg, toNullDecimal(method.FreeShippingThreshold),
			toNullDecimal(method.MinWeight), toNullDecimal(method.MaxWeight),
			method.DeliveryEstimate, method.SortOrder, method.Active,
		); err != nil {
			return fmt.Errorf("q.UpsertMethod: %w", err)
		}

		if _, err := q.Exec(ctx, `DELETE FROM shipping_weight_brackets WHERE method_id = $1`, method.ID); err != nil {
			return fmt.Errorf("q.DeleteBrackets: %w", err)
		}

		for i, b := range method.Brackets {
			if _, err := q.Exec(ctx, `
				INSERT INTO shipping_weight_brackets (method_id, position, min_weight, max_weight, cost)
				VALUES ($1, $2, $3, $4, $5)`,
				method.ID, i, b.MinWeight, toNullDecimal(b.MaxWeight), b.Cost); err != nil {
				return fmt.Errorf("q.InsertBracket[%d]: %w", i, err)
			}
		}

		return nil
	}); err != nil {
		return fmt.Errorf("r.withTx: %w", err)
	}

	return nil
}

func getBrackets(ctx context.Context, q DBTX, methodIDs []uuid.UUID) (map[uuid.UUID][]domain.WeightBracket, error) {
	result := make(map[uuid.UUID][]domain.WeightBracket, len(methodIDs))
	if len(methodIDs) == 0 {
		return result, nil
	}

	rows, err := q.Query(ctx, `
		SELECT method_id, min_weight, max_weight, cost
		FROM shipping_weight_brackets
		WHERE method_id = ANY($1)
		ORDER BY method_id, position`, methodIDs)
	if err != nil {
		return nil, fmt.Errorf("q.GetBrackets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			methodID uuid.UUID
			b        domain.WeightBracket
			maxW     decimal.NullDecimal
		)
		if err := rows.Scan(&methodID, &b.MinWeight, &maxW, &b.Cost); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		b.MaxWeight = fromNullDecimal(maxW)

		result[methodID] = append(result[methodID], b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return result, nil
}

func scanZone(row pgx.Row) (domain.ShippingZone, error) {
	var z domain.ShippingZone

	if err := row.Scan(&z.ID, &z.Name, &z.Active, &z.CreatedAt, &z.UpdatedAt, &z.Countries); err != nil {
		return domain.ShippingZone{}, err
	}

	return z, nil
}

func scanMethod(row pgx.Row) (domain.ShippingMethod, error) {
	var (
		m                     domain.ShippingMethod
		currencyCode          string
		threshold, minW, maxW decimal.NullDecimal
	)

	if err := row.Scan(&m.ID, &m.ZoneID, &m.Name, &currencyCode, &m.BaseCost, &m.CostPerKg, &threshold,
		&minW, &maxW, &m.DeliveryEstimate, &m.SortOrder, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return domain.ShippingMethod{}, err
	}

	parsedCurrency, err := currency.ParseISO(currencyCode)
	if err != nil {
		return domain.ShippingMethod{}, fmt.Errorf("currency[%s] is not valid: %w", currencyCode, err)
	}

	m.Currency = parsedCurrency
	m.FreeShippingThreshold = fromNullDecimal(threshold)
	m.MinWeight = fromNullDecimal(minW)
	m.MaxWeight = fromNullDecimal(maxW)

	return m, nil
}

func toNullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return lo.ToPtr(d.Decimal)
}
