package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
)

type ShippingReader interface {
	// FindZoneByCountry returns the active zone containing country or ErrNotFound.
	FindZoneByCountry(ctx context.Context, country string) (domain.ShippingZone, error)
	GetZone(ctx context.Context, zoneID uuid.UUID) (domain.ShippingZone, error)

	// ListMethods returns every method of the zone, active or not, ordered by sort order then creation.
	ListMethods(ctx context.Context, zoneID uuid.UUID) ([]domain.ShippingMethod, error)
	GetMethod(ctx context.Context, methodID uuid.UUID) (domain.ShippingMethod, error)
}

type ShippingRepository interface {
	ShippingReader

	// SaveZone upserts the zone, ErrConflict when an active zone already holds one of its countries.
	SaveZone(ctx context.Context, zone domain.ShippingZone) error
	SaveMethod(ctx context.Context, method domain.ShippingMethod) error

	// WithinTx runs fn against a repository bound to one transaction, any error from fn rolls every write back.
	WithinTx(ctx context.Context, fn func(repo ShippingRepository) error) error
}
