package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ShippingZone groups destination countries that share one set of shipping methods.
// A country belongs to at most one active zone.
type ShippingZone struct {
	ID        uuid.UUID
	Name      string
	Countries []string
	Active    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (z ShippingZone) Validate() error {
	if z.ID == uuid.Nil {
		return errors.New("id is empty")
	}
	if strings.TrimSpace(z.Name) == "" {
		return errors.New("name is empty")
	}
	if len(z.Countries) == 0 {
		return errors.New("countries are empty")
	}

	for _, c := range z.Countries {
		if !validCountryCode(c) {
			return fmt.Errorf("country[%s] is not valid", c)
		}
	}

	if len(lo.Uniq(z.Countries)) != len(z.Countries) {
		return errors.New("countries contain duplicates")
	}

	return nil
}

func (z ShippingZone) Contains(country string) bool {
	return lo.Contains(z.Countries, NormalizeCountry(country))
}

// Normalized returns a copy of the zone with upper-cased, trimmed and de-duplicated country codes.
func (z ShippingZone) Normalized() ShippingZone {
	z.Countries = lo.Uniq(lo.Map(z.Countries, func(c string, _ int) string {
		return NormalizeCountry(c)
	}))
	return z
}

func NormalizeCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}

// two or three upper-case ASCII letters
func validCountryCode(c string) bool {
	if len(c) < 2 || len(c) > 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
