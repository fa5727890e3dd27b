package shippingconfig

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/nikolayk812/shipstock/internal/port"
	"github.com/nikolayk812/shipstock/internal/repository/memory"
	"github.com/nikolayk812/shipstock/internal/shipping"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	ctx := t.Context()

	f, err := LoadFile(filepath.Join("testdata", "shipping.yaml"))
	require.NoError(t, err)

	repo := memory.NewShipping()

	result, err := Apply(ctx, repo, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Zones: 2, Methods: 3}, result)

	// re-import updates in place
	result, err = Apply(ctx, repo, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Zones: 2, Methods: 3}, result)

	zone, err := repo.FindZoneByCountry(ctx, "FR")
	require.NoError(t, err)

	methods, err := repo.ListMethods(ctx, zone.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Standard", "Express"}, lo.Map(methods, func(m domain.ShippingMethod, _ int) string { return m.Name }))

	// North America is inactive
	_, err = repo.FindZoneByCountry(ctx, "US")
	require.ErrorIs(t, err, port.ErrNotFound)

	resolver, err := shipping.NewResolver(repo, nil)
	require.NoError(t, err)

	availability, err := resolver.AvailableMethods(ctx, "de", decimal.RequireFromString("3"), decimal.RequireFromString("10"))
	require.NoError(t, err)
	require.True(t, availability.Success)
	require.Len(t, availability.Methods, 2)

	assert.Equal(t, "Standard", availability.Methods[0].Name)
	assert.Equal(t, "12.50", availability.Methods[0].Cost.Amount.StringFixed(2))
	assert.Equal(t, "Express", availability.Methods[1].Name)
	assert.Equal(t, "15.00", availability.Methods[1].Cost.Amount.StringFixed(2))
}

func TestApplyIsAtomic(t *testing.T) {
	ctx := t.Context()
	repo := memory.NewShipping()

	alps := domain.ShippingZone{ID: uuid.New(), Name: "Alps", Countries: []string{"CH"}, Active: true}
	require.NoError(t, repo.SaveZone(ctx, alps))

	f, err := Parse([]byte(`
zones:
  - name: EU
    countries: [DE]
    methods:
      - name: Standard
        base_cost: "5"
  - name: Neighbours
    countries: [AT, CH]
`))
	require.NoError(t, err)

	_, err = Apply(ctx, repo, f)
	require.ErrorIs(t, err, port.ErrConflict)

	_, err = repo.FindZoneByCountry(ctx, "DE")
	require.ErrorIs(t, err, port.ErrNotFound)

	zone, err := repo.FindZoneByCountry(ctx, "CH")
	require.NoError(t, err)
	assert.Equal(t, alps.ID, zone.ID)
}

func TestApplyMovesCountryBetweenZones(t *testing.T) {
	ctx := t.Context()
	repo := memory.NewShipping()

	before, err := Parse([]byte(`
zones:
  - name: EU
    countries: [DE, FR]
  - name: Benelux
    countries: [NL]
`))
	require.NoError(t, err)

	_, err = Apply(ctx, repo, before)
	require.NoError(t, err)

	// Benelux takes FR before EU gives it up in file order
	after, err := Parse([]byte(`
zones:
  - name: Benelux
    countries: [NL, FR]
  - name: EU
    countries: [DE]
`))
	require.NoError(t, err)

	result, err := Apply(ctx, repo, after)
	require.NoError(t, err)
	assert.Equal(t, Result{Zones: 2}, result)

	zone, err := repo.FindZoneByCountry(ctx, "FR")
	require.NoError(t, err)
	assert.Equal(t, "Benelux", zone.Name)

	zone, err = repo.FindZoneByCountry(ctx, "DE")
	require.NoError(t, err)
	assert.Equal(t, "EU", zone.Name)
}

func TestToDomain(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantError string
	}{
		{
			name: "valid: ok",
			yaml: `
zones:
  - name: EU
    countries: [DE]
    methods:
      - name: Standard
        base_cost: "5"
`,
		},
		{
			name: "bad amount: fail",
			yaml: `
zones:
  - name: EU
    countries: [DE]
    methods:
      - name: Standard
        base_cost: five
`,
			wantError: "zones[0].methods[0]: base_cost[five] is not a number",
		},
		{
			name: "bracket gap: fail",
			yaml: `
zones:
  - name: EU
    countries: [DE]
    methods:
      - name: Express
        brackets:
          - {min: "0", max: "2", cost: "8"}
          - {min: "3", cost: "15"}
`,
			wantError: "zones[0].methods[0]: brackets: [0]: gap before the next bracket",
		},
		{
			name: "bad country: fail",
			yaml: `
zones:
  - name: EU
    countries: [Germany]
`,
			wantError: "zones[0]: country[GERMANY] is not valid",
		},
		{
			name: "duplicate zone: fail",
			yaml: `
zones:
  - name: EU
    countries: [DE]
  - name: eu
    countries: [FR]
`,
			wantError: "zones[1]: duplicate zone name eu",
		},
		{
			name: "duplicate method: fail",
			yaml: `
zones:
  - name: EU
    countries: [DE]
    methods:
      - name: Standard
      - name: standard
`,
			wantError: "zones[0].methods[1]: duplicate method name standard",
		},
		{
			name: "bad currency: fail",
			yaml: `
currency: XYZW
zones:
  - name: EU
    countries: [DE]
    methods:
      - name: Standard
`,
			wantError: "zones[0].methods[0]: currency[XYZW] is not valid: currency: tag is not well-formed",
		},
		{
			name: "country in two active zones: fail",
			yaml: `
zones:
  - name: EU
    countries: [DE, FR]
  - name: West
    countries: [FR, ES]
`,
			wantError: "zones[1]: countries [FR] already listed by active zone EU",
		},
		{
			name: "country in active and inactive zone: ok",
			yaml: `
zones:
  - name: EU
    countries: [DE, FR]
  - name: West
    countries: [FR, ES]
    active: false
`,
		},
		{
			name: "bad id: fail",
			yaml: `
zones:
  - id: not-a-uuid
    name: EU
    countries: [DE]
`,
			wantError: "zones[0]: id[not-a-uuid] is not valid: invalid UUID length: 10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)

			_, _, err = ToDomain(f)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDerivedIDsAreStable(t *testing.T) {
	f, err := LoadFile(filepath.Join("testdata", "shipping.yaml"))
	require.NoError(t, err)

	zones1, methods1, err := ToDomain(f)
	require.NoError(t, err)

	zones2, methods2, err := ToDomain(f)
	require.NoError(t, err)

	assert.Equal(t, zones1[0].ID, zones2[0].ID)
	assert.Equal(t, methods1[1].ID, methods2[1].ID)
	assert.NotEqual(t, methods1[0].ID, methods1[1].ID)
}
