package repository_test

import (
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/nikolayk812/shipstock/internal/port"
	"github.com/nikolayk812/shipstock/internal/repository"
	"github.com/nikolayk812/shipstock/internal/shipping"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"golang.org/x/text/currency"
)

type shippingRepositorySuite struct {
	suite.Suite

	repo      port.ShippingRepository
	pool      *pgxpool.Pool
	container testcontainers.Container
}

// entry point to run the tests in the suite
func TestShippingRepositorySuite(t *testing.T) {
	suite.Run(t, new(shippingRepositorySuite))
}

// before all tests in the suite
func (suite *shippingRepositorySuite) SetupSuite() {
	ctx := suite.T().Context()

	var err error

	suite.container, suite.pool, err = startMigratedPool(ctx)
	suite.Require().NoError(err)

	suite.repo = repository.NewShipping(suite.pool)
}

// after all tests in the suite
func (suite *shippingRepositorySuite) TearDownSuite() {
	if suite.pool != nil {
		suite.pool.Close()
	}
	if suite.container != nil {
		suite.NoError(suite.container.Terminate(suite.T().Context()))
	}
}

func (suite *shippingRepositorySuite) TearDownTest() {
	_, err := suite.pool.Exec(suite.T().Context(), "TRUNCATE TABLE shipping_zones CASCADE")
	suite.NoError(err)
}

func (suite *shippingRepositorySuite) TestSaveZone() {
	existing := randomZone("DE", "AT")
	suite.Require().NoError(suite.repo.SaveZone(suite.T().Context(), existing))

	tests := []struct {
		name      string
		zone      domain.ShippingZone
		wantError string
		wantIs    error
	}{
		{
			name: "new zone: ok",
			zone: randomZone("FR", "BE"),
		},
		{
			name: "country codes are normalized: ok",
			zone: randomZone(" nl ", "NL", "lu"),
		},
		{
			name: "inactive zone may overlap: ok",
			zone: func() domain.ShippingZone {
				z := randomZone("DE")
				z.Active = false
				return z
			}(),
		},
		{
			name: "re-saving the same zone: ok",
			zone: func() domain.ShippingZone {
				z := existing
				z.Name = "renamed"
				z.Countries = []string{"DE", "AT", "CH"}
				return z
			}(),
		},
		{
			name:   "active zone overlapping another active zone: conflict",
			zone:   randomZone("AT", "PL"),
			wantIs: port.ErrConflict,
		},
		{
			name:      "malformed country: fail",
			zone:      randomZone("Germany"),
			wantError: "zone.Validate: country[GERMANY] is not valid",
		},
		{
			name: "empty name: fail",
			zone: func() domain.ShippingZone {
				z := randomZone("IT")
				z.Name = " "
				return z
			}(),
			wantError: "zone.Validate: name is empty",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()

			err := suite.repo.SaveZone(ctx, tt.zone)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			if tt.wantIs != nil {
				require.ErrorIs(t, err, tt.wantIs)
				return
			}
			require.NoError(t, err)

			actual, err := suite.repo.GetZone(ctx, tt.zone.ID)
			require.NoError(t, err)

			assertZone(t, tt.zone.Normalized(), actual)
		})
	}
}

func (suite *shippingRepositorySuite) TestFindZoneByCountry() {
	ctx := suite.T().Context()

	active := randomZone("US", "CA")
	inactive := randomZone("MX")
	inactive.Active = false

	suite.Require().NoError(suite.repo.SaveZone(ctx, active))
	suite.Require().NoError(suite.repo.SaveZone(ctx, inactive))

	tests := []struct {
		name     string
		country  string
		wantZone *domain.ShippingZone
	}{
		{
			name:     "exact code: ok",
			country:  "US",
			wantZone: &active,
		},
		{
			name:     "lower case with spaces: ok",
			country:  " ca ",
			wantZone: &active,
		},
		{
			name:    "only served by an inactive zone: not found",
			country: "MX",
		},
		{
			name:    "unknown country: not found",
			country: "XX",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()

			actual, err := suite.repo.FindZoneByCountry(t.Context(), tt.country)
			if tt.wantZone == nil {
				require.ErrorIs(t, err, port.ErrNotFound)
				return
			}
			require.NoError(t, err)

			assertZone(t, *tt.wantZone, actual)
		})
	}
}

func (suite *shippingRepositorySuite) TestSaveMethod() {
	ctx := suite.T().Context()

	zone := randomZone("JP")
	suite.Require().NoError(suite.repo.SaveZone(ctx, zone))

	tests := []struct {
		name      string
		method    domain.ShippingMethod
		wantError string
		wantIs    error
	}{
		{
			name:   "base and per kg method: ok",
			method: randomMethod(zone.ID),
		},
		{
			name: "bracket method with limits: ok",
			method: func() domain.ShippingMethod {
				m := randomMethod(zone.ID)
				m.MinWeight = lo.ToPtr(dec("0.5"))
				m.MaxWeight = lo.ToPtr(dec("30"))
				m.FreeShippingThreshold = lo.ToPtr(dec("100"))
				m.Brackets = []domain.WeightBracket{
					{MinWeight: dec("0"), MaxWeight: lo.ToPtr(dec("2")), Cost: dec("8")},
					{MinWeight: dec("2"), MaxWeight: lo.ToPtr(dec("10")), Cost: dec("15")},
					{MinWeight: dec("10"), Cost: dec("25")},
				}
				return m
			}(),
		},
		{
			name: "unknown zone: not found",
			method: func() domain.ShippingMethod {
				return randomMethod(uuid.New())
			}(),
			wantIs: port.ErrNotFound,
		},
		{
			name: "bracket gap: fail",
			method: func() domain.ShippingMethod {
				m := randomMethod(zone.ID)
				m.Brackets = []domain.WeightBracket{
					{MinWeight: dec("0"), MaxWeight: lo.ToPtr(dec("2")), Cost: dec("8")},
					{MinWeight: dec("3"), Cost: dec("15")},
				}
				return m
			}(),
			wantError: "method.Validate: brackets: [0]: gap before the next bracket",
		},
		{
			name: "negative base cost: fail",
			method: func() domain.ShippingMethod {
				m := randomMethod(zone.ID)
				m.BaseCost = dec("-1")
				return m
			}(),
			wantError: "method.Validate: base cost is negative",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()

			err := suite.repo.SaveMethod(ctx, tt.method)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			if tt.wantIs != nil {
				require.ErrorIs(t, err, tt.wantIs)
				return
			}
			require.NoError(t, err)

			actual, err := suite.repo.GetMethod(ctx, tt.method.ID)
			require.NoError(t, err)

			assertMethod(t, tt.method, actual)

			// saving again replaces the brackets instead of appending
			require.NoError(t, suite.repo.SaveMethod(ctx, tt.method))

			actual, err = suite.repo.GetMethod(ctx, tt.method.ID)
			require.NoError(t, err)
			assertMethod(t, tt.method, actual)
		})
	}
}

func (suite *shippingRepositorySuite) TestListMethodsOrder() {
	t := suite.T()
	ctx := t.Context()

	zone := randomZone("GB")
	require.NoError(t, suite.repo.SaveZone(ctx, zone))

	second := randomMethod(zone.ID)
	second.SortOrder = 2
	first := randomMethod(zone.ID)
	first.SortOrder = 1

	require.NoError(t, suite.repo.SaveMethod(ctx, second))
	require.NoError(t, suite.repo.SaveMethod(ctx, first))

	methods, err := suite.repo.ListMethods(ctx, zone.ID)
	require.NoError(t, err)

	ids := lo.Map(methods, func(m domain.ShippingMethod, _ int) uuid.UUID { return m.ID })
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, ids)

	empty, err := suite.repo.ListMethods(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func (suite *shippingRepositorySuite) TestResolverOverPostgres() {
	t := suite.T()
	ctx := t.Context()

	zone := randomZone("SE", "NO")
	require.NoError(t, suite.repo.SaveZone(ctx, zone))

	express := randomMethod(zone.ID)
	express.Name = "express"
	express.BaseCost = dec("20")
	express.CostPerKg = dec("1")

	standard := randomMethod(zone.ID)
	standard.Name = "standard"
	standard.BaseCost = dec("5")
	standard.CostPerKg = dec("2.5")

	require.NoError(t, suite.repo.SaveMethod(ctx, express))
	require.NoError(t, suite.repo.SaveMethod(ctx, standard))

	resolver, err := shipping.NewResolver(suite.repo, nil)
	require.NoError(t, err)

	availability, err := resolver.AvailableMethods(ctx, "se", dec("3"), dec("10"))
	require.NoError(t, err)
	require.True(t, availability.Success)

	names := lo.Map(availability.Methods, func(q shipping.Quote, _ int) string { return q.Name })
	assert.Equal(t, []string{"standard", "express"}, names)
	assert.Equal(t, "12.50", availability.Methods[0].Cost.Amount.StringFixed(2))

	missing, err := resolver.AvailableMethods(ctx, "ZZ", dec("3"), dec("10"))
	require.NoError(t, err)
	assert.False(t, missing.Success)
	assert.Empty(t, missing.Methods)
}

func (suite *shippingRepositorySuite) TestWithinTx() {
	t := suite.T()
	ctx := t.Context()

	zone := randomZone("SE")
	method := randomMethod(zone.ID)

	rollback := errors.New("rollback")
	err := suite.repo.WithinTx(ctx, func(tx port.ShippingRepository) error {
		require.NoError(t, tx.SaveZone(ctx, zone))
		require.NoError(t, tx.SaveMethod(ctx, method))

		// visible inside the transaction
		_, err := tx.GetMethod(ctx, method.ID)
		require.NoError(t, err)

		return rollback
	})
	require.ErrorIs(t, err, rollback)

	_, err = suite.repo.GetZone(ctx, zone.ID)
	require.ErrorIs(t, err, port.ErrNotFound)
	_, err = suite.repo.GetMethod(ctx, method.ID)
	require.ErrorIs(t, err, port.ErrNotFound)

	err = suite.repo.WithinTx(ctx, func(tx port.ShippingRepository) error {
		if err := tx.SaveZone(ctx, zone); err != nil {
			return err
		}
		return tx.SaveMethod(ctx, method)
	})
	require.NoError(t, err)

	_, err = suite.repo.GetMethod(ctx, method.ID)
	require.NoError(t, err)
}

func (suite *shippingRepositorySuite) TestWithTxSharedWithStock() {
	t := suite.T()
	ctx := t.Context()

	defer func() {
		_, err := suite.pool.Exec(ctx, "TRUNCATE TABLE products")
		suite.NoError(err)
	}()

	stockRepo := repository.NewStock(suite.pool)

	save := func(tx pgx.Tx, zone domain.ShippingZone, product domain.Product) {
		require.NoError(t, repository.NewShippingWithTx(tx).SaveZone(ctx, zone))
		require.NoError(t, repository.NewStockWithTx(tx).UpsertProduct(ctx, product))
	}

	rolledBackZone, rolledBackProduct := randomZone("NO"), randomProduct(3)

	tx, err := suite.pool.Begin(ctx)
	require.NoError(t, err)
	save(tx, rolledBackZone, rolledBackProduct)
	require.NoError(t, tx.Rollback(ctx))

	_, err = suite.repo.GetZone(ctx, rolledBackZone.ID)
	require.ErrorIs(t, err, port.ErrNotFound)
	_, err = stockRepo.GetProduct(ctx, rolledBackProduct.ID)
	require.ErrorIs(t, err, port.ErrNotFound)

	zone, product := randomZone("FI"), randomProduct(3)

	tx, err = suite.pool.Begin(ctx)
	require.NoError(t, err)
	save(tx, zone, product)
	require.NoError(t, tx.Commit(ctx))

	_, err = suite.repo.GetZone(ctx, zone.ID)
	require.NoError(t, err)
	stored, err := stockRepo.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Stock)
}

func randomZone(countries ...string) domain.ShippingZone {
	return domain.ShippingZone{
		ID:        uuid.New(),
		Name:      gofakeit.Country(),
		Countries: countries,
		Active:    true,
	}
}

func randomMethod(zoneID uuid.UUID) domain.ShippingMethod {
	return domain.ShippingMethod{
		ID:               uuid.New(),
		ZoneID:           zoneID,
		Name:             gofakeit.Company(),
		Currency:         currency.EUR,
		BaseCost:         decimal.NewFromFloat(gofakeit.Price(1, 20)).Round(2),
		CostPerKg:        decimal.NewFromFloat(gofakeit.Price(0, 5)).Round(2),
		DeliveryEstimate: "2-4 days",
		Active:           true,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var shippingCmpOpts = cmp.Options{
	cmpopts.IgnoreFields(domain.ShippingZone{}, "CreatedAt", "UpdatedAt"),
	cmpopts.IgnoreFields(domain.ShippingMethod{}, "CreatedAt", "UpdatedAt"),
	cmpopts.SortSlices(func(a, b string) bool { return a < b }),
	cmp.Comparer(func(x, y decimal.Decimal) bool { return x.Equal(y) }),
	cmp.Comparer(func(x, y currency.Unit) bool { return x.String() == y.String() }),
	cmpopts.EquateEmpty(),
}

func assertZone(t *testing.T, expected, actual domain.ShippingZone) {
	t.Helper()

	diff := cmp.Diff(expected, actual, shippingCmpOpts)
	assert.Empty(t, diff)

	assert.False(t, actual.CreatedAt.IsZero())
}

func assertMethod(t *testing.T, expected, actual domain.ShippingMethod) {
	t.Helper()

	diff := cmp.Diff(expected, actual, shippingCmpOpts)
	assert.Empty(t, diff)

	assert.False(t, actual.CreatedAt.IsZero())
}
