package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/nikolayk812/shipstock/internal/repository"
	"github.com/nikolayk812/shipstock/internal/shippingconfig"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type command interface {
	parse(args []string) error
	run(ctx context.Context, a *app, out io.Writer) error
}

var commands = map[string]func() command{
	"migrate":         func() command { return &migrateCmd{} },
	"import-shipping": func() command { return &importShippingCmd{} },
	"quote":           func() command { return &quoteCmd{} },
	"cost":            func() command { return &costCmd{} },
	"set-stock":       func() command { return &setStockCmd{} },
	"place":           func() command { return &placeCmd{} },
	"status":          func() command { return &statusCmd{} },
	"cancel":          func() command { return &cancelCmd{} },
}

type migrateCmd struct{}

func (c *migrateCmd) parse(args []string) error {
	return flag.NewFlagSet("migrate", flag.ContinueOnError).Parse(args)
}

func (c *migrateCmd) run(ctx context.Context, a *app, out io.Writer) error {
	if err := repository.Migrate(ctx, a.pool); err != nil {
		return fmt.Errorf("repository.Migrate: %w", err)
	}
	return writeJSON(out, map[string]string{"status": "migrated"})
}

type importShippingCmd struct {
	file string
}

func (c *importShippingCmd) parse(args []string) error {
	fs := flag.NewFlagSet("import-shipping", flag.ContinueOnError)
	fs.StringVar(&c.file, "file", "", "path to the YAML shipping configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.file == "" {
		return errors.New("-file is required")
	}
	return nil
}

func (c *importShippingCmd) run(ctx context.Context, a *app, out io.Writer) error {
	f, err := shippingconfig.LoadFile(c.file)
	if err != nil {
		return fmt.Errorf("shippingconfig.LoadFile: %w", err)
	}

	result, err := shippingconfig.Apply(ctx, a.shippingRepo, f)
	if err != nil {
		return fmt.Errorf("shippingconfig.Apply: %w", err)
	}

	a.log.Info("shipping configuration imported", "file", c.file, "zones", result.Zones, "methods", result.Methods)

	return writeJSON(out, result)
}

type quoteCmd struct {
	country string
	weight  decimalFlag
	amount  decimalFlag
}

func (c *quoteCmd) parse(args []string) error {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	fs.StringVar(&c.country, "country", "", "destination country code")
	fs.Var(&c.weight, "weight", "total weight in kg")
	fs.Var(&c.amount, "amount", "order amount")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.country == "" {
		return errors.New("-country is required")
	}
	return nil
}

func (c *quoteCmd) run(ctx context.Context, a *app, out io.Writer) error {
	availability, err := a.resolver.AvailableMethods(ctx, c.country, c.weight.Decimal, c.amount.Decimal)
	if err != nil {
		return fmt.Errorf("resolver.AvailableMethods: %w", err)
	}
	return writeJSON(out, availability)
}

type costCmd struct {
	method string
	weight decimalFlag
	amount decimalFlag
}

func (c *costCmd) parse(args []string) error {
	fs := flag.NewFlagSet("cost", flag.ContinueOnError)
	fs.StringVar(&c.method, "method", "", "shipping method id")
	fs.Var(&c.weight, "weight", "total weight in kg")
	fs.Var(&c.amount, "amount", "order amount")
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, err := uuid.Parse(c.method)
	if err != nil {
		return fmt.Errorf("-method: %w", err)
	}
	return nil
}

func (c *costCmd) run(ctx context.Context, a *app, out io.Writer) error {
	result, err := a.resolver.CalculateCost(ctx, uuid.MustParse(c.method), c.weight.Decimal, c.amount.Decimal)
	if err != nil {
		return fmt.Errorf("resolver.CalculateCost: %w", err)
	}
	return writeJSON(out, result)
}

type setStockCmd struct {
	product  string
	name     string
	price    decimalFlag
	currency string
	stock    int
}

func (c *setStockCmd) parse(args []string) error {
	fs := flag.NewFlagSet("set-stock", flag.ContinueOnError)
	fs.StringVar(&c.product, "product", "", "product id, generated when empty")
	fs.StringVar(&c.name, "name", "", "product name")
	fs.Var(&c.price, "price", "unit price")
	fs.StringVar(&c.currency, "currency", "EUR", "price currency")
	fs.IntVar(&c.stock, "stock", 0, "units on hand")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.product != "" {
		if _, err := uuid.Parse(c.product); err != nil {
			return fmt.Errorf("-product: %w", err)
		}
	}
	if c.stock < 0 {
		return errors.New("-stock must not be negative")
	}
	if _, err := currency.ParseISO(c.currency); err != nil {
		return fmt.Errorf("-currency: %w", err)
	}
	return nil
}

func (c *setStockCmd) run(ctx context.Context, a *app, out io.Writer) error {
	id := uuid.New()
	if c.product != "" {
		id = uuid.MustParse(c.product)
	}

	product := domain.Product{
		ID:    id,
		Name:  c.name,
		Price: domain.Money{Amount: c.price.Decimal, Currency: currency.MustParseISO(c.currency)},
		Stock: c.stock,
	}

	if err := a.stockRepo.UpsertProduct(ctx, product); err != nil {
		return fmt.Errorf("stockRepo.UpsertProduct: %w", err)
	}

	return writeJSON(out, map[string]any{"product_id": id, "stock": c.stock})
}

type placeCmd struct {
	order  string
	number string
	items  itemsFlag
}

func (c *placeCmd) parse(args []string) error {
	fs := flag.NewFlagSet("place", flag.ContinueOnError)
	fs.StringVar(&c.order, "order", "", "order id, generated when empty")
	fs.StringVar(&c.number, "number", "", "order number, generated when empty")
	fs.Var(&c.items, "item", "order line as <product id>:<quantity>, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.order != "" {
		if _, err := uuid.Parse(c.order); err != nil {
			return fmt.Errorf("-order: %w", err)
		}
	}
	if len(c.items) == 0 {
		return errors.New("at least one -item is required")
	}
	return nil
}

// run prices every line at the current catalogue price before placing the order.
func (c *placeCmd) run(ctx context.Context, a *app, out io.Writer) error {
	o := domain.Order{OrderNumber: c.number}
	if c.order != "" {
		o.ID = uuid.MustParse(c.order)
	}

	for _, item := range c.items {
		product, err := a.stockRepo.GetProduct(ctx, item.ProductID)
		if err != nil {
			return fmt.Errorf("stockRepo.GetProduct: %w", err)
		}
		o.Items = append(o.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
	}

	result, err := a.orders.PlaceOrder(ctx, o)
	if err != nil {
		return fmt.Errorf("orders.PlaceOrder: %w", err)
	}

	view := map[string]any{
		"order_id":     result.Order.ID,
		"order_number": result.Order.OrderNumber,
		"placed":       result.Placed,
	}
	if result.Duplicate {
		view["duplicate"] = true
	}
	if len(result.Shortages) > 0 {
		view["shortages"] = result.Shortages
	}

	return writeJSON(out, view)
}

type statusCmd struct {
	order string
	to    string
}

func (c *statusCmd) parse(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.StringVar(&c.order, "order", "", "order id")
	fs.StringVar(&c.to, "to", "", "target status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := uuid.Parse(c.order); err != nil {
		return fmt.Errorf("-order: %w", err)
	}
	if _, err := domain.ToOrderStatus(c.to); err != nil {
		return fmt.Errorf("-to: %w", err)
	}
	return nil
}

func (c *statusCmd) run(ctx context.Context, a *app, out io.Writer) error {
	result, err := a.orders.ChangeStatus(ctx, uuid.MustParse(c.order), domain.OrderStatus(c.to))
	if err != nil {
		return fmt.Errorf("orders.ChangeStatus: %w", err)
	}
	return writeJSON(out, transitionView(result.Order.ID, result.From, result.Order.Status, result.StockRestored, string(result.SkipReason)))
}

type cancelCmd struct {
	order string
}

func (c *cancelCmd) parse(args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	fs.StringVar(&c.order, "order", "", "order id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := uuid.Parse(c.order); err != nil {
		return fmt.Errorf("-order: %w", err)
	}
	return nil
}

func (c *cancelCmd) run(ctx context.Context, a *app, out io.Writer) error {
	result, err := a.orders.Cancel(ctx, uuid.MustParse(c.order))
	if err != nil {
		return fmt.Errorf("orders.Cancel: %w", err)
	}
	return writeJSON(out, transitionView(result.Order.ID, result.From, result.Order.Status, result.StockRestored, string(result.SkipReason)))
}

func transitionView(orderID uuid.UUID, from, to domain.OrderStatus, restored bool, skip string) map[string]any {
	view := map[string]any{
		"order_id":       orderID,
		"from":           from,
		"to":             to,
		"stock_restored": restored,
	}
	if skip != "" {
		view["skip_reason"] = skip
	}
	return view
}

// decimalFlag parses a flag value without going through float64.
type decimalFlag struct {
	decimal.Decimal
}

func (f *decimalFlag) Set(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%q is not a number", s)
	}
	f.Decimal = d
	return nil
}

type itemsFlag []domain.StockItem

func (f *itemsFlag) String() string {
	parts := make([]string, 0, len(*f))
	for _, item := range *f {
		parts = append(parts, fmt.Sprintf("%s:%d", item.ProductID, item.Quantity))
	}
	return strings.Join(parts, ",")
}

func (f *itemsFlag) Set(s string) error {
	id, qty, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("%q is not <product id>:<quantity>", s)
	}

	productID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("product id %q: %w", id, err)
	}

	quantity, err := strconv.Atoi(qty)
	if err != nil || quantity <= 0 {
		return fmt.Errorf("quantity %q must be a positive integer", qty)
	}

	for _, item := range *f {
		if item.ProductID == productID {
			return fmt.Errorf("product %s is listed twice", productID)
		}
	}

	*f = append(*f, domain.StockItem{ProductID: productID, Quantity: quantity})
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
