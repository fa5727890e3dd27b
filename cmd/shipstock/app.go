package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/shipstock/internal/cache"
	"github.com/nikolayk812/shipstock/internal/config"
	"github.com/nikolayk812/shipstock/internal/events"
	"github.com/nikolayk812/shipstock/internal/order"
	"github.com/nikolayk812/shipstock/internal/port"
	"github.com/nikolayk812/shipstock/internal/postgres"
	"github.com/nikolayk812/shipstock/internal/repository"
	"github.com/nikolayk812/shipstock/internal/shipping"
	"github.com/nikolayk812/shipstock/internal/stock"
	"github.com/redis/go-redis/v9"
)

type app struct {
	log  *slog.Logger
	pool *pgxpool.Pool
	rdb  *redis.Client

	producer *events.Producer

	shippingRepo port.ShippingRepository
	stockRepo    port.StockRepository

	resolver *shipping.Resolver
	orders   *order.Service
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.pool, err = postgres.Connect(ctx, cfg.PostgresDSN, postgres.DefaultPoolOptions())
	if err != nil {
		return nil, fmt.Errorf("postgres.Connect: %w", err)
	}

	a.shippingRepo = repository.NewShipping(a.pool)
	a.stockRepo = repository.NewStock(a.pool)

	if cfg.UseRedis {
		a.rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

		a.shippingRepo, err = cache.NewShipping(a.shippingRepo, a.rdb, cfg.ShippingCacheTTL, log)
		if err != nil {
			return nil, fmt.Errorf("cache.NewShipping: %w", err)
		}
	}

	ledgerOpts := []stock.Option{stock.WithLogger(log)}

	if cfg.UseKafka {
		a.producer = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.ServiceName, 1024, events.WithLogger(log))
		// the producer outlives ctx so events of an interrupted command still flush on Close
		a.producer.Start(context.WithoutCancel(ctx))

		ledgerOpts = append(ledgerOpts, stock.WithPublisher(a.producer))
	}

	a.resolver, err = shipping.NewResolver(a.shippingRepo, log)
	if err != nil {
		return nil, fmt.Errorf("shipping.NewResolver: %w", err)
	}

	ledger, err := stock.NewLedger(a.stockRepo, ledgerOpts...)
	if err != nil {
		return nil, fmt.Errorf("stock.NewLedger: %w", err)
	}

	a.orders, err = order.NewService(repository.NewOrder(a.pool), ledger, log)
	if err != nil {
		return nil, fmt.Errorf("order.NewService: %w", err)
	}

	return a, nil
}

func (a *app) Close() {
	if a.producer != nil {
		a.producer.Close()
		a.producer.WaitClosed()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("redis close failed", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
