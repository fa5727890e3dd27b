package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nikolayk812/shipstock/internal/config"
	"github.com/nikolayk812/shipstock/internal/logger"
	"github.com/nikolayk812/shipstock/internal/shutdown"
)

const usage = `usage: shipstock <command> [flags]

commands:
  migrate           apply the database schema
  import-shipping   import zones and methods from a YAML file
  quote             list shipping quotes for a destination
  cost              calculate the cost of one shipping method
  set-stock         create or update a product and its stock
  place             reserve stock and place an order
  status            move an order to another status
  cancel            cancel an order and restore its stock
`

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Output:  os.Stderr,
	})

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	if err := run(ctx, cfg, log, os.Args[1:], os.Stdout); err != nil {
		log.Error("command failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage("missing command")
	}

	newCmd, ok := commands[args[0]]
	if !ok {
		return errUsage(fmt.Sprintf("unknown command %q", args[0]))
	}

	cmd := newCmd()
	if err := cmd.parse(args[1:]); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("newApp: %w", err)
	}
	defer a.Close()

	return cmd.run(ctx, a, out)
}

func errUsage(msg string) error {
	return fmt.Errorf("%s\n\n%s", msg, usage)
}
