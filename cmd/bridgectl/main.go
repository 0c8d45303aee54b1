package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/mkrell/bridgectl/internal/api"
	"github.com/mkrell/bridgectl/internal/bridge"
	"github.com/mkrell/bridgectl/internal/credstore"
	"github.com/mkrell/bridgectl/internal/driver"
	"github.com/mkrell/bridgectl/internal/logging"
	"github.com/mkrell/bridgectl/internal/observability"
)

func main() {
	configPath := flag.String("config", "bridgectl.toml", "path to TOML config file")
	flag.Parse()

	cfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
		os.Exit(1)
	}

	logger := observability.InitLogger("bridgectl")
	logging.ConfigureRuntime(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
		os.Exit(1)
	}
}

// run wires store, driver, supervisor and command surface, then blocks until
// signal shutdown. The supervisor and the HTTP server share one context so a
// failure in either tears both down.
func run(cfg appConfig, logger zerolog.Logger) error {
	store, err := credstore.New(cfg.Store)
	if err != nil {
		return err
	}
	opener, err := driver.New(cfg.Driver, driver.Config{
		Logger:        logger,
		AutoPairDelay: cfg.LoopbackAutoPair,
	})
	if err != nil {
		return err
	}

	supervisor := bridge.NewSupervisor(cfg.Bridge, store, opener, logger)
	server := api.NewServer(cfg.API, supervisor, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 2)
	go func() { errc <- supervisor.Run(ctx) }()
	go func() { errc <- server.Run(ctx) }()

	err = <-errc
	stop()
	if second := <-errc; err == nil {
		err = second
	}
	return err
}
