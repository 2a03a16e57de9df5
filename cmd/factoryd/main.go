package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/collection-factory/cmd/flags"
	"github.com/ruteri/collection-factory/config"
	"github.com/ruteri/collection-factory/httpserver"
)

var cliFlags = append([]cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "factory configuration file (.toml, .yaml or .yml); in-memory defaults when empty",
		EnvVars: []string{"FACTORY_CONFIG"},
	},
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "factoryd",
		Usage: "Serve the collection factory API",
		Flags: cliFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			cfg := config.Default()
			if path := cCtx.String("config"); path != "" {
				loaded, err := config.Load(path)
				if err != nil {
					logger.Error("Failed to load configuration", "err", err)
					return err
				}
				cfg = loaded
			}

			shutdownTracing, err := flags.SetupTracing(cCtx)
			if err != nil {
				logger.Error("Failed to set up tracing", "err", err)
				return err
			}
			defer shutdownTracing(context.Background())

			ctx, cancel := context.WithCancel(cCtx.Context)
			defer cancel()

			svc, err := buildService(ctx, cfg, logger)
			if err != nil {
				logger.Error("Failed to create factory", "err", err)
				return err
			}
			defer svc.Close()

			factoryDone := make(chan error, 1)
			go func() {
				factoryDone <- svc.factory.Run(ctx)
			}()

			serverCfg := flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr"))
			handler := httpserver.NewHandler(svc.factory, svc.runtime, svc.auth, serverCfg.WaitTimeout, logger)
			server, err := httpserver.New(serverCfg, handler, svc.metrics)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting factory",
				"account", svc.factory.AccountID(),
				"strictReservation", cfg.Factory.StrictReservation,
				"registry", cfg.Registry.Driver,
				"refunds", cfg.Refunds.Backend)
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			select {
			case <-exit:
				logger.Info("Shutdown signal received")
			case err := <-factoryDone:
				logger.Error("Factory stopped", "err", err)
			}

			server.Shutdown()
			cancel()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
