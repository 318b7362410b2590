package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"

	"github.com/oaiiae/contacts-api/cli/api"
	"github.com/oaiiae/contacts-api/cli/logger"
)

var (
	title    = "Contacts API"
	version  = "dev" // set by -ldflags
	revision = ""    // set by -ldflags
	created  = ""    // set by -ldflags
)

// Options for the CLI. Pass `--port` or set the `SERVICE_PORT` env var.
type Options struct {
	api.ServerOptions
	api.RouterOptions
	api.StoreOptions
	logger.Options
}

func main() {
	// a missing .env file is not an error, the environment may be set otherwise
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env file", "err", err)
	}

	cli := humacli.New(func(hooks humacli.Hooks, options *Options) {
		log := logger.New(&options.Options)

		srv := api.NewServer(&options.ServerOptions, nil, log)
		hooks.OnStart(func() {
			stores, err := api.OpenStores(context.Background(), &options.StoreOptions)
			if err != nil {
				log.Error("failed to open stores", "err", err)
				os.Exit(1)
			}
			defer stores.Close()

			srv.Handler = api.NewRouter(&options.RouterOptions, title, version, revision, created, stores, log)
			log.Info("listening", "addr", srv.Addr, "store", options.StoreDriver)
			err = srv.ListenAndServe()
			if err != http.ErrServerClosed {
				log.Error("failed to listen and serve", "err", err)
			} else {
				log.Info("server closed")
			}
		})
		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			err := srv.Shutdown(ctx)
			if err != nil {
				log.Warn("could not shutdown the server", "err", err)
			}
		})
	})
	cli.Run()
}
