package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	rawsheets "github.com/JustaPenguin/autocross-raw-sheets"
)

func main() {
	configFile := flag.String("config", "config.yml", "path to the configuration file")
	flag.Parse()

	rawsheets.InitLogging()

	config, err := rawsheets.ReadConfig(*configFile)

	if err != nil {
		logrus.Fatalf("could not open config file, err: %s", err)
	}

	rawsheets.InitMonitoring(config.Monitoring)

	store, err := config.Store.BuildStore()

	if err != nil {
		logrus.Fatalf("could not open store, err: %s", err)
	}

	resolver := rawsheets.NewResolver(store, config)
	runService := resolver.ResolveRunService()

	resolver.StartRunsHub()

	srv := &http.Server{
		Addr:    config.HTTP.Hostname,
		Handler: resolver.ResolveRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logrus.Infof("starting raw sheets on: %s", config.HTTP.Hostname)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.HTTP.ShutdownTimeout)
		defer cancel()

		logrus.Infof("shutting down raw sheets")

		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// pending run saves are flushed before the store goes away
	runService.Close()

	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logrus.WithError(err).Error("could not close store")
		}
	}

	if err != nil {
		logrus.Fatal(err)
	}
}
