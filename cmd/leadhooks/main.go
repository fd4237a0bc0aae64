package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	leadhooks "github.com/goliatone/go-leadhooks"
	"github.com/goliatone/go-leadhooks/adapters/gologger"
	promadapter "github.com/goliatone/go-leadhooks/adapters/prometheus"
	"github.com/goliatone/go-leadhooks/core"
	"github.com/goliatone/go-leadhooks/httpapi"
	sqlstore "github.com/goliatone/go-leadhooks/store/sql"

	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/errgroup"
)

var _ httpapi.Backend = (*leadhooks.Service)(nil)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	logLevel := flag.String("log-level", "info", "trace, debug, info, warn or error")
	logFormat := flag.String("log-format", "json", "json, text or pretty")
	flag.Parse()

	root := gologger.New(gologger.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Name:   "leadhooks",
	})
	logger := root.GetLogger("leadhooks.main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, root); err != nil {
		logger.Error("leadhooks exited", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("leadhooks stopped")
}

func run(ctx context.Context, configPath string, provider glog.LoggerProvider) error {
	logger := provider.GetLogger("leadhooks.main")

	configProvider, err := fileConfigProvider(configPath)
	if err != nil {
		return err
	}
	cfg, err := core.ResolveConfig(ctx, core.Config{}, configProvider, nil)
	if err != nil {
		return err
	}

	client, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("database close failed", "error", closeErr.Error())
		}
	}()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return err
	}

	recorder, err := promadapter.NewRecorder(promadapter.Options{RuntimeCollectors: true})
	if err != nil {
		return err
	}

	opts := []leadhooks.Option{
		leadhooks.WithLoggerProvider(provider),
		leadhooks.WithMetricsRecorder(recorder),
		leadhooks.WithRepositoryFactory(factory),
	}
	counters, closeCounters, err := openCounterStore(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCounters()
	if counters != nil {
		opts = append(opts, leadhooks.WithCounterStore(counters))
		logger.Info("breaker counters shared through redis")
	}

	svc, err := leadhooks.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}

	handlers, err := httpapi.NewHandlers(svc, recorder.Handler(), core.NewObserver("leadhooks.http", provider, nil, recorder))
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(handlers),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout())
		defer cancel()
		return errors.Join(server.Shutdown(shutdownCtx), svc.Close(shutdownCtx))
	})
	return group.Wait()
}
