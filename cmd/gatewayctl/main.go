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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/gatewayctl/internal/config"
	"github.com/danmuck/gatewayctl/internal/gateway"
	"github.com/danmuck/gatewayctl/internal/logging"
	"github.com/danmuck/gatewayctl/internal/observability"
)

const metricsShutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "cmd/gatewayctl/config.toml", "path to the gatewayctl TOML config")
	levelFlag := flag.String("log-level", "", "override log_level from the config")
	flag.Parse()

	logging.ConfigureRuntime()
	rt, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load gatewayctl config")
	}
	level := rt.LogLevel
	if *levelFlag != "" {
		level = *levelFlag
	}
	if lvl, ok := logging.ParseLevel(level); ok {
		zerolog.SetGlobalLevel(lvl)
	}
	log.Info().Str("path", *configPath).Msg("loaded gatewayctl config")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, rt); err != nil {
		fmt.Fprintf(os.Stderr, "gatewayctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, rt config.Runtime) error {
	observability.RegisterMetrics()
	logger := log.Logger
	rt.Gateway.Logger = &logger

	engine, err := gateway.New(rt.Gateway, newLogHandler(logger))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Start(gctx)
	})
	if rt.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              rt.MetricsAddr,
			Handler:           observability.RequestLogger(observability.ComponentLogger(logger, "http"), routes(engine)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", rt.MetricsAddr).Msg("metrics listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-engine.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	err = g.Wait()
	log.Info().Str("state", engine.State().String()).Msg("gatewayctl stopped")
	return err
}
