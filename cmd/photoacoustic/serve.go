package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sctg-development/rust-photoacoustic-sub001/acquisition"
	"github.com/sctg-development/rust-photoacoustic-sub001/analytics"
	"github.com/sctg-development/rust-photoacoustic-sub001/config"
	"github.com/sctg-development/rust-photoacoustic-sub001/engine"
	"github.com/sctg-development/rust-photoacoustic-sub001/gateway"
	"github.com/sctg-development/rust-photoacoustic-sub001/graph"
	"github.com/sctg-development/rust-photoacoustic-sub001/metric"
	"github.com/sctg-development/rust-photoacoustic-sub001/natsclient"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
	"github.com/sctg-development/rust-photoacoustic-sub001/registry"
	"github.com/sctg-development/rust-photoacoustic-sub001/reload"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the processing engine and HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), flags)
		},
	}
}

func serve(ctx context.Context, flags *globalFlags) error {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	level := cfg.Logging.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	format := cfg.Logging.Format
	if flags.logFormat != "" {
		format = flags.logFormat
	}
	logger := setupLogger(level, format)
	slog.SetDefault(logger)

	logger.Info("starting engine", "config", flags.configPath,
		"sample_rate", cfg.Acquisition.SampleRate, "frame_size", cfg.Acquisition.FrameSize)

	if ctx == nil {
		ctx = context.Background()
	}
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := metric.NewRegistry()
	state := analytics.NewState()

	var natsClient *natsclient.Client
	if cfg.NATS.Enabled {
		natsClient = natsclient.NewClient(cfg.NATS.URL,
			natsclient.WithName("photoacoustic"),
			natsclient.WithLogger(logger))
		if err := natsClient.Connect(signalCtx); err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer natsClient.Close()
	}

	catalog := registry.MustCatalog()
	deps := node.Dependencies{
		Logger:    logger,
		Metrics:   metrics,
		Analytics: state,
		NATS:      natsClient,
		DataDir:   cfg.DataDir,
	}

	g, err := graph.Build(cfg.Graph, catalog, deps)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	store := config.NewStore(cfg)
	metrics.Metrics.ConfigVersion.Set(float64(store.Revision()))

	consumer := engine.NewConsumer(g, engine.WithLogger(logger))
	consumer.Start(signalCtx)

	source := acquisition.NewSimulatedSource(cfg.Acquisition)
	producer := acquisition.NewProducer(source, consumer, cfg.Acquisition.FramesPerSecond, logger, metrics)
	producer.Start(signalCtx)

	dispatcher := reload.NewDispatcher(store, consumer, catalog, deps)
	server := gateway.NewServer(cfg.Gateway.Addr, store, dispatcher, consumer, state, metrics,
		gateway.WithLogger(logger))

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		return server.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		producer.Stop()
		consumer.Stop()
		return nil
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("engine failed: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
