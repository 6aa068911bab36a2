package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tidbyt.dev/timetable/logging"
	"tidbyt.dev/timetable/metrics"
	"tidbyt.dev/timetable/publisher"
	"tidbyt.dev/timetable/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the timetable HTTP API",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, level, cfg.Log.Format)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	window, err := cfg.Window()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := newRepository(cfg, false)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	if cfg.Server.MetricsEnabled {
		collector = metrics.NewCollector(cfg.Schedule.RestMinutes)
		if cfg.Server.MetricsAddr != "" {
			metricsSrv := collector.Serve(cfg.Server.MetricsAddr, logger)
			defer metricsSrv.Close()
		}
	}

	var pub publisher.Publisher = publisher.Nop{}
	if cfg.NATS.URL != "" {
		var m publisher.PublisherMetrics
		if collector != nil {
			m = collector
		}
		nats, err := publisher.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, cfg.NATS.LogSubjects, logger, m)
		if err != nil {
			return err
		}
		defer nats.Close()
		pub = nats
	}

	// Fail early on a broken dataset.
	_, err = repo.Load(ctx)
	if err != nil {
		return err
	}
	metadata := repo.Metadata()
	logger.Info("dataset loaded",
		slog.String("source", metadata.Source),
		slog.String("hash", metadata.Hash),
		slog.Int("routes", metadata.RouteCount),
		slog.Int("stops", metadata.StopCount),
	)
	if collector != nil {
		collector.ObserveDataset(metadata.RouteCount, metadata.StopCount)
	}

	srv := server.New(repo, server.Options{
		Logger:        logger,
		Metrics:       collector,
		ExposeMetrics: cfg.Server.MetricsAddr == "",
		Publisher:     pub,
		CacheSize:     cfg.Cache.Size,
		CacheTTL:      cfg.CacheTTL(),
		RestMinutes:   cfg.Schedule.RestMinutes,
		Window:        window,
		Location:      loc,
	})

	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}
