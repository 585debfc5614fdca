// Command syncd runs the sync-agent upload daemon: it watches a
// directory tree, queues changed files, and uploads them to the
// configured server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Labric-Platforms/sync-agent/internal/config"
	"github.com/Labric-Platforms/sync-agent/internal/events"
	"github.com/Labric-Platforms/sync-agent/internal/heartbeat"
	"github.com/Labric-Platforms/sync-agent/internal/ingest"
	"github.com/Labric-Platforms/sync-agent/internal/pipeline"
	"github.com/Labric-Platforms/sync-agent/internal/progress"
	"github.com/Labric-Platforms/sync-agent/internal/scheduler"
	"github.com/Labric-Platforms/sync-agent/internal/settings"
	"github.com/Labric-Platforms/sync-agent/internal/syncclient"
	"github.com/Labric-Platforms/sync-agent/internal/uploader"
	"github.com/Labric-Platforms/sync-agent/internal/uploadqueue"
	"github.com/Labric-Platforms/sync-agent/internal/watchadapter"
)

const appVersion = "1.0.0"

func main() {
	root := flag.String("root", ".", "directory to watch and sync")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus /metrics on (empty disables it)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*root, *metricsAddr, logger); err != nil {
		logger.Fatal("syncd exited with error", zap.Error(err))
	}
}

func run(root, metricsAddr string, logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfgStore := config.NewStore(cfg)

	settingsPath, err := defaultSettingsPath()
	if err != nil {
		return fmt.Errorf("resolve settings path: %w", err)
	}
	settingsStore, err := settings.Open(settingsPath)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}

	sink := events.NewChannelSink(64)
	go consumeEvents(sink, logger)

	queue := uploadqueue.New()
	reg := prometheus.NewRegistry()
	prog := progress.New(reg)
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}
	front := ingest.New(cfgStore, queue, sink, logger)

	syncClient := syncclient.New(cfg.ServerURL, settingsStore.Token)
	up := uploader.New(syncClient, sink, logger)
	sched := scheduler.New(queue, cfgStore, prog, syncClient, up, sink, logger)

	pl := pipeline.New(cfgStore, queue, front, sched, prog, logger)

	watcher, err := watchadapter.New(root, front, logger)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.InitialScan(); err != nil {
		logger.Warn("initial scan failed", zap.Error(err))
	}
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	fingerprint, err := settingsStore.DeviceFingerprint()
	if err != nil {
		logger.Warn("device fingerprint unavailable", zap.Error(err))
	}
	reporter := heartbeat.New(logger)
	if token, has := settingsStore.Token(); has {
		reporter.Start(heartbeat.Config{
			URL:               cfg.ServerURL + "/api/sync/heartbeat",
			Token:             token,
			DeviceFingerprint: fingerprint,
			AppVersion:        appVersion,
		})
		defer reporter.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pl.Run(ctx)

	logger.Info("syncd started", zap.String("root", root), zap.String("server", cfg.ServerURL))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("syncd stopping")
	return nil
}

func defaultSettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, config.DefaultConfigDir, "settings.json"), nil
}

// consumeEvents drains sink's FileUploadStatuses and UploadSuccesses
// channels and logs them, the structured analogue of the teacher
// daemon's onSuccess/onError stderr prints. The sink's other channels
// are not read here.
func consumeEvents(sink *events.ChannelSink, logger *zap.Logger) {
	for {
		select {
		case evt, ok := <-sink.FileUploadStatuses:
			if !ok {
				return
			}
			if evt.Status == events.StatusFailed {
				logger.Warn("upload failed", zap.String("path", evt.RelativePath), zap.String("error", evt.Error))
				continue
			}
			logger.Info("file status", zap.String("path", evt.RelativePath), zap.String("status", string(evt.Status)))
		case relPath, ok := <-sink.UploadSuccesses:
			if !ok {
				return
			}
			logger.Info("uploaded", zap.String("path", relPath))
		}
	}
}
