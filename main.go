package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sbsk/config"
	"sbsk/db"
	qhttp "sbsk/http"
	"sbsk/logger"
	"sbsk/ml"
	"sbsk/monitoring"
	"sbsk/pipeline"
	"sbsk/scheduler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "sbsk: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer zap.ReplaceGlobals(log)()

	// 2. Open history store
	var (
		history qhttp.History
		runs    scheduler.RunRecorder
	)
	if cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()
		history, runs = store, store
		log.Info("database initialized", zap.String("path", cfg.Database.Path))
	}

	// 3. Load model; a missing artifact leaves predictions unavailable
	model, err := ml.Load(cfg.ML.ModelPath)
	switch {
	case err == nil:
		log.Info("model loaded",
			zap.String("path", cfg.ML.ModelPath),
			zap.Time("trained_at", model.TrainedAt),
			zap.Int("train_rows", model.TrainRows),
		)
	case errors.Is(err, ml.ErrModelUnavailable):
		log.Warn("no model artifact, predictions unavailable until one is trained", zap.String("path", cfg.ML.ModelPath))
	default:
		log.Error("failed to load model artifact", zap.String("path", cfg.ML.ModelPath), zap.Error(err))
	}
	predictor, err := ml.NewPredictor(model, ml.WithCacheSize(cfg.ML.CacheSize))
	if err != nil {
		return err
	}
	metrics := monitoring.NewMetricsCollector()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Background model maintenance
	if cfg.ML.WatchModel {
		watcher, err := scheduler.NewModelWatcher(cfg.ML.ModelPath, predictor, metrics, log)
		if err != nil {
			return fmt.Errorf("watch model: %w", err)
		}
		go watcher.Run(ctx)
	}
	var retrainer *scheduler.Retrainer
	if cfg.ML.TrainSchedule != "" {
		job := &scheduler.TrainJob{
			DatasetPath: cfg.ML.DatasetPath,
			ModelPath:   cfg.ML.ModelPath,
			Loader: pipeline.NewDatasetLoader(pipeline.LoadOptions{
				Sheet:    cfg.ML.Sheet,
				Encoding: cfg.ML.Encoding,
				Renames:  cfg.ML.ColumnRenames,
			}, log),
			Config: cfg.TrainConfig(),
			Runs:   runs,
			Log:    log,
		}
		retrainer, err = scheduler.NewRetrainer(cfg.ML.TrainSchedule, job, predictor, metrics, log)
		if err != nil {
			return err
		}
		if err := retrainer.Start(); err != nil {
			return err
		}
	}

	// 5. Start HTTP server
	server, err := qhttp.NewServer(cfg, qhttp.Deps{
		Predictor: predictor,
		History:   history,
		Metrics:   metrics,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 6. Handle graceful shutdown
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if retrainer != nil {
		if err := retrainer.Stop(shutdownCtx); err != nil {
			log.Error("retrainer did not stop cleanly", zap.Error(err))
		}
	}
	log.Info("exiting")
	return nil
}
