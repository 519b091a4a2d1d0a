package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"sbsk/config"
	"sbsk/db"
	"sbsk/logger"
	"sbsk/pipeline"
	"sbsk/scheduler"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "train_model: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("train_model", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "config file")
	dataPath := fs.String("data", "", "training spreadsheet (.xlsx, .xlsm or .csv)")
	sheet := fs.String("sheet", "", "worksheet name, first sheet when empty")
	modelPath := fs.String("model_path", "", "artifact output path")
	testRatio := fs.Float64("test_ratio", 0, "held-out fraction")
	seed := fs.Int64("seed", 0, "split seed")
	neighbors := fs.Int("neighbors", 0, "k for the nearest-neighbour regressor")
	weights := fs.String("weights", "", "uniform or distance")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// explicit flags win over the file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.ML.DatasetPath = *dataPath
		case "sheet":
			cfg.ML.Sheet = *sheet
		case "model_path":
			cfg.ML.ModelPath = *modelPath
		case "test_ratio":
			cfg.ML.TestRatio = *testRatio
		case "seed":
			cfg.ML.Seed = *seed
		case "neighbors":
			cfg.ML.Neighbors = *neighbors
		case "weights":
			cfg.ML.Weights = *weights
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ML.DatasetPath == "" {
		return fmt.Errorf("dataset path is required (-data or ml.dataset_path)")
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	job := &scheduler.TrainJob{
		DatasetPath: cfg.ML.DatasetPath,
		ModelPath:   cfg.ML.ModelPath,
		Loader: pipeline.NewDatasetLoader(pipeline.LoadOptions{
			Sheet:    cfg.ML.Sheet,
			Encoding: cfg.ML.Encoding,
			Renames:  cfg.ML.ColumnRenames,
		}, log),
		Config: cfg.TrainConfig(),
		Log:    log,
	}
	if cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		job.Runs = store
	}

	_, run, err := job.Run(context.Background())
	if err != nil {
		log.Error("training failed", zap.Error(err))
		return err
	}
	fmt.Printf("model saved to %s (train R²=%.4f, test R²=%.4f, run %s)\n",
		cfg.ML.ModelPath, run.TrainR2, run.TestR2, run.ID)
	return nil
}
